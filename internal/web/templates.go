package web

import (
	"embed"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

func loadTemplates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

// pageData feeds the index template
type pageData struct {
	ProductName     string
	Accept          string
	ExtensionsLabel string
	MaxUpload       string
	Notice          string
	Error           string
	Result          *resultView
}

type resultView struct {
	Title    string
	Plain    string
	Segments int
	Cached   bool
	Duration string
	TxtURL   string
	SrtURL   string
}

func acceptAttr(exts []string) string {
	dotted := make([]string, len(exts))
	for i, ext := range exts {
		dotted[i] = "." + ext
	}
	return strings.Join(dotted, ",")
}

func extensionsLabel(exts []string) string {
	return strings.ToUpper(strings.Join(exts, ", "))
}
