package transcript

import (
	"path"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TitleFromFilename derives the transcript title from an uploaded file name:
// the base name with its last extension removed, upper-cased. Browser-supplied
// Windows paths are handled as well.
func TitleFromFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return ""
	}
	base := path.Base(name)
	if base == "." || base == "/" {
		return ""
	}

	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" {
		// ".wav" has no stem of its own; keep the whole name
		stem = base
	}

	// cases.Caser is stateful, so build one per call
	return cases.Upper(language.Und).String(stem)
}
