package main

import (
	"fmt"
	"os"
	"path/filepath"

	"onetwotranscript/internal/transcript"
)

// writeDocument saves both renderings into dir and returns their paths
func writeDocument(dir string, doc transcript.Document) (string, string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output directory %q: %w", dir, err)
	}

	plainPath := filepath.Join(dir, doc.PlainFilename())
	if err := os.WriteFile(plainPath, []byte(doc.Plain), 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", plainPath, err)
	}
	subtitlePath := filepath.Join(dir, doc.SubtitleFilename())
	if err := os.WriteFile(subtitlePath, []byte(doc.Subtitles), 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", subtitlePath, err)
	}
	return plainPath, subtitlePath, nil
}
