package ocr

import (
	"path/filepath"
	"strings"
)

// snippet returns a shortened version of text for logging.
func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// joinTexts collapses token texts into one line for logging.
func joinTexts(tokens []Token) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		parts = append(parts, t.Text)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// IsImage reports whether path has an extension the pipeline accepts.
func IsImage(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}
