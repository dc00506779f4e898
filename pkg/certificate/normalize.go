package certificate

import (
	"strings"
	"unicode"
)

// Normalize canonicalises an OCR token for label matching: trimmed,
// lower-cased, with whitespace and every rune outside a-z removed.
// The result may be empty.
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
