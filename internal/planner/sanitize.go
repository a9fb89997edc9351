package planner

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxFilenameLength caps a sanitized base name (before the extension).
const maxFilenameLength = 200

// forbiddenChars are stripped from any filename component, matching
// characters that are invalid on common filesystems (Windows in
// particular, the strictest of the three major platforms).
const forbiddenChars = `<>:"/\|?*`

// sanitizeFilename strips forbidden and control characters, collapses
// runs of internal whitespace into a single underscore, trims leading
// and trailing whitespace and dots from the result, and caps its
// length.
func sanitizeFilename(name string) string {
	var sb strings.Builder
	lastWasSpace := false
	for _, r := range name {
		switch {
		case strings.ContainsRune(forbiddenChars, r):
			continue
		case unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			if !lastWasSpace {
				sb.WriteByte('_')
			}
			lastWasSpace = true
		default:
			sb.WriteRune(r)
			lastWasSpace = false
		}
	}
	cleaned := strings.Trim(sb.String(), "_. ")
	if len(cleaned) > maxFilenameLength {
		cut := maxFilenameLength
		for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
			cut--
		}
		cleaned = cleaned[:cut]
	}
	return cleaned
}
