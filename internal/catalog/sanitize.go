package catalog

import (
	"strings"
	"unicode"
)

// SanitizeTitle makes a title safe to embed in a file name on common filesystems.
func SanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r == '?' || unicode.IsControl(r):
		case r == '"':
			b.WriteRune('\'')
		case r == ':':
			b.WriteString(" -")
		case strings.ContainsRune(`\/|*<>`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	out = strings.TrimLeft(out, ".")
	if out == "" {
		return "_"
	}
	return out
}
