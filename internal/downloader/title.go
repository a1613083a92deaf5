package downloader

import (
	"strings"
	"unicode"
)

const fallbackTitle = "document"

// SanitizeTitle turns a page title into a file name: path separators and
// control characters become "_" and surrounding blanks are dropped.
func SanitizeTitle(title string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsControl(r):
			return '_'
		}
		return r
	}, title)
	s = strings.TrimSpace(s)

	if s == "" || s == "." || s == ".." {
		return fallbackTitle
	}
	return s
}
