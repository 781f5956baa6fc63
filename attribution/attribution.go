package attribution

import (
	"strings"
	"unicode"
)

const (
	namespacePrefix = "File:"
	lookSuffix      = "Look"
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg"}

// Attribution is the result of matching a file title against known names.
type Attribution struct {
	Name     string
	Category string
	Matched  bool
}

// Parse attributes a raw file title to a known name and a category.
//
// The first entry of knownNames whose normalized form prefixes the bare title
// wins, so callers control tie-breaking through list order. Titles that match
// no name keep the whole bare string as their category.
func Parse(rawTitle string, knownNames []string) Attribution {
	bare := Bare(rawTitle)

	for _, name := range knownNames {
		key := Normalize(name)
		if key == "" {
			continue
		}
		if strings.HasPrefix(bare, key) {
			return Attribution{
				Name:     name,
				Category: bare[len(key):],
				Matched:  true,
			}
		}
	}

	return Attribution{Category: bare}
}

// Bare strips the namespace marker, image extension and trailing "Look"
// keyword from a file title.
func Bare(rawTitle string) string {
	s := strings.TrimPrefix(rawTitle, namespacePrefix)

	for _, ext := range imageExtensions {
		if len(s) >= len(ext) && strings.EqualFold(s[len(s)-len(ext):], ext) {
			s = s[:len(s)-len(ext)]
			break
		}
	}

	return strings.TrimSuffix(s, lookSuffix)
}

// Normalize removes every non-alphanumeric rune from name.
func Normalize(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, name)
}
