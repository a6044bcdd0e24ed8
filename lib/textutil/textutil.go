package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)
var nonWordRegex = regexp.MustCompile(`[^a-z0-9]+`)

// StripAccents removes diacritics, "Estádio" becomes "Estadio".
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeName lowercases a name and removes accents and whitespace, two
// spellings of the same name normalize to the same string.
func NormalizeName(name string) string {
	name = StripAccents(name)
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// Slug turns a display name into a stable identifier, "Providence Park"
// becomes "providence-park".
func Slug(name string) string {
	name = strings.ToLower(StripAccents(name))
	name = nonWordRegex.ReplaceAllString(name, "-")
	return strings.Trim(name, "-")
}

// CollapseSpace trims a string and collapses inner runs of whitespace into a
// single space.
func CollapseSpace(s string) string {
	return whitespaceRegex.ReplaceAllString(strings.TrimSpace(s), " ")
}
