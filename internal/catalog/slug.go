package catalog

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a stable machine key from a display label: case-fold,
// trim, non-alphanumeric runs to a single hyphen. The derivation is a pure
// function of the input, so re-deriving from the same string always yields
// the same slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

var titleCaser = cases.Title(language.English)

// DisplayFromLegacy builds an English display name from a legacy free-text
// category string.
func DisplayFromLegacy(legacy string) string {
	return titleCaser.String(strings.TrimSpace(legacy))
}

// NormalizeName folds a place name for similarity comparison: lower-case,
// punctuation to spaces, collapsed whitespace.
func NormalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
