package mapping

import (
	"regexp"
	"strings"
)

var (
	qualifierRe = regexp.MustCompile(`\([^)]*\)`)
	separatorRe = regexp.MustCompile(`[_\-\s]+`)
	flattenRe   = regexp.MustCompile(`[_\-\s.]+`)
	anchorRe    = regexp.MustCompile(`[.*^$]+`)
)

// cleanColumn strips parenthesized qualifiers so headers like
// "MRN (string)" or "First Name (FN)" match their base name.
func cleanColumn(col string) string {
	return strings.TrimSpace(qualifierRe.ReplaceAllString(col, ""))
}

// normalizeName lowercases a name and collapses runs of separators into a
// single space.
func normalizeName(name string) string {
	return strings.TrimSpace(separatorRe.ReplaceAllString(strings.ToLower(name), " "))
}

// flatten removes every separator so "First Name", "first_name" and
// "FIRST-NAME" compare equal.
func flatten(name string) string {
	return flattenRe.ReplaceAllString(strings.ToLower(name), "")
}

// patternLiteral strips regex metacharacters from a pattern, leaving the
// literal alias it encodes ("^first name$" becomes "first name").
func patternLiteral(pattern string) string {
	return strings.TrimSpace(anchorRe.ReplaceAllString(pattern, ""))
}
