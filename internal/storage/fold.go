package storage

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer strips combining marks so accented and unaccented
// spellings compare equal. Directory data is largely Portuguese, where
// "Automação" should match a query of "automacao".
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldAccents(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(folded)
}

// matchesQuery reports whether the channel's name or description contains
// the query, ignoring case and diacritics. An empty query matches all.
func matchesQuery(name, description, query string) bool {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return true
	}
	needle := foldAccents(trimmed)
	return strings.Contains(foldAccents(name), needle) ||
		strings.Contains(foldAccents(description), needle)
}
