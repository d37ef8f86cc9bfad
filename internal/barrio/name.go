package barrio

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldName normalizes a neighborhood name for comparison: accents are
// stripped, case is folded and surrounding space is trimmed.
func FoldName(name string) string {
	// Transformers are stateful, so build a fresh chain per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, strings.TrimSpace(name))
	if err != nil {
		s = strings.TrimSpace(name)
	}
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

// SameName reports whether two neighborhood names refer to the same place.
// The backend mixes "Sant Martí" and "sant marti" across endpoints.
func SameName(a, b string) bool {
	return FoldName(a) == FoldName(b)
}
