package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText lowers s, trims it and strips diacritics so that "João" and
// "joao" compare equal. Student-name matching relies on this.
func NormalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	// NFD decomposition followed by removal of combining marks.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
