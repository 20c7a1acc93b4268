package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// invisible marks PDF extractors leave inside words
var invisible = strings.NewReplacer(
	"\u00ad", "", // soft hyphen
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\ufeff", "",
	"\ufffd", "",
	"\u00a0", " ",
)

// SanitizeText cleans extracted page text before it is chunked and stored.
// NUL and other control bytes are rejected by Postgres text columns; tabs and
// newlines survive. Accents are composed (NFC) so "Código" compares equal
// whether the PDF encoded "ó" as one rune or two.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = invisible.Replace(s)
	r := make([]rune, 0, len(s))
	for _, ch := range s {
		switch {
		case ch == '\n' || ch == '\r' || ch == '\t':
		case ch < 0x20, ch >= 0x7f && ch < 0xa0:
			continue
		}
		r = append(r, ch)
	}
	return strings.TrimSpace(norm.NFC.String(string(r)))
}
