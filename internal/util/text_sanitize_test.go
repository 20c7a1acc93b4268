package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeText(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"nul and controls", "ab\x00cd\x01\x02\n\txy", "abcd\n\txy"},
		{"keeps accents", "  Código Civil\x00  ", "Código Civil"},
		{"soft hyphen", "consti\u00adtuci\u00f3n", "constitución"},
		{"zero width and bom", "\ufeffArtículo\u200b 14", "Artículo 14"},
		{"non-breaking space", "Art.\u00a0123", "Art. 123"},
		{"c1 controls", "Ley\u0085 N°\u007f 26.994", "Ley N° 26.994"},
		{"decomposed accent", "Co\u0301digo Penal", "Código Penal"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, SanitizeText(tc.in))
		})
	}
}
