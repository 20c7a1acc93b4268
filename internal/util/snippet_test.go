package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnippetCleansAndTruncates(t *testing.T) {
	assert.Equal(t, "Artículo 1 La soberanía", Snippet("Artículo\x00   1 \n\t La soberanía", 100))

	out := Snippet(strings.Repeat("derecho ", 40), 20)
	assert.True(t, strings.HasSuffix(out, "..."), out)
	assert.NotContains(t, out, "derech...")
}

func TestEvidenceSnippetPrefersMatchingSentences(t *testing.T) {
	chunk := "El Estado garantiza la educación pública. Toda persona tiene derecho a la libertad de expresión. Disposición transitoria sin relación."
	out := EvidenceSnippet(chunk, "¿Qué dice sobre la LIBERTAD de expresion?", 200)
	assert.Equal(t, "Toda persona tiene derecho a la libertad de expresión.", out)
}

func TestEvidenceSnippetFallsBackToLeadingText(t *testing.T) {
	chunk := "Primera oración. Segunda oración."
	assert.Equal(t, chunk, EvidenceSnippet(chunk, "vehículos", 200))
	assert.Equal(t, chunk, EvidenceSnippet(chunk, "¿y?", 200))
}

func TestQueryTerms(t *testing.T) {
	assert.Equal(t, []string{"articulo", "constitucion"}, QueryTerms("¿Qué dice el artículo 3 de la Constitución? artículo"))
}
