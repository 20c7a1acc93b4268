package prompts

import (
	"strings"
	"testing"

	"lexrag/internal/models"

	"github.com/stretchr/testify/require"
)

func TestCondenseIncludesHistoryAndQuestion(t *testing.T) {
	out, err := Condense(CondenseInput{
		History: []models.Turn{
			{Role: models.RoleUser, Content: "¿Qué dice el artículo 66?"},
			{Role: models.RoleAssistant, Content: "Reconoce derechos de libertad."},
		},
		Question: "¿Y el siguiente?",
	})
	require.NoError(t, err)
	require.Contains(t, out, "Usuario: ¿Qué dice el artículo 66?")
	require.Contains(t, out, "Asistente: Reconoce derechos de libertad.")
	require.Contains(t, out, "Nueva pregunta: ¿Y el siguiente?")
}

func TestAnswerNumbersContextBeforeInstructions(t *testing.T) {
	out, err := Answer(AnswerInput{
		Question: "¿Qué establece el artículo 1?",
		Context:  []string{"Type: ley. File: a.pdf. Page: 1. Artículo 1.", "Type: codigo. File: c.pdf. Page: 3. Artículo 9."},
	})
	require.NoError(t, err)
	require.Contains(t, out, "Contexto:\n[1] Type: ley. File: a.pdf. Page: 1. Artículo 1.\n\n[2] Type: codigo.")
	require.NotContains(t, out, "Context:\n")
	require.True(t, strings.HasSuffix(out, "Respuesta:"), out)
	ctx := strings.Index(out, "Contexto:")
	require.Less(t, ctx, strings.Index(out, "Pregunta: ¿Qué establece"))
	require.Less(t, strings.Index(out, "Pregunta:"), strings.Index(out, "Instrucciones:"))
}

func TestAnswerFallsBackWithoutContext(t *testing.T) {
	with, err := Answer(AnswerInput{Question: "q", Context: []string{"Artículo 1."}})
	require.NoError(t, err)
	require.Contains(t, with, "cítalos como [1]")

	without, err := Answer(AnswerInput{Question: "q"})
	require.NoError(t, err)
	require.Contains(t, without, "conocimiento jurídico general")
	require.NotContains(t, without, "cítalos")
	require.NotContains(t, without, "Contexto:")
}
