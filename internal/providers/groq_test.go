package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroqKeyMissing(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	p := NewGroqProvider("alias1")
	_, _, err := p.Generate(context.Background(), GenerateRequest{Prompt: "hola"})
	require.Error(t, err)
	require.Equal(t, ErrorConfig, ClassifyError(err))
}

func TestGroqGenerateSendsTemperature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gk", r.Header.Get("Authorization"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(0), body["temperature"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "respuesta"}}},
		})
	}))
	defer srv.Close()
	t.Setenv("GROQ_API_KEY", "gk")
	t.Setenv("LEXRAG_GROQ_BASE_URL", srv.URL)

	resp, info, err := NewGroqProvider("").Generate(context.Background(), GenerateRequest{Prompt: "hola"})
	require.NoError(t, err)
	require.Equal(t, "respuesta", resp.Text)
	require.Equal(t, "groq", info.Name)
}
