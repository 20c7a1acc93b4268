package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lexrag/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOllamaEmbedModel_Default(t *testing.T) {
	t.Setenv("LEXRAG_OLLAMA_EMBED_MODEL", "")
	if got := resolveOllamaEmbedModel(""); got != "nomic-embed-text" {
		t.Fatalf("expected default nomic-embed-text, got %q", got)
	}
	if got := resolveOllamaEmbedModel("mxbai-embed-large"); got != "mxbai-embed-large" {
		t.Fatalf("expected direct model, got %q", got)
	}
}

func TestOllamaProviderEmbedAndChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/embed":
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "nomic-embed-text", body["model"])
			_ = json.NewEncoder(w).Encode(map[string]any{
				"model":      "nomic-embed-text",
				"embeddings": [][]float32{{1, 0, 0}, {0, 1, 0}},
			})
		case "/api/chat":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"model":   "llama3.1",
				"message": map[string]string{"role": "assistant", "content": "Artículo 1."},
				"done":    true,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	t.Setenv("LEXRAG_OLLAMA_BASE_URL", srv.URL)
	t.Setenv("LEXRAG_OLLAMA_EMBED_MODEL", "")

	p := NewOllamaProvider("")
	vecs, info, err := p.Embed(context.Background(), EmbedRequest{Inputs: []string{"a", "b"}, Dimension: 3})
	require.NoError(t, err)
	require.Equal(t, "ollama", info.Name)
	require.Len(t, vecs, 2)
	require.Equal(t, []float32{1, 0, 0}, vecs[0])

	_, _, err = p.Embed(context.Background(), EmbedRequest{Inputs: []string{"a", "b"}, Dimension: 3072})
	require.ErrorIs(t, err, util.ErrData)
	require.Contains(t, err.Error(), "3-dimensional")

	resp, _, err := p.Generate(context.Background(), GenerateRequest{Prompt: "¿Qué dice el artículo 1?"})
	require.NoError(t, err)
	require.Equal(t, "Artículo 1.", resp.Text)
}
