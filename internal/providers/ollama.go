package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"lexrag/internal/config"
	"lexrag/internal/util"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// OllamaProvider serves local embeddings and chat through an Ollama daemon.
type OllamaProvider struct {
	alias      string
	embedModel string
	chatModel  string
	client     *api.Client
}

func NewOllamaProvider(alias string) *OllamaProvider {
	host := envconfig.Host()
	if raw := strings.TrimSpace(os.Getenv("LEXRAG_OLLAMA_BASE_URL")); raw != "" {
		if u, err := url.Parse(strings.TrimRight(raw, "/")); err == nil {
			host = u
		}
	}
	return &OllamaProvider{
		alias:      alias,
		embedModel: resolveOllamaEmbedModel(alias),
		chatModel:  envOr("LEXRAG_OLLAMA_CHAT_MODEL", "llama3.1"),
		client:     api.NewClient(host, &http.Client{Timeout: 90 * time.Second}),
	}
}

func (o *OllamaProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "ollama", Model: o.embedModel, Key: o.alias}
	if len(req.Inputs) == 0 {
		return nil, info, fmt.Errorf("no embedding inputs")
	}
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{Model: o.embedModel, Input: req.Inputs})
	if err != nil {
		return nil, info, fmt.Errorf("ollama embedding request failed: %w", err)
	}
	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		if len(e) == 0 {
			return nil, info, fmt.Errorf("ollama returned empty embedding")
		}
		if req.Dimension > 0 && len(e) != req.Dimension {
			return nil, info, util.DataError("ollama model %s returns %d-dimensional vectors, index expects %d", o.embedModel, len(e), req.Dimension)
		}
		out = append(out, e)
	}
	return out, info, nil
}

func (o *OllamaProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "ollama", Model: o.chatModel, Key: o.alias}
	system := req.System
	if strings.TrimSpace(system) == "" {
		system = legalSystemPrompt
	}
	stream := false
	chat := &api.ChatRequest{
		Model: o.chatModel,
		Messages: []api.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: req.Prompt},
		},
		Stream:  &stream,
		Options: map[string]any{"temperature": req.Temperature},
	}
	var sb strings.Builder
	err := o.client.Chat(ctx, chat, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("ollama generate request failed: %w", err)
	}
	return GenerateResponse{Text: sb.String()}, info, nil
}

func resolveOllamaEmbedModel(alias string) string {
	alias = strings.TrimSpace(alias)
	if alias != "" {
		if v := strings.TrimSpace(os.Getenv("LEXRAG_OLLAMA_EMBED_MODEL_" + config.EnvToken(alias))); v != "" {
			return v
		}
		switch strings.ToLower(alias) {
		case "nomic":
			return "nomic-embed-text"
		case "bge":
			return "bge-m3"
		}
		// ollama:nomic-embed-text names the model directly
		if strings.ContainsAny(alias, "-/.") {
			return alias
		}
	}
	return envOr("LEXRAG_OLLAMA_EMBED_MODEL", "nomic-embed-text")
}
