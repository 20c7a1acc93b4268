package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"lexrag/internal/config"
)

// GroqProvider supports LLM generation via Groq's OpenAI-compatible API.
type GroqProvider struct {
	keyName string
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewGroqProvider(keyName string) *GroqProvider {
	return &GroqProvider{
		keyName: keyName,
		apiKey:  config.ProviderRef{Name: "groq", KeyAlias: keyName}.APIKey(),
		baseURL: strings.TrimRight(envOr("LEXRAG_GROQ_BASE_URL", "https://api.groq.com/openai/v1"), "/"),
		model:   envOr("LEXRAG_GROQ_MODEL", "llama-3.1-8b-instant"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (g *GroqProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "groq", Key: g.keyName, Model: g.model}
	if g.apiKey == "" {
		return GenerateResponse{}, info, fmt.Errorf("groq key missing for alias %q", g.keyName)
	}
	text, err := chatCompletion(ctx, g.client, "groq", g.baseURL+"/chat/completions", g.apiKey, g.model, req)
	if err != nil {
		return GenerateResponse{}, info, err
	}
	return GenerateResponse{Text: text}, info, nil
}
