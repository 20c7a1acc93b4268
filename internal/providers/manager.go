package providers

import (
	"context"
	"fmt"
	"strings"

	"lexrag/internal/config"
	"lexrag/internal/util"
)

type NamedLLMProvider struct {
	Ref      config.ProviderRef
	Provider LLMProvider
}

type NamedEmbedProvider struct {
	Ref      config.ProviderRef
	Provider EmbeddingProvider
}

// Manager holds the configured providers and fails over between them in
// preferred order. It satisfies both LLMProvider and EmbeddingProvider.
type Manager struct {
	llmProviders   []NamedLLMProvider
	embedProviders []NamedEmbedProvider
}

func NewManager(cfg config.Config) (*Manager, error) {
	m := &Manager{}
	for _, ref := range config.ParseProviderList(cfg.LLMProviders) {
		p, err := buildProvider(ref, cfg.IndexDimension)
		if err != nil {
			return nil, err
		}
		if _, ok := p.(LLMProvider); !ok {
			return nil, util.ConfigError("provider %s does not support llm", ref.Raw)
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: NewRateLimited(p, cfg.ProviderRPS)})
	}
	for _, ref := range config.ParseProviderList(cfg.EmbedProviders) {
		p, err := buildProvider(ref, cfg.IndexDimension)
		if err != nil {
			return nil, err
		}
		if _, ok := p.(EmbeddingProvider); !ok {
			return nil, util.ConfigError("provider %s does not support embeddings", ref.Raw)
		}
		m.embedProviders = append(m.embedProviders, NamedEmbedProvider{Ref: ref, Provider: NewRateLimited(p, cfg.ProviderRPS)})
	}
	return m, nil
}

func (m *Manager) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	var (
		resp GenerateResponse
		info ProviderInfo
		err  error
	)
	for _, idx := range m.PreferredLLMOrder() {
		resp, info, err = m.llmProviders[idx].Provider.Generate(ctx, req)
		if err == nil && strings.TrimSpace(resp.Text) != "" {
			return resp, info, nil
		}
		if err == nil {
			err = fmt.Errorf("%s returned an empty completion", m.llmProviders[idx].Ref.Raw)
		}
		if ctx.Err() != nil {
			break
		}
	}
	if err == nil {
		err = util.ConfigError("no llm providers configured")
	}
	return resp, info, Categorize(err)
}

func (m *Manager) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	var (
		vecs [][]float32
		info ProviderInfo
		err  error
	)
	for _, idx := range m.PreferredEmbedOrder() {
		vecs, info, err = m.embedProviders[idx].Provider.Embed(ctx, req)
		if err == nil && len(vecs) > 0 {
			return vecs, info, nil
		}
		if err == nil {
			err = fmt.Errorf("%s returned no embeddings", m.embedProviders[idx].Ref.Raw)
		}
		if ctx.Err() != nil {
			break
		}
	}
	if err == nil {
		err = util.ConfigError("no embedding providers configured")
	}
	return nil, info, Categorize(err)
}

func (m *Manager) PreferredLLMOrder() []int {
	return preferredOrder(len(m.llmProviders), func(i int) string { return strings.ToLower(m.llmProviders[i].Ref.Name) })
}

func (m *Manager) PreferredEmbedOrder() []int {
	return preferredOrder(len(m.embedProviders), func(i int) string { return strings.ToLower(m.embedProviders[i].Ref.Name) })
}

// preferredOrder keeps configured order and only falls back to mock when no
// real provider is configured.
func preferredOrder(n int, nameAt func(i int) string) []int {
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if nameAt(i) != "mock" {
			out = append(out, i)
		}
	}
	if len(out) > 0 {
		return out
	}
	for i := 0; i < n; i++ {
		out = append(out, i)
	}
	return out
}

func buildProvider(ref config.ProviderRef, dim int) (any, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(dim), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaProvider(ref.KeyAlias), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias), nil
	default:
		return nil, util.ConfigError("unsupported provider: %s", ref.Name)
	}
}
