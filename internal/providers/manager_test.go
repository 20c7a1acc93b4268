package providers

import (
	"context"
	"errors"
	"testing"

	"lexrag/internal/config"
	"lexrag/internal/util"

	"github.com/stretchr/testify/require"
)

type failingLLM struct{ err error }

func (f failingLLM) Generate(context.Context, GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	return GenerateResponse{}, ProviderInfo{Name: "failing"}, f.err
}

func TestNewManagerRejectsUnknownProvider(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLMProviders = "bard"
	_, err := NewManager(cfg)
	require.ErrorIs(t, err, util.ErrConfiguration)

	cfg.LLMProviders = "mock"
	cfg.EmbedProviders = "groq"
	_, err = NewManager(cfg)
	require.ErrorIs(t, err, util.ErrConfiguration)
}

func TestManagerUsesMockWhenOnlyMockConfigured(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLMProviders = "mock"
	cfg.EmbedProviders = "mock"
	cfg.IndexDimension = 8
	m, err := NewManager(cfg)
	require.NoError(t, err)

	vecs, info, err := m.Embed(context.Background(), EmbedRequest{Inputs: []string{"a"}})
	require.NoError(t, err)
	require.Equal(t, "mock", info.Name)
	require.Len(t, vecs[0], 8)
}

func TestManagerFailsOverAndCategorizes(t *testing.T) {
	m := &Manager{llmProviders: []NamedLLMProvider{
		{Ref: config.ProviderRef{Name: "openai"}, Provider: failingLLM{err: errors.New("openai generate error 503: unavailable")}},
		{Ref: config.ProviderRef{Name: "groq"}, Provider: NewMockProvider(4)},
	}}
	resp, info, err := m.Generate(context.Background(), GenerateRequest{Operation: OpCondense, Question: "q"})
	require.NoError(t, err)
	require.Equal(t, "q", resp.Text)
	require.Equal(t, "mock", info.Name)

	m = &Manager{llmProviders: []NamedLLMProvider{
		{Ref: config.ProviderRef{Name: "openai"}, Provider: failingLLM{err: errors.New("429 too many requests")}},
	}}
	_, _, err = m.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	require.ErrorIs(t, err, util.ErrTransient)
}

func TestPreferredOrderSkipsMockWhenRealProviderExists(t *testing.T) {
	names := []string{"mock", "openai", "groq"}
	require.Equal(t, []int{1, 2}, preferredOrder(len(names), func(i int) string { return names[i] }))
	only := []string{"mock"}
	require.Equal(t, []int{0}, preferredOrder(1, func(i int) string { return only[i] }))
}
