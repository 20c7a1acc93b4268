package providers

import "context"

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

type GenerateRequest struct {
	Operation   string   `json:"operation"`
	System      string   `json:"system,omitempty"`
	Prompt      string   `json:"prompt"`
	Context     []string `json:"context"`
	Question    string   `json:"question,omitempty"`
	Temperature float64  `json:"temperature"`
}

type GenerateResponse struct {
	Text string `json:"text"`
}

type EmbedRequest struct {
	Operation string   `json:"operation"`
	Inputs    []string `json:"inputs"`
	Dimension int      `json:"dimension"`
}

type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error)
}

type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error)
}

const (
	OpCondense    = "condense_question"
	OpAnswer      = "rag_answer"
	OpEmbedChunks = "embed_chunks"
	OpEmbedQuery  = "embed_query"
	OpChunkProbe  = "semantic_chunk"
)
