package providers

import (
	"context"
	"fmt"

	"lexrag/internal/util"
)

// Embedder maps ordered texts to ordered vectors of a fixed dimension.
type Embedder struct {
	provider  EmbeddingProvider
	dimension int
	batchSize int
}

func NewEmbedder(provider EmbeddingProvider, dimension, batchSize int) *Embedder {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Embedder{provider: provider, dimension: dimension, batchSize: batchSize}
}

func (e *Embedder) Dimension() int {
	return e.dimension
}

// EmbedDocuments keeps input order across sub-batches.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embed(ctx, OpEmbedChunks, texts)
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, OpEmbedQuery, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Embed lets the Embedder stand in wherever a plain EmbeddingProvider is expected.
func (e *Embedder) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	op := req.Operation
	if op == "" {
		op = OpEmbedChunks
	}
	vecs, err := e.embed(ctx, op, req.Inputs)
	return vecs, ProviderInfo{}, err
}

func (e *Embedder) embed(ctx context.Context, op string, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, info, err := e.provider.Embed(ctx, EmbedRequest{
			Operation: op,
			Inputs:    texts[start:end],
			Dimension: e.dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("embed texts %d-%d: %w", start, end, Categorize(err))
		}
		if len(vecs) != end-start {
			return nil, util.DataError("provider %s returned %d vectors for %d inputs", info.Name, len(vecs), end-start)
		}
		for i, v := range vecs {
			if e.dimension > 0 && len(v) != e.dimension {
				return nil, util.DataError("provider %s returned dimension %d for input %d, want %d", info.Name, len(v), start+i, e.dimension)
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}
