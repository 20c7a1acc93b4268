// Package dedup decides which discovered sources still need ingesting.
package dedup

import (
	"context"
	"fmt"

	"lexrag/internal/index"
	"lexrag/internal/manifest"
	"lexrag/internal/models"

	"go.uber.org/zap"
)

// ExistingSources reports the set of source paths already represented in the index.
type ExistingSources interface {
	Existing(ctx context.Context) (map[string]struct{}, error)
}

// IndexProbe queries the index with an all-zero vector and collects the distinct
// sources of whatever comes back. It under-reports once the index holds more
// records than topK.
type IndexProbe struct {
	idx  index.Index
	dim  int
	topK int
}

func NewIndexProbe(idx index.Index, dim, topK int) *IndexProbe {
	if topK <= 0 {
		topK = 10000
	}
	return &IndexProbe{idx: idx, dim: dim, topK: topK}
}

func (p *IndexProbe) Existing(ctx context.Context) (map[string]struct{}, error) {
	matches, err := p.idx.Query(ctx, index.QueryRequest{
		Vector: make([]float32, p.dim),
		TopK:   p.topK,
		Filter: models.AllSources(),
	})
	if err != nil {
		return nil, fmt.Errorf("probe index for existing sources: %w", err)
	}
	out := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if src := m.Metadata[models.MetaSource]; src != "" {
			out[src] = struct{}{}
		}
	}
	return out, nil
}

// ManifestSource is the exact alternative backed by the ingestion manifest.
type ManifestSource struct {
	store manifest.Store
}

func NewManifestSource(store manifest.Store) *ManifestSource {
	return &ManifestSource{store: store}
}

func (m *ManifestSource) Existing(ctx context.Context) (map[string]struct{}, error) {
	srcs, err := m.store.Sources(ctx)
	if err != nil {
		return nil, fmt.Errorf("read manifest sources: %w", err)
	}
	return srcs, nil
}

type Filter struct {
	src ExistingSources
	log *zap.Logger
}

func NewFilter(src ExistingSources, log *zap.Logger) *Filter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Filter{src: src, log: log}
}

// Existing never fails: a lookup error is logged and treated as an empty set.
func (f *Filter) Existing(ctx context.Context) map[string]struct{} {
	existing, err := f.src.Existing(ctx)
	if err != nil {
		f.log.Warn("existing source lookup failed; treating index as empty", zap.Error(err))
		return map[string]struct{}{}
	}
	return existing
}

// Apply splits files into the ones to ingest and the ones already present.
func (f *Filter) Apply(ctx context.Context, files []models.SourceFile) (fresh, skipped []models.SourceFile) {
	existing := f.Existing(ctx)
	fresh = FilterNew(files, existing)
	skipped = make([]models.SourceFile, 0, len(files)-len(fresh))
	for _, sf := range files {
		if _, ok := existing[sf.Source]; ok {
			skipped = append(skipped, sf)
		}
	}
	f.log.Info("dedup filter applied",
		zap.Int("candidates", len(files)),
		zap.Int("existing", len(existing)),
		zap.Int("new", len(fresh)))
	return fresh, skipped
}

// FilterNew returns the files whose source is absent from existing, in input order.
func FilterNew(files []models.SourceFile, existing map[string]struct{}) []models.SourceFile {
	out := make([]models.SourceFile, 0, len(files))
	for _, sf := range files {
		if _, ok := existing[sf.Source]; ok {
			continue
		}
		out = append(out, sf)
	}
	return out
}
