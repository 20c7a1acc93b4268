package dedup

import (
	"context"
	"errors"
	"testing"

	"lexrag/internal/index"
	"lexrag/internal/manifest"
	"lexrag/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func files(sources ...string) []models.SourceFile {
	out := make([]models.SourceFile, 0, len(sources))
	for _, s := range sources {
		out = append(out, models.SourceFile{Source: s})
	}
	return out
}

func sourcesOf(in []models.SourceFile) []string {
	out := make([]string, 0, len(in))
	for _, sf := range in {
		out = append(out, sf.Source)
	}
	return out
}

type brokenSource struct{}

func (brokenSource) Existing(context.Context) (map[string]struct{}, error) {
	return nil, errors.New("index unavailable")
}

func TestFilterNewIsOrderedSetDifference(t *testing.T) {
	existing := map[string]struct{}{"b": {}, "d": {}, "z": {}}
	got := FilterNew(files("e", "b", "a", "d", "c"), existing)
	require.Equal(t, []string{"e", "a", "c"}, sourcesOf(got))
	require.Empty(t, FilterNew(nil, existing))
	require.Equal(t, []string{"x"}, sourcesOf(FilterNew(files("x"), nil)))
}

func TestIndexProbeCollectsDistinctSources(t *testing.T) {
	ctx := context.Background()
	idx := index.NewMemory()
	require.NoError(t, idx.Create(ctx, index.Spec{Name: "t", Dimension: 2, Metric: index.MetricCosine}))
	require.NoError(t, idx.Upsert(ctx, []models.IndexRecord{
		{ID: "1", Values: []float32{1, 0}, Metadata: models.Metadata{models.MetaSource: "a.pdf"}},
		{ID: "2", Values: []float32{0, 1}, Metadata: models.Metadata{models.MetaSource: "a.pdf"}},
		{ID: "3", Values: []float32{1, 1}, Metadata: models.Metadata{models.MetaSource: "b.pdf"}},
	}))

	got, err := NewIndexProbe(idx, 2, 0).Existing(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]struct{}{"a.pdf": {}, "b.pdf": {}}, got)

	capped, err := NewIndexProbe(idx, 2, 1).Existing(ctx)
	require.NoError(t, err)
	require.Len(t, capped, 1)
}

func TestFilterTreatsLookupFailureAsEmpty(t *testing.T) {
	f := NewFilter(brokenSource{}, zaptest.NewLogger(t))
	fresh, skipped := f.Apply(context.Background(), files("a", "b"))
	require.Equal(t, []string{"a", "b"}, sourcesOf(fresh))
	require.Empty(t, skipped)
}

func TestManifestSourceFilter(t *testing.T) {
	ctx := context.Background()
	store := manifest.NewMemory()
	require.NoError(t, store.Add(ctx, manifest.Entry{Source: "b"}))

	f := NewFilter(NewManifestSource(store), zaptest.NewLogger(t))
	fresh, skipped := f.Apply(ctx, files("a", "b", "c"))
	require.Equal(t, []string{"a", "c"}, sourcesOf(fresh))
	require.Equal(t, []string{"b"}, sourcesOf(skipped))
}
