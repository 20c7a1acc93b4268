package ingest

import (
	"os"
	"testing"

	"lexrag/internal/manifest"
	"lexrag/internal/models"

	"github.com/stretchr/testify/require"
)

func TestStageAppendReadClear(t *testing.T) {
	s := NewStage(t.TempDir(), "run-1")

	recs, err := s.Records()
	require.NoError(t, err)
	require.Empty(t, recs)

	require.NoError(t, s.Append(manifest.Entry{Source: "a.pdf", Chunks: 2}, []models.IndexRecord{
		{ID: "a1", Values: []float32{1, 0}, Metadata: models.Metadata{models.MetaSource: "a.pdf"}},
		{ID: "a2", Values: []float32{0, 1}, Metadata: models.Metadata{models.MetaSource: "a.pdf"}},
	}))
	require.NoError(t, s.Append(manifest.Entry{Source: "b.pdf", Chunks: 1}, []models.IndexRecord{
		{ID: "b1", Values: []float32{1, 1}, Metadata: models.Metadata{models.MetaSource: "b.pdf"}},
	}))

	require.NoError(t, s.Append(manifest.Entry{Source: "a.pdf", Chunks: 1}, []models.IndexRecord{
		{ID: "a9", Values: []float32{1, 0}, Metadata: models.Metadata{models.MetaSource: "a.pdf"}},
	}))

	recs, err = s.Records()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, "a1", recs[0].ID)
	require.Equal(t, "b1", recs[2].ID)
	require.Equal(t, "a.pdf", recs[0].Source())

	entries, err := s.Sources()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NoError(t, s.WriteReport(Report{RunID: "run-1", Chunks: 3}))
	require.NoError(t, s.Clear())
	recs, err = s.Records()
	require.NoError(t, err)
	require.Empty(t, recs)
	_, err = os.Stat(s.ReportPath())
	require.NoError(t, err)

	require.NoError(t, s.Discard())
	_, err = os.Stat(s.Dir())
	require.True(t, os.IsNotExist(err))
}

func TestStageIgnoresRecordsOfUnlistedSources(t *testing.T) {
	s := NewStage(t.TempDir(), "run-2")
	require.NoError(t, os.MkdirAll(s.recordsDir(), 0o755))
	require.NoError(t, os.WriteFile(s.recordsPath("orphan.pdf"), []byte(`{"id":"x","values":[1],"metadata":{}}`+"\n"), 0o644))

	recs, err := s.Records()
	require.NoError(t, err)
	require.Empty(t, recs)
}
