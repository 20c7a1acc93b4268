package ingest

import (
	"strings"
	"testing"
	"time"

	"lexrag/internal/models"
	"lexrag/internal/util"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSanitizeIsASCIIAndIdempotent(t *testing.T) {
	cases := map[string]string{
		"convenio_internacional":         "convenio_internacional",
		"Constitución Política 2008.pdf": "Constitucion_Politica_2008pdf",
		"  Código   [Civil] (reformado) ": "Codigo_Civil_reformado",
		"Ley Orgánica « Nº 5 »":          "Ley_Organica_No_5",
		"日本語":                            "",
	}
	for in, want := range cases {
		got := Sanitize(in)
		require.Equal(t, want, got, "input %q", in)
		require.Equal(t, got, Sanitize(got), "idempotent for %q", in)
		for _, r := range got {
			require.Less(t, r, rune(128))
		}
		require.False(t, strings.ContainsAny(got, " \t\n[]()"))
	}
}

func TestNormalizeFilename(t *testing.T) {
	decomposed := "Co\u0301digo  Penal .pdf"
	require.Equal(t, "C\u00f3digo Penal .pdf", NormalizeFilename("  "+decomposed+"\t"))
}

func TestBaseMetadata(t *testing.T) {
	meta := BaseMetadata(models.SourceFile{
		Source:   "data/03_leyes/Ley  de Tránsito.pdf",
		Path:     "/srv/data/03_leyes/Ley  de Tránsito.pdf",
		Filename: "Ley  de Tránsito.pdf",
		Category: models.CategoryLaw,
	})
	require.Equal(t, "Ley de Tránsito.pdf", meta[models.MetaFilename])
	require.Equal(t, "Ley  de Tránsito.pdf", meta[models.MetaOriginalFilename])
	require.Equal(t, "ley", meta[models.MetaCategory])
}

func newBuilder(t *testing.T, policy IDPolicy) *Builder {
	t.Helper()
	b, err := NewBuilder(policy, zaptest.NewLogger(t))
	require.NoError(t, err)
	b.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return b
}

func sampleChunk(text string, ordinal int) models.Chunk {
	return models.Chunk{
		Text:      text,
		PageLabel: "3",
		Category:  models.CategoryLaw,
		Ordinal:   ordinal,
		Metadata: models.Metadata{
			models.MetaSource:           "data/03_leyes/Ley de Tránsito.pdf",
			models.MetaFilename:         "Ley de Tránsito.pdf",
			models.MetaOriginalFilename: "Ley de Tránsito.pdf",
			models.MetaCategory:         "ley",
		},
	}
}

func TestBuildComposesTextAndMetadata(t *testing.T) {
	b := newBuilder(t, IDRandom)
	in := sampleChunk("Artículo 1. Objeto.", 0)
	out := b.Build([]models.Chunk{in})[0]

	require.True(t, strings.HasPrefix(out.ID, "ley:Ley_de_Transitopdf:3:"), out.ID)
	require.Len(t, strings.Split(out.ID, ":")[3], 8)
	require.Equal(t, "Type: ley. File: Ley de Tránsito.pdf. Page: 3. Artículo 1. Objeto.", out.Text)
	require.Equal(t, out.Text, out.Metadata[models.MetaCompositeText])
	require.Equal(t, "2024-05-01T12:00:00Z", out.Metadata[models.MetaCreatedAt])
	require.Equal(t, out.ID, out.Metadata[models.MetaID])
	require.Equal(t, "3", out.Metadata[models.MetaPageLabel])
	require.Equal(t, "Artículo 1. Objeto.", in.Text, "input chunk is not mutated")
	_, touched := in.Metadata[models.MetaID]
	require.False(t, touched)
}

func TestRandomPolicyGivesDistinctIDs(t *testing.T) {
	b := newBuilder(t, IDRandom)
	out := b.Build([]models.Chunk{sampleChunk("a", 0), sampleChunk("a", 0)})
	require.NotEqual(t, out[0].ID, out[1].ID)
}

func TestHashPolicyIsContentAddressed(t *testing.T) {
	b := newBuilder(t, IDHash)
	first := b.Build([]models.Chunk{sampleChunk("a", 0), sampleChunk("b", 1)})
	again := b.Build([]models.Chunk{sampleChunk("a", 0)})
	require.Equal(t, first[0].ID, again[0].ID)
	require.NotEqual(t, first[0].ID, first[1].ID)
}

func TestBuildSubstitutesDefaults(t *testing.T) {
	b := newBuilder(t, IDHash)
	out := b.Build([]models.Chunk{{Text: "sin datos", Metadata: models.Metadata{models.MetaFilename: "[]"}}})[0]
	parts := strings.Split(out.ID, ":")
	require.Equal(t, []string{"unknown", "unknown", "0"}, parts[:3])
	require.Equal(t, "unknown", out.Metadata[models.MetaSource])
	require.Equal(t, "0", out.PageLabel)
	require.Equal(t, models.CategoryUnknown, out.Category)
}

func TestBuiltChunksHaveIsolatedMetadata(t *testing.T) {
	b := newBuilder(t, IDRandom)
	shared := sampleChunk("a", 0)
	out := b.Build([]models.Chunk{shared, shared})
	out[0].Metadata[models.MetaFilename] = "changed"
	require.Equal(t, "Ley de Tránsito.pdf", out[1].Metadata[models.MetaFilename])
}

func TestNewBuilderRejectsUnknownPolicy(t *testing.T) {
	_, err := NewBuilder("sequential", nil)
	require.ErrorIs(t, err, util.ErrConfiguration)
}

func TestRecordsCarryVectorsAndMetadata(t *testing.T) {
	b := newBuilder(t, IDRandom)
	built := b.Build([]models.Chunk{sampleChunk("a", 0)})
	built[0].Vector = []float32{1, 2}
	recs := Records(built)
	require.Equal(t, built[0].ID, recs[0].ID)
	require.Equal(t, []float32{1, 2}, recs[0].Values)
	require.Equal(t, "data/03_leyes/Ley de Tránsito.pdf", recs[0].Source())
}
