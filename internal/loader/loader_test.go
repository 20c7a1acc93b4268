package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"lexrag/internal/models"
	"lexrag/internal/util"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakePages map[string][]models.Page

func (f fakePages) ReadPages(_ context.Context, path string) ([]models.Page, error) {
	p, ok := f[filepath.Base(path)]
	if !ok {
		return nil, util.ErrNoExtractableText
	}
	return p, nil
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func TestDiscoverWalksCategoryFoldersInOrder(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"03_leyes/b.pdf":          "%PDF",
		"03_leyes/A.PDF":          "%PDF",
		"03_leyes/notes.txt":      "skip",
		"01_constitucion/c.pdf":   "%PDF",
		"99_unmapped/ignored.pdf": "%PDF",
	})
	l := New(root, models.DefaultCategoryFolders(), fakePages{}, zaptest.NewLogger(t))

	files, err := l.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 3)
	require.Equal(t, "c.pdf", files[0].Filename)
	require.Equal(t, models.CategoryConstitution, files[0].Category)
	require.Equal(t, "A.PDF", files[1].Filename)
	require.Equal(t, "b.pdf", files[2].Filename)
	require.Equal(t, models.CategoryLaw, files[2].Category)
	require.Equal(t, filepath.ToSlash(filepath.Join(root, "03_leyes", "b.pdf")), files[2].Source)
}

func TestLoadAttachesPages(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"03_leyes/ley.pdf": "%PDF"})
	pages := fakePages{"ley.pdf": {{Label: "1", Text: "Artículo 1."}, {Label: "2", Text: "Artículo 2."}}}
	l := New(root, models.DefaultCategoryFolders(), pages, zaptest.NewLogger(t))

	files, err := l.Discover(context.Background())
	require.NoError(t, err)
	doc, err := l.Load(context.Background(), files[0])
	require.NoError(t, err)
	require.Len(t, doc.Pages, 2)
	require.Equal(t, models.CategoryLaw, doc.Category)

	_, err = l.Load(context.Background(), models.SourceFile{Source: "x", Path: filepath.Join(root, "x.pdf")})
	require.ErrorIs(t, err, util.ErrNoExtractableText)
}

func TestCatalog(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"04_codigos/civil.pdf": "%PDF"})
	l := New(root, models.DefaultCategoryFolders(), nil, nil)
	entries, err := l.Catalog(context.Background())
	require.NoError(t, err)
	require.Equal(t, []models.CatalogEntry{{
		Source:   filepath.ToSlash(filepath.Join(root, "04_codigos", "civil.pdf")),
		Filename: "civil.pdf",
		Folder:   "04_codigos",
		Category: models.CategoryCode,
	}}, entries)
}

func TestFileStoreOpen(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"03_leyes/ley.pdf": "%PDF-1.4"})
	fs := NewFileStore(root)

	f, info, err := fs.Open(filepath.ToSlash(filepath.Join(root, "03_leyes", "ley.pdf")))
	require.NoError(t, err)
	defer f.Close()
	require.EqualValues(t, len("%PDF-1.4"), info.Size())

	_, _, err = fs.Open(filepath.ToSlash(filepath.Join(root, "03_leyes", "missing.pdf")))
	require.ErrorIs(t, err, util.ErrNotFound)

	_, _, err = fs.Open(filepath.ToSlash(filepath.Join(root, "..", "secret.pdf")))
	require.ErrorIs(t, err, util.ErrUserInput)

	_, _, err = fs.Open("notes.txt")
	require.ErrorIs(t, err, util.ErrUserInput)

	_, _, err = fs.Open("  ")
	require.ErrorIs(t, err, util.ErrUserInput)
}
