package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lexrag/internal/models"

	"go.uber.org/zap"
)

type Loader struct {
	root    string
	folders map[string]models.Category
	pages   PageReader
	log     *zap.Logger
}

func New(root string, folders map[string]models.Category, pages PageReader, log *zap.Logger) *Loader {
	if pages == nil {
		pages = PDFPages{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{root: root, folders: folders, pages: pages, log: log}
}

func (l *Loader) Root() string {
	return l.root
}

// Discover lists every PDF under the category folders, folder by folder in name order.
// A missing folder is skipped.
func (l *Loader) Discover(ctx context.Context) ([]models.SourceFile, error) {
	folders := make([]string, 0, len(l.folders))
	for f := range l.folders {
		folders = append(folders, f)
	}
	sort.Strings(folders)

	out := make([]models.SourceFile, 0, 64)
	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := filepath.Join(l.root, folder)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				l.log.Warn("category folder missing", zap.String("folder", dir))
				continue
			}
			return nil, fmt.Errorf("read category folder %s: %w", dir, err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".pdf") {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			path := filepath.Join(dir, name)
			out = append(out, models.SourceFile{
				Source:   filepath.ToSlash(path),
				Path:     path,
				Folder:   folder,
				Filename: name,
				Category: l.folders[folder],
			})
		}
	}
	return out, nil
}

// Load extracts the pages of one discovered source.
func (l *Loader) Load(ctx context.Context, sf models.SourceFile) (models.Document, error) {
	pages, err := l.pages.ReadPages(ctx, sf.Path)
	if err != nil {
		return models.Document{}, fmt.Errorf("load %s: %w", sf.Source, err)
	}
	l.log.Debug("document loaded", zap.String("source", sf.Source), zap.Int("pages", len(pages)))
	return models.Document{SourceFile: sf, Pages: pages}, nil
}

// Catalog lists the available documents for the source selector.
func (l *Loader) Catalog(ctx context.Context) ([]models.CatalogEntry, error) {
	files, err := l.Discover(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.CatalogEntry, 0, len(files))
	for _, f := range files {
		out = append(out, models.CatalogEntry{
			Source:   f.Source,
			Filename: f.Filename,
			Folder:   f.Folder,
			Category: f.Category,
		})
	}
	return out, nil
}
