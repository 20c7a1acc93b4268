package loader

import (
	"context"
	"fmt"
	"strconv"

	"lexrag/internal/models"
	"lexrag/internal/util"

	"github.com/ledongthuc/pdf"
)

// PageReader extracts page-level text from one file.
type PageReader interface {
	ReadPages(ctx context.Context, path string) ([]models.Page, error)
}

// PDFPages reads pages with ledongthuc/pdf. Pages are labelled 1..n.
type PDFPages struct{}

func (PDFPages) ReadPages(ctx context.Context, path string) (pages []models.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = util.DataError("malformed pdf %s: %v", path, r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	n := r.NumPage()
	pages = make([]models.Page, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		text = util.SanitizeText(text)
		if text == "" {
			continue
		}
		pages = append(pages, models.Page{Label: strconv.Itoa(i), Text: text})
	}
	if len(pages) == 0 {
		return nil, util.ErrNoExtractableText
	}
	return pages, nil
}
