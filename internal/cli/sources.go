package cli

import (
	"context"
	"io"
	"sort"

	"lexrag/internal/models"

	"github.com/spf13/cobra"
)

func newSourcesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the documents available for filtering, per category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return printCatalog(cmd.Context(), cmd.OutOrStdout(), a.Loader)
		},
	}
}

type catalog interface {
	Catalog(ctx context.Context) ([]models.CatalogEntry, error)
}

func printCatalog(ctx context.Context, w io.Writer, c catalog) error {
	docs, err := c.Catalog(ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		_, err := io.WriteString(w, "No documents found.\n")
		return err
	}
	byCat := map[models.Category][]models.CatalogEntry{}
	for _, d := range docs {
		byCat[d.Category] = append(byCat[d.Category], d)
	}
	cats := make([]string, 0, len(byCat))
	for c := range byCat {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	for _, c := range cats {
		fprintf(w, "%s:\n", c)
		for _, d := range byCat[models.Category(c)] {
			fprintf(w, "  %s\n", d.Source)
		}
	}
	return nil
}
