package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"lexrag/internal/chain"
	"lexrag/internal/models"
	"lexrag/internal/session"
	"lexrag/internal/util"

	"github.com/spf13/cobra"
)

const snippetRunes = 220

func newAskCommand(opts *rootOptions) *cobra.Command {
	var sources []string
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Ask questions about the ingested documents",
		Long: `Starts an interactive session. Lines are questions unless they start with a
command: /sources lists documents, /filter a.pdf,b.pdf restricts retrieval
(/filter todos clears it), /reset forgets the conversation, /quit exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			sess := a.Sessions.Create(models.ParseSourceFilter(sources))
			defer a.Sessions.End(sess.ID)
			return askLoop(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), sess, a.Chain, a.Loader)
		},
	}
	cmd.Flags().StringSliceVar(&sources, "source", nil, `restrict retrieval to these sources ("todos" for all)`)
	return cmd
}

func askLoop(ctx context.Context, in io.Reader, out io.Writer, sess *session.Session, asker session.Asker, docs catalog) error {
	sc := bufio.NewScanner(in)
	printFilter(out, sess.Filter())
	for {
		fprintf(out, "> ")
		if !sc.Scan() {
			fprintf(out, "\n")
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			fprintf(out, "Please enter a question.\n")
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/reset":
			sess.ClearHistory()
			fprintf(out, "Conversation cleared.\n")
		case line == "/sources":
			if err := printCatalog(ctx, out, docs); err != nil {
				fprintf(out, "error: %v\n", err)
			}
		case strings.HasPrefix(line, "/filter"):
			arg := strings.TrimSpace(strings.TrimPrefix(line, "/filter"))
			sess.SetFilter(models.ParseSourceFilter(strings.Split(arg, ",")))
			printFilter(out, sess.Filter())
		case strings.HasPrefix(line, "/"):
			fprintf(out, "Unknown command %s\n", line)
		default:
			res, err := sess.Ask(ctx, asker, line)
			if err != nil {
				if errors.Is(err, util.ErrUserInput) {
					fprintf(out, "Please enter a question.\n")
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				fprintf(out, "error: %v\n", err)
				continue
			}
			printAnswer(out, res)
		}
	}
}

func printFilter(out io.Writer, f models.SourceFilter) {
	if f.IsAll() {
		fprintf(out, "Searching all sources.\n")
		return
	}
	fprintf(out, "Searching %d source(s): %s\n", len(f.Sources), strings.Join(f.Sources, ", "))
}

func printAnswer(out io.Writer, res chain.Answered) {
	fprintf(out, "\n%s\n", res.Answer)
	if len(res.Citations) == 0 {
		fprintf(out, "\n")
		return
	}
	fprintf(out, "\nSources:\n")
	for i, c := range res.Citations {
		name := c.OriginalFilename
		if name == "" {
			name = c.Filename
		}
		fprintf(out, "  [%d] %s (%s, p. %s) %.3f\n", i+1, name, c.Category, c.PageLabel, c.Score)
		if snippet := util.EvidenceSnippet(chunkBody(c.Text), res.Standalone, snippetRunes); snippet != "" {
			fprintf(out, "      %s\n", snippet)
		}
	}
	fprintf(out, "\n")
}

// chunkBody drops the "Type: ... File: ... Page: ..." prefix of a composite text.
func chunkBody(text string) string {
	if _, rest, ok := strings.Cut(text, ". Page: "); ok {
		if _, body, ok := strings.Cut(rest, ". "); ok {
			return body
		}
	}
	return text
}

func fprintf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
