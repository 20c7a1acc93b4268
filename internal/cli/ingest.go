package cli

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"lexrag/internal/api"
	"lexrag/internal/ingest"

	"github.com/spf13/cobra"
	tclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

func newIngestCommand(opts *rootOptions) *cobra.Command {
	var reset, viaTemporal bool
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest new PDFs from the category folders into the vector index",
		Long: `Discovers PDFs under the data root, skips the ones already ingested,
chunks and embeds the rest and upserts them in batches. A run that failed
part-way resumes from its last written batch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var rep ingest.Report
			if viaTemporal {
				c, err := tclient.Dial(tclient.Options{HostPort: opts.cfg.TemporalAddress})
				if err != nil {
					return fmt.Errorf("dial temporal: %w", err)
				}
				defer c.Close()
				started, err := api.NewTemporalIngest(c, opts.cfg.TemporalTaskQueue).StartIngest(ctx, reset)
				if err != nil {
					return err
				}
				opts.log.Info("ingest workflow started", zap.String("workflow_id", started.WorkflowID), zap.String("run_id", started.RunID))
				if err := c.GetWorkflow(ctx, started.WorkflowID, started.RunID).Get(ctx, &rep); err != nil {
					return fmt.Errorf("ingest workflow: %w", err)
				}
			} else {
				a, err := opts.app(ctx)
				if err != nil {
					return err
				}
				defer a.Close()
				if rep, err = a.Pipeline.Run(ctx, reset); err != nil {
					return err
				}
			}
			return printReport(cmd, rep)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "clear the index, manifest and staged runs first")
	cmd.Flags().BoolVar(&viaTemporal, "temporal", false, "run as a durable Temporal workflow")
	return cmd
}

func printReport(cmd *cobra.Command, rep ingest.Report) error {
	cmd.Printf("discovered=%d skipped=%d ingested=%d failed=%d chunks=%d batches=%d/%d\n",
		rep.Discovered, len(rep.Skipped), len(rep.Ingested), len(rep.Failed), rep.Chunks, rep.BatchesWritten, rep.Batches)
	for _, f := range rep.Failed {
		cmd.Printf("  skipped %s: %s\n", f.Source, f.Error)
	}
	if rep.RunID == "" {
		return nil
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
