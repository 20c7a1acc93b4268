package cli

import (
	"fmt"

	"lexrag/internal/activities"
	"lexrag/internal/workflows"

	"github.com/spf13/cobra"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
)

func newWorkerCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the Temporal worker for durable ingestion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := tclient.Dial(tclient.Options{HostPort: opts.cfg.TemporalAddress})
			if err != nil {
				return fmt.Errorf("dial temporal: %w", err)
			}
			defer c.Close()

			a, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			w := worker.New(c, opts.cfg.TemporalTaskQueue, worker.Options{})
			workflows.Register(w)
			activities.Register(w, activities.New(a.Pipeline, opts.log.Named("activities")))

			opts.log.Info("lexrag worker listening",
				zap.String("temporal", opts.cfg.TemporalAddress),
				zap.String("queue", opts.cfg.TemporalTaskQueue),
				zap.String("embed_providers", opts.cfg.EmbedProviders))
			return w.Run(worker.InterruptCh())
		},
	}
}
