package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"lexrag/internal/api"

	"github.com/spf13/cobra"
	tclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := opts.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var starter api.IngestStarter
			c, err := tclient.Dial(tclient.Options{HostPort: opts.cfg.TemporalAddress})
			if err != nil {
				opts.log.Warn("temporal unavailable; POST /ingest disabled", zap.Error(err))
			} else {
				defer c.Close()
				starter = api.NewTemporalIngest(c, opts.cfg.TemporalTaskQueue)
			}

			if addr == "" {
				addr = opts.cfg.APIAddr
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           api.NewServer(a.Sessions, a.Loader, a.Files, starter, opts.log.Named("api")).Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				opts.log.Info("lexrag api listening", zap.String("addr", addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("serve: %w", err)
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
