// Package cli is the lexrag command line: ingestion, the interactive question loop,
// the HTTP API and the Temporal worker.
package cli

import (
	"context"
	"os"

	"lexrag/internal/app"
	"lexrag/internal/config"
	"lexrag/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	configPath string
	logLevel   string

	cfg config.Config
	log *zap.Logger
}

// NewRootCommand builds the lexrag command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "lexrag",
		Short:         "Retrieval-augmented questions over a legal PDF corpus",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default $LEXRAG_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the log level")

	root.AddCommand(
		newIngestCommand(opts),
		newAskCommand(opts),
		newSourcesCommand(opts),
		newServeCommand(opts),
		newWorkerCommand(opts),
	)
	return root
}

func (o *rootOptions) load() error {
	_ = godotenv.Load(".env")
	path := o.configPath
	if path == "" {
		path = os.Getenv("LEXRAG_CONFIG")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	log.Debug("configuration loaded", zap.Stringer("config", cfg))
	o.cfg = cfg
	o.log = log
	return nil
}

func (o *rootOptions) app(ctx context.Context) (*app.App, error) {
	return app.New(ctx, o.cfg, o.log, app.Options{})
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		os.Stderr.WriteString("lexrag: " + err.Error() + "\n")
		return 1
	}
	return 0
}
