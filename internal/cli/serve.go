package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Popie52/offlinesync/internal/bootstrap"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync service with its HTTP and WebSocket API",
		Long: `Start the sync service. Actions are accepted over HTTP, stored durably
and delivered in order whenever the network monitor reports online.

Example:
  offlinesync serve --config offlinesync.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "start", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("store_close_failed", zap.Error(err))
		}
	}()

	if err := app.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "serve", err)
	}
	return nil
}
