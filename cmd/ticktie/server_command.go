package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyperjump/ticktie/internal/server"
	"github.com/hyperjump/ticktie/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API and watch the drop folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			logger.Info("config loaded",
				zap.String("config_path", ctx.configPath),
				zap.Bool("debug", cfg.Debug),
			)

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			components, err := initializeComponents(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			if len(cfg.Watch.Directories) > 0 {
				w := watcher.New(
					cfg.Watch.Directories,
					cfg.Watch.Extensions,
					cfg.Watch.RecursiveOrDefault(),
					watcher.NewIngest(components.Session, logger),
					watcher.WithLogger(logger),
				)
				if err := w.Start(runCtx); err != nil {
					return err
				}
				defer w.Stop()
			}

			srv := server.NewServer(components.Session, cfg, logger)
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-runCtx.Done():
			}

			logger.Info("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
}
