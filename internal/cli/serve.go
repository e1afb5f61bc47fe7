package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/stremovskyy/go-applepay/internal/web"
)

func newServeCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), o)
		},
	}
	cmd.Flags().StringVar(&o.addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

func runServe(ctx context.Context, o *rootOptions) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gin.SetMode(cfg.Server.Mode)

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	logger.Infof("Merchant certificate source: %s", client.Provider().Source().Describe())
	if id := client.MerchantIdentifier(); id != "" {
		logger.Infof("Merchant identifier: %s", id)
	}

	srv, err := web.NewServer(client, *cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Infof("Shutting down, waiting up to %s for in-flight requests", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
