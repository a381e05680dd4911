// File: cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/api"
)

func newServeCmd(a *app) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job API server",
		Long: `Starts the HTTP job API. POST /api/jobs accepts a goal and a starting URL
and returns immediately; GET /api/jobs/{id} reports progress and the result.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}

	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	_ = a.v.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	return serveCmd
}

func (a *app) serve(ctx context.Context) error {
	logger := a.logger.Named("serve")

	components, err := newComponentFactory().Create(ctx, a.cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}

	server := api.NewServer(a.cfg.Server(), components.Dispatcher, components.Store, logger)
	serveErr := server.ListenAndServe(ctx)

	// The HTTP listener is down; drain jobs and release the browser and database.
	timeout := a.cfg.Server().ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := components.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Shutdown did not complete cleanly.", zap.Error(err))
	}

	if serveErr != nil {
		return serveErr
	}
	logger.Info("Server stopped.")
	return nil
}
