// File: internal/service/components.go
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/job"
	"github.com/xkilldash9x/webpilot/internal/objectstore"
	"github.com/xkilldash9x/webpilot/internal/store"
)

// Components holds every long lived service behind the job API and CLI.
type Components struct {
	Store          store.JobStore
	Objects        objectstore.Store
	BrowserManager *browser.Manager
	Runner         *job.Runner
	Dispatcher     *job.Dispatcher
	DBPool         *pgxpool.Pool

	logger *zap.Logger
}

// Shutdown releases components in dependency order: running jobs first, then
// the browser they use, then the database they persist to. Every step runs
// even if an earlier one fails.
func (c *Components) Shutdown(ctx context.Context) error {
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Beginning components shutdown sequence.")

	var errs []error

	// 1. Stop accepting jobs and drain the running ones.
	if c.Dispatcher != nil {
		if err := c.Dispatcher.Shutdown(ctx); err != nil {
			logger.Warn("Error while draining jobs.", zap.Error(err))
			errs = append(errs, err)
		} else {
			logger.Debug("Dispatcher drained.")
		}
	}

	// 2. Close the shared browser session.
	if c.BrowserManager != nil {
		if err := c.BrowserManager.Shutdown(ctx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
			errs = append(errs, err)
		} else {
			logger.Debug("Browser manager shut down.")
		}
	}

	// 3. Close the database pool last; the steps above may still persist.
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("components shutdown: %w", err)
	}
	logger.Info("All components shut down successfully.")
	return nil
}
