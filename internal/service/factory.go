// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/action"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/job"
	"github.com/xkilldash9x/webpilot/internal/objectstore"
	"github.com/xkilldash9x/webpilot/internal/oracle"
)

// cleanupTimeout bounds teardown of a partially built component set.
const cleanupTimeout = 30 * time.Second

// ComponentFactory builds the component graph shared by `serve` and `run`.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// FactoryOption overrides a collaborator the factory would otherwise build.
type FactoryOption func(*concreteFactory)

// WithLauncher replaces the chromedp launcher.
func WithLauncher(l browser.Launcher) FactoryOption {
	return func(f *concreteFactory) { f.launcher = l }
}

// WithScheduler replaces the wall clock idle timer.
func WithScheduler(s browser.Scheduler) FactoryOption {
	return func(f *concreteFactory) { f.scheduler = s }
}

// WithOracle replaces the configured LLM backend.
func WithOracle(o oracle.Client) FactoryOption {
	return func(f *concreteFactory) { f.oracle = o }
}

// WithMemoryStore forces the in-memory job store even when a database is configured.
func WithMemoryStore() FactoryOption {
	return func(f *concreteFactory) { f.memoryStore = true }
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct {
	launcher    browser.Launcher
	scheduler   browser.Scheduler
	oracle      oracle.Client
	memoryStore bool
}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory(opts ...FactoryOption) ComponentFactory {
	f := &concreteFactory{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create wires every component. If a step fails, whatever was already built is shut down.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (components *Components, err error) {
	c := &Components{logger: logger.Named("components")}

	defer func() {
		if err != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(err))
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
			defer cancel()
			_ = c.Shutdown(shutdownCtx)
		}
	}()

	// 1. Job store
	st, pool, err := InitializeJobStore(ctx, cfg.Database(), logger, f.memoryStore)
	if err != nil {
		return nil, err
	}
	c.Store, c.DBPool = st, pool

	// 2. Screenshot object store. The oracle may call the screenshot tool
	// even when automatic step and final captures are off.
	objects, err := objectstore.New(ctx, cfg.Storage(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}
	c.Objects = objects
	logger.Debug("Object store initialized.", zap.String("backend", string(cfg.Storage().Backend)))

	// 3. Browser session manager
	launcher := f.launcher
	if launcher == nil {
		launcher = browser.NewChromedpLauncher(cfg.Browser(), logger)
	}
	scheduler := f.scheduler
	if scheduler == nil {
		scheduler = browser.TimerScheduler{}
	}
	c.BrowserManager = browser.NewManager(cfg.Browser(), launcher, scheduler, logger)
	logger.Debug("Browser manager initialized.")

	// 4. Decision oracle
	o := f.oracle
	if o == nil {
		built, err := oracle.NewFromConfig(ctx, cfg.Oracle(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize decision oracle: %w", err)
		}
		o = built
	}
	logger.Debug("Decision oracle initialized.", zap.String("provider", string(cfg.Oracle().Provider)))

	// 5. Action executor and job runner
	jobCfg := cfg.Job()
	executor := action.NewExecutor(cfg.Browser(), jobCfg, c.Objects, logger)
	c.Runner = job.NewRunner(jobCfg, c.Store, c.BrowserManager, o, executor, logger)

	// 6. Dispatcher
	c.Dispatcher = job.NewDispatcher(jobCfg, c.Store, c.Runner, logger)

	logger.Info("All components initialized successfully.")
	return c, nil
}
