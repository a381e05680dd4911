// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/service"
	"github.com/xkilldash9x/webpilot/internal/store"
)

type runOptions struct {
	url      string
	goal     string
	output   string
	inMemory bool
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one job in the foreground and print its result",
		Example: `  webpilot run --url https://example.com/pricing --goal "What does the pro plan cost?"
  webpilot run --url https://example.com --goal "Find the support email" -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runJob(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	flags := runCmd.Flags()
	flags.StringVar(&opts.url, "url", "", "starting URL (required)")
	flags.StringVar(&opts.goal, "goal", "", "what the agent should accomplish (required)")
	flags.StringVarP(&opts.output, "output", "o", "text", "output format: text, json or yaml")
	flags.BoolVar(&opts.inMemory, "in-memory", false, "keep the job in memory even if a database is configured")
	flags.Int("max-iterations", 0, "override job.max_iterations")
	_ = runCmd.MarkFlagRequired("url")
	_ = runCmd.MarkFlagRequired("goal")
	_ = a.v.BindPFlag("job.max_iterations", flags.Lookup("max-iterations"))
	return runCmd
}

// runJob dispatches a single job and blocks until it reaches a terminal status
// or ctx is cancelled.
func (a *app) runJob(ctx context.Context, out io.Writer, opts *runOptions) error {
	if err := checkFormat(opts.output); err != nil {
		return err
	}
	logger := a.logger.Named("run")

	var fopts []service.FactoryOption
	if opts.inMemory {
		fopts = append(fopts, service.WithMemoryStore())
	}
	components, err := newComponentFactory(fopts...).Create(ctx, a.cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := components.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Shutdown did not complete cleanly.", zap.Error(err))
		}
	}()

	ticket, err := components.Dispatcher.Create(ctx, opts.goal, opts.url)
	if err != nil {
		return err
	}
	logger.Info("Job started.", zap.Int64("job_id", ticket.JobID))

	done := make(chan struct{})
	go func() {
		components.Dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("Interrupted; cancelling the job.")
		// Shutdown cancels the job; wait for it so the record is final.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Millisecond)
		_ = components.Dispatcher.Shutdown(shutdownCtx)
		cancel()
		<-done
	}

	job, err := components.Store.Get(context.WithoutCancel(ctx), ticket.JobID)
	if err != nil {
		return fmt.Errorf("failed to load job %d: %w", ticket.JobID, err)
	}
	if err := printJob(out, opts.output, job); err != nil {
		return err
	}
	if job.Status != store.StatusCompleted {
		return fmt.Errorf("job %d ended with status %s", job.ID, job.Status)
	}
	return nil
}
