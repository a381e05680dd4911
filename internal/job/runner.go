// File: internal/job/runner.go
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/action"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/objectstore"
	"github.com/xkilldash9x/webpilot/internal/oracle"
	"github.com/xkilldash9x/webpilot/internal/store"
	"github.com/xkilldash9x/webpilot/internal/transcript"
)

const (
	// DefaultMaxIterations applies when the configuration leaves the bound unset.
	DefaultMaxIterations = 12
	// MaxIterationsOutput is the output of a job stopped by the iteration bound.
	MaxIterationsOutput = "Maximum iterations reached. Task may be incomplete."
	// EmptyAnswerOutput replaces an empty final answer.
	EmptyAnswerOutput = "Task completed."

	defaultPersistTimeout = 10 * time.Second
)

// Sessions is the part of the browser session manager the loop depends on.
type Sessions interface {
	AcquireSession(ctx context.Context) (*browser.Session, error)
	NewPage(ctx context.Context, s *browser.Session) (browser.Page, error)
	RecordActivity(s *browser.Session)
}

// Runner executes jobs: it drives one page through oracle decisions until
// the goal is reached, the oracle fails, or the iteration bound is hit.
type Runner struct {
	store    store.JobStore
	sessions Sessions
	oracle   oracle.Client
	executor *action.Executor
	cfg      config.JobConfig
	logger   *zap.Logger
	now      func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerClock overrides the clock used for log prefixes and store timestamps.
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner wires a runner.
func NewRunner(cfg config.JobConfig, st store.JobStore, sessions Sessions, o oracle.Client, executor *action.Executor, logger *zap.Logger, opts ...RunnerOption) *Runner {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaultPersistTimeout
	}
	r := &Runner{
		store:    st,
		sessions: sessions,
		oracle:   o,
		executor: executor,
		cfg:      cfg,
		logger:   logger.Named("runner"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// outcome is how a loop ended.
type outcome struct {
	status store.Status
	output string
	err    error
}

// execution is the in-memory state of one job run.
type execution struct {
	job        *store.Job
	started    time.Time
	now        func() time.Time
	log        []string
	transcript transcript.Transcript
	session    *browser.Session
	page       browser.Page
	logger     *zap.Logger
}

func (x *execution) logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	x.log = append(x.log, fmt.Sprintf("[%dms]: %s", x.now().Sub(x.started).Milliseconds(), msg))
	x.logger.Debug(msg)
}

func (x *execution) fail(format string, args ...interface{}) outcome {
	err := fmt.Errorf(format, args...)
	return outcome{status: store.StatusFailed, output: "Failed: " + err.Error(), err: err}
}

// Run executes job id. Starting is idempotent: a job that is not pending is
// left untouched. The returned error covers store problems only; the job's
// own failure is recorded on the job.
func (r *Runner) Run(ctx context.Context, id int64) error {
	job, err := r.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load job %d: %w", id, err)
	}
	logger := r.logger.With(zap.Int64("job_id", id))

	if job.Status != store.StatusPending {
		logger.Info("Job already started; skipping.", zap.String("status", string(job.Status)))
		return nil
	}
	if err := r.store.UpdateStatus(ctx, id, store.StatusRunning); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			logger.Info("Job was started elsewhere; skipping.")
			return nil
		}
		return fmt.Errorf("failed to start job %d: %w", id, err)
	}

	x := &execution{job: job, started: r.now(), now: r.now, logger: logger}
	logger.Info("Job started.", zap.String("goal", job.Goal), zap.String("starting_url", job.StartingURL))

	res := r.guardedLoop(ctx, x)
	r.release(ctx, x)
	return r.finalize(ctx, x, res)
}

// guardedLoop turns a panic in the loop body into a failed outcome.
func (r *Runner) guardedLoop(ctx context.Context, x *execution) (res outcome) {
	defer func() {
		if p := recover(); p != nil {
			x.logger.Error("Panic recovered in job loop",
				zap.Any("panic_value", p),
				zap.Stack("stack"),
			)
			res = x.fail("unexpected panic: %v", p)
		}
	}()
	return r.loop(ctx, x)
}

func (r *Runner) loop(ctx context.Context, x *execution) outcome {
	job := x.job

	session, err := r.sessions.AcquireSession(ctx)
	if err != nil {
		return x.fail("could not start browser: %w", err)
	}
	x.session = session

	page, err := r.sessions.NewPage(ctx, session)
	if err != nil {
		return x.fail("could not open page: %w", err)
	}
	x.page = page

	x.logf("Navigating to %s...", job.StartingURL)
	if err := page.Navigate(ctx, job.StartingURL); err != nil {
		return x.fail("could not load %s: %w", job.StartingURL, err)
	}
	state, err := r.executor.PageState(ctx, page)
	if err != nil {
		return x.fail("browser session lost: %w", err)
	}
	x.logf("Page loaded. HTML size: %d chars.", len(state))

	x.transcript = transcript.New(oracle.SystemPrompt, "Goal: "+job.Goal, state)

	for step := 1; ; step++ {
		if step > r.cfg.MaxIterations {
			x.logf("Exceeded maximum of %d iterations.", r.cfg.MaxIterations)
			return outcome{status: store.StatusCompleted, output: MaxIterationsOutput}
		}

		if r.cfg.StepScreenshots {
			r.screenshot(ctx, x, objectstore.StepLabel(step))
		}
		x.logf("[Step %d] Thinking...", step)

		d, err := r.oracle.Decide(ctx, x.transcript)
		if err != nil {
			return x.fail("oracle request failed: %w", err)
		}
		x.transcript.AppendAssistant(d.Message.Content, d.Message.ToolCall)
		if d.Dropped > 0 {
			x.logf("Oracle proposed %d extra actions; only the first is executed.", d.Dropped)
		}

		if d.Action == nil {
			answer := d.Message.Content
			if answer == "" {
				answer = EmptyAnswerOutput
			}
			x.logf("Final Answer: %s", answer)
			return outcome{status: store.StatusCompleted, output: answer}
		}

		x.logf("AI: %s -> %s", d.Reasoning, action.Describe(d.Action))
		res := r.executor.Execute(ctx, page, job.ID, step, d.Action)
		if res.Finished {
			x.logf("Final Answer: %s", res.Text)
			return outcome{status: store.StatusCompleted, output: res.Text}
		}
		if res.Failed {
			x.logf("Action Error: %s", res.Text)
		} else {
			x.logf("Action '%s' succeeded.", d.Action.Name())
		}

		if err := x.transcript.AppendTool(d.Message.ToolCall.ID, res.Text, res.PageState); err != nil {
			return x.fail("could not record tool result: %w", err)
		}
		if res.Err != nil {
			return x.fail("browser session lost: %w", res.Err)
		}
		r.checkpoint(ctx, x)
		r.sessions.RecordActivity(session)
	}
}

// checkpoint persists progress. A failed checkpoint does not stop the job.
func (r *Runner) checkpoint(ctx context.Context, x *execution) {
	pctx, cancel := r.persistContext(ctx)
	defer cancel()
	if err := r.store.UpdateProgress(pctx, x.job.ID, x.transcript, x.log, r.now()); err != nil {
		x.logger.Warn("Failed to checkpoint job progress.", zap.Error(err))
	}
}

func (r *Runner) screenshot(ctx context.Context, x *execution, label string) {
	key, err := r.executor.Capture(ctx, x.page, x.job.ID, label)
	if err != nil {
		x.logf("Screenshot %s failed: %v", label, err)
		return
	}
	x.logf("Stored screenshot at %s.", key)
}

// release closes the job's page. The session stays up for the idle timer.
func (r *Runner) release(ctx context.Context, x *execution) {
	if x.page != nil {
		if r.cfg.FinalScreenshot {
			r.screenshot(ctx, x, objectstore.FinalLabel)
		}
		if err := x.page.Close(); err != nil {
			x.logger.Warn("Failed to close page.", zap.Error(err))
		}
	}
	if x.session != nil {
		r.sessions.RecordActivity(x.session)
	}
}

// finalize records the terminal state. If the store rejects the write the
// outcome is still logged in full so it is not lost.
func (r *Runner) finalize(ctx context.Context, x *execution, res outcome) error {
	log := x.log
	if res.err != nil {
		log = append([]string{"Critical Error: " + res.err.Error()}, x.log...)
		x.logger.Warn("Job failed.", zap.Error(res.err))
	} else {
		x.logger.Info("Job completed.", zap.Int("messages", len(x.transcript)))
	}

	pctx, cancel := r.persistContext(ctx)
	defer cancel()
	if err := r.store.Finalize(pctx, x.job.ID, res.output, x.transcript, log, r.now(), res.status); err != nil {
		x.logger.Error("Failed to finalize job; outcome was not persisted.",
			zap.String("status", string(res.status)),
			zap.String("output", res.output),
			zap.Strings("log", log),
			zap.Error(err),
		)
		return fmt.Errorf("failed to finalize job %d: %w", x.job.ID, err)
	}
	return nil
}

// persistContext survives cancellation of ctx so shutdown does not drop writes.
func (r *Runner) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.cfg.PersistTimeout)
}
