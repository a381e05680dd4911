// File: internal/action/executor.go
package action

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/objectstore"
)

// scrollDistance is the vertical distance of one scroll step in CSS pixels.
const scrollDistance = 500

// Result is the outcome of one action as the oracle will read it.
type Result struct {
	// Text is the tool result message.
	Text string
	// PageState is the cleaned page content read after the action. Empty for Finish.
	PageState string
	// Finished is set only for the Finish action.
	Finished bool
	// Failed reports that the action itself did not succeed.
	Failed bool
	// ObjectKey is the screenshot key written by a Screenshot action.
	ObjectKey string
	// Err is set when the browser session behind the page is gone. The job
	// cannot make progress after that.
	Err error
}

// Executor performs single actions against a page. Action failures become
// descriptive result text so the loop can continue; only a lost session is
// reported through Result.Err.
type Executor struct {
	objects    objectstore.Store
	settle     time.Duration
	maxWait    time.Duration
	maxContent int
	logger     *zap.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock overrides the time source used for object keys.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithSleeper overrides how settle delays and waits are spent.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// NewExecutor creates an executor for the given browser and job policy.
func NewExecutor(bcfg config.BrowserConfig, jcfg config.JobConfig, objects objectstore.Store, logger *zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		objects:    objects,
		settle:     bcfg.SettleDelay,
		maxWait:    jcfg.MaxWait,
		maxContent: bcfg.MaxContentLength,
		logger:     logger.Named("executor"),
		now:        time.Now,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute runs a against page. step is the 1-based iteration of jobID and
// only feeds screenshot keys.
func (e *Executor) Execute(ctx context.Context, page browser.Page, jobID int64, step int, a Action) Result {
	var res Result
	switch v := a.(type) {
	case Click:
		res = e.interact(ctx, "click", v.Selector, func() error { return page.Click(ctx, v.Selector) },
			fmt.Sprintf("Successfully clicked on element: %s", v.Selector))
	case Type:
		res = e.interact(ctx, "type", v.Selector, func() error { return page.Type(ctx, v.Selector, v.Value) },
			fmt.Sprintf("Successfully typed %q into element: %s", v.Value, v.Selector))
	case Select:
		res = e.interact(ctx, "select", v.Selector, func() error { return page.Select(ctx, v.Selector, v.Value) },
			fmt.Sprintf("Successfully selected %q in element: %s", v.Value, v.Selector))
	case Navigate:
		if err := page.Navigate(ctx, v.URL); err != nil {
			res = failed("Failed to navigate to %s. Error: %v", v.URL, err)
		} else {
			res = Result{Text: fmt.Sprintf("Successfully navigated to: %s", v.URL)}
		}
	case Scroll:
		res = e.scroll(ctx, page, v.Direction)
	case Wait:
		res = e.wait(ctx, v.Seconds)
	case GetPageContent:
		res = Result{Text: "Page content:"}
	case Screenshot:
		key, err := e.Capture(ctx, page, jobID, objectstore.StepLabel(step))
		if err != nil {
			res = failed("Failed to take screenshot. Error: %v", err)
		} else {
			res = Result{Text: fmt.Sprintf("Screenshot taken successfully and stored as %s", key), ObjectKey: key}
		}
	case Evaluate:
		raw, err := page.Evaluate(ctx, v.Code)
		if err != nil {
			res = failed("Failed to evaluate JavaScript. Error: %v", err)
		} else {
			res = Result{Text: "JavaScript evaluation result: " + evalText(raw)}
		}
	case Finish:
		return Result{Text: v.Result, Finished: true}
	case Unknown:
		res = failed("Unknown action %q. No action was taken.", v.ToolName)
	case Invalid:
		res = failed("Invalid arguments for %s: %s. No action was taken.", v.ToolName, v.Reason)
	default:
		res = failed("Unsupported action %q. No action was taken.", a.Name())
	}

	if res.Failed {
		e.logger.Debug("Action failed.", zap.Int64("job_id", jobID), zap.Int("step", step), zap.String("action", a.Name()), zap.String("result", res.Text))
	}
	res.PageState, res.Err = e.PageState(ctx, page)
	return res
}

// interact performs a selector based action followed by the settle delay.
func (e *Executor) interact(ctx context.Context, verb, selector string, do func() error, success string) Result {
	if err := do(); err != nil {
		return failed("Failed to %s on %s. Error: %v", verb, selector, err)
	}
	if err := e.sleep(ctx, e.settle); err != nil {
		return failed("Failed to %s on %s. Error: %v", verb, selector, err)
	}
	return Result{Text: success}
}

func (e *Executor) scroll(ctx context.Context, page browser.Page, direction string) Result {
	var dy int
	switch direction {
	case "down":
		dy = scrollDistance
	case "up":
		dy = -scrollDistance
	default:
		return Result{Text: fmt.Sprintf("Unsupported scroll direction %q. Nothing was scrolled.", direction)}
	}
	if err := page.Scroll(ctx, dy); err != nil {
		return failed("Failed to scroll %s. Error: %v", direction, err)
	}
	if err := e.sleep(ctx, e.settle); err != nil {
		return failed("Failed to scroll %s. Error: %v", direction, err)
	}
	return Result{Text: fmt.Sprintf("Successfully scrolled %s", direction)}
}

func (e *Executor) wait(ctx context.Context, seconds float64) Result {
	limit := e.maxWait
	if limit <= 0 {
		limit = time.Duration(math.MaxInt64)
	}
	// Compare in seconds; converting a huge value first would overflow.
	d := limit
	if seconds < limit.Seconds() {
		d = time.Duration(seconds * float64(time.Second))
	}
	if err := e.sleep(ctx, d); err != nil {
		return failed("Failed to wait. Error: %v", err)
	}
	return Result{Text: fmt.Sprintf("Successfully waited for %s seconds", formatSeconds(d.Seconds()))}
}

// Capture takes a JPEG of page and writes it under label. It returns the object key.
func (e *Executor) Capture(ctx context.Context, page browser.Page, jobID int64, label string) (string, error) {
	if e.objects == nil {
		return "", fmt.Errorf("no object store configured")
	}
	shot, err := page.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	key := objectstore.ScreenshotKey(jobID, label, e.now())
	if err := e.objects.Put(ctx, key, shot, objectstore.ContentTypeJPEG); err != nil {
		return "", err
	}
	return key, nil
}

// PageState reads and cleans the current page. A read failure is reported in
// place of the content; the error is non-nil only when the session is gone.
func (e *Executor) PageState(ctx context.Context, page browser.Page) (string, error) {
	raw, err := page.Content(ctx)
	if err != nil {
		text := fmt.Sprintf("Failed to get page content. Error: %v", err)
		if errors.Is(err, browser.ErrSessionClosed) {
			return text, err
		}
		return text, nil
	}
	return browser.CleanHTML(raw, e.maxContent), nil
}

func failed(format string, a ...interface{}) Result {
	return Result{Text: fmt.Sprintf(format, a...), Failed: true}
}

// evalText renders a raw JSON evaluation result; nil means undefined.
func evalText(raw []byte) string {
	if raw == nil {
		return "undefined"
	}
	return string(raw)
}
