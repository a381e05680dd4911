// File: internal/browser/chromedp.go
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/config"
)

const (
	screenshotQuality = 80
	closeTimeout      = 10 * time.Second
)

// ChromedpLauncher starts Chrome through the DevTools protocol, either as a
// child process or by attaching to a remote endpoint.
type ChromedpLauncher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

// NewChromedpLauncher creates a launcher for the given browser settings.
func NewChromedpLauncher(cfg config.BrowserConfig, logger *zap.Logger) *ChromedpLauncher {
	return &ChromedpLauncher{cfg: cfg, logger: logger.Named("chromedp")}
}

// execOptions translates the browser config into allocator options.
func execOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	// chromedp adds the leading dashes itself.
	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if key == "" {
			continue
		}
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

// Launch allocates a browser. The returned browser outlives ctx; ctx only
// bounds the launch itself.
func (l *ChromedpLauncher) Launch(ctx context.Context) (Browser, error) {
	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if l.cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), l.cfg.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), execOptions(l.cfg)...)
	}

	sugar := l.logger.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(sugar.Errorf))

	stop := context.AfterFunc(ctx, browserCancel)
	err := chromedp.Run(browserCtx)
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp allocation failed: %w", err)
	}

	b := &chromedpBrowser{
		cfg:         l.cfg,
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		logger:      l.logger,
	}
	b.version = b.probeVersion(ctx)
	return b, nil
}

type chromedpBrowser struct {
	cfg         config.BrowserConfig
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger
	version     string

	closeOnce sync.Once
	closeErr  error
}

func (b *chromedpBrowser) probeVersion(ctx context.Context) string {
	c := chromedp.FromContext(b.ctx)
	if c == nil || c.Browser == nil {
		return "unknown"
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	_, product, _, _, _, err := cdpbrowser.GetVersion().Do(cdp.WithExecutor(probeCtx, c.Browser))
	if err != nil {
		b.logger.Debug("Could not read browser version.", zap.Error(err))
		return "unknown"
	}
	return product
}

func (b *chromedpBrowser) Connected(ctx context.Context) bool {
	if b.ctx.Err() != nil {
		return false
	}
	c := chromedp.FromContext(b.ctx)
	if c == nil || c.Browser == nil {
		return false
	}
	_, _, _, _, _, err := cdpbrowser.GetVersion().Do(cdp.WithExecutor(ctx, c.Browser))
	return err == nil
}

func (b *chromedpBrowser) Version() string { return b.version }

func (b *chromedpBrowser) NewPage(ctx context.Context) (Page, error) {
	if b.ctx.Err() != nil {
		return nil, ErrSessionClosed
	}
	tabCtx, tabCancel := chromedp.NewContext(b.ctx)
	p := &chromedpPage{
		cfg:     b.cfg,
		ctx:     tabCtx,
		cancel:  tabCancel,
		tracker: newNetworkIdleTracker(),
	}
	chromedp.ListenTarget(tabCtx, p.tracker.handle)

	err := p.run(ctx, b.cfg.ActionTimeout,
		network.Enable(),
		chromedp.EmulateViewport(int64(b.cfg.Viewport.Width), int64(b.cfg.Viewport.Height)),
	)
	if err != nil {
		tabCancel()
		return nil, err
	}
	return p, nil
}

func (b *chromedpBrowser) Close() error {
	b.closeOnce.Do(func() {
		tctx, tcancel := context.WithTimeout(b.ctx, closeTimeout)
		defer tcancel()
		if err := chromedp.Cancel(tctx); err != nil && b.ctx.Err() == nil {
			b.closeErr = err
		}
		b.cancel()
		b.allocCancel()
	})
	return b.closeErr
}

type chromedpPage struct {
	cfg     config.BrowserConfig
	ctx     context.Context
	cancel  context.CancelFunc
	tracker *networkIdleTracker

	closeOnce sync.Once
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (p *chromedpPage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrSessionClosed, err)
		}
		return err
	}
	return nil
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, p.cfg.NavigationTimeout, chromedp.Navigate(url)); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.NavigationTimeout)
	defer cancel()
	if err := p.tracker.Wait(waitCtx, p.cfg.NetworkIdleQuiet); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	// A page that never goes quiet is still usable once loaded.
	return nil
}

// exists reports whether selector matches an element in the current document.
func (p *chromedpPage) exists(ctx context.Context, selector string) error {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return err
	}
	var found bool
	script := fmt.Sprintf("document.querySelector(%s) !== null", quoted)
	if err := p.run(ctx, p.cfg.ActionTimeout, chromedp.Evaluate(script, &found)); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no element matches selector %s", selector)
	}
	return nil
}

func (p *chromedpPage) Click(ctx context.Context, selector string) error {
	if err := p.exists(ctx, selector); err != nil {
		return err
	}
	return p.run(ctx, p.cfg.ActionTimeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// Type replaces the field value rather than appending to it.
func (p *chromedpPage) Type(ctx context.Context, selector, value string) error {
	if err := p.exists(ctx, selector); err != nil {
		return err
	}
	return p.run(ctx, p.cfg.ActionTimeout,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

const selectScript = `(() => {
	const el = document.querySelector(%s);
	if (el === null) { return "missing"; }
	const value = %s;
	if (el.tagName !== "SELECT") { return "not a select element"; }
	const opt = Array.from(el.options).find(o => o.value === value || o.label === value);
	if (opt === undefined) { return "no option " + value; }
	el.value = opt.value;
	el.dispatchEvent(new Event("input", { bubbles: true }));
	el.dispatchEvent(new Event("change", { bubbles: true }));
	return "";
})()`

func (p *chromedpPage) Select(ctx context.Context, selector, value string) error {
	qs, err := json.Marshal(selector)
	if err != nil {
		return err
	}
	qv, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var outcome string
	if err := p.run(ctx, p.cfg.ActionTimeout, chromedp.Evaluate(fmt.Sprintf(selectScript, qs, qv), &outcome)); err != nil {
		return err
	}
	switch outcome {
	case "":
		return nil
	case "missing":
		return fmt.Errorf("no element matches selector %s", selector)
	default:
		return errors.New(outcome)
	}
}

func (p *chromedpPage) Scroll(ctx context.Context, dy int) error {
	return p.run(ctx, p.cfg.ActionTimeout, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", dy), nil))
}

func (p *chromedpPage) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, p.cfg.ActionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (p *chromedpPage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, p.cfg.NavigationTimeout, chromedp.FullScreenshot(&buf, screenshotQuality)); err != nil {
		return nil, err
	}
	return buf, nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func (p *chromedpPage) Evaluate(ctx context.Context, script string) ([]byte, error) {
	var raw []byte
	if err := p.run(ctx, p.cfg.ActionTimeout, chromedp.Evaluate(script, &raw, awaitPromise)); err != nil {
		return nil, err
	}
	return raw, nil
}

func (p *chromedpPage) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.ctx.Err() == nil {
			err = chromedp.Cancel(p.ctx)
		}
		p.cancel()
	})
	return err
}
