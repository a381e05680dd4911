// File: internal/browser/interface.go
package browser

import (
	"context"
	"errors"
)

var (
	// ErrSessionClosed is returned when a page is requested from a session the
	// manager has already retired, or when the tab of a page has gone away.
	ErrSessionClosed = errors.New("browser session is closed")
)

// Page is one tab inside the shared browser. Each job owns exactly one Page;
// pages are independent of each other and are not synchronized by the Manager.
type Page interface {
	// Navigate loads url and waits until the network is idle.
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, value string) error
	Select(ctx context.Context, selector, value string) error
	// Scroll moves the viewport vertically by dy pixels.
	Scroll(ctx context.Context, dy int) error
	// Content returns the serialized DOM of the current document.
	Content(ctx context.Context) (string, error)
	// Screenshot returns a JPEG of the full page.
	Screenshot(ctx context.Context) ([]byte, error)
	// Evaluate runs script in the page and returns the JSON encoded result,
	// or nil when the script produced undefined.
	Evaluate(ctx context.Context, script string) ([]byte, error)
	Close() error
}

// Browser is a live browser process or remote connection.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	// Connected probes the underlying connection.
	Connected(ctx context.Context) bool
	Version() string
	Close() error
}

// Launcher starts browsers. A failed launch is reported, never retried.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context) (Browser, error)

func (f LauncherFunc) Launch(ctx context.Context) (Browser, error) { return f(ctx) }
