// File: internal/browser/netidle.go
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

// idleInflightLimit is the number of open requests still considered idle,
// so pages holding a long poll or analytics beacon can settle.
const idleInflightLimit = 2

// networkIdleTracker follows request lifecycle events of one tab.
type networkIdleTracker struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	changed  time.Time
}

func newNetworkIdleTracker() *networkIdleTracker {
	return &networkIdleTracker{
		inflight: make(map[network.RequestID]struct{}),
		changed:  time.Now(),
	}
}

// handle is registered with chromedp.ListenTarget.
func (t *networkIdleTracker) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.mu.Lock()
		t.inflight[e.RequestID] = struct{}{}
		t.changed = time.Now()
		t.mu.Unlock()
	case *network.EventLoadingFinished:
		t.done(e.RequestID)
	case *network.EventLoadingFailed:
		t.done(e.RequestID)
	}
}

func (t *networkIdleTracker) done(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.inflight[id]; ok {
		delete(t.inflight, id)
		t.changed = time.Now()
	}
}

func (t *networkIdleTracker) snapshot() (int, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight), t.changed
}

// Wait blocks until at most idleInflightLimit requests have been open for the
// whole quiet period, or ctx ends.
func (t *networkIdleTracker) Wait(ctx context.Context, quiet time.Duration) error {
	if quiet <= 0 {
		return nil
	}
	ticker := time.NewTicker(quiet / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			inflight, changed := t.snapshot()
			if inflight <= idleInflightLimit && time.Since(changed) >= quiet {
				return nil
			}
		}
	}
}
