// File: internal/browser/netidle_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot/internal/config"
)

func TestNetworkIdleTracker(t *testing.T) {
	t.Run("Quiet Network Settles", func(t *testing.T) {
		tr := newNetworkIdleTracker()
		tr.handle(&network.EventRequestWillBeSent{RequestID: "1"})
		tr.handle(&network.EventRequestWillBeSent{RequestID: "2"})

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, tr.Wait(ctx, 20*time.Millisecond), "two open requests still count as idle")
	})

	t.Run("Busy Network Blocks Until Deadline", func(t *testing.T) {
		tr := newNetworkIdleTracker()
		for _, id := range []network.RequestID{"1", "2", "3"} {
			tr.handle(&network.EventRequestWillBeSent{RequestID: id})
		}

		ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, tr.Wait(ctx, 20*time.Millisecond), context.DeadlineExceeded)

		tr.handle(&network.EventLoadingFailed{RequestID: "3"})
		n, _ := tr.snapshot()
		assert.Equal(t, 2, n)

		ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
		defer cancel2()
		assert.NoError(t, tr.Wait(ctx2, 20*time.Millisecond))
	})

	t.Run("Unknown Completion Is Ignored", func(t *testing.T) {
		tr := newNetworkIdleTracker()
		_, before := tr.snapshot()
		time.Sleep(2 * time.Millisecond)

		tr.handle(&network.EventLoadingFinished{RequestID: "never-sent"})

		n, after := tr.snapshot()
		assert.Zero(t, n)
		assert.Equal(t, before, after)
	})

	t.Run("Zero Quiet Returns Immediately", func(t *testing.T) {
		tr := newNetworkIdleTracker()
		assert.NoError(t, tr.Wait(context.Background(), 0))
	})
}

func TestExecOptions(t *testing.T) {
	cfg := config.NewDefaultConfig().BrowserCfg
	base := len(execOptions(cfg))

	cfg.Args = []string{"--lang=en-US", "disable-extensions", "--", ""}
	assert.Equal(t, base+2, len(execOptions(cfg)), "empty flags are skipped")

	cfg.Args = nil
	cfg.ExecPath = "/usr/bin/chromium"
	assert.Equal(t, base+1, len(execOptions(cfg)))
}
