package oracle

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/transcript"
)

// scriptedBackend returns canned replies and records what it was sent.
type scriptedBackend struct {
	mu    sync.Mutex
	reply Reply
	err   error
	seen  []transcript.Transcript
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Complete(ctx context.Context, t transcript.Transcript) (Reply, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seen = append(b.seen, t)
	return b.reply, b.err
}

// setupTestLogger creates a zap logger backed by an observer.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	return zap.New(core), logs
}

// getValidOracleConfig returns a valid OracleConfig for testing purposes.
func getValidOracleConfig(provider config.LLMProvider) config.OracleConfig {
	return config.OracleConfig{
		Provider:    provider,
		APIKey:      "test-api-key",
		Model:       "test-model",
		APITimeout:  5 * time.Second,
		Temperature: 0.2,
	}
}

// sampleTranscript is a two step conversation with page state on every turn.
func sampleTranscript() transcript.Transcript {
	tr := transcript.New("system prompt", "Goal: extract price", "<h1>Home</h1>")
	tr.AppendAssistant("", &transcript.ToolCall{
		ID:        "call_1",
		Name:      "click",
		Arguments: map[string]interface{}{"selector": "#pricing", "reasoning": "open pricing"},
	})
	_ = tr.AppendTool("call_1", "Successfully clicked on element: #pricing", "<p>$29/mo</p>")
	return tr
}
