// File: internal/oracle/oracle.go
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/webpilot/internal/action"
	"github.com/xkilldash9x/webpilot/internal/transcript"
)

// ErrMalformedResponse is returned when the endpoint answers with something
// that cannot be read as an assistant message.
var ErrMalformedResponse = errors.New("malformed oracle response")

// Reply is the raw assistant turn as returned by a backend, before the
// single call cap is applied.
type Reply struct {
	Content          string
	Calls            []transcript.ToolCall
	PromptTokens     int64
	CompletionTokens int64
}

// Backend performs one completion request against a concrete endpoint.
// Backends must not retry.
type Backend interface {
	Complete(ctx context.Context, t transcript.Transcript) (Reply, error)
	Name() string
}

// Decision is the oracle's choice for the next step.
type Decision struct {
	// Message is the assistant message to append to the transcript. It carries
	// at most one ToolCall.
	Message transcript.Message
	// Action is the parsed ToolCall, or nil when the oracle answered in text only.
	Action action.Action
	// Reasoning is the audit explanation attached to the ToolCall.
	Reasoning string
	// Dropped counts additional tool calls that were discarded.
	Dropped int
}

// Client is the decision oracle as seen by the job loop.
type Client interface {
	Decide(ctx context.Context, t transcript.Transcript) (Decision, error)
}

// Oracle sanitizes transcripts, calls its backend once and reduces the reply
// to a single action.
type Oracle struct {
	backend Backend
	logger  *zap.Logger
	counter *transcript.TokenCounter
	newID   func() string
}

// New wraps backend.
func New(backend Backend, logger *zap.Logger) *Oracle {
	return &Oracle{
		backend: backend,
		logger:  logger.Named("oracle"),
		counter: &transcript.TokenCounter{},
		newID:   func() string { return "call_" + uuid.NewString() },
	}
}

// Decide sends the sanitized transcript and returns the first proposed action.
// Errors are returned as is; there are no retries.
func (o *Oracle) Decide(ctx context.Context, t transcript.Transcript) (Decision, error) {
	view := t.Sanitized()
	if o.logger.Core().Enabled(zapcore.DebugLevel) {
		o.logger.Debug("Requesting decision.",
			zap.String("backend", o.backend.Name()),
			zap.Int("messages", len(view)),
			zap.Int("estimated_tokens", o.counter.Count(view)),
		)
	}

	start := time.Now()
	reply, err := o.backend.Complete(ctx, view)
	if err != nil {
		return Decision{}, fmt.Errorf("%s oracle request failed: %w", o.backend.Name(), err)
	}
	o.logger.Info("Oracle decision received.",
		zap.String("backend", o.backend.Name()),
		zap.Duration("duration", time.Since(start)),
		zap.Int("tool_calls", len(reply.Calls)),
		zap.Int64("prompt_tokens", reply.PromptTokens),
		zap.Int64("completion_tokens", reply.CompletionTokens),
	)

	d := Decision{
		Message: transcript.Message{Role: transcript.RoleAssistant, Content: reply.Content},
	}
	if len(reply.Calls) == 0 {
		return d, nil
	}

	// Only one action may run per step; the rest are discarded.
	call := reply.Calls[0]
	if call.ID == "" {
		call.ID = o.newID()
	}
	d.Dropped = len(reply.Calls) - 1
	if d.Dropped > 0 {
		o.logger.Warn("Oracle proposed parallel tool calls; keeping the first.",
			zap.String("kept", call.Name),
			zap.Int("dropped", d.Dropped),
		)
	}

	d.Message.ToolCall = &call
	d.Action = action.Parse(call.Name, call.Arguments)
	d.Reasoning = action.Reasoning(call.Arguments)
	return d, nil
}
