// File: internal/transcript/transcript.go
package transcript

import (
	"errors"
	"fmt"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

var (
	// ErrUnmatchedToolResult is returned when a tool message does not answer a
	// preceding, still unanswered, assistant ToolCall.
	ErrUnmatchedToolResult = errors.New("tool result does not answer a pending tool call")
)

// ToolCall is a single structured action proposal from the oracle.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// Message is one entry of the conversation with the oracle. PageState holds
// the cleaned page snapshot that accompanies Content, if any; it is kept
// separate so older snapshots can be elided without touching Content.
type Message struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	PageState  string    `json:"pageState,omitempty"`
	ToolCall   *ToolCall `json:"toolCall,omitempty"`
	ToolCallID string    `json:"toolCallId,omitempty"`
}

// Text renders the message the way the oracle sees it.
func (m Message) Text() string {
	switch {
	case m.PageState == "":
		return m.Content
	case m.Content == "":
		return m.PageState
	default:
		return m.Content + "\n\n" + m.PageState
	}
}

// Transcript is the ordered message log. Order is significant.
type Transcript []Message

// New seeds a transcript with the system prompt and the user's request.
func New(systemPrompt, request, pageState string) Transcript {
	return Transcript{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: request, PageState: pageState},
	}
}

// AppendAssistant records an oracle reply. call may be nil.
func (t *Transcript) AppendAssistant(content string, call *ToolCall) {
	*t = append(*t, Message{Role: RoleAssistant, Content: content, ToolCall: call})
}

// AppendTool records the result of executing the pending ToolCall identified by callID.
func (t *Transcript) AppendTool(callID, content, pageState string) error {
	pending := t.PendingCall()
	if pending == nil || pending.ID != callID {
		return fmt.Errorf("%w: %q", ErrUnmatchedToolResult, callID)
	}
	*t = append(*t, Message{Role: RoleTool, Content: content, PageState: pageState, ToolCallID: callID})
	return nil
}

// PendingCall returns the ToolCall of the last assistant message if no tool
// message has answered it yet.
func (t Transcript) PendingCall() *ToolCall {
	for i := len(t) - 1; i >= 0; i-- {
		switch t[i].Role {
		case RoleTool:
			return nil
		case RoleAssistant:
			return t[i].ToolCall
		}
	}
	return nil
}

// Last returns the final message, if any.
func (t Transcript) Last() (Message, bool) {
	if len(t) == 0 {
		return Message{}, false
	}
	return t[len(t)-1], true
}

// Clone returns a deep copy.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	for i, m := range t {
		if m.ToolCall != nil {
			call := *m.ToolCall
			if m.ToolCall.Arguments != nil {
				call.Arguments = make(map[string]interface{}, len(m.ToolCall.Arguments))
				for k, v := range m.ToolCall.Arguments {
					call.Arguments[k] = v
				}
			}
			m.ToolCall = &call
		}
		out[i] = m
	}
	return out
}

// Validate checks the correlation invariants: every ToolCall id is unique and
// non-empty, and every tool message answers exactly one earlier ToolCall that
// no other tool message has answered.
func (t Transcript) Validate() error {
	issued := make(map[string]bool)
	answered := make(map[string]bool)

	for i, m := range t {
		switch m.Role {
		case RoleSystem, RoleUser:
			if m.ToolCall != nil || m.ToolCallID != "" {
				return fmt.Errorf("message %d: %s message cannot carry tool call data", i, m.Role)
			}
		case RoleAssistant:
			if m.ToolCallID != "" {
				return fmt.Errorf("message %d: assistant message cannot carry a tool result id", i)
			}
			if m.ToolCall == nil {
				continue
			}
			if m.ToolCall.ID == "" {
				return fmt.Errorf("message %d: tool call %q has no correlation id", i, m.ToolCall.Name)
			}
			if issued[m.ToolCall.ID] {
				return fmt.Errorf("message %d: duplicate tool call id %q", i, m.ToolCall.ID)
			}
			issued[m.ToolCall.ID] = true
		case RoleTool:
			if !issued[m.ToolCallID] {
				return fmt.Errorf("message %d: %w: %q", i, ErrUnmatchedToolResult, m.ToolCallID)
			}
			if answered[m.ToolCallID] {
				return fmt.Errorf("message %d: tool call %q answered twice", i, m.ToolCallID)
			}
			answered[m.ToolCallID] = true
		default:
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	return nil
}
