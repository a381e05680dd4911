// File: internal/transcript/sanitize.go
package transcript

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// PageStatePlaceholder replaces every page snapshot but the latest in the
// view sent to the oracle.
const PageStatePlaceholder = "[page content omitted; only the most recent page state is shown]"

// Sanitized returns a copy of t in which only the most recent message that
// carries page state keeps it. Older snapshots become PageStatePlaceholder.
// t itself is not modified.
func (t Transcript) Sanitized() Transcript {
	latest := -1
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].PageState != "" {
			latest = i
			break
		}
	}

	out := make(Transcript, len(t))
	copy(out, t)
	for i := range out {
		if i != latest && out[i].PageState != "" {
			out[i].PageState = PageStatePlaceholder
		}
	}
	return out
}

// TokenCounter estimates the prompt size of a transcript. The cl100k_base
// encoding is loaded on first use; if it cannot be loaded the counter falls
// back to four characters per token.
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// Count returns the estimated number of tokens in t, including a small
// per-message overhead for role framing.
func (c *TokenCounter) Count(t Transcript) int {
	c.once.Do(func() {
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			c.enc = enc
		}
	})

	total := 0
	for _, m := range t {
		text := m.Text()
		if c.enc != nil {
			total += len(c.enc.Encode(text, nil, nil))
		} else {
			total += (len(text) + 3) / 4
		}
		total += 4
	}
	return total
}
