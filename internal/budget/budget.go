// Package budget estimates prompt sizes for the HR assistant. The assistant
// talks to several LLM backends with different tokenizers, so the estimate is
// a character heuristic: 1 token ≈ 4 characters of English prose. It is used
// to cap the policy excerpts placed in a grounded prompt and to trim agent
// conversation history.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead is the per-message framing cost most chat APIs add.
	messageOverhead = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// It fits 8k-context models while leaving room for the output.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
// Any non-empty string costs at least one token.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for msgs,
// summing role and content plus framing overhead for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// Fit returns how many leading blocks can be added to a prompt that already
// costs fixed tokens without exceeding maxTokens. Blocks are taken in order
// and the first one is always counted, so the result is at least 1 whenever
// blocks is non-empty.
func Fit(fixed int, blocks []string, maxTokens int) int {
	used := fixed
	for i, b := range blocks {
		cost := Estimate(b)
		if i > 0 && used+cost > maxTokens {
			return i
		}
		used += cost
	}
	return len(blocks)
}

// TrimHistory removes the oldest messages from history until the estimated
// token count of fixed + history fits within maxTokens. fixed holds messages
// that are never dropped (system prompt, current user message).
//
// If fixed alone exceeds the budget every history message is dropped; callers
// warn separately in that case.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if len(history) == 0 {
		return history
	}

	fixedTokens := EstimateMessages(fixed)
	for len(history) > 0 {
		if fixedTokens+EstimateMessages(history) <= maxTokens {
			break
		}
		history = history[1:]
	}
	return history
}
