// Package budget estimates prompt sizes in tokens. Because the answerer
// supports several LLM backends with different tokenizers, it uses a
// conservative character heuristic: 1 token ≈ 4 characters.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// perMessageOverhead approximates the role and framing tokens most chat
	// APIs add to each message.
	perMessageOverhead = 4

	// DefaultMaxPromptTokens is the prompt size above which a warning is
	// logged. Three 1000-character segments plus instructions stay far below.
	DefaultMaxPromptTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += perMessageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// Check estimates the token count of msgs and reports whether it exceeds
// limit. A non-positive limit disables the check.
func Check(msgs []*schema.Message, limit int) (tokens int, over bool) {
	tokens = EstimateMessages(msgs)
	return tokens, limit > 0 && tokens > limit
}
