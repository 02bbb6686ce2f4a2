package agent

import "unicode/utf8"

// TokenCounter estimates token counts without calling the API.
// It is only used to keep the conversation history within a budget, so a
// character-based estimate is accurate enough.
type TokenCounter struct {
	maxTokens int
}

// NewTokenCounter creates a counter for a budget of maxTokens.
func NewTokenCounter(maxTokens int) *TokenCounter {
	return &TokenCounter{maxTokens: maxTokens}
}

// MaxTokens returns the budget.
func (c *TokenCounter) MaxTokens() int {
	return c.maxTokens
}

// EstimateTextTokens estimates tokens at roughly four characters per token,
// plus a small per-message overhead for role framing.
func (c *TokenCounter) EstimateTextTokens(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text)
	return (n+3)/4 + 4
}

// TrimHistory drops the oldest turns until the rest fits the budget. The
// newest turn is always kept, even if it alone is over budget. A budget of
// zero or less keeps everything.
func (c *TokenCounter) TrimHistory(turns []Turn) []Turn {
	if c.maxTokens <= 0 || len(turns) == 0 {
		return turns
	}

	total := 0
	start := len(turns)
	for i := len(turns) - 1; i >= 0; i-- {
		cost := c.EstimateTextTokens(turns[i].Text)
		if total+cost > c.maxTokens && i < len(turns)-1 {
			break
		}
		total += cost
		start = i
	}
	return turns[start:]
}
