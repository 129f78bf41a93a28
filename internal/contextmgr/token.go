// Package contextmgr keeps the accumulated tool outputs of a session
// within a fixed token budget. Outputs are formatted down to a per-output
// budget on the way in and evicted oldest-first when the total budget is
// exceeded.
package contextmgr

// charsPerToken is the fixed character-to-token ratio used everywhere.
// The estimate only needs to be consistent, not accurate: every budget in
// the system is expressed through the same ratio.
const charsPerToken = 3.5

// EstimateTokens estimates the token count of a text.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return int(float64(len(text)) / charsPerToken)
}

// TokenBudgetChars converts a token budget to a character budget.
func TokenBudgetChars(tokens int) int {
	return int(float64(tokens) * charsPerToken)
}
