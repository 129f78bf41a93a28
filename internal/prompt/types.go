// Package prompt builds the oracle prompts for each orchestration phase
// and decodes the oracle's structured replies back into typed decisions.
// Decoding is capability-polymorphic: models with native tool binding
// return tool calls, the rest return JSON in text, and both normalize to
// the same types.
package prompt

// PlannedTask is one task produced by the planning phase.
type PlannedTask struct {
	Description    string   `json:"description"`
	SuggestedTools []string `json:"suggested_tools,omitempty"`
}

// Plan is the ordered task list for a query.
type Plan struct {
	Tasks []PlannedTask `json:"tasks"`
}

// Action is one tool invocation the oracle selected.
type Action struct {
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
	Rationale string         `json:"rationale,omitempty"`
}

// Validation is the oracle's verdict on whether a task is complete.
type Validation struct {
	Done   bool   `json:"done"`
	Reason string `json:"reason,omitempty"`

	// DataComplete is false when the gathered data looks structurally
	// wrong or empty, which triggers a discovery cycle rather than
	// more of the same calls.
	DataComplete bool `json:"data_complete"`
}

// GoalCheck is the oracle's session-level verdict used before synthesis.
type GoalCheck struct {
	Achieved bool   `json:"achieved"`
	Missing  string `json:"missing,omitempty"`
}
