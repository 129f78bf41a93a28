package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"medrun/internal/provider"
)

// ErrMalformedResponse is returned when the oracle's reply cannot be
// decoded into the expected structure. It is never retried: re-sending
// the same prompt is how malformed output becomes a loop.
var ErrMalformedResponse = errors.New("malformed oracle response")

// MalformedResponseError carries the phase and raw text for diagnostics.
type MalformedResponseError struct {
	Phase string
	Raw   string
	Cause error
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed oracle response in %s phase: %v", e.Phase, e.Cause)
}

// Is allows errors.Is to match against ErrMalformedResponse.
func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// Unwrap returns the underlying cause.
func (e *MalformedResponseError) Unwrap() error {
	return e.Cause
}

func malformed(phase, raw string, cause error) error {
	return &MalformedResponseError{Phase: phase, Raw: raw, Cause: cause}
}

// ExtractJSON pulls the first JSON value out of a model reply. Models
// wrap JSON in prose and markdown fences no matter how firmly the prompt
// forbids it, so both are stripped here.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)

	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		rest = strings.TrimPrefix(rest, "\n")
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}

	start := -1
	for i, c := range text {
		if c == '{' || c == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return text
	}

	open := rune(text[start])
	close := '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := rune(text[i])
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == open:
			depth++
		case !inString && c == close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text[start:]
}

// ParsePlan decodes the planning response.
func ParsePlan(content string) (*Plan, error) {
	raw := ExtractJSON(content)

	var plan Plan
	if err := json.Unmarshal([]byte(raw), &plan); err == nil && len(plan.Tasks) > 0 {
		return &plan, nil
	}

	// Some models emit the task list bare.
	var tasks []PlannedTask
	if err := json.Unmarshal([]byte(raw), &tasks); err == nil && len(tasks) > 0 {
		return &Plan{Tasks: tasks}, nil
	}

	return nil, malformed("planning", content, errors.New("no tasks decoded"))
}

// ParseActions decodes an action-selection response according to the
// model's tool strategy. Native tool calls and prompted JSON both
// normalize to []Action.
func ParseActions(resp *provider.ChatResponse, strategy ToolStrategy) ([]Action, error) {
	if strategy == StrategyNative && len(resp.ToolCalls) > 0 {
		actions := make([]Action, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			args := make(map[string]any)
			if tc.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
					return nil, malformed("action", tc.Arguments, err)
				}
			}
			actions = append(actions, Action{Tool: tc.Name, Args: args})
		}
		return actions, nil
	}

	// Prompted JSON, or a native model that answered in text anyway.
	raw := ExtractJSON(resp.Content)

	var wrapper struct {
		Actions []Action `json:"actions"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapper); err == nil {
		return normalizeActions(wrapper.Actions), nil
	}

	var list []Action
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return normalizeActions(list), nil
	}

	var single Action
	if err := json.Unmarshal([]byte(raw), &single); err == nil && single.Tool != "" {
		return normalizeActions([]Action{single}), nil
	}

	return nil, malformed("action", resp.Content, errors.New("no actions decoded"))
}

func normalizeActions(actions []Action) []Action {
	out := actions[:0]
	for _, a := range actions {
		if a.Tool == "" {
			continue
		}
		if a.Args == nil {
			a.Args = make(map[string]any)
		}
		out = append(out, a)
	}
	return out
}

// ParseValidation decodes the task completion verdict.
func ParseValidation(content string) (*Validation, error) {
	raw := ExtractJSON(content)

	var v Validation
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, malformed("validation", content, err)
	}
	return &v, nil
}

// ParseGoalCheck decodes the session-level sufficiency verdict.
func ParseGoalCheck(content string) (*GoalCheck, error) {
	raw := ExtractJSON(content)

	var g GoalCheck
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, malformed("goal_check", content, err)
	}
	return &g, nil
}

// ParseArgs decodes a refined arguments object from the optimizer.
func ParseArgs(content string) (map[string]any, error) {
	raw := ExtractJSON(content)

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, malformed("optimize_args", content, err)
	}
	return args, nil
}
