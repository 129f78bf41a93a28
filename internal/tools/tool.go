// Package tools defines the Tool interface, the registry the oracle's
// action decisions are dispatched through, and argument validation.
package tools

import (
	"context"
	"encoding/json"
)

// Context keys for passing execution context to tools.
type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	taskIDKey    contextKey = "task_id"
)

// WithSessionID returns a new context with the session ID attached.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionIDFromContext retrieves the session ID from the context, if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok
}

// WithTaskID returns a new context with the task ID attached.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey, taskID)
}

// TaskIDFromContext retrieves the task ID from the context, if present.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(taskIDKey).(string)
	return id, ok
}

// Tool defines the interface that all tools must implement.
// A tool is a capability the oracle can select to act on the world.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	Description() string

	// Parameters returns the JSON Schema for the tool's input parameters.
	Parameters() map[string]any

	// Execute runs the tool with the given arguments and returns a result.
	// An empty Result is a legitimate outcome, not an error: a patient with
	// no recorded allergies is data, not a failure.
	Execute(ctx context.Context, args map[string]any) (Result, error)
}

// Result represents the result of a tool execution.
type Result struct {
	// Output is the raw output of the tool before context formatting.
	Output any `json:"output"`

	// IsError indicates the tool ran but reported a failure condition.
	IsError bool `json:"is_error"`

	// Metadata contains optional additional information about the execution.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewResult creates a successful tool result with the given output.
func NewResult(output any) Result {
	return Result{Output: output}
}

// NewErrorResult creates an error tool result with the given message.
func NewErrorResult(errMsg string) Result {
	return Result{Output: errMsg, IsError: true}
}

// Empty reports whether the result carries no usable data. The orchestrator
// uses this to trigger a discovery cycle, never to mark the task failed.
func (r Result) Empty() bool {
	switch v := r.Output.(type) {
	case nil:
		return true
	case string:
		return v == "" || v == "[]" || v == "{}" || v == "null"
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

// String returns a string representation of the Result.
func (r Result) String() string {
	var s string
	switch v := r.Output.(type) {
	case string:
		s = v
	default:
		if data, err := json.Marshal(r.Output); err == nil {
			s = string(data)
		}
	}
	if r.IsError {
		return "[error] " + s
	}
	return s
}

// BaseTool provides a convenient base implementation for tools.
// Embed this struct and implement Execute to create simple tools.
type BaseTool struct {
	ToolName        string
	ToolDescription string
	ToolParameters  map[string]any
}

// Name returns the tool name.
func (t *BaseTool) Name() string {
	return t.ToolName
}

// Description returns the tool description.
func (t *BaseTool) Description() string {
	return t.ToolDescription
}

// Parameters returns the tool parameters schema.
func (t *BaseTool) Parameters() map[string]any {
	if t.ToolParameters == nil {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return t.ToolParameters
}
