// Package agent implements the orchestration loop: plan a query into
// tasks, drive each task through act/validate cycles under safety bounds,
// and synthesize a final answer. All reasoning is delegated to the oracle;
// this package only enforces structure and bounds.
package agent

import (
	"errors"
	"fmt"
)

// Sentinel errors for the agent package.
var (
	// ErrPlanning is returned when the planning phase produces no usable
	// task list. The session falls back to a single task, it does not die.
	ErrPlanning = errors.New("planning failed")

	// ErrAction is returned when an action-selection response cannot be
	// decoded into tool invocations.
	ErrAction = errors.New("action selection failed")

	// ErrLoopDetected is returned when a task repeats tool calls without
	// progress.
	ErrLoopDetected = errors.New("loop detected")

	// ErrOrchestration is returned for failures of the loop itself rather
	// than of any task.
	ErrOrchestration = errors.New("orchestration failed")
)

// PlanningError wraps a planning phase failure.
type PlanningError struct {
	Cause error
}

// Error implements the error interface.
func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed: %v", e.Cause)
}

// Is allows errors.Is to match against ErrPlanning.
func (e *PlanningError) Is(target error) bool {
	return target == ErrPlanning
}

// Unwrap returns the underlying cause.
func (e *PlanningError) Unwrap() error {
	return e.Cause
}

// ActionError wraps an action-selection failure.
type ActionError struct {
	TaskID string
	Cause  error
}

// Error implements the error interface.
func (e *ActionError) Error() string {
	return fmt.Sprintf("action selection failed for task %s: %v", e.TaskID, e.Cause)
}

// Is allows errors.Is to match against ErrAction.
func (e *ActionError) Is(target error) bool {
	return target == ErrAction
}

// Unwrap returns the underlying cause.
func (e *ActionError) Unwrap() error {
	return e.Cause
}

// LoopDetectedError reports the repeating signature that failed a task.
type LoopDetectedError struct {
	TaskID    string
	Signature string
}

// Error implements the error interface.
func (e *LoopDetectedError) Error() string {
	return fmt.Sprintf("loop detected in task %s: repeating %s", e.TaskID, e.Signature)
}

// Is allows errors.Is to match against ErrLoopDetected.
func (e *LoopDetectedError) Is(target error) bool {
	return target == ErrLoopDetected
}

// Unwrap returns the underlying sentinel error.
func (e *LoopDetectedError) Unwrap() error {
	return ErrLoopDetected
}

// OrchestrationError wraps a failure of the loop itself.
type OrchestrationError struct {
	Phase string
	Cause error
}

// Error implements the error interface.
func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("orchestration failed in %s: %v", e.Phase, e.Cause)
}

// Is allows errors.Is to match against ErrOrchestration.
func (e *OrchestrationError) Is(target error) bool {
	return target == ErrOrchestration
}

// Unwrap returns the underlying cause.
func (e *OrchestrationError) Unwrap() error {
	return e.Cause
}
