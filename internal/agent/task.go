package agent

// TaskStatus describes where a task is in its lifecycle.
type TaskStatus string

// Task lifecycle states.
const (
	TaskPending   TaskStatus = "pending"
	TaskActive    TaskStatus = "active"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Failure reasons recorded on tasks that could not complete. These appear
// verbatim in events and in the synthesis caveats.
const (
	FailureLoopDetected      = "loop_detected"
	FailureConsecutiveErrors = "consecutive_errors"
	FailureTaskStepBudget    = "task_step_budget_exhausted"
	FailureSessionStepBudget = "session_step_budget_exhausted"
	FailureTimeout           = "task_timeout"
	FailureCancelled         = "cancelled"
)

// Task is a single unit of work produced by planning. A failed task never
// aborts the session; later tasks still run and synthesis reports the gap.
type Task struct {
	ID             string
	Description    string
	SuggestedTools []string
	Status         TaskStatus
	FailureReason  string

	// Steps counts tool executions charged to this task.
	Steps int

	// retryContext carries the last failure or validation verdict into the
	// next action-selection prompt so the oracle can adjust.
	retryContext string

	errorStreak   int
	discoveryUsed int
	loop          *LoopDetector
}

func newTask(id, description string, suggested []string) *Task {
	return &Task{
		ID:             id,
		Description:    description,
		SuggestedTools: suggested,
		Status:         TaskPending,
		loop:           NewLoopDetector(),
	}
}

func (t *Task) fail(reason string) {
	t.Status = TaskFailed
	t.FailureReason = reason
}
