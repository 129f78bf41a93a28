package agent

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Session tracks one query from planning to answer.
type Session struct {
	ID    string
	Query string
	Tasks []*Task

	// StepsUsed counts tool executions across all tasks.
	StepsUsed int

	Answer string

	warnedPressure bool
}

func newSession(query string) *Session {
	return &Session{
		ID:    uuid.NewString(),
		Query: query,
	}
}

// outcomes renders the per-task results for the synthesis prompt and for
// the deterministic fallback answer.
func (s *Session) outcomes() string {
	var b strings.Builder
	for i, t := range s.Tasks {
		fmt.Fprintf(&b, "%d. %s - %s", i+1, t.Description, t.Status)
		if t.Status == TaskFailed && t.FailureReason != "" {
			fmt.Fprintf(&b, " (%s)", t.FailureReason)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// failedTasks returns the tasks that did not complete.
func (s *Session) failedTasks() []*Task {
	var failed []*Task
	for _, t := range s.Tasks {
		if t.Status == TaskFailed {
			failed = append(failed, t)
		}
	}
	return failed
}

func (s *Session) completedCount() int {
	n := 0
	for _, t := range s.Tasks {
		if t.Status == TaskCompleted {
			n++
		}
	}
	return n
}
