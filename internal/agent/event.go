package agent

import (
	"encoding/json"
	"time"
)

// EventType identifies what an Event describes.
type EventType int

// Event types emitted over a session's event stream.
const (
	EventTaskStart EventType = iota
	EventToolExecution
	EventTaskComplete
	EventAnswer
	EventError
	EventWarning
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	switch t {
	case EventTaskStart:
		return "task_start"
	case EventToolExecution:
		return "tool_execution"
	case EventTaskComplete:
		return "task_complete"
	case EventAnswer:
		return "answer"
	case EventError:
		return "error"
	case EventWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// Event is one observable step of a running session. Consumers receive
// events in the order they happened; the answer event is always last.
type Event struct {
	Type      EventType
	SessionID string
	Timestamp time.Time

	// Task fields, set for task_start, tool_execution and task_complete.
	TaskID          string
	TaskDescription string
	TaskStatus      TaskStatus
	Reason          string

	// Tool fields, set for tool_execution.
	Tool       string
	Args       map[string]any
	Output     string
	IsError    bool
	DurationMs int64

	// Answer holds the final synthesized answer.
	Answer string

	// Message holds error and warning text.
	Message string
}

// MarshalJSON renders the event with a string type tag and without the
// zero-valued fields that do not apply to its type.
func (e Event) MarshalJSON() ([]byte, error) {
	type wireEvent struct {
		Type            string         `json:"type"`
		SessionID       string         `json:"session_id"`
		Timestamp       time.Time      `json:"timestamp"`
		TaskID          string         `json:"task_id,omitempty"`
		TaskDescription string         `json:"task_description,omitempty"`
		TaskStatus      string         `json:"task_status,omitempty"`
		Reason          string         `json:"reason,omitempty"`
		Tool            string         `json:"tool,omitempty"`
		Args            map[string]any `json:"args,omitempty"`
		Output          string         `json:"output,omitempty"`
		IsError         bool           `json:"is_error,omitempty"`
		DurationMs      int64          `json:"duration_ms,omitempty"`
		Answer          string         `json:"answer,omitempty"`
		Message         string         `json:"message,omitempty"`
	}
	return json.Marshal(wireEvent{
		Type:            e.Type.String(),
		SessionID:       e.SessionID,
		Timestamp:       e.Timestamp,
		TaskID:          e.TaskID,
		TaskDescription: e.TaskDescription,
		TaskStatus:      string(e.TaskStatus),
		Reason:          e.Reason,
		Tool:            e.Tool,
		Args:            e.Args,
		Output:          e.Output,
		IsError:         e.IsError,
		DurationMs:      e.DurationMs,
		Answer:          e.Answer,
		Message:         e.Message,
	})
}

func newTaskStartEvent(sessionID string, t *Task) Event {
	return Event{
		Type:            EventTaskStart,
		SessionID:       sessionID,
		Timestamp:       time.Now(),
		TaskID:          t.ID,
		TaskDescription: t.Description,
	}
}

func newToolExecutionEvent(sessionID, taskID, tool string, args map[string]any, output string, isError bool, elapsed time.Duration) Event {
	return Event{
		Type:       EventToolExecution,
		SessionID:  sessionID,
		Timestamp:  time.Now(),
		TaskID:     taskID,
		Tool:       tool,
		Args:       args,
		Output:     output,
		IsError:    isError,
		DurationMs: elapsed.Milliseconds(),
	}
}

func newTaskCompleteEvent(sessionID string, t *Task) Event {
	return Event{
		Type:            EventTaskComplete,
		SessionID:       sessionID,
		Timestamp:       time.Now(),
		TaskID:          t.ID,
		TaskDescription: t.Description,
		TaskStatus:      t.Status,
		Reason:          t.FailureReason,
	}
}

func newAnswerEvent(sessionID, answer string) Event {
	return Event{
		Type:      EventAnswer,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Answer:    answer,
	}
}

func newErrorEvent(sessionID, taskID, message string) Event {
	return Event{
		Type:      EventError,
		SessionID: sessionID,
		Timestamp: time.Now(),
		TaskID:    taskID,
		Message:   message,
	}
}

func newWarningEvent(sessionID, message string) Event {
	return Event{
		Type:      EventWarning,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Message:   message,
	}
}
