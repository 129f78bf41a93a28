package agent

import "time"

// Defaults for the safety bounds. Every bound has a hard default so a
// zero-configured orchestrator still terminates.
const (
	DefaultMaxSteps             = 24
	DefaultMaxStepsPerTask      = 8
	DefaultMaxConsecutiveErrors = 3
	DefaultTaskTimeout          = 5 * time.Minute
	DefaultDiscoveryLimit       = 1
	DefaultMaxActionsPerCall    = 3
)

// Config holds the orchestrator's model selection and safety bounds.
type Config struct {
	// Model is the oracle model driving the session.
	Model string

	// Temperature is passed through on every oracle call.
	Temperature float64

	// MaxSteps caps tool executions across the whole session.
	MaxSteps int

	// MaxStepsPerTask caps tool executions within one task.
	MaxStepsPerTask int

	// MaxConsecutiveErrors fails a task after this many tool errors in a
	// row with no success in between.
	MaxConsecutiveErrors int

	// TaskTimeout bounds the wall-clock time of one task.
	TaskTimeout time.Duration

	// DiscoveryLimit caps structure-discovery cycles per task.
	DiscoveryLimit int

	// MaxActionsPerCall caps how many tool calls one oracle response may
	// request.
	MaxActionsPerCall int
}

// withDefaults fills unset bounds. A negative DiscoveryLimit disables
// discovery; zero means the default single cycle.
func (c Config) withDefaults() Config {
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.MaxStepsPerTask <= 0 {
		c.MaxStepsPerTask = DefaultMaxStepsPerTask
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = DefaultTaskTimeout
	}
	if c.DiscoveryLimit == 0 {
		c.DiscoveryLimit = DefaultDiscoveryLimit
	}
	if c.DiscoveryLimit < 0 {
		c.DiscoveryLimit = 0
	}
	if c.MaxActionsPerCall <= 0 {
		c.MaxActionsPerCall = DefaultMaxActionsPerCall
	}
	return c
}
