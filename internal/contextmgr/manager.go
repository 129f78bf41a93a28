package contextmgr

import (
	"fmt"
	"strings"
	"sync"
)

// Default budgets.
const (
	DefaultMaxContextTokens = 24000
	DefaultOutputTokens     = 2000

	// WarnUtilization is the fraction of the budget above which the
	// manager reports pressure even though no output has been dropped.
	WarnUtilization = 0.8
)

// Entry is one recorded tool output.
type Entry struct {
	TaskID string
	Tool   string
	Step   int
	Output string
	Tokens int
}

// Config holds context manager configuration.
type Config struct {
	MaxContextTokens int `mapstructure:"max_context_tokens"`
	OutputTokens     int `mapstructure:"output_tokens"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxContextTokens: DefaultMaxContextTokens,
		OutputTokens:     DefaultOutputTokens,
	}
}

// Manager accumulates formatted tool outputs for a session and keeps their
// total within the token budget by evicting the oldest entries first.
// It is safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	cfg     Config
	entries []Entry
	total   int
	evicted int
}

// NewManager creates a Manager with the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = DefaultMaxContextTokens
	}
	if cfg.OutputTokens <= 0 {
		cfg.OutputTokens = DefaultOutputTokens
	}
	return &Manager{cfg: cfg}
}

// Record formats a tool output to the per-output budget and appends it,
// evicting oldest entries until the total fits the context budget.
// It returns the formatted output as stored.
func (m *Manager) Record(taskID, tool string, step int, output any) string {
	formatted := FormatOutput(output, m.cfg.OutputTokens)

	m.mu.Lock()
	defer m.mu.Unlock()

	e := Entry{
		TaskID: taskID,
		Tool:   tool,
		Step:   step,
		Output: formatted,
		Tokens: EstimateTokens(formatted),
	}
	m.entries = append(m.entries, e)
	m.total += e.Tokens

	for m.total > m.cfg.MaxContextTokens && len(m.entries) > 1 {
		m.total -= m.entries[0].Tokens
		m.entries = m.entries[1:]
		m.evicted++
	}

	return formatted
}

// Entries returns a copy of the retained entries in insertion order.
func (m *Manager) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// EvictedCount returns how many entries have been dropped so far.
func (m *Manager) EvictedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.evicted
}

// Utilization returns the fraction of the context budget in use.
func (m *Manager) Utilization() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return float64(m.total) / float64(m.cfg.MaxContextTokens)
}

// UnderPressure reports whether utilization has crossed the warn threshold.
func (m *Manager) UnderPressure() bool {
	return m.Utilization() > WarnUtilization
}

// History renders the retained outputs for inclusion in an oracle prompt.
// Entries from all tasks are visible; each is labeled with its task and
// tool so later tasks can reuse earlier results.
func (m *Manager) History() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 {
		return "(no tool outputs yet)"
	}

	var sb strings.Builder
	if m.evicted > 0 {
		fmt.Fprintf(&sb, "[%d earlier outputs evicted to stay within budget]\n", m.evicted)
	}
	for _, e := range m.entries {
		fmt.Fprintf(&sb, "--- task %s / step %d / %s ---\n%s\n", e.TaskID, e.Step, e.Tool, e.Output)
	}
	return sb.String()
}
