package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"medrun/pkg/logger"
)

// AuditLog records session activity without blocking the orchestration
// loop: writes go through a buffered worker and drop with a warning when
// the buffer is full.
type AuditLog struct {
	db     *DB
	writes chan func()
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

// NewAuditLog starts the audit writer.
func NewAuditLog(db *DB) *AuditLog {
	a := &AuditLog{
		db:     db,
		writes: make(chan func(), 256),
		done:   make(chan struct{}),
		logger: logger.Component("audit"),
	}
	go a.loop()
	return a
}

func (a *AuditLog) loop() {
	defer close(a.done)
	for write := range a.writes {
		write()
	}
}

// Close drains pending writes and stops the worker.
func (a *AuditLog) Close() {
	a.once.Do(func() {
		close(a.writes)
		select {
		case <-a.done:
		case <-time.After(5 * time.Second):
			a.logger.Warn().Msg("audit writer did not drain in time")
		}
	})
}

func (a *AuditLog) enqueue(write func()) {
	select {
	case a.writes <- write:
	default:
		a.logger.Warn().Msg("audit buffer full, dropping record")
	}
}

// RecordQuery stores the session's query.
func (a *AuditLog) RecordQuery(sessionID, query string) {
	a.enqueue(func() {
		if _, err := a.db.Exec(
			"INSERT OR IGNORE INTO queries (session_id, query) VALUES (?, ?)",
			sessionID, query,
		); err != nil {
			a.logger.Error().Err(err).Msg("record query failed")
		}
	})
}

// RecordTaskTransition stores a task's final status.
func (a *AuditLog) RecordTaskTransition(sessionID, taskID, description, status, reason string) {
	a.enqueue(func() {
		if _, err := a.db.Exec(
			"INSERT INTO task_transitions (session_id, task_id, description, status, reason) VALUES (?, ?, ?, ?, ?)",
			sessionID, taskID, description, status, reason,
		); err != nil {
			a.logger.Error().Err(err).Msg("record task transition failed")
		}
	})
}

// RecordToolCall stores one dispatched tool call.
func (a *AuditLog) RecordToolCall(sessionID, taskID, tool, args string, isError bool, durationMs int64) {
	a.enqueue(func() {
		if _, err := a.db.Exec(
			"INSERT INTO tool_calls (session_id, task_id, tool, args, is_error, duration_ms) VALUES (?, ?, ?, ?, ?, ?)",
			sessionID, taskID, tool, args, boolToInt(isError), durationMs,
		); err != nil {
			a.logger.Error().Err(err).Msg("record tool call failed")
		}
	})
}

// QueryRecord is one persisted session query.
type QueryRecord struct {
	SessionID string
	Query     string
	CreatedAt time.Time
}

// RecentQueries returns the newest persisted queries, newest first.
func (a *AuditLog) RecentQueries(limit int) ([]QueryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.Query(
		"SELECT session_id, query, created_at FROM queries ORDER BY created_at DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueryRecord
	for rows.Next() {
		var r QueryRecord
		if err := rows.Scan(&r.SessionID, &r.Query, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ToolCallCount returns how many tool calls a session made.
func (a *AuditLog) ToolCallCount(sessionID string) (int, error) {
	var n int
	err := a.db.QueryRow("SELECT COUNT(*) FROM tool_calls WHERE session_id = ?", sessionID).Scan(&n)
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
