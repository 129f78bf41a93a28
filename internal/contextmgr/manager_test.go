package contextmgr

import (
	"strings"
	"testing"
)

func TestManagerRecordAndHistory(t *testing.T) {
	m := NewManager(Config{MaxContextTokens: 10000, OutputTokens: 1000})

	m.Record("task-1", "get_patient_info", 1, "patient data here")
	m.Record("task-2", "search_conditions", 2, "condition list here")

	h := m.History()
	if !strings.Contains(h, "task-1") || !strings.Contains(h, "task-2") {
		t.Fatalf("history missing task labels: %q", h)
	}
	if !strings.Contains(h, "get_patient_info") {
		t.Error("history missing tool name")
	}
}

func TestManagerEvictsOldestFirst(t *testing.T) {
	// Budget of 100 tokens = 350 chars; each entry is ~200 chars.
	m := NewManager(Config{MaxContextTokens: 100, OutputTokens: 1000})

	m.Record("task-1", "first", 1, strings.Repeat("a", 200))
	m.Record("task-1", "second", 2, strings.Repeat("b", 200))
	m.Record("task-1", "third", 3, strings.Repeat("c", 200))

	entries := m.Entries()
	if len(entries) == 0 {
		t.Fatal("all entries evicted")
	}
	// Newest entry always survives; the oldest must be gone.
	if entries[len(entries)-1].Tool != "third" {
		t.Errorf("newest entry missing, last is %s", entries[len(entries)-1].Tool)
	}
	for _, e := range entries {
		if e.Tool == "first" {
			t.Error("oldest entry should have been evicted first")
		}
	}
	if m.EvictedCount() == 0 {
		t.Error("expected evictions to be counted")
	}
}

func TestManagerEvictionOrderIsInsertionOrder(t *testing.T) {
	m := NewManager(Config{MaxContextTokens: 200, OutputTokens: 1000})

	for i := 0; i < 10; i++ {
		m.Record("t", string(rune('a'+i)), i, strings.Repeat("x", 150))
	}

	entries := m.Entries()
	// Remaining entries must be a contiguous suffix of the insertion order.
	for i := 1; i < len(entries); i++ {
		if entries[i].Step != entries[i-1].Step+1 {
			t.Fatalf("entries out of order: %v then %v", entries[i-1].Step, entries[i].Step)
		}
	}
}

func TestManagerUtilization(t *testing.T) {
	m := NewManager(Config{MaxContextTokens: 100, OutputTokens: 1000})
	if m.UnderPressure() {
		t.Error("empty manager should not be under pressure")
	}

	m.Record("t", "tool", 1, strings.Repeat("x", 300)) // ~85 tokens
	if u := m.Utilization(); u <= WarnUtilization {
		t.Errorf("expected utilization above threshold, got %f", u)
	}
	if !m.UnderPressure() {
		t.Error("expected pressure after large record")
	}
}

func TestManagerHistoryNotesEvictions(t *testing.T) {
	m := NewManager(Config{MaxContextTokens: 100, OutputTokens: 1000})
	m.Record("t", "a", 1, strings.Repeat("x", 300))
	m.Record("t", "b", 2, strings.Repeat("y", 300))

	if !strings.Contains(m.History(), "evicted") {
		t.Error("history should note evicted outputs")
	}
}
