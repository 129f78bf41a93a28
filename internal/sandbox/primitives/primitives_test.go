package primitives

import (
	"testing"
)

func resources() []map[string]any {
	return []map[string]any{
		{"id": "o1", "code": map[string]any{"text": "Hemoglobin"}, "valueQuantity": map[string]any{"value": 11.2}},
		{"id": "o2", "code": map[string]any{"text": "Hemoglobin"}, "valueQuantity": map[string]any{"value": 13.8}},
		{"id": "o3", "code": map[string]any{"text": "Creatinine"}, "valueQuantity": map[string]any{"value": 1.4}},
		{"id": "o4", "code": map[string]any{"text": "Glucose"}},
	}
}

func TestFilterByText(t *testing.T) {
	got := FilterByText(resources(), "code.text", "hemo")
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0]["id"] != "o1" {
		t.Errorf("unexpected first match %v", got[0]["id"])
	}
}

func TestFilterByValue(t *testing.T) {
	tests := []struct {
		op    string
		value float64
		want  int
	}{
		{"gt", 12, 1},
		{"gte", 11.2, 2},
		{"lt", 2, 1},
		{"eq", 1.4, 1},
		{"ne", 1.4, 2},
		{"bogus", 0, 0},
	}

	for _, tt := range tests {
		got := FilterByValue(resources(), "valueQuantity.value", tt.op, tt.value)
		if len(got) != tt.want {
			t.Errorf("op %s %v: expected %d matches, got %d", tt.op, tt.value, tt.want, len(got))
		}
	}
}

func TestCountByField(t *testing.T) {
	counts := CountByField(resources(), "code.text")
	if counts["Hemoglobin"] != 2 || counts["Creatinine"] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestGroupByField(t *testing.T) {
	groups := GroupByField(resources(), "code.text")
	if len(groups["Hemoglobin"]) != 2 {
		t.Errorf("expected 2 hemoglobin resources, got %d", len(groups["Hemoglobin"]))
	}
}

func TestAggregateNumeric(t *testing.T) {
	rs := resources()

	if got := AggregateNumeric(rs, "valueQuantity.value", "count"); got != 3 {
		t.Errorf("count = %v", got)
	}
	if got := AggregateNumeric(rs, "valueQuantity.value", "max"); got != 13.8 {
		t.Errorf("max = %v", got)
	}
	if got := AggregateNumeric(rs, "valueQuantity.value", "min"); got != 1.4 {
		t.Errorf("min = %v", got)
	}
	mean := AggregateNumeric(rs, "valueQuantity.value", "mean")
	if mean < 8.7 || mean > 8.9 {
		t.Errorf("mean = %v", mean)
	}
	// Missing path aggregates to zero, not an error.
	if got := AggregateNumeric(rs, "no.such.path", "sum"); got != 0 {
		t.Errorf("sum over missing path = %v", got)
	}
}

func TestLookupPathThroughArrays(t *testing.T) {
	r := map[string]any{
		"name": []any{
			map[string]any{"family": "Okafor"},
		},
	}
	v, ok := lookupPath(r, "name.family")
	if !ok || v != "Okafor" {
		t.Errorf("lookup through array failed: %v %v", v, ok)
	}
}
