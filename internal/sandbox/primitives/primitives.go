// Package primitives defines the fixed set of data-access and aggregation
// functions injected into the sandbox. Agent-authored code composes these;
// it gets nothing else.
package primitives

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"medrun/internal/recordstore"
)

// Set is the named primitive namespace handed to the executor.
type Set map[string]any

// Build constructs the primitive set over a record store. Log messages
// from the code go to sink alongside the executor's captured logs.
func Build(store *recordstore.Store, sink func(string)) Set {
	return Set{
		"get_patients": func(limit int) []string {
			ids, err := store.ListPatientIDs(limit)
			if err != nil {
				return nil
			}
			return ids
		},
		"load_patient": func(patientID string) (map[string]any, error) {
			return store.LoadRecord(patientID)
		},
		"search_resources": func(bundle map[string]any, resourceType string) []map[string]any {
			return recordstore.Search(bundle, resourceType)
		},
		"get_conditions": func(bundle map[string]any) []map[string]any {
			return recordstore.Search(bundle, "Condition")
		},
		"get_observations": func(bundle map[string]any) []map[string]any {
			return recordstore.Search(bundle, "Observation")
		},
		"get_medications": func(bundle map[string]any) []map[string]any {
			return recordstore.Search(bundle, "MedicationRequest")
		},
		"filter_by_text":    FilterByText,
		"filter_by_value":   FilterByValue,
		"count_by_field":    CountByField,
		"group_by_field":    GroupByField,
		"aggregate_numeric": AggregateNumeric,
		"log_progress": func(msg string) {
			if sink != nil {
				sink(msg)
			}
		},
	}
}

// Names returns the primitive names, sorted, for inclusion in prompts.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FilterByText keeps resources whose value at a dotted path contains the
// substring, case-insensitively.
func FilterByText(resources []map[string]any, path, substr string) []map[string]any {
	needle := strings.ToLower(substr)
	var out []map[string]any
	for _, r := range resources {
		v, ok := lookupPath(r, path)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			out = append(out, r)
		}
	}
	return out
}

// FilterByValue keeps resources whose numeric value at a dotted path
// satisfies the comparison. Supported ops: eq, ne, gt, gte, lt, lte.
func FilterByValue(resources []map[string]any, path, op string, value float64) []map[string]any {
	var out []map[string]any
	for _, r := range resources {
		v, ok := lookupPath(r, path)
		if !ok {
			continue
		}
		n, ok := toFloat(v)
		if !ok {
			continue
		}
		if compare(n, op, value) {
			out = append(out, r)
		}
	}
	return out
}

// CountByField counts resources by their value at a dotted path.
func CountByField(resources []map[string]any, path string) map[string]int {
	counts := make(map[string]int)
	for _, r := range resources {
		v, ok := lookupPath(r, path)
		if !ok {
			continue
		}
		counts[fmt.Sprintf("%v", v)]++
	}
	return counts
}

// GroupByField groups resources by their value at a dotted path.
func GroupByField(resources []map[string]any, path string) map[string][]map[string]any {
	groups := make(map[string][]map[string]any)
	for _, r := range resources {
		v, ok := lookupPath(r, path)
		if !ok {
			continue
		}
		key := fmt.Sprintf("%v", v)
		groups[key] = append(groups[key], r)
	}
	return groups
}

// AggregateNumeric reduces the numeric values at a dotted path.
// Supported ops: sum, mean, min, max, count.
func AggregateNumeric(resources []map[string]any, path, op string) float64 {
	var values []float64
	for _, r := range resources {
		v, ok := lookupPath(r, path)
		if !ok {
			continue
		}
		if n, ok := toFloat(v); ok {
			values = append(values, n)
		}
	}

	if len(values) == 0 {
		return 0
	}

	switch op {
	case "count":
		return float64(len(values))
	case "sum", "mean":
		sum := 0.0
		for _, n := range values {
			sum += n
		}
		if op == "mean" {
			return sum / float64(len(values))
		}
		return sum
	case "min":
		min := math.Inf(1)
		for _, n := range values {
			if n < min {
				min = n
			}
		}
		return min
	case "max":
		max := math.Inf(-1)
		for _, n := range values {
			if n > max {
				max = n
			}
		}
		return max
	default:
		return 0
	}
}

// lookupPath resolves a dotted path like "code.text" inside a nested map.
// Slices resolve through their first element, matching how single-valued
// FHIR fields are usually wrapped in arrays.
func lookupPath(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		if arr, ok := cur.([]any); ok {
			if len(arr) == 0 {
				return nil, false
			}
			cur = arr[0]
		}
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func compare(a float64, op string, b float64) bool {
	switch op {
	case "eq":
		return a == b
	case "ne":
		return a != b
	case "gt":
		return a > b
	case "gte":
		return a >= b
	case "lt":
		return a < b
	case "lte":
		return a <= b
	default:
		return false
	}
}
