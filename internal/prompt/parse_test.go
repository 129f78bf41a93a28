package prompt

import (
	"errors"
	"testing"

	"medrun/internal/provider"
)

func TestExtractJSONFromFence(t *testing.T) {
	text := "Here is the plan:\n```json\n{\"tasks\": []}\n```\nDone."
	if got := ExtractJSON(text); got != `{"tasks": []}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONFromProse(t *testing.T) {
	text := `Sure! The answer is {"done": true, "reason": "all set"} as requested.`
	if got := ExtractJSON(text); got != `{"done": true, "reason": "all set"}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONNestedBraces(t *testing.T) {
	text := `{"actions": [{"tool": "x", "args": {"q": "a {b} c"}}]}`
	if got := ExtractJSON(text); got != text {
		t.Errorf("got %q", got)
	}
}

func TestParsePlan(t *testing.T) {
	plan, err := ParsePlan(`{"tasks": [{"description": "find conditions", "suggested_tools": ["search_conditions"]}]}`)
	if err != nil {
		t.Fatalf("ParsePlan failed: %v", err)
	}
	if len(plan.Tasks) != 1 || plan.Tasks[0].Description != "find conditions" {
		t.Errorf("unexpected plan: %+v", plan)
	}
}

func TestParsePlanBareList(t *testing.T) {
	plan, err := ParsePlan(`[{"description": "task one"}, {"description": "task two"}]`)
	if err != nil {
		t.Fatalf("ParsePlan failed: %v", err)
	}
	if len(plan.Tasks) != 2 {
		t.Errorf("expected 2 tasks, got %d", len(plan.Tasks))
	}
}

func TestParsePlanMalformed(t *testing.T) {
	_, err := ParsePlan("I cannot answer that.")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestParseActionsNative(t *testing.T) {
	resp := &provider.ChatResponse{
		ToolCalls: []provider.ToolCall{
			{Name: "get_patient_info", Arguments: `{"patient_id": "p-1"}`},
		},
	}

	actions, err := ParseActions(resp, StrategyNative)
	if err != nil {
		t.Fatalf("ParseActions failed: %v", err)
	}
	if len(actions) != 1 || actions[0].Tool != "get_patient_info" {
		t.Fatalf("unexpected actions: %+v", actions)
	}
	if actions[0].Args["patient_id"] != "p-1" {
		t.Error("arguments not decoded")
	}
}

func TestParseActionsPromptedJSON(t *testing.T) {
	resp := &provider.ChatResponse{
		Content: "```json\n{\"actions\": [{\"tool\": \"search_conditions\", \"args\": {\"patient_id\": \"p-2\"}}]}\n```",
	}

	actions, err := ParseActions(resp, StrategyPromptedJSON)
	if err != nil {
		t.Fatalf("ParseActions failed: %v", err)
	}
	if len(actions) != 1 || actions[0].Tool != "search_conditions" {
		t.Fatalf("unexpected actions: %+v", actions)
	}
}

func TestParseActionsNativeModelAnsweredInText(t *testing.T) {
	// Native models sometimes skip tool calls and answer in text anyway.
	resp := &provider.ChatResponse{
		Content: `{"actions": [{"tool": "get_medications", "args": {}}]}`,
	}

	actions, err := ParseActions(resp, StrategyNative)
	if err != nil {
		t.Fatalf("ParseActions failed: %v", err)
	}
	if len(actions) != 1 || actions[0].Tool != "get_medications" {
		t.Fatalf("unexpected actions: %+v", actions)
	}
}

func TestParseActionsEmptyList(t *testing.T) {
	resp := &provider.ChatResponse{Content: `{"actions": []}`}
	actions, err := ParseActions(resp, StrategyPromptedJSON)
	if err != nil {
		t.Fatalf("ParseActions failed: %v", err)
	}
	if len(actions) != 0 {
		t.Errorf("expected no actions, got %+v", actions)
	}
}

func TestParseActionsDropsNamelessEntries(t *testing.T) {
	resp := &provider.ChatResponse{Content: `{"actions": [{"tool": "", "args": {}}, {"tool": "ok", "args": {}}]}`}
	actions, err := ParseActions(resp, StrategyPromptedJSON)
	if err != nil {
		t.Fatalf("ParseActions failed: %v", err)
	}
	if len(actions) != 1 || actions[0].Tool != "ok" {
		t.Errorf("unexpected actions: %+v", actions)
	}
}

func TestParseValidation(t *testing.T) {
	v, err := ParseValidation(`{"done": true, "data_complete": true, "reason": "answered"}`)
	if err != nil {
		t.Fatalf("ParseValidation failed: %v", err)
	}
	if !v.Done || !v.DataComplete {
		t.Errorf("unexpected verdict: %+v", v)
	}
}

func TestParseArgs(t *testing.T) {
	args, err := ParseArgs("The corrected arguments:\n```json\n{\"patient_id\": \"p-1\", \"limit\": 10}\n```")
	if err != nil {
		t.Fatalf("ParseArgs failed: %v", err)
	}
	if args["patient_id"] != "p-1" {
		t.Errorf("unexpected args: %v", args)
	}
}

func TestCapabilityLookup(t *testing.T) {
	caps := NewCapabilities(nil)

	tests := []struct {
		model string
		want  ToolStrategy
	}{
		{"gpt-oss:20b", StrategyNative},
		{"qwen3-vl:8b", StrategyPromptedJSON},
		{"llama3.2", StrategyNative},
		{"totally-unknown-model", StrategyPromptedJSON},
	}

	for _, tt := range tests {
		if got := caps.Lookup(tt.model); got.Tools != tt.want {
			t.Errorf("Lookup(%s).Tools = %s, want %s", tt.model, got.Tools, tt.want)
		}
	}
}

func TestCapabilityOverrides(t *testing.T) {
	caps := NewCapabilities(map[string]Capability{
		"qwen3-vl": {Tools: StrategyNative, OptimizeArgs: true},
	})

	if got := caps.Lookup("qwen3-vl:8b"); got.Tools != StrategyNative {
		t.Errorf("override not applied: %+v", got)
	}
}
