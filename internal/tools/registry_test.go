package tools

import (
	"context"
	"errors"
	"testing"
)

type echoTool struct {
	BaseTool
	lastArgs map[string]any
	fail     bool
}

func newEchoTool(name string) *echoTool {
	return &echoTool{
		BaseTool: BaseTool{
			ToolName:        name,
			ToolDescription: "echoes its arguments",
			ToolParameters: BuildSchema(struct {
				PatientID string `json:"patient_id" jsonschema:"description=Patient identifier,required"`
				Limit     int    `json:"limit" jsonschema:"description=Max results"`
			}{}),
		},
	}
}

func (t *echoTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	t.lastArgs = args
	if t.fail {
		return Result{}, errors.New("backend unavailable")
	}
	return NewResult(args), nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	tool := newEchoTool("echo")

	if err := r.Register(tool); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(newEchoTool("echo")); !errors.Is(err, ErrToolAlreadyExists) {
		t.Errorf("expected ErrToolAlreadyExists, got %v", err)
	}

	got, ok := r.Get("echo")
	if !ok || got.Name() != "echo" {
		t.Error("Get did not return the registered tool")
	}
	if !r.Has("echo") || r.Has("missing") {
		t.Error("Has gave wrong answers")
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Dispatch(context.Background(), "nope", nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}

	var nf *ToolNotFoundError
	if !errors.As(err, &nf) || nf.Name != "nope" {
		t.Errorf("expected typed ToolNotFoundError with name, got %v", err)
	}
}

func TestDispatchFiltersUndeclaredArgs(t *testing.T) {
	r := NewRegistry()
	tool := newEchoTool("echo")
	r.MustRegister(tool)

	_, err := r.Dispatch(context.Background(), "echo", map[string]any{
		"patient_id":   "p-1",
		"limit":        5,
		"made_up_flag": true,
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if _, present := tool.lastArgs["made_up_flag"]; present {
		t.Error("undeclared argument reached the tool")
	}
	if tool.lastArgs["patient_id"] != "p-1" {
		t.Error("declared argument was dropped")
	}
}

func TestDispatchWrapsToolFailure(t *testing.T) {
	r := NewRegistry()
	tool := newEchoTool("echo")
	tool.fail = true
	r.MustRegister(tool)

	_, err := r.Dispatch(context.Background(), "echo", map[string]any{"patient_id": "p-1"})
	if !errors.Is(err, ErrToolExecution) {
		t.Fatalf("expected ErrToolExecution, got %v", err)
	}
}

func TestEmptyResultIsNotAnError(t *testing.T) {
	r := NewRegistry()
	empty := &echoTool{BaseTool: BaseTool{ToolName: "empty"}}
	r.MustRegister(empty)

	res, err := r.Dispatch(context.Background(), "empty", map[string]any{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if !res.Empty() {
		t.Error("expected empty result")
	}
	if res.IsError {
		t.Error("empty result must not be marked as error")
	}
}

func TestToProviderTools(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(newEchoTool("b_tool"))
	r.MustRegister(newEchoTool("a_tool"))

	pts, err := r.ToProviderTools()
	if err != nil {
		t.Fatalf("ToProviderTools failed: %v", err)
	}
	if len(pts) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(pts))
	}
	// Deterministic ordering keeps prompts stable between calls.
	if pts[0].Function.Name != "a_tool" || pts[1].Function.Name != "b_tool" {
		t.Error("tools not sorted by name")
	}
	if pts[0].Type != "function" {
		t.Errorf("unexpected tool type %q", pts[0].Type)
	}
}

func TestFilterArgsNoSchemaPassesThrough(t *testing.T) {
	args := map[string]any{"anything": 1}
	got := FilterArgs(map[string]any{"type": "object"}, args)
	if got["anything"] != 1 {
		t.Error("schema without properties must pass arguments through")
	}
}
