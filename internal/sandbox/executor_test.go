package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestExecutor(timeout time.Duration) *Executor {
	return NewExecutor(Config{Timeout: timeout}, zerolog.Nop())
}

func TestExecuteReturnsAnalyzeResult(t *testing.T) {
	e := newTestExecutor(5 * time.Second)

	prims := map[string]any{
		"double": func(n int) int { return n * 2 },
	}
	code := `
		function analyze() {
			return { value: double(21), label: "answer" };
		}
	`

	res, err := e.Execute(context.Background(), code, prims)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Value["value"] != int64(42) && res.Value["value"] != float64(42) {
		t.Errorf("unexpected value: %v (%T)", res.Value["value"], res.Value["value"])
	}
	if res.Value["label"] != "answer" {
		t.Errorf("unexpected label: %v", res.Value["label"])
	}
}

func TestExecuteMissingAnalyzeIsContractError(t *testing.T) {
	e := newTestExecutor(5 * time.Second)

	_, err := e.Execute(context.Background(), `var x = 1;`, nil)
	if !errors.Is(err, ErrContract) {
		t.Fatalf("expected ErrContract, got %v", err)
	}
}

func TestExecuteNonObjectReturnIsContractError(t *testing.T) {
	e := newTestExecutor(5 * time.Second)

	_, err := e.Execute(context.Background(), `function analyze() { return 42; }`, nil)
	if !errors.Is(err, ErrContract) {
		t.Fatalf("expected ErrContract, got %v", err)
	}
}

func TestExecuteUndefinedReferenceIsViolation(t *testing.T) {
	e := newTestExecutor(5 * time.Second)

	code := `function analyze() { return { data: fetch_from_network("http://x") }; }`
	_, err := e.Execute(context.Background(), code, nil)
	if !errors.Is(err, ErrViolation) {
		t.Fatalf("expected ErrViolation, got %v", err)
	}

	var ve *ViolationError
	if !errors.As(err, &ve) {
		t.Error("expected typed ViolationError")
	}
}

func TestExecuteTimeout(t *testing.T) {
	e := newTestExecutor(100 * time.Millisecond)

	_, err := e.Execute(context.Background(), `while (true) {} function analyze() { return {}; }`, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestExecuteSyntaxErrorIsContractError(t *testing.T) {
	e := newTestExecutor(5 * time.Second)

	_, err := e.Execute(context.Background(), `function analyze( {`, nil)
	if !errors.Is(err, ErrContract) {
		t.Fatalf("expected ErrContract, got %v", err)
	}
}

func TestExecuteCapturesConsoleLogs(t *testing.T) {
	e := newTestExecutor(5 * time.Second)

	code := `
		function analyze() {
			console.log("checking", 3, "records");
			return { done: true };
		}
	`
	res, err := e.Execute(context.Background(), code, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(res.Logs) != 1 || res.Logs[0] != "checking 3 records" {
		t.Errorf("unexpected logs: %v", res.Logs)
	}
}

func TestExecuteFreshVMPerCall(t *testing.T) {
	e := newTestExecutor(5 * time.Second)

	if _, err := e.Execute(context.Background(), `var leak = 1; function analyze() { return {}; }`, nil); err != nil {
		t.Fatalf("first execution failed: %v", err)
	}

	// The second execution must not see state from the first.
	code := `function analyze() { return { leaked: typeof leak !== "undefined" }; }`
	res, err := e.Execute(context.Background(), code, nil)
	if err != nil {
		t.Fatalf("second execution failed: %v", err)
	}
	if res.Value["leaked"] != false {
		t.Error("state leaked between executions")
	}
}
