package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
)

// entryFunction is the canonical entry point agent-authored code must define.
const entryFunction = "analyze"

// Config holds executor configuration.
type Config struct {
	// Timeout is the wall-clock limit for one execution.
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns default executor configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
	}
}

// Result holds the outcome of a sandbox execution.
type Result struct {
	// Value is the object returned by analyze().
	Value map[string]any
	// Logs contains messages emitted via console.log and log_progress.
	Logs []string
}

// Executor runs agent-authored code in an isolated goja VM. Each call gets
// a fresh VM so no state leaks between executions; the VM itself has no
// ambient capabilities, only the injected primitives and console.log.
type Executor struct {
	cfg    Config
	logger zerolog.Logger
}

// NewExecutor creates an Executor with the given configuration.
func NewExecutor(cfg Config, logger zerolog.Logger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Executor{cfg: cfg, logger: logger}
}

// Execute runs code against the given primitives and returns the value of
// its analyze() function.
//
// The contract: the code must define a global analyze() returning an
// object that survives JSON serialization. Referencing anything outside
// the primitive namespace raises a ViolationError; exceeding the time
// limit raises a TimeoutError. All three outcomes are recoverable: the
// orchestrator records them against the task and lets the oracle adjust.
func (e *Executor) Execute(ctx context.Context, code string, primitives map[string]any) (*Result, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	result := &Result{}
	logSink := func(msg string) {
		result.Logs = append(result.Logs, msg)
		e.logger.Debug().Str("source", "sandbox").Msg(msg)
	}

	for name, fn := range primitives {
		if err := vm.Set(name, fn); err != nil {
			return nil, fmt.Errorf("inject primitive %s: %w", name, err)
		}
	}
	if err := installConsole(vm, logSink); err != nil {
		return nil, fmt.Errorf("install console: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-execCtx.Done():
			vm.Interrupt("execution interrupted: " + execCtx.Err().Error())
		case <-done:
			return
		}
	}()
	defer vm.ClearInterrupt()

	if _, err := vm.RunString(code); err != nil {
		return nil, e.wrapExecutionError(err)
	}

	entry, ok := goja.AssertFunction(vm.Get(entryFunction))
	if !ok {
		return nil, &ContractError{Reason: "code must define a global analyze() function"}
	}

	val, err := entry(goja.Undefined())
	if err != nil {
		return nil, e.wrapExecutionError(err)
	}

	exported := exportValue(val)
	obj, ok := exported.(map[string]any)
	if !ok {
		return nil, &ContractError{Reason: fmt.Sprintf("analyze() must return an object, got %T", exported)}
	}
	if _, err := json.Marshal(obj); err != nil {
		return nil, &ContractError{Reason: fmt.Sprintf("analyze() result is not serializable: %v", err)}
	}

	result.Value = obj
	return result, nil
}

// installConsole exposes console.log only; everything else a host
// environment would normally provide stays absent.
func installConsole(vm *goja.Runtime, sink func(string)) error {
	console := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		sink(strings.Join(parts, " "))
		return goja.Undefined()
	}
	if err := console.Set("log", logFn); err != nil {
		return err
	}
	return vm.Set("console", console)
}

// wrapExecutionError converts goja errors to the sandbox taxonomy.
func (e *Executor) wrapExecutionError(err error) error {
	if _, ok := err.(*goja.InterruptedError); ok {
		return &TimeoutError{Limit: e.cfg.Timeout}
	}

	if exception, ok := err.(*goja.Exception); ok {
		msg := exception.String()
		// An undefined global means the code reached for something
		// outside the injected namespace.
		if strings.Contains(msg, "ReferenceError") {
			return &ViolationError{Detail: msg}
		}
		return &ContractError{Reason: "uncaught exception: " + msg}
	}

	if compileErr, ok := err.(*goja.CompilerSyntaxError); ok {
		return &ContractError{Reason: "syntax error: " + compileErr.Error()}
	}

	return &ContractError{Reason: err.Error()}
}

// exportValue converts goja values to Go values.
func exportValue(val goja.Value) any {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}
