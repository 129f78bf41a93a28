package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medrun/internal/contextmgr"
	"medrun/internal/provider"
	"medrun/internal/tools"
)

// scriptedOracle replays a fixed sequence of responses and keeps every
// request it saw. Tests script the exact number of oracle calls a scenario
// should make; running past the script fails loudly.
type scriptedOracle struct {
	mu       sync.Mutex
	replies  []string
	requests []provider.ChatRequest
	calls    int
}

func (s *scriptedOracle) Name() string     { return "scripted" }
func (s *scriptedOracle) Models() []string { return []string{"test-model"} }
func (s *scriptedOracle) Chat(_ context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.calls >= len(s.replies) {
		return nil, fmt.Errorf("oracle script exhausted after %d calls", s.calls)
	}
	content := s.replies[s.calls]
	s.calls++
	return &provider.ChatResponse{Content: content, FinishReason: provider.FinishReasonStop}, nil
}

// requestText flattens one captured request's messages for assertions.
func (s *scriptedOracle) requestText(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for _, m := range s.requests[i].Messages {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// failingOracle errors on every call.
type failingOracle struct{}

func (failingOracle) Name() string     { return "failing" }
func (failingOracle) Models() []string { return nil }
func (failingOracle) Chat(context.Context, provider.ChatRequest) (*provider.ChatResponse, error) {
	return nil, errors.New("backend unreachable")
}

type fakeTool struct {
	tools.BaseTool
	fn    func(args map[string]any) (tools.Result, error)
	calls int
}

func (f *fakeTool) Execute(_ context.Context, args map[string]any) (tools.Result, error) {
	f.calls++
	return f.fn(args)
}

func newFakeTool(name string, fn func(args map[string]any) (tools.Result, error)) *fakeTool {
	return &fakeTool{
		BaseTool: tools.BaseTool{ToolName: name, ToolDescription: name + " test tool"},
		fn:       fn,
	}
}

func newTestOrchestrator(t *testing.T, oracle provider.Provider, reg *tools.Registry, cfg Config) *Orchestrator {
	t.Helper()
	if cfg.Model == "" {
		// A prompted-JSON model keeps the scripted replies plain text.
		cfg.Model = "qwen"
	}
	return NewOrchestrator(cfg, oracle, reg, contextmgr.NewManager(contextmgr.Config{}), nil)
}

func collectEvents(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func eventsOfType(events []Event, typ EventType) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestRunSingleTaskCompletes(t *testing.T) {
	reg := tools.NewRegistry()
	echo := newFakeTool("echo", func(args map[string]any) (tools.Result, error) {
		return tools.NewResult(args), nil
	})
	reg.MustRegister(echo)

	oracle := &scriptedOracle{replies: []string{
		`{"tasks":[{"description":"fetch demographics","suggested_tools":["echo"]}]}`,
		`{"actions":[{"tool":"echo","args":{"msg":"hi"}}]}`,
		`{"done":true,"data_complete":true}`,
		`{"achieved":true}`,
		`The demographics were fetched.`,
	}}

	o := newTestOrchestrator(t, oracle, reg, Config{})
	sess, events := o.Run(context.Background(), "fetch demographics")
	all := collectEvents(events)

	require.Len(t, sess.Tasks, 1)
	assert.Equal(t, TaskCompleted, sess.Tasks[0].Status)
	assert.Equal(t, 1, sess.StepsUsed)
	assert.Equal(t, "The demographics were fetched.", sess.Answer)

	require.NotEmpty(t, all)
	assert.Equal(t, EventTaskStart, all[0].Type)
	assert.Equal(t, EventAnswer, all[len(all)-1].Type)
	assert.Len(t, eventsOfType(all, EventToolExecution), 1)
}

func TestConsecutiveToolErrorsFailTaskButSessionContinues(t *testing.T) {
	reg := tools.NewRegistry()
	reg.MustRegister(newFakeTool("boom", func(map[string]any) (tools.Result, error) {
		return tools.Result{}, errors.New("backend exploded")
	}))
	reg.MustRegister(newFakeTool("echo", func(args map[string]any) (tools.Result, error) {
		return tools.NewResult(args), nil
	}))

	// Distinct args each round keep loop detection quiet so the error
	// counter is what fails the task.
	oracle := &scriptedOracle{replies: []string{
		`{"tasks":[{"description":"flaky work"},{"description":"steady work"}]}`,
		`{"actions":[{"tool":"boom","args":{"n":1}}]}`,
		`{"done":false,"data_complete":true,"reason":"tool failed"}`,
		`{"actions":[{"tool":"boom","args":{"n":2}}]}`,
		`{"done":false,"data_complete":true,"reason":"tool failed"}`,
		`{"actions":[{"tool":"boom","args":{"n":3}}]}`,
		`{"actions":[{"tool":"echo","args":{"msg":"ok"}}]}`,
		`{"done":true,"data_complete":true}`,
		`{"achieved":true}`,
		`Partial results with one task failed.`,
	}}

	o := newTestOrchestrator(t, oracle, reg, Config{})
	sess, events := o.Run(context.Background(), "do both things")
	all := collectEvents(events)

	require.Len(t, sess.Tasks, 2)
	assert.Equal(t, TaskFailed, sess.Tasks[0].Status)
	assert.Equal(t, FailureConsecutiveErrors, sess.Tasks[0].FailureReason)
	assert.Equal(t, TaskCompleted, sess.Tasks[1].Status)
	assert.Equal(t, EventAnswer, all[len(all)-1].Type)
}

func TestLoopDetectionFailsTaskBeforeThirdRepeat(t *testing.T) {
	reg := tools.NewRegistry()
	echo := newFakeTool("echo", func(args map[string]any) (tools.Result, error) {
		return tools.NewResult(args), nil
	})
	reg.MustRegister(echo)

	oracle := &scriptedOracle{replies: []string{
		`{"tasks":[{"description":"stuck work"}]}`,
		`{"actions":[{"tool":"echo","args":{"k":"v"}},{"tool":"echo","args":{"k":"v"}},{"tool":"echo","args":{"k":"v"}}]}`,
		`{"achieved":false,"missing":"the stuck task"}`,
		`Could not finish the stuck task.`,
	}}

	o := newTestOrchestrator(t, oracle, reg, Config{})
	sess, events := o.Run(context.Background(), "stuck work")
	all := collectEvents(events)

	require.Len(t, sess.Tasks, 1)
	assert.Equal(t, TaskFailed, sess.Tasks[0].Status)
	assert.Equal(t, FailureLoopDetected, sess.Tasks[0].FailureReason)
	// The third identical call is caught before execution.
	assert.Equal(t, 2, echo.calls)
	assert.Equal(t, EventAnswer, all[len(all)-1].Type)
}

func TestSessionStepBudgetOfOne(t *testing.T) {
	reg := tools.NewRegistry()
	echo := newFakeTool("echo", func(args map[string]any) (tools.Result, error) {
		return tools.NewResult(args), nil
	})
	reg.MustRegister(echo)

	oracle := &scriptedOracle{replies: []string{
		`{"tasks":[{"description":"first"},{"description":"second"}]}`,
		`{"actions":[{"tool":"echo","args":{"n":1}}]}`,
		`{"achieved":false,"missing":"second task"}`,
		`Ran out of budget after one step.`,
	}}

	o := newTestOrchestrator(t, oracle, reg, Config{MaxSteps: 1})
	sess, events := o.Run(context.Background(), "two things")
	all := collectEvents(events)

	assert.Equal(t, 1, sess.StepsUsed)
	assert.Equal(t, 1, echo.calls)
	assert.Equal(t, TaskFailed, sess.Tasks[0].Status)
	assert.Equal(t, FailureSessionStepBudget, sess.Tasks[0].FailureReason)
	assert.Equal(t, TaskFailed, sess.Tasks[1].Status)
	assert.Equal(t, EventAnswer, all[len(all)-1].Type)
}

func TestEmptyResultTriggersAtMostOneDiscoveryCycle(t *testing.T) {
	reg := tools.NewRegistry()
	lookup := newFakeTool("lookup", func(map[string]any) (tools.Result, error) {
		return tools.NewResult([]any{}), nil
	})
	code := newFakeTool("run_analysis_code", func(map[string]any) (tools.Result, error) {
		return tools.NewResult(map[string]any{"resource_types": []any{"Condition", "Observation"}}), nil
	})
	reg.MustRegister(lookup)
	reg.MustRegister(code)

	oracle := &scriptedOracle{replies: []string{
		`{"tasks":[{"description":"find medications"}]}`,
		`{"actions":[{"tool":"lookup","args":{"x":1}}]}`,
		`{"actions":[{"tool":"run_analysis_code","args":{"code":"function analyze() { return {}; }"}}]}`,
		`{"done":false,"data_complete":false,"reason":"nothing found yet"}`,
		`{"actions":[{"tool":"lookup","args":{"x":2}}]}`,
		`{"done":true,"data_complete":true}`,
		`{"achieved":true}`,
		`No medications are on record.`,
	}}

	o := newTestOrchestrator(t, oracle, reg, Config{})
	sess, events := o.Run(context.Background(), "find medications")
	collectEvents(events)

	assert.Equal(t, TaskCompleted, sess.Tasks[0].Status)
	// Two empty lookups and a data_complete=false verdict, but only the
	// first empty result earned a discovery cycle.
	assert.Equal(t, 1, code.calls)
	assert.Equal(t, 2, lookup.calls)
	assert.Equal(t, 3, sess.StepsUsed)
}

func TestPlanningFailureFallsBackToSingleTask(t *testing.T) {
	reg := tools.NewRegistry()
	reg.MustRegister(newFakeTool("echo", func(args map[string]any) (tools.Result, error) {
		return tools.NewResult(args), nil
	}))

	oracle := &scriptedOracle{replies: []string{
		`I am not able to produce a plan right now.`,
		`{"actions":[{"tool":"echo","args":{"msg":"hi"}}]}`,
		`{"done":true,"data_complete":true}`,
		`{"achieved":true}`,
		`Handled as a single task.`,
	}}

	o := newTestOrchestrator(t, oracle, reg, Config{})
	sess, events := o.Run(context.Background(), "what conditions does p1 have")
	all := collectEvents(events)

	require.Len(t, sess.Tasks, 1)
	assert.Equal(t, "what conditions does p1 have", sess.Tasks[0].Description)
	assert.Equal(t, TaskCompleted, sess.Tasks[0].Status)
	assert.NotEmpty(t, eventsOfType(all, EventWarning))
}

func TestPlanWithUnknownToolFallsBackToSingleTask(t *testing.T) {
	reg := tools.NewRegistry()
	reg.MustRegister(newFakeTool("echo", func(args map[string]any) (tools.Result, error) {
		return tools.NewResult(args), nil
	}))

	// The plan names a tool the registry does not have; the whole plan is
	// rejected, not just the bad suggestion.
	oracle := &scriptedOracle{replies: []string{
		`{"tasks":[{"description":"pull from archive","suggested_tools":["archive_fetch"]},{"description":"summarize","suggested_tools":["echo"]}]}`,
		`{"actions":[{"tool":"echo","args":{"msg":"hi"}}]}`,
		`{"done":true,"data_complete":true}`,
		`{"achieved":true}`,
		`Handled as a single task.`,
	}}

	o := newTestOrchestrator(t, oracle, reg, Config{})
	sess, events := o.Run(context.Background(), "summarize the archive")
	all := collectEvents(events)

	require.Len(t, sess.Tasks, 1)
	assert.Equal(t, "summarize the archive", sess.Tasks[0].Description)
	assert.Equal(t, TaskCompleted, sess.Tasks[0].Status)
	assert.NotEmpty(t, eventsOfType(all, EventWarning))
}

func TestSuggestedToolsAppearInActionPrompt(t *testing.T) {
	reg := tools.NewRegistry()
	reg.MustRegister(newFakeTool("get_patient_info", func(args map[string]any) (tools.Result, error) {
		return tools.NewResult(args), nil
	}))

	oracle := &scriptedOracle{replies: []string{
		`{"tasks":[{"description":"fetch demographics","suggested_tools":["get_patient_info"]}]}`,
		`{"actions":[{"tool":"get_patient_info","args":{"patient_id":"p1"}}]}`,
		`{"done":true,"data_complete":true}`,
		`{"achieved":true}`,
		`Done.`,
	}}

	o := newTestOrchestrator(t, oracle, reg, Config{})
	_, events := o.Run(context.Background(), "fetch demographics")
	collectEvents(events)

	// Call 1 is the action request for the task. The tool catalog also
	// names the tool, so assert on the plan-suggestion line itself.
	assert.Contains(t, oracle.requestText(1), "The plan suggests these tools: get_patient_info")
}

func TestLaterTaskSeesEarlierTaskOutputs(t *testing.T) {
	reg := tools.NewRegistry()
	reg.MustRegister(newFakeTool("fetch_document", func(map[string]any) (tools.Result, error) {
		return tools.NewResult(map[string]any{"document_id": "DOC-7781"}), nil
	}))
	reg.MustRegister(newFakeTool("echo", func(args map[string]any) (tools.Result, error) {
		return tools.NewResult(args), nil
	}))

	oracle := &scriptedOracle{replies: []string{
		`{"tasks":[{"description":"fetch the discharge document"},{"description":"summarize the fetched document"}]}`,
		`{"actions":[{"tool":"fetch_document","args":{"patient_id":"p1"}}]}`,
		`{"done":true,"data_complete":true}`,
		`{"actions":[{"tool":"echo","args":{"msg":"summary"}}]}`,
		`{"done":true,"data_complete":true}`,
		`{"achieved":true}`,
		`The document was summarized.`,
	}}

	o := newTestOrchestrator(t, oracle, reg, Config{})
	sess, events := o.Run(context.Background(), "summarize p1's discharge document")
	collectEvents(events)

	require.Len(t, sess.Tasks, 2)
	assert.Equal(t, TaskCompleted, sess.Tasks[1].Status)

	// Call 3 is the action request for the second task; the first task's
	// tool output must be visible in it.
	task2Prompt := oracle.requestText(3)
	assert.Contains(t, task2Prompt, "summarize the fetched document")
	assert.Contains(t, task2Prompt, "DOC-7781")
	// The first task's own action request predates any output.
	assert.NotContains(t, oracle.requestText(1), "DOC-7781")
}

func TestAnswerEmittedEvenWhenOracleIsDown(t *testing.T) {
	reg := tools.NewRegistry()

	o := newTestOrchestrator(t, failingOracle{}, reg, Config{})
	sess, events := o.Run(context.Background(), "anything at all")
	all := collectEvents(events)

	require.NotEmpty(t, all)
	last := all[len(all)-1]
	assert.Equal(t, EventAnswer, last.Type)
	assert.NotEmpty(t, last.Answer)
	assert.Contains(t, last.Answer, "Caveats")
	assert.Equal(t, TaskFailed, sess.Tasks[0].Status)
	assert.Equal(t, FailureConsecutiveErrors, sess.Tasks[0].FailureReason)
}

func TestAskReturnsAnswer(t *testing.T) {
	reg := tools.NewRegistry()
	reg.MustRegister(newFakeTool("echo", func(args map[string]any) (tools.Result, error) {
		return tools.NewResult(args), nil
	}))

	oracle := &scriptedOracle{replies: []string{
		`{"tasks":[{"description":"one thing"}]}`,
		`{"actions":[{"tool":"echo","args":{"a":1}}]}`,
		`{"done":true,"data_complete":true}`,
		`{"achieved":true}`,
		`Done.`,
	}}

	o := newTestOrchestrator(t, oracle, reg, Config{})
	answer, err := o.Ask(context.Background(), "one thing")
	require.NoError(t, err)
	assert.Equal(t, "Done.", answer)
}

func TestEventJSONUsesStringTypes(t *testing.T) {
	ev := newTaskStartEvent("s1", newTask("task-1", "demo", nil))
	data, err := ev.MarshalJSON()
	require.NoError(t, err)
	s := string(data)
	assert.True(t, strings.Contains(s, `"type":"task_start"`), s)
	assert.True(t, strings.Contains(s, `"task_id":"task-1"`), s)
}
