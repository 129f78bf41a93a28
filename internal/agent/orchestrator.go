package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"medrun/internal/contextmgr"
	"medrun/internal/prompt"
	"medrun/internal/provider"
	"medrun/internal/tools"
	"medrun/pkg/logger"
)

// Audit receives session activity for persistence. A nil Audit disables
// persistence; implementations must not block.
type Audit interface {
	RecordQuery(sessionID, query string)
	RecordTaskTransition(sessionID, taskID, description, status, reason string)
	RecordToolCall(sessionID, taskID, tool, args string, isError bool, durationMs int64)
}

// Orchestrator drives a session: plan, act/validate per task, synthesize.
// It owns every safety bound; the oracle proposes, the orchestrator
// disposes.
type Orchestrator struct {
	cfg      Config
	oracle   provider.Provider
	registry *tools.Registry
	ctxmgr   *contextmgr.Manager
	caps     *prompt.Capabilities
	cap      prompt.Capability

	audit          Audit
	primitiveNames []string
	logger         zerolog.Logger
}

// NewOrchestrator wires an orchestrator. The provider should already wrap
// retry handling; the orchestrator never retries oracle calls itself.
func NewOrchestrator(cfg Config, oracle provider.Provider, registry *tools.Registry, mgr *contextmgr.Manager, caps *prompt.Capabilities) *Orchestrator {
	cfg = cfg.withDefaults()
	if caps == nil {
		caps = prompt.NewCapabilities(nil)
	}
	return &Orchestrator{
		cfg:      cfg,
		oracle:   oracle,
		registry: registry,
		ctxmgr:   mgr,
		caps:     caps,
		cap:      caps.Lookup(cfg.Model),
		logger:   logger.Component("agent"),
	}
}

// SetAudit attaches an audit sink. Must be called before Run.
func (o *Orchestrator) SetAudit(a Audit) { o.audit = a }

// SetPrimitiveNames tells discovery prompts which sandbox primitives are
// available. Must be called before Run.
func (o *Orchestrator) SetPrimitiveNames(names []string) { o.primitiveNames = names }

// Run executes one query and returns its event stream. The channel closes
// after the answer event; an answer event is always emitted, even when
// every task failed.
func (o *Orchestrator) Run(ctx context.Context, query string) (*Session, <-chan Event) {
	sess := newSession(query)
	events := make(chan Event, 64)
	go func() {
		defer close(events)
		o.run(ctx, sess, events)
	}()
	return sess, events
}

// Ask runs a query to completion and returns just the answer. Events are
// drained internally.
func (o *Orchestrator) Ask(ctx context.Context, query string) (string, error) {
	sess, events := o.Run(ctx, query)
	for range events {
	}
	if sess.Answer == "" {
		return "", &OrchestrationError{Phase: "synthesis", Cause: errors.New("no answer produced")}
	}
	return sess.Answer, nil
}

func (o *Orchestrator) run(ctx context.Context, sess *Session, events chan<- Event) {
	o.logger.Info().Str("session_id", sess.ID).Str("model", o.cfg.Model).Msg("session started")
	if o.audit != nil {
		o.audit.RecordQuery(sess.ID, sess.Query)
	}

	if err := o.plan(ctx, sess); err != nil {
		// A failed plan degrades to a single task carrying the raw query.
		o.logger.Warn().Err(err).Msg("planning failed, falling back to single task")
		events <- newWarningEvent(sess.ID, "planning failed, treating the query as a single task")
		sess.Tasks = []*Task{newTask("task-1", sess.Query, nil)}
	}

	for _, task := range sess.Tasks {
		if ctx.Err() != nil {
			task.fail(FailureCancelled)
			events <- newTaskCompleteEvent(sess.ID, task)
			o.recordTransition(sess, task)
			continue
		}
		if sess.StepsUsed >= o.cfg.MaxSteps {
			task.fail(FailureSessionStepBudget)
			events <- newTaskCompleteEvent(sess.ID, task)
			o.recordTransition(sess, task)
			continue
		}
		o.runTask(ctx, sess, task, events)
	}

	sess.Answer = o.synthesize(ctx, sess)
	events <- newAnswerEvent(sess.ID, sess.Answer)
	o.logger.Info().
		Str("session_id", sess.ID).
		Int("steps", sess.StepsUsed).
		Int("completed", sess.completedCount()).
		Int("tasks", len(sess.Tasks)).
		Msg("session finished")
}

// plan asks the oracle for a task list and validates it against the
// registry: a plan referencing a tool the registry does not have is a
// PlanningError, as is a plan with no tasks. The caller degrades either
// case to a single task carrying the raw query.
func (o *Orchestrator) plan(ctx context.Context, sess *Session) error {
	req := provider.ChatRequest{
		Model: o.cfg.Model,
		Messages: []provider.Message{
			{Role: provider.RoleUser, Content: prompt.Planning(sess.Query, o.registry.Describe())},
		},
		Temperature: o.cfg.Temperature,
		Format:      provider.FormatJSON,
	}
	resp, err := o.oracle.Chat(ctx, req)
	if err != nil {
		return &PlanningError{Cause: err}
	}
	plan, err := prompt.ParsePlan(resp.Content)
	if err != nil {
		return &PlanningError{Cause: err}
	}
	if len(plan.Tasks) == 0 {
		return &PlanningError{Cause: errors.New("empty task list")}
	}

	for _, pt := range plan.Tasks {
		for _, name := range pt.SuggestedTools {
			if !o.registry.Has(name) {
				return &PlanningError{Cause: fmt.Errorf("plan references unknown tool %q", name)}
			}
		}
	}
	for i, pt := range plan.Tasks {
		sess.Tasks = append(sess.Tasks, newTask(fmt.Sprintf("task-%d", i+1), pt.Description, pt.SuggestedTools))
	}
	o.logger.Info().Int("tasks", len(sess.Tasks)).Msg("plan accepted")
	return nil
}

func (o *Orchestrator) runTask(ctx context.Context, sess *Session, task *Task, events chan<- Event) {
	task.Status = TaskActive
	events <- newTaskStartEvent(sess.ID, task)
	o.logger.Info().Str("task_id", task.ID).Str("description", task.Description).Msg("task started")

	taskCtx, cancel := context.WithTimeout(ctx, o.cfg.TaskTimeout)
	defer cancel()

	// idleRounds counts action rounds that executed nothing and still did
	// not validate as done; it shares the consecutive-error bound so a
	// silent oracle cannot stall a task forever.
	idleRounds := 0

	for task.Status == TaskActive {
		if done := o.checkBounds(ctx, taskCtx, sess, task); done {
			break
		}

		actions, err := o.askForActions(taskCtx, sess, task)
		if err != nil {
			if o.failOnContext(ctx, taskCtx, task) {
				break
			}
			task.errorStreak++
			task.retryContext = err.Error()
			events <- newErrorEvent(sess.ID, task.ID, err.Error())
			o.logger.Warn().Err(err).Str("task_id", task.ID).Msg("action selection failed")
			if task.errorStreak >= o.cfg.MaxConsecutiveErrors {
				task.fail(FailureConsecutiveErrors)
			}
			continue
		}

		executed := 0
		for _, action := range actions {
			if task.Status != TaskActive {
				break
			}
			if task.Steps >= o.cfg.MaxStepsPerTask || sess.StepsUsed >= o.cfg.MaxSteps {
				break
			}
			// Loop detection runs before execution and outranks the
			// error counter: a repeating signature fails the task even
			// when every repeated call succeeded.
			if task.loop.Observe(action.Tool, action.Args) {
				loopErr := &LoopDetectedError{TaskID: task.ID, Signature: task.loop.Last()}
				events <- newErrorEvent(sess.ID, task.ID, loopErr.Error())
				o.logger.Warn().Str("task_id", task.ID).Str("signature", task.loop.Last()).Msg("loop detected")
				task.fail(FailureLoopDetected)
				break
			}
			o.executeAction(taskCtx, sess, task, action, events)
			executed++
		}
		if task.Status != TaskActive {
			break
		}
		if done := o.checkBounds(ctx, taskCtx, sess, task); done {
			break
		}

		verdict := o.validate(taskCtx, sess, task)
		if verdict.Done {
			task.Status = TaskCompleted
			break
		}
		task.retryContext = verdict.Reason
		if !verdict.DataComplete && task.discoveryUsed < o.cfg.DiscoveryLimit {
			o.runDiscovery(taskCtx, sess, task, events)
		}
		if executed == 0 {
			idleRounds++
			if idleRounds >= o.cfg.MaxConsecutiveErrors {
				task.fail(FailureConsecutiveErrors)
			}
		} else {
			idleRounds = 0
		}
	}

	if task.Status == TaskActive {
		// Bounds tripped without an explicit failure path.
		task.fail(FailureTaskStepBudget)
	}
	events <- newTaskCompleteEvent(sess.ID, task)
	o.recordTransition(sess, task)
	o.logger.Info().
		Str("task_id", task.ID).
		Str("status", string(task.Status)).
		Str("reason", task.FailureReason).
		Int("steps", task.Steps).
		Msg("task finished")
}

// checkBounds fails the task if a budget or deadline has run out and
// reports whether the task loop should stop.
func (o *Orchestrator) checkBounds(ctx, taskCtx context.Context, sess *Session, task *Task) bool {
	if o.failOnContext(ctx, taskCtx, task) {
		return true
	}
	if task.Steps >= o.cfg.MaxStepsPerTask {
		task.fail(FailureTaskStepBudget)
		return true
	}
	if sess.StepsUsed >= o.cfg.MaxSteps {
		task.fail(FailureSessionStepBudget)
		return true
	}
	return false
}

// failOnContext distinguishes the task deadline from session cancellation.
func (o *Orchestrator) failOnContext(ctx, taskCtx context.Context, task *Task) bool {
	if ctx.Err() != nil {
		task.fail(FailureCancelled)
		return true
	}
	if taskCtx.Err() != nil {
		task.fail(FailureTimeout)
		return true
	}
	return false
}

// askForActions requests the next batch of tool calls for a task. The
// request shape follows the model's capability: native tool binding or
// a prompted JSON protocol, both decoding to the same Action type.
func (o *Orchestrator) askForActions(ctx context.Context, sess *Session, task *Task) ([]prompt.Action, error) {
	system := prompt.ActionSystem(task.Description, task.SuggestedTools, o.ctxmgr.History(), task.retryContext)
	req := provider.ChatRequest{
		Model:       o.cfg.Model,
		Temperature: o.cfg.Temperature,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: system},
			{Role: provider.RoleUser, Content: task.Description},
		},
	}
	if o.cap.Tools == prompt.StrategyNative {
		providerTools, err := o.registry.ToProviderTools()
		if err != nil {
			return nil, &ActionError{TaskID: task.ID, Cause: err}
		}
		req.Tools = providerTools
	} else {
		req.Messages[0].Content = system + "\n\n" + prompt.PromptedActionInstructions(o.registry.Describe(), o.cfg.MaxActionsPerCall)
		req.Format = provider.FormatJSON
	}

	resp, err := o.oracle.Chat(ctx, req)
	if err != nil {
		return nil, &ActionError{TaskID: task.ID, Cause: err}
	}
	actions, err := prompt.ParseActions(resp, o.cap.Tools)
	if err != nil {
		return nil, &ActionError{TaskID: task.ID, Cause: err}
	}
	if len(actions) > o.cfg.MaxActionsPerCall {
		actions = actions[:o.cfg.MaxActionsPerCall]
	}
	return actions, nil
}

// executeAction dispatches one tool call, charges the step, records the
// formatted output into context, and runs the empty-result discovery
// trigger. Tool errors feed the consecutive-error counter; successes
// reset it.
func (o *Orchestrator) executeAction(ctx context.Context, sess *Session, task *Task, action prompt.Action, events chan<- Event) {
	args := action.Args
	if o.cap.OptimizeArgs {
		args = o.optimizeArgs(ctx, task, action)
	}

	execCtx := tools.WithTaskID(tools.WithSessionID(ctx, sess.ID), task.ID)
	start := time.Now()
	result, err := o.registry.Dispatch(execCtx, action.Tool, args)
	elapsed := time.Since(start)
	sess.StepsUsed++
	task.Steps++

	if err != nil {
		task.errorStreak++
		task.retryContext = err.Error()
		o.ctxmgr.Record(task.ID, action.Tool, sess.StepsUsed, "error: "+err.Error())
		events <- newToolExecutionEvent(sess.ID, task.ID, action.Tool, args, err.Error(), true, elapsed)
		o.recordToolCall(sess, task, action.Tool, args, true, elapsed)
		o.logger.Warn().Err(err).Str("task_id", task.ID).Str("tool", action.Tool).Msg("tool failed")
		if task.errorStreak >= o.cfg.MaxConsecutiveErrors {
			task.fail(FailureConsecutiveErrors)
		}
		return
	}

	task.errorStreak = 0
	formatted := o.ctxmgr.Record(task.ID, action.Tool, sess.StepsUsed, result.Output)
	events <- newToolExecutionEvent(sess.ID, task.ID, action.Tool, args, formatted, false, elapsed)
	o.recordToolCall(sess, task, action.Tool, args, false, elapsed)
	o.logger.Debug().Str("task_id", task.ID).Str("tool", action.Tool).Dur("elapsed", elapsed).Msg("tool executed")

	if o.ctxmgr.UnderPressure() && !sess.warnedPressure {
		sess.warnedPressure = true
		events <- newWarningEvent(sess.ID, fmt.Sprintf("context utilization at %.0f%%, older outputs will be evicted", o.ctxmgr.Utilization()*100))
	}

	// An empty result is data, not an error, but the first one per task
	// earns a structure-discovery cycle before the oracle repeats itself.
	if result.Empty() && task.discoveryUsed < o.cfg.DiscoveryLimit {
		task.retryContext = fmt.Sprintf("%s returned no data; the record structure may differ from your assumptions", action.Tool)
		o.runDiscovery(ctx, sess, task, events)
	}
}

// runDiscovery asks the oracle for a short inspection script, executes it
// in the sandbox tool, and records what the data actually looks like. At
// most Config.DiscoveryLimit cycles run per task.
func (o *Orchestrator) runDiscovery(ctx context.Context, sess *Session, task *Task, events chan<- Event) {
	task.discoveryUsed++
	if !o.registry.Has("run_analysis_code") {
		return
	}
	if task.Steps >= o.cfg.MaxStepsPerTask || sess.StepsUsed >= o.cfg.MaxSteps {
		return
	}

	req := provider.ChatRequest{
		Model: o.cfg.Model,
		Messages: []provider.Message{
			{Role: provider.RoleUser, Content: prompt.Discovery(task.Description, o.primitiveNames)},
		},
		Temperature: o.cfg.Temperature,
		Format:      provider.FormatJSON,
	}
	resp, err := o.oracle.Chat(ctx, req)
	if err != nil {
		o.logger.Warn().Err(err).Str("task_id", task.ID).Msg("discovery request failed")
		return
	}
	actions, err := prompt.ParseActions(resp, prompt.StrategyPromptedJSON)
	if err != nil || len(actions) == 0 {
		o.logger.Warn().Str("task_id", task.ID).Msg("discovery produced no runnable code")
		return
	}
	action := actions[0]
	if action.Tool == "" {
		action.Tool = "run_analysis_code"
	}

	execCtx := tools.WithTaskID(tools.WithSessionID(ctx, sess.ID), task.ID)
	start := time.Now()
	result, err := o.registry.Dispatch(execCtx, action.Tool, action.Args)
	elapsed := time.Since(start)
	sess.StepsUsed++
	task.Steps++

	if err != nil {
		o.ctxmgr.Record(task.ID, "discovery", sess.StepsUsed, "error: "+err.Error())
		events <- newToolExecutionEvent(sess.ID, task.ID, action.Tool, action.Args, err.Error(), true, elapsed)
		o.recordToolCall(sess, task, action.Tool, action.Args, true, elapsed)
		task.retryContext = "structure discovery failed: " + err.Error()
		return
	}
	formatted := o.ctxmgr.Record(task.ID, "discovery", sess.StepsUsed, result.Output)
	events <- newToolExecutionEvent(sess.ID, task.ID, action.Tool, action.Args, formatted, false, elapsed)
	o.recordToolCall(sess, task, action.Tool, action.Args, false, elapsed)
	task.retryContext = "the record structure was inspected; match your next calls to what discovery showed"
	o.logger.Info().Str("task_id", task.ID).Msg("discovery cycle completed")
}

// validate asks the oracle whether the task's gathered data actually
// answers the task. An unparseable verdict counts as not done; a verdict
// is advisory and never fails a task by itself.
func (o *Orchestrator) validate(ctx context.Context, sess *Session, task *Task) prompt.Validation {
	req := provider.ChatRequest{
		Model: o.cfg.Model,
		Messages: []provider.Message{
			{Role: provider.RoleUser, Content: prompt.ValidationPrompt(task.Description, o.ctxmgr.History())},
		},
		Temperature: o.cfg.Temperature,
		Format:      provider.FormatJSON,
	}
	resp, err := o.oracle.Chat(ctx, req)
	if err != nil {
		o.logger.Warn().Err(err).Str("task_id", task.ID).Msg("validation call failed")
		return prompt.Validation{Done: false, DataComplete: true, Reason: "validation unavailable"}
	}
	verdict, err := prompt.ParseValidation(resp.Content)
	if err != nil {
		return prompt.Validation{Done: false, DataComplete: true, Reason: "validation verdict was malformed"}
	}
	return *verdict
}

// synthesize produces the final answer. It always runs, whatever happened
// to the tasks; when the oracle itself is unreachable it falls back to a
// deterministic summary so the caller still gets an honest answer.
func (o *Orchestrator) synthesize(ctx context.Context, sess *Session) string {
	outcomes := sess.outcomes()

	if ctx.Err() == nil {
		if check := o.goalCheck(ctx, sess, outcomes); check != nil && !check.Achieved && check.Missing != "" {
			outcomes += "\nStill missing: " + check.Missing + "\n"
		}

		req := provider.ChatRequest{
			Model: o.cfg.Model,
			Messages: []provider.Message{
				{Role: provider.RoleUser, Content: prompt.Synthesis(sess.Query, outcomes, o.ctxmgr.History())},
			},
			Temperature: o.cfg.Temperature,
		}
		resp, err := o.oracle.Chat(ctx, req)
		if err == nil && strings.TrimSpace(resp.Content) != "" {
			return strings.TrimSpace(resp.Content)
		}
		if err != nil {
			o.logger.Error().Err(err).Msg("synthesis call failed, using fallback answer")
		}
	}

	return o.fallbackAnswer(sess)
}

// goalCheck is a session-level validation pass before synthesis. Failures
// are tolerated; the check only enriches the synthesis prompt.
func (o *Orchestrator) goalCheck(ctx context.Context, sess *Session, outcomes string) *prompt.GoalCheck {
	req := provider.ChatRequest{
		Model: o.cfg.Model,
		Messages: []provider.Message{
			{Role: provider.RoleUser, Content: prompt.GoalCheckPrompt(sess.Query, outcomes)},
		},
		Temperature: o.cfg.Temperature,
		Format:      provider.FormatJSON,
	}
	resp, err := o.oracle.Chat(ctx, req)
	if err != nil {
		return nil
	}
	check, err := prompt.ParseGoalCheck(resp.Content)
	if err != nil {
		return nil
	}
	return check
}

// fallbackAnswer builds a plain summary from the session state when the
// oracle cannot. Failed tasks are named with their reasons so the caveats
// survive even without a model.
func (o *Orchestrator) fallbackAnswer(sess *Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Completed %d of %d tasks for: %s\n\n", sess.completedCount(), len(sess.Tasks), sess.Query)
	b.WriteString(sess.outcomes())
	if failed := sess.failedTasks(); len(failed) > 0 {
		b.WriteString("\nCaveats:\n")
		for _, t := range failed {
			fmt.Fprintf(&b, "- could not complete %q (%s)\n", t.Description, t.FailureReason)
		}
	}
	if history := o.ctxmgr.History(); history != "" {
		b.WriteString("\nGathered data:\n")
		b.WriteString(history)
	}
	return strings.TrimSpace(b.String())
}

func (o *Orchestrator) recordTransition(sess *Session, task *Task) {
	if o.audit == nil {
		return
	}
	o.audit.RecordTaskTransition(sess.ID, task.ID, task.Description, string(task.Status), task.FailureReason)
}

func (o *Orchestrator) recordToolCall(sess *Session, task *Task, tool string, args map[string]any, isError bool, elapsed time.Duration) {
	if o.audit == nil {
		return
	}
	o.audit.RecordToolCall(sess.ID, task.ID, tool, Signature(tool, args), isError, elapsed.Milliseconds())
}
