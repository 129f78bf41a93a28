// Package analysis provides the tools that bridge the oracle to the
// sandbox executor and to the remote document specialist.
package analysis

import (
	"context"

	"medrun/internal/recordstore"
	"medrun/internal/sandbox"
	"medrun/internal/sandbox/primitives"
	"medrun/internal/tools"
)

type codeArgs struct {
	Code string `json:"code" jsonschema:"description=JavaScript defining a global analyze() function that returns an object. Only the documented primitives are available.,required"`
}

// CodeTool executes oracle-authored JavaScript in the sandbox. This is
// the escape hatch for conjunctive filters and cross-record aggregation
// that no fixed tool covers.
type CodeTool struct {
	tools.BaseTool
	executor *sandbox.Executor
	store    *recordstore.Store
}

// NewCodeTool creates the run_analysis_code tool.
func NewCodeTool(executor *sandbox.Executor, store *recordstore.Store) *CodeTool {
	t := &CodeTool{
		executor: executor,
		store:    store,
	}
	prims := primitives.Build(store, nil)
	t.BaseTool = tools.BaseTool{
		ToolName: "run_analysis_code",
		ToolDescription: "Execute JavaScript against the patient records for filtering, joining and " +
			"aggregation the other tools cannot express. The code must define analyze() returning " +
			"an object. Available primitives: " + joinNames(prims.Names()) + ". " +
			"Nothing else is in scope: no network, no filesystem, no imports.",
		ToolParameters: tools.BuildSchema(codeArgs{}),
	}
	return t
}

// Execute implements the Tool interface. Sandbox failures (contract,
// violation, timeout) surface as errors for the orchestrator to record
// against the task; they are never fatal to the session.
func (t *CodeTool) Execute(ctx context.Context, args map[string]any) (tools.Result, error) {
	code, _ := args["code"].(string)
	if code == "" {
		return tools.Result{}, tools.NewInvalidArgsError(t.Name(), "code must not be empty", nil)
	}

	var logs []string
	prims := primitives.Build(t.store, func(msg string) {
		logs = append(logs, msg)
	})

	res, err := t.executor.Execute(ctx, code, prims)
	if err != nil {
		return tools.Result{}, err
	}

	out := tools.NewResult(res.Value)
	allLogs := append(logs, res.Logs...)
	if len(allLogs) > 0 {
		out.Metadata = map[string]any{"logs": allLogs}
	}
	return out, nil
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
