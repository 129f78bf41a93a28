package agent

import (
	"context"
	"encoding/json"

	"medrun/internal/prompt"
	"medrun/internal/provider"
	"medrun/internal/tools"
)

// noOptimize lists tools whose arguments must pass through untouched.
// Rewriting generated analysis code through a second oracle call only
// degrades it.
var noOptimize = map[string]bool{
	"run_analysis_code": true,
}

// optimizeArgs asks the oracle to refine the arguments of one action
// against the tool's schema: fix enum casing, date formats and unit
// mismatches without inventing new parameters. Any failure falls back to
// the original arguments; optimization is best-effort and never blocks a
// call.
func (o *Orchestrator) optimizeArgs(ctx context.Context, task *Task, action prompt.Action) map[string]any {
	if noOptimize[action.Tool] || len(action.Args) == 0 {
		return action.Args
	}
	tool, ok := o.registry.Get(action.Tool)
	if !ok {
		return action.Args
	}

	schemaJSON, err := json.Marshal(tool.Parameters())
	if err != nil {
		return action.Args
	}
	argsJSON, err := json.Marshal(action.Args)
	if err != nil {
		return action.Args
	}

	req := provider.ChatRequest{
		Model: o.cfg.Model,
		Messages: []provider.Message{
			{Role: provider.RoleUser, Content: prompt.OptimizeArgs(action.Tool, string(schemaJSON), string(argsJSON), task.Description)},
		},
		Temperature: o.cfg.Temperature,
		Format:      provider.FormatJSON,
	}
	resp, err := o.oracle.Chat(ctx, req)
	if err != nil {
		o.logger.Debug().Err(err).Str("tool", action.Tool).Msg("argument optimization skipped")
		return action.Args
	}

	refined, err := prompt.ParseArgs(resp.Content)
	if err != nil || len(refined) == 0 {
		return action.Args
	}

	// The schema filter guards against the optimizer inventing params.
	return tools.FilterArgs(tool.Parameters(), refined)
}
