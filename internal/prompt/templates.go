package prompt

import (
	"fmt"
	"strings"
)

const planningTemplate = `You are the planner of a clinical records agent. Break the user's query into the smallest ordered list of tasks that answers it.

Rules:
- Each task must be achievable with the available tools.
- Queries over a whole population or cohort ("all patients", "how many patients", batch statistics) must become ONE task that uses the run_analysis_code tool, never one task per patient.
- Do not add speculative tasks; fewer is better.

Available tools:
%s

User query: %s

Respond with JSON only, in this exact shape:
{"tasks": [{"description": "...", "suggested_tools": ["tool_name"]}]}`

const actionSystemTemplate = `You select the next tool calls for a clinical records agent working on one task. Base every decision on the task description and the recorded outputs; never invent data.

Current task: %s
%s
Outputs recorded so far (all tasks):
%s
%s`

const actionSuggestedNote = `The plan suggests these tools for this task: %s. Prefer them unless the recorded outputs show they do not fit.
`

const actionRetryNote = `
Previous attempt feedback: %s
Adjust your approach instead of repeating the same call.`

const promptedActionInstructions = `
Available tools:
%s

Respond with JSON only: a list of tool calls in this exact shape:
{"actions": [{"tool": "tool_name", "args": {...}, "rationale": "..."}]}
Select at most %d actions. If the recorded outputs already contain everything the task needs, respond {"actions": []}.`

const validationTemplate = `You validate task completion for a clinical records agent.

Task: %s

Outputs recorded so far:
%s

Is this task complete? A task is complete when its goal is answered by the recorded outputs. An empty result can be a complete answer (for example, a patient with no allergies on record). Data that looks structurally wrong for the question (wrong fields, wrong resource types) is NOT complete.

Respond with JSON only:
{"done": true/false, "data_complete": true/false, "reason": "..."}`

const discoveryTemplate = `The previous calls for this task returned empty or structurally unexpected data. Before retrying, inspect what the records actually look like.

Task: %s

Write JavaScript for the run_analysis_code tool that loads a small sample of the relevant records and returns their actual structure: resource types present, field names, and one or two example values. Use only these primitives:
%s

The code must define analyze() returning an object.

Respond with JSON only:
{"actions": [{"tool": "run_analysis_code", "args": {"code": "..."}, "rationale": "inspect record structure"}]}`

const optimizeArgsTemplate = `Refine the arguments for a tool call made by a clinical records agent. Fix obvious problems: misspelled enum values, wrong identifier formats, units embedded in numbers. Do not add parameters the schema does not declare and do not change the intent of the call.

Tool: %s
Parameter schema: %s
Proposed arguments: %s
Task context: %s

Respond with JSON only: the refined arguments object.`

const synthesisTemplate = `Write the final answer for the user of a clinical records agent.

User query: %s

Task outcomes:
%s

Recorded outputs:
%s

Rules:
- Answer directly from the recorded outputs; never invent values.
- If any task failed, state plainly which part of the question could not be answered and why.
- Be concise and clinically precise.`

const goalCheckTemplate = `Judge whether the recorded outputs are sufficient to answer the user's query.

User query: %s

Task outcomes:
%s

Respond with JSON only:
{"achieved": true/false, "missing": "..."}`

// Planning builds the planning prompt.
func Planning(query, toolCatalog string) string {
	return fmt.Sprintf(planningTemplate, toolCatalog, query)
}

// ActionSystem builds the system prompt for action selection.
// suggestedTools come from the plan; retryContext carries validator or
// error feedback from the previous cycle.
func ActionSystem(taskDescription string, suggestedTools []string, history, retryContext string) string {
	suggested := ""
	if len(suggestedTools) > 0 {
		suggested = fmt.Sprintf(actionSuggestedNote, strings.Join(suggestedTools, ", "))
	}
	note := ""
	if retryContext != "" {
		note = fmt.Sprintf(actionRetryNote, retryContext)
	}
	return fmt.Sprintf(actionSystemTemplate, taskDescription, suggested, history, note)
}

// PromptedActionInstructions appends the JSON protocol for models without
// native tool calling.
func PromptedActionInstructions(toolCatalog string, maxActions int) string {
	return fmt.Sprintf(promptedActionInstructions, toolCatalog, maxActions)
}

// ValidationPrompt builds the task completion check.
func ValidationPrompt(taskDescription, history string) string {
	return fmt.Sprintf(validationTemplate, taskDescription, history)
}

// Discovery builds the structure-inspection prompt for the adaptive
// discovery cycle.
func Discovery(taskDescription string, primitiveNames []string) string {
	return fmt.Sprintf(discoveryTemplate, taskDescription, strings.Join(primitiveNames, ", "))
}

// OptimizeArgs builds the argument refinement prompt.
func OptimizeArgs(tool, schemaJSON, argsJSON, taskDescription string) string {
	return fmt.Sprintf(optimizeArgsTemplate, tool, schemaJSON, argsJSON, taskDescription)
}

// Synthesis builds the final answer prompt.
func Synthesis(query, taskOutcomes, history string) string {
	return fmt.Sprintf(synthesisTemplate, query, taskOutcomes, history)
}

// GoalCheckPrompt builds the session-level sufficiency check.
func GoalCheckPrompt(query, taskOutcomes string) string {
	return fmt.Sprintf(goalCheckTemplate, query, taskOutcomes)
}
