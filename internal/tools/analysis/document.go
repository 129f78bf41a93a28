package analysis

import (
	"context"
	"strings"

	"medrun/internal/analysis"
	"medrun/internal/recordstore"
	"medrun/internal/tools"
)

type documentArgs struct {
	PatientID    string `json:"patient_id" jsonschema:"description=Patient whose documents to analyze,required"`
	AnalysisType string `json:"analysis_type" jsonschema:"description=Analysis lens,enum=summary|findings|medication_review,default=summary"`
}

// DocumentTool sends a patient's narrative documents to the remote
// specialist service for interpretation.
type DocumentTool struct {
	tools.BaseTool
	client *analysis.Client
	store  *recordstore.Store
}

// NewDocumentTool creates the analyze_document tool.
func NewDocumentTool(client *analysis.Client, store *recordstore.Store) *DocumentTool {
	return &DocumentTool{
		BaseTool: tools.BaseTool{
			ToolName: "analyze_document",
			ToolDescription: "Analyze a patient's narrative documents (reports, notes) with the " +
				"document specialist service. Use for free-text interpretation the structured " +
				"tools cannot answer.",
			ToolParameters: tools.BuildSchema(documentArgs{}),
		},
		client: client,
		store:  store,
	}
}

// Execute implements the Tool interface. A connection failure to the
// specialist is a recoverable tool error, not a session failure.
func (t *DocumentTool) Execute(ctx context.Context, args map[string]any) (tools.Result, error) {
	patientID, _ := args["patient_id"].(string)
	analysisType, _ := args["analysis_type"].(string)
	if analysisType == "" {
		analysisType = "summary"
	}

	bundle, err := t.store.LoadRecord(patientID)
	if err != nil {
		return tools.Result{}, err
	}

	content := collectNarratives(bundle)
	if content == "" {
		return tools.NewResult("no narrative documents on record for this patient"), nil
	}

	result, err := t.client.AnalyzeDocument(ctx, content, analysisType)
	if err != nil {
		return tools.Result{}, err
	}
	return tools.NewResult(result), nil
}

// collectNarratives gathers the text of DiagnosticReport and
// DocumentReference resources.
func collectNarratives(bundle map[string]any) string {
	var sb strings.Builder
	for _, rt := range []string{"DiagnosticReport", "DocumentReference"} {
		for _, r := range recordstore.Search(bundle, rt) {
			if text, ok := r["text"].(map[string]any); ok {
				if div, ok := text["div"].(string); ok {
					sb.WriteString(div)
					sb.WriteString("\n")
				}
			}
			if conclusion, ok := r["conclusion"].(string); ok {
				sb.WriteString(conclusion)
				sb.WriteString("\n")
			}
		}
	}
	return strings.TrimSpace(sb.String())
}
