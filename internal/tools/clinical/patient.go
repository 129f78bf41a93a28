// Package clinical provides the patient-record tools the oracle can
// select: demographic lookup, resource searches and clinical score
// calculators over FHIR bundles.
package clinical

import (
	"context"
	"strings"

	"medrun/internal/recordstore"
	"medrun/internal/tools"
)

type patientArgs struct {
	PatientID string `json:"patient_id" jsonschema:"description=Patient identifier,required"`
}

type searchArgs struct {
	PatientID string `json:"patient_id" jsonschema:"description=Patient identifier,required"`
	Query     string `json:"query" jsonschema:"description=Optional case-insensitive text filter on the display text"`
	Limit     int    `json:"limit" jsonschema:"description=Maximum number of results"`
}

type listArgs struct {
	Limit int `json:"limit" jsonschema:"description=Maximum number of patient IDs to return,default=50"`
}

// Register adds all clinical record tools to the registry.
func Register(reg *tools.Registry, store *recordstore.Store) {
	reg.MustRegister(NewPatientInfoTool(store))
	reg.MustRegister(NewListPatientsTool(store))
	reg.MustRegister(newResourceTool(store, "search_conditions",
		"Search a patient's recorded conditions (diagnoses). Optional text filter.", "Condition"))
	reg.MustRegister(newResourceTool(store, "get_observations",
		"Get a patient's observations (lab results, vitals). Optional text filter.", "Observation"))
	reg.MustRegister(newResourceTool(store, "get_medications",
		"Get a patient's medication requests. Optional text filter.", "MedicationRequest"))
	reg.MustRegister(newResourceTool(store, "get_allergies",
		"Get a patient's recorded allergies and intolerances.", "AllergyIntolerance"))
	reg.MustRegister(newResourceTool(store, "get_procedures",
		"Get a patient's recorded procedures.", "Procedure"))
	reg.MustRegister(NewScoreTool())
}

// PatientInfoTool returns a patient's demographics.
type PatientInfoTool struct {
	tools.BaseTool
	store *recordstore.Store
}

// NewPatientInfoTool creates the get_patient_info tool.
func NewPatientInfoTool(store *recordstore.Store) *PatientInfoTool {
	return &PatientInfoTool{
		BaseTool: tools.BaseTool{
			ToolName:        "get_patient_info",
			ToolDescription: "Get a patient's demographics: name, gender, birth date.",
			ToolParameters:  tools.BuildSchema(patientArgs{}),
		},
		store: store,
	}
}

// Execute implements the Tool interface.
func (t *PatientInfoTool) Execute(ctx context.Context, args map[string]any) (tools.Result, error) {
	patientID, _ := args["patient_id"].(string)
	bundle, err := t.store.LoadRecord(patientID)
	if err != nil {
		return tools.Result{}, err
	}

	patients := recordstore.Search(bundle, "Patient")
	if len(patients) == 0 {
		return tools.NewResult(map[string]any{}), nil
	}

	p := patients[0]
	info := map[string]any{
		"id":        p["id"],
		"gender":    p["gender"],
		"birthDate": p["birthDate"],
	}
	if name, ok := p["name"].([]any); ok && len(name) > 0 {
		info["name"] = name[0]
	}
	return tools.NewResult(info), nil
}

// ListPatientsTool lists the patient IDs available in the record store.
type ListPatientsTool struct {
	tools.BaseTool
	store *recordstore.Store
}

// NewListPatientsTool creates the list_patients tool.
func NewListPatientsTool(store *recordstore.Store) *ListPatientsTool {
	return &ListPatientsTool{
		BaseTool: tools.BaseTool{
			ToolName:        "list_patients",
			ToolDescription: "List the patient IDs available in the record store.",
			ToolParameters:  tools.BuildSchema(listArgs{}),
		},
		store: store,
	}
}

// Execute implements the Tool interface.
func (t *ListPatientsTool) Execute(ctx context.Context, args map[string]any) (tools.Result, error) {
	limit := intArg(args, "limit", 50)
	ids, err := t.store.ListPatientIDs(limit)
	if err != nil {
		return tools.Result{}, err
	}
	return tools.NewResult(ids), nil
}

// resourceTool searches one FHIR resource type for a patient.
type resourceTool struct {
	tools.BaseTool
	store        *recordstore.Store
	resourceType string
}

func newResourceTool(store *recordstore.Store, name, description, resourceType string) *resourceTool {
	return &resourceTool{
		BaseTool: tools.BaseTool{
			ToolName:        name,
			ToolDescription: description,
			ToolParameters:  tools.BuildSchema(searchArgs{}),
		},
		store:        store,
		resourceType: resourceType,
	}
}

// Execute implements the Tool interface. An empty result list is data,
// not an error: a patient with nothing on record is a valid answer.
func (t *resourceTool) Execute(ctx context.Context, args map[string]any) (tools.Result, error) {
	patientID, _ := args["patient_id"].(string)
	bundle, err := t.store.LoadRecord(patientID)
	if err != nil {
		return tools.Result{}, err
	}

	resources := recordstore.Search(bundle, t.resourceType)

	if query, _ := args["query"].(string); query != "" {
		resources = filterByDisplayText(resources, query)
	}
	if limit := intArg(args, "limit", 0); limit > 0 && len(resources) > limit {
		resources = resources[:limit]
	}

	return tools.NewResult(resources), nil
}

// filterByDisplayText keeps resources whose code.text or code.coding
// display contains the query, case-insensitively.
func filterByDisplayText(resources []map[string]any, query string) []map[string]any {
	needle := strings.ToLower(query)
	var out []map[string]any
	for _, r := range resources {
		if strings.Contains(strings.ToLower(displayText(r)), needle) {
			out = append(out, r)
		}
	}
	return out
}

func displayText(resource map[string]any) string {
	code, ok := resource["code"].(map[string]any)
	if !ok {
		// AllergyIntolerance and MedicationRequest nest the code elsewhere
		if mc, ok := resource["medicationCodeableConcept"].(map[string]any); ok {
			code = mc
		} else {
			return ""
		}
	}
	if text, ok := code["text"].(string); ok && text != "" {
		return text
	}
	if codings, ok := code["coding"].([]any); ok && len(codings) > 0 {
		if coding, ok := codings[0].(map[string]any); ok {
			if display, ok := coding["display"].(string); ok {
				return display
			}
		}
	}
	return ""
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}
