package clinical

import (
	"context"
	"fmt"
	"math"

	"medrun/internal/tools"
)

type scoreArgs struct {
	Score      string         `json:"score" jsonschema:"description=Which score to calculate,enum=wells_dvt|chadsvasc|curb65|meld,required"`
	Parameters map[string]any `json:"parameters" jsonschema:"description=Score-specific clinical parameters,required"`
}

// ScoreTool calculates validated clinical risk scores. The arithmetic is
// deterministic and lives here, never in the oracle: a language model must
// not be trusted to add up risk points.
type ScoreTool struct {
	tools.BaseTool
}

// NewScoreTool creates the calculate_clinical_score tool.
func NewScoreTool() *ScoreTool {
	return &ScoreTool{
		BaseTool: tools.BaseTool{
			ToolName: "calculate_clinical_score",
			ToolDescription: "Calculate a validated clinical risk score: wells_dvt (DVT probability), " +
				"chadsvasc (stroke risk in atrial fibrillation), curb65 (pneumonia severity), " +
				"meld (end-stage liver disease). Pass the clinical parameters the score requires " +
				"as booleans/numbers in 'parameters'.",
			ToolParameters: tools.BuildSchema(scoreArgs{}),
		},
	}
}

// Execute implements the Tool interface.
func (t *ScoreTool) Execute(ctx context.Context, args map[string]any) (tools.Result, error) {
	score, _ := args["score"].(string)
	params, _ := args["parameters"].(map[string]any)
	if params == nil {
		params = map[string]any{}
	}

	switch score {
	case "wells_dvt":
		return tools.NewResult(WellsDVT(params)), nil
	case "chadsvasc":
		return tools.NewResult(CHADSVASc(params)), nil
	case "curb65":
		return tools.NewResult(CURB65(params)), nil
	case "meld":
		return MELD(params)
	default:
		return tools.Result{}, fmt.Errorf("unknown score %q", score)
	}
}

// WellsDVT calculates the Wells score for deep vein thrombosis probability.
func WellsDVT(p map[string]any) map[string]any {
	score := 0
	criteria := []string{
		"active_cancer",
		"paralysis_or_immobilization",
		"bedridden_3days_or_surgery_12weeks",
		"localized_tenderness",
		"entire_leg_swollen",
		"calf_swelling_3cm",
		"pitting_edema",
		"collateral_superficial_veins",
		"previous_dvt",
	}
	for _, c := range criteria {
		if boolParam(p, c) {
			score++
		}
	}
	if boolParam(p, "alternative_diagnosis_likely") {
		score -= 2
	}

	risk := "low"
	switch {
	case score >= 3:
		risk = "high"
	case score >= 1:
		risk = "moderate"
	}

	return map[string]any{
		"score":          score,
		"risk":           risk,
		"interpretation": fmt.Sprintf("Wells DVT score %d: %s probability of DVT", score, risk),
	}
}

// CHADSVASc calculates the CHA2DS2-VASc stroke risk score for atrial
// fibrillation.
func CHADSVASc(p map[string]any) map[string]any {
	score := 0
	if boolParam(p, "chf") {
		score++
	}
	if boolParam(p, "hypertension") {
		score++
	}
	age := numParam(p, "age")
	switch {
	case age >= 75:
		score += 2
	case age >= 65:
		score++
	}
	if boolParam(p, "diabetes") {
		score++
	}
	if boolParam(p, "stroke_or_tia") {
		score += 2
	}
	if boolParam(p, "vascular_disease") {
		score++
	}
	if sex, _ := p["sex"].(string); sex == "female" {
		score++
	}

	risk := "low"
	switch {
	case score >= 2:
		risk = "high"
	case score == 1:
		risk = "moderate"
	}

	return map[string]any{
		"score":          score,
		"risk":           risk,
		"interpretation": fmt.Sprintf("CHA2DS2-VASc score %d: %s stroke risk", score, risk),
	}
}

// CURB65 calculates the CURB-65 pneumonia severity score.
func CURB65(p map[string]any) map[string]any {
	score := 0
	if boolParam(p, "confusion") {
		score++
	}
	if numParam(p, "urea_mmol_l") > 7 {
		score++
	}
	if numParam(p, "respiratory_rate") >= 30 {
		score++
	}
	sbp := numParam(p, "systolic_bp")
	dbp := numParam(p, "diastolic_bp")
	if (sbp > 0 && sbp < 90) || (dbp > 0 && dbp <= 60) {
		score++
	}
	if numParam(p, "age") >= 65 {
		score++
	}

	var disposition string
	switch {
	case score >= 3:
		disposition = "severe, consider ICU assessment"
	case score == 2:
		disposition = "moderate, consider hospital admission"
	default:
		disposition = "low severity, consider outpatient treatment"
	}

	return map[string]any{
		"score":          score,
		"interpretation": fmt.Sprintf("CURB-65 score %d: %s", score, disposition),
	}
}

// MELD calculates the MELD score for end-stage liver disease severity.
// Inputs below 1.0 are floored at 1.0 and creatinine is capped at 4.0,
// per the standard formula; the result is clamped to [6, 40].
func MELD(p map[string]any) (tools.Result, error) {
	bilirubin := numParam(p, "bilirubin_mg_dl")
	inr := numParam(p, "inr")
	creatinine := numParam(p, "creatinine_mg_dl")
	if bilirubin <= 0 || inr <= 0 || creatinine <= 0 {
		return tools.Result{}, fmt.Errorf("meld requires bilirubin_mg_dl, inr and creatinine_mg_dl")
	}

	bilirubin = math.Max(bilirubin, 1.0)
	inr = math.Max(inr, 1.0)
	creatinine = math.Min(math.Max(creatinine, 1.0), 4.0)
	if boolParam(p, "on_dialysis") {
		creatinine = 4.0
	}

	raw := 3.78*math.Log(bilirubin) + 11.2*math.Log(inr) + 9.57*math.Log(creatinine) + 6.43
	score := int(math.Round(raw))
	if score < 6 {
		score = 6
	}
	if score > 40 {
		score = 40
	}

	return tools.NewResult(map[string]any{
		"score":          score,
		"interpretation": fmt.Sprintf("MELD score %d (range 6-40, higher is more severe)", score),
	}), nil
}

func boolParam(p map[string]any, key string) bool {
	v, _ := p[key].(bool)
	return v
}

func numParam(p map[string]any, key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
