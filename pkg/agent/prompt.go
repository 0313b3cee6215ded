package agent

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Protocol-Lattice/stroke-agent/pkg/patient"
)

const defaultSystemPrompt = `You are Stroke Bot, a medical assistant that estimates a patient's stroke risk with a trained model and explains the estimate.
Collect the patient's data, call validate_input when in doubt, then get_stroke_prediction.
To explain a prediction call get_reverted_shap_explanation first; only then may you call get_force_plot, get_waterfall_plot or get_decision_plot.
Report probabilities as percentages, describe which features raise or lower the risk, and remind the user that this is not a diagnosis.`

var variableDescriptions = map[string]string{
	patient.FieldGender:          "patient gender",
	patient.FieldAge:             "age in years, greater than 0",
	patient.FieldHypertension:    "true if the patient has hypertension",
	patient.FieldHeartDisease:    "true if the patient has a heart disease",
	patient.FieldEverMarried:     "true if the patient was ever married",
	patient.FieldWorkType:        "type of work",
	patient.FieldResidenceType:   "residence area",
	patient.FieldAvgGlucoseLevel: "average blood glucose level in mg/dL, greater than 0",
	patient.FieldBMI:             "body mass index, greater than 0",
	patient.FieldSmokingStatus:   "smoking history",
}

// AcceptedVariables describes every patient field the model accepts, one
// line per field.
func AcceptedVariables() string {
	var b strings.Builder
	for _, field := range patient.RequiredFields() {
		fmt.Fprintf(&b, "- %s: %s", field, variableDescriptions[field])
		if values, ok := patient.Enum(field); ok {
			fmt.Fprintf(&b, " (one of: %s)", strings.Join(values, ", "))
		} else if slices.Contains(patient.BooleanFields, field) {
			b.WriteString(" (true or false)")
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// DefaultSystemPrompt is used when no prompt file is configured.
func DefaultSystemPrompt() string {
	return defaultSystemPrompt + "\n\nAccepted variables:\n" + AcceptedVariables()
}

func personDataSchema() map[string]any {
	props := make(map[string]any, len(variableDescriptions))
	for _, field := range patient.RequiredFields() {
		p := map[string]any{"description": variableDescriptions[field]}
		switch {
		case slices.Contains(patient.BooleanFields, field):
			p["type"] = "boolean"
		default:
			if values, ok := patient.Enum(field); ok {
				p["type"] = "string"
				p["enum"] = values
			} else {
				p["type"] = "number"
			}
		}
		props[field] = p
	}
	return map[string]any{
		"type":                 "object",
		"description":          "Patient data.",
		"properties":           props,
		"required":             patient.RequiredFields(),
		"additionalProperties": false,
	}
}

func viewSchema() map[string]any {
	return map[string]any{
		"type":        "string",
		"enum":        []string{"expanded", "collapsed"},
		"description": "expanded shows one entry per category indicator, collapsed one entry per original field. Defaults to expanded.",
	}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
