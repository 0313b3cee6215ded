package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/Protocol-Lattice/stroke-agent/pkg/explain"
	"github.com/Protocol-Lattice/stroke-agent/pkg/patient"
	"github.com/Protocol-Lattice/stroke-agent/pkg/predictor"
	"github.com/Protocol-Lattice/stroke-agent/pkg/render"
)

// Tool names declared to the planner.
const (
	ToolPredict   = "get_stroke_prediction"
	ToolValidate  = "validate_input"
	ToolExplain   = "get_reverted_shap_explanation"
	ToolForce     = "get_force_plot"
	ToolWaterfall = "get_waterfall_plot"
	ToolDecision  = "get_decision_plot"
)

// ToolSchemaVersion identifies the declared tool set.
const ToolSchemaVersion = "stroke-tools/1"

// Explainer computes an explanation for a validated record.
type Explainer interface {
	Explain(ctx context.Context, rec patient.Record) (*explain.Result, error)
}

// StrokeTools returns the six tools in declaration order.
func StrokeTools(p *predictor.Predictor, e Explainer) []Tool {
	return []Tool{
		&predictTool{predictor: p},
		&validateTool{predictor: p},
		&explainTool{predictor: p, explainer: e},
		&renderTool{name: ToolForce, description: "Shows a force view of the cached explanation: features pushing the risk up versus down."},
		&renderTool{name: ToolWaterfall, description: "Shows a waterfall view of the cached explanation with at most max_display features; the rest are aggregated.", waterfall: true},
		&renderTool{name: ToolDecision, description: "Shows a decision view of the cached explanation: the cumulative path from the base value to the prediction."},
	}
}

func jsonResponse(v any) (ToolResponse, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return ToolResponse{}, err
	}
	return ToolResponse{Content: string(b)}, nil
}

func personData(tool string, args map[string]any) (map[string]any, error) {
	raw, ok := args["person_data"]
	if !ok {
		return nil, &DispatchError{Tool: tool, Reason: "missing argument person_data"}
	}
	data, ok := raw.(map[string]any)
	if !ok {
		return nil, &DispatchError{Tool: tool, Reason: "person_data must be an object"}
	}
	return data, nil
}

type predictTool struct {
	predictor *predictor.Predictor
}

func (t *predictTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        ToolPredict,
		Description: "Predicts the stroke probability of a patient.",
		InputSchema: objectSchema(map[string]any{"person_data": personDataSchema()}, "person_data"),
	}
}

func (t *predictTool) Invoke(_ context.Context, req ToolRequest) (ToolResponse, error) {
	data, err := personData(ToolPredict, req.Arguments)
	if err != nil {
		return ToolResponse{}, err
	}
	return jsonResponse(t.predictor.Predict(data))
}

type validateTool struct {
	predictor *predictor.Predictor
}

func (t *validateTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        ToolValidate,
		Description: "Validates that the patient data contains every required key and that each value is acceptable.",
		InputSchema: objectSchema(map[string]any{"person_data": personDataSchema()}, "person_data"),
	}
}

type validation struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

func (t *validateTool) Invoke(_ context.Context, req ToolRequest) (ToolResponse, error) {
	data, err := personData(ToolValidate, req.Arguments)
	if err != nil {
		return ToolResponse{}, err
	}
	if _, err := t.predictor.Validate(data); err != nil {
		return jsonResponse(validation{Valid: false, Message: err.Error()})
	}
	return jsonResponse(validation{Valid: true, Message: "Input data is valid."})
}

type explainTool struct {
	predictor *predictor.Predictor
	explainer Explainer
}

func (t *explainTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        ToolExplain,
		Description: "Computes SHAP attributions for the patient and reports them in original units (not scaled or one-hot values). The result is kept for the plot tools.",
		InputSchema: objectSchema(map[string]any{
			"person_data": personDataSchema(),
			"view":        viewSchema(),
		}, "person_data"),
	}
}

type explanationPayload struct {
	View         explain.ViewKind `json:"view"`
	BaseValues   float64          `json:"base_values"`
	Output       float64          `json:"model_output"`
	Data         []float64        `json:"data"`
	Values       []float64        `json:"values"`
	FeatureNames []string         `json:"feature_names"`
	Labels       []string         `json:"labels"`
}

func (t *explainTool) Invoke(ctx context.Context, req ToolRequest) (ToolResponse, error) {
	data, err := personData(ToolExplain, req.Arguments)
	if err != nil {
		return ToolResponse{}, err
	}
	kind, err := viewArg(ToolExplain, req.Arguments)
	if err != nil {
		return ToolResponse{}, err
	}
	rec, err := t.predictor.Validate(data)
	if err != nil {
		return ToolResponse{}, err
	}
	res, err := t.explainer.Explain(ctx, rec)
	if err != nil {
		return ToolResponse{}, err
	}
	req.Conversation.SetExplanation(res)

	v := res.View(kind)
	return jsonResponse(explanationPayload{
		View:         v.Kind,
		BaseValues:   v.BaseValue,
		Output:       v.Output,
		Data:         v.Data,
		Values:       v.Values,
		FeatureNames: v.FeatureNames,
		Labels:       v.Labels,
	})
}

type renderTool struct {
	name        string
	description string
	waterfall   bool
}

func (t *renderTool) Spec() ToolSpec {
	props := map[string]any{"view": viewSchema()}
	if t.waterfall {
		props["max_display"] = map[string]any{
			"type":        "integer",
			"description": "Maximum number of features to show. Defaults to 10.",
		}
	}
	return ToolSpec{Name: t.name, Description: t.description, InputSchema: objectSchema(props)}
}

type renderStatus struct {
	Status   string `json:"status"`
	Features int    `json:"features"`
}

func (t *renderTool) Invoke(ctx context.Context, req ToolRequest) (ToolResponse, error) {
	res, ok := req.Conversation.Explanation()
	if !ok {
		return ToolResponse{}, &ExplanationStateError{Tool: t.name}
	}
	kind, err := viewArg(t.name, req.Arguments)
	if err != nil {
		return ToolResponse{}, err
	}
	view := res.View(kind)

	var (
		artifact render.Artifact
		status   string
	)
	switch t.name {
	case ToolForce:
		artifact = render.Force(view)
		status = "Force plot generated and shown to the user."
	case ToolWaterfall:
		maxDisplay, err := intArg(t.name, req.Arguments, "max_display", render.DefaultMaxDisplay)
		if err != nil {
			return ToolResponse{}, err
		}
		artifact = render.Waterfall(view, maxDisplay)
		status = fmt.Sprintf("Waterfall plot generated with max_display=%d.", maxDisplay)
	default:
		artifact = render.Decision(view)
		status = "Decision plot generated and shown to the user."
	}

	if req.Show != nil {
		if err := req.Show(ctx, artifact); err != nil {
			return ToolResponse{}, fmt.Errorf("display %s: %w", t.name, err)
		}
	}
	return jsonResponse(renderStatus{Status: status, Features: len(artifact.Entries)})
}

func viewArg(tool string, args map[string]any) (explain.ViewKind, error) {
	raw, ok := args["view"]
	if !ok || raw == nil {
		return explain.ViewExpanded, nil
	}
	s, _ := raw.(string)
	switch explain.ViewKind(s) {
	case explain.ViewExpanded, explain.ViewCollapsed:
		return explain.ViewKind(s), nil
	}
	return "", &DispatchError{Tool: tool, Reason: fmt.Sprintf("view must be %q or %q", explain.ViewExpanded, explain.ViewCollapsed)}
}

// intArg reads an integer argument decoded either as json.Number or float64.
// Values beyond the int32 range are rejected rather than wrapped.
func intArg(tool string, args map[string]any, key string, def int) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def, nil
	}
	var f float64
	switch v := raw.(type) {
	case json.Number:
		n, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return 0, &DispatchError{Tool: tool, Reason: key + " must be an integer", Err: err}
		}
		f = n
	case float64:
		f = v
	case int:
		f = float64(v)
	default:
		return 0, &DispatchError{Tool: tool, Reason: key + " must be an integer"}
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, &DispatchError{Tool: tool, Reason: key + " must be an integer"}
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, &DispatchError{Tool: tool, Reason: fmt.Sprintf("%s is out of range: %g", key, f)}
	}
	return int(f), nil
}

// errorPayload is the function result for a failed tool call.
func errorPayload(err error) string {
	body := map[string]any{"error": err.Error()}
	var ve *patient.ValidationError
	if errors.As(err, &ve) {
		body["invalid_keys"] = ve.Keys
	}
	b, _ := json.Marshal(body)
	return string(b)
}
