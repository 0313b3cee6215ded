package explain

import (
	"math"
	"strconv"

	"github.com/Protocol-Lattice/stroke-agent/pkg/codec"
	"github.com/Protocol-Lattice/stroke-agent/pkg/patient"
)

// ViewKind names the feature space of a View.
type ViewKind string

const (
	// ViewExpanded has one entry per encoded column: numeric fields plus one
	// entry per categorical indicator, named "field=category".
	ViewExpanded ViewKind = "expanded"
	// ViewCollapsed has one entry per original field. A categorical field's
	// attribution is the sum of its indicator attributions.
	ViewCollapsed ViewKind = "collapsed"
)

// View is an attribution in one feature space. FeatureNames, Data, Values
// and Labels are parallel.
type View struct {
	Kind         ViewKind  `json:"view"`
	BaseValue    float64   `json:"base_value"`
	Output       float64   `json:"model_output"`
	FeatureNames []string  `json:"feature_names"`
	Data         []float64 `json:"data"`
	Values       []float64 `json:"values"`
	Labels       []string  `json:"labels"`
}

// Len is the number of features in the view.
func (v View) Len() int { return len(v.FeatureNames) }

// Result is one explanation. It is immutable; accessors return copies.
type Result struct {
	record patient.Record
	base   float64
	output float64
	names  []string
	data   []float64
	phi    []float64
	groups []codec.Group
}

// Record returns the explained patient.
func (r *Result) Record() patient.Record { return r.record }

// BaseValue is the mean model output over the background set.
func (r *Result) BaseValue() float64 { return r.base }

// Output is the model output for the explained record.
func (r *Result) Output() float64 { return r.output }

// View returns the view of the given kind; unknown kinds yield the
// expanded view.
func (r *Result) View(kind ViewKind) View {
	if kind == ViewCollapsed {
		return r.Collapsed()
	}
	return r.Expanded()
}

// Expanded returns the per-indicator view. Numeric data is in original
// units; indicator data is 0 or 1.
func (r *Result) Expanded() View {
	labels := make([]string, len(r.data))
	for i, d := range r.data {
		labels[i] = formatValue(d)
	}
	return View{
		Kind:         ViewExpanded,
		BaseValue:    r.base,
		Output:       r.output,
		FeatureNames: append([]string(nil), r.names...),
		Data:         append([]float64(nil), r.data...),
		Values:       append([]float64(nil), r.phi...),
		Labels:       labels,
	}
}

// Collapsed returns the per-field view. A categorical field's value is the
// sum of its indicator attributions, its data is the vocabulary index of
// the active category and its label is the category itself.
func (r *Result) Collapsed() View {
	v := View{
		Kind:         ViewCollapsed,
		BaseValue:    r.base,
		Output:       r.output,
		FeatureNames: make([]string, 0, len(r.groups)),
		Data:         make([]float64, 0, len(r.groups)),
		Values:       make([]float64, 0, len(r.groups)),
		Labels:       make([]string, 0, len(r.groups)),
	}
	for _, g := range r.groups {
		v.FeatureNames = append(v.FeatureNames, g.Field)
		if !g.Categorical {
			v.Data = append(v.Data, r.data[g.Start])
			v.Values = append(v.Values, r.phi[g.Start])
			v.Labels = append(v.Labels, formatValue(r.data[g.Start]))
			continue
		}
		sum := 0.0
		active := -1
		for col := g.Start; col < g.End; col++ {
			sum += r.phi[col]
			if r.data[col] == 1 {
				active = col - g.Start
			}
		}
		label := ""
		if active >= 0 {
			label = g.Categories[active]
		}
		v.Data = append(v.Data, float64(active))
		v.Values = append(v.Values, sum)
		v.Labels = append(v.Labels, label)
	}
	return v
}

func formatValue(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
}
