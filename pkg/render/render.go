// Package render turns a stored attribution view into force, waterfall and
// decision artifacts. Rendering never recomputes attributions.
package render

import (
	"fmt"
	"math"
	"sort"

	"github.com/Protocol-Lattice/stroke-agent/pkg/explain"
)

// Kind identifies an artifact layout.
type Kind string

const (
	KindForce     Kind = "force"
	KindWaterfall Kind = "waterfall"
	KindDecision  Kind = "decision"
)

// DefaultMaxDisplay is the waterfall feature limit when none is given.
const DefaultMaxDisplay = 10

// Entry is one displayed bar. Cumulative is the running model output after
// this entry is applied, accumulating from the base value.
type Entry struct {
	Name       string  `json:"name"`
	Label      string  `json:"label,omitempty"`
	Value      float64 `json:"attribution"`
	Cumulative float64 `json:"cumulative"`
}

// Artifact is an opaque renderable handed to the display layer.
type Artifact struct {
	Kind       Kind             `json:"kind"`
	Title      string           `json:"title"`
	View       explain.ViewKind `json:"view"`
	BaseValue  float64          `json:"base_value"`
	Output     float64          `json:"output"`
	Entries    []Entry          `json:"entries"`
	OtherCount int              `json:"other_count,omitempty"`
}

// byMagnitude returns feature indices ordered by descending |attribution|;
// ties keep column order.
func byMagnitude(values []float64) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(values[idx[a]]) > math.Abs(values[idx[b]])
	})
	return idx
}

func entry(v explain.View, i int) Entry {
	e := Entry{Name: v.FeatureNames[i], Value: v.Values[i]}
	if i < len(v.Labels) {
		e.Label = v.Labels[i]
	}
	return e
}

// accumulate fills Cumulative bottom-up: the last entry is applied first,
// so the first entry lands on the output.
func accumulate(base float64, entries []Entry) {
	running := base
	for i := len(entries) - 1; i >= 0; i-- {
		running += entries[i].Value
		entries[i].Cumulative = running
	}
}

// Force splits features into those pushing the output up and those pushing
// it down, each ordered by magnitude.
func Force(v explain.View) Artifact {
	var up, down []Entry
	for _, i := range byMagnitude(v.Values) {
		switch e := entry(v, i); {
		case e.Value > 0:
			up = append(up, e)
		case e.Value < 0:
			down = append(down, e)
		}
	}
	entries := append(up, down...)
	running := v.BaseValue
	for i := range entries {
		running += entries[i].Value
		entries[i].Cumulative = running
	}
	return Artifact{
		Kind:      KindForce,
		Title:     "Force view",
		View:      v.Kind,
		BaseValue: v.BaseValue,
		Output:    v.Output,
		Entries:   entries,
	}
}

// Waterfall shows at most maxDisplay features ranked by |attribution|. The
// remainder is collapsed into a single "N other features" entry placed last.
// maxDisplay <= 0 means DefaultMaxDisplay.
func Waterfall(v explain.View, maxDisplay int) Artifact {
	if maxDisplay <= 0 {
		maxDisplay = DefaultMaxDisplay
	}
	order := byMagnitude(v.Values)
	shown := order
	var rest []int
	if len(order) > maxDisplay {
		shown, rest = order[:maxDisplay], order[maxDisplay:]
	}

	entries := make([]Entry, 0, len(shown)+1)
	for _, i := range shown {
		entries = append(entries, entry(v, i))
	}
	if len(rest) > 0 {
		other := 0.0
		for _, i := range rest {
			other += v.Values[i]
		}
		entries = append(entries, Entry{Name: fmt.Sprintf("%d other features", len(rest)), Value: other})
	}
	accumulate(v.BaseValue, entries)

	return Artifact{
		Kind:       KindWaterfall,
		Title:      fmt.Sprintf("Waterfall view (max_display=%d)", maxDisplay),
		View:       v.Kind,
		BaseValue:  v.BaseValue,
		Output:     v.Output,
		Entries:    entries,
		OtherCount: len(rest),
	}
}

// Decision traces the cumulative path from the base value to the output,
// most important feature on top.
func Decision(v explain.View) Artifact {
	order := byMagnitude(v.Values)
	entries := make([]Entry, 0, len(order))
	for _, i := range order {
		entries = append(entries, entry(v, i))
	}
	accumulate(v.BaseValue, entries)
	return Artifact{
		Kind:      KindDecision,
		Title:     "Decision view",
		View:      v.Kind,
		BaseValue: v.BaseValue,
		Output:    v.Output,
		Entries:   entries,
	}
}
