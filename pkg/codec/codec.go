// Package codec maps patient records into the encoded feature space the
// classifier consumes and maps encoded values back to original units.
package codec

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Protocol-Lattice/stroke-agent/pkg/patient"
)

// ErrUnknownCategory is returned when a categorical value has no fitted column.
var ErrUnknownCategory = errors.New("category not in fitted vocabulary")

// Vector is an encoded feature vector.
type Vector []float64

// NumericParam holds the fitted standardization of one numeric field.
type NumericParam struct {
	Name  string  `yaml:"name" json:"name"`
	Mean  float64 `yaml:"mean" json:"mean"`
	Scale float64 `yaml:"scale" json:"scale"`
}

// CategoricalParam holds the fitted vocabulary of one categorical field.
type CategoricalParam struct {
	Name       string   `yaml:"name" json:"name"`
	Categories []string `yaml:"categories" json:"categories"`
}

// Params is the fitted preprocessing artifact.
type Params struct {
	Version     string             `yaml:"version" json:"version"`
	Numeric     []NumericParam     `yaml:"numeric" json:"numeric"`
	Categorical []CategoricalParam `yaml:"categorical" json:"categorical"`
}

// Group describes the encoded columns [Start, End) of one original field.
type Group struct {
	Field       string
	Start       int
	End         int
	Categorical bool
	Categories  []string
}

// Codec is immutable once built and safe for concurrent use.
type Codec struct {
	version  string
	numeric  []NumericParam
	groups   []Group
	names    []string
	catIndex map[string]map[string]int
}

// New validates params and builds a Codec.
func New(params Params) (*Codec, error) {
	if len(params.Numeric) != len(patient.NumericFields) {
		return nil, fmt.Errorf("codec: expected %d numeric fields, got %d", len(patient.NumericFields), len(params.Numeric))
	}
	if len(params.Categorical) != len(patient.CategoricalFields) {
		return nil, fmt.Errorf("codec: expected %d categorical fields, got %d", len(patient.CategoricalFields), len(params.Categorical))
	}

	c := &Codec{
		version:  params.Version,
		numeric:  append([]NumericParam(nil), params.Numeric...),
		catIndex: make(map[string]map[string]int, len(params.Categorical)),
	}

	col := 0
	for i, p := range params.Numeric {
		if p.Name != patient.NumericFields[i] {
			return nil, fmt.Errorf("codec: numeric field %d is %q, want %q", i, p.Name, patient.NumericFields[i])
		}
		if p.Scale == 0 || math.IsNaN(p.Scale) || math.IsInf(p.Scale, 0) || math.IsNaN(p.Mean) || math.IsInf(p.Mean, 0) {
			return nil, fmt.Errorf("codec: invalid standardization for %s", p.Name)
		}
		c.groups = append(c.groups, Group{Field: p.Name, Start: col, End: col + 1})
		c.names = append(c.names, p.Name)
		col++
	}

	for i, p := range params.Categorical {
		if p.Name != patient.CategoricalFields[i] {
			return nil, fmt.Errorf("codec: categorical field %d is %q, want %q", i, p.Name, patient.CategoricalFields[i])
		}
		index := make(map[string]int, len(p.Categories))
		for j, cat := range p.Categories {
			if _, dup := index[cat]; dup {
				return nil, fmt.Errorf("codec: duplicate category %q for %s", cat, p.Name)
			}
			index[cat] = j
		}
		for _, want := range expectedCategories(p.Name) {
			if _, ok := index[want]; !ok {
				return nil, fmt.Errorf("codec: vocabulary for %s lacks %q", p.Name, want)
			}
		}
		c.catIndex[p.Name] = index
		cats := append([]string(nil), p.Categories...)
		c.groups = append(c.groups, Group{Field: p.Name, Start: col, End: col + len(cats), Categorical: true, Categories: cats})
		for _, cat := range cats {
			c.names = append(c.names, p.Name+"="+cat)
		}
		col += len(cats)
	}
	return c, nil
}

func expectedCategories(field string) []string {
	if values, ok := patient.Enum(field); ok {
		return values
	}
	return []string{"false", "true"}
}

// Version reports the artifact version the codec was built from.
func (c *Codec) Version() string { return c.version }

// Width is the encoded vector length.
func (c *Codec) Width() int { return len(c.names) }

// NumericCount is the number of leading standardized columns.
func (c *Codec) NumericCount() int { return len(c.numeric) }

// Groups returns the per-field column layout in encoded order.
func (c *Codec) Groups() []Group {
	out := make([]Group, len(c.groups))
	copy(out, c.groups)
	return out
}

// Encode standardizes the numeric fields and one-hot expands the
// categorical fields of rec.
func (c *Codec) Encode(rec patient.Record) (Vector, error) {
	vec := make(Vector, c.Width())
	for _, g := range c.groups {
		if !g.Categorical {
			x, _ := rec.Numeric(g.Field)
			p := c.numeric[g.Start]
			vec[g.Start] = (x - p.Mean) / p.Scale
			continue
		}
		value, _ := rec.Category(g.Field)
		idx, ok := c.catIndex[g.Field][value]
		if !ok {
			return nil, fmt.Errorf("encode %s=%q: %w", g.Field, value, ErrUnknownCategory)
		}
		vec[g.Start+idx] = 1
	}
	return vec, nil
}

// DecodeNumeric maps standardized values of encoded columns [start, end)
// back to original units. The range must lie within the numeric block.
func (c *Codec) DecodeNumeric(values []float64, start, end int) ([]float64, error) {
	if start < 0 || end > c.NumericCount() || start > end {
		return nil, fmt.Errorf("decode: column range [%d,%d) outside numeric block [0,%d)", start, end, c.NumericCount())
	}
	if len(values) != end-start {
		return nil, fmt.Errorf("decode: got %d values for %d columns", len(values), end-start)
	}
	out := make([]float64, len(values))
	for i, v := range values {
		p := c.numeric[start+i]
		out[i] = v*p.Scale + p.Mean
	}
	return out, nil
}

// ExpandFeatureNames returns the encoded column names in Encode order:
// numeric names unchanged, categorical columns as "field=category".
func (c *Codec) ExpandFeatureNames() []string {
	return append([]string(nil), c.names...)
}

// FieldOf returns the original field of an expanded column name.
func FieldOf(name string) string {
	if i := strings.IndexByte(name, '='); i >= 0 {
		return name[:i]
	}
	return name
}
