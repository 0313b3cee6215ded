package patient

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
)

// ValidationError reports the first violated invariant of a candidate.
// Keys lists every offending key; for missing keys all of them at once.
type ValidationError struct {
	Keys    []string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validate checks a candidate and builds a Record from it.
//
// Checks run in a fixed order so messages are reproducible: missing keys
// (all reported together), categorical membership, boolean typing, then
// numeric positivity. The first failing field of a stage wins.
func Validate(candidate map[string]any) (Record, error) {
	var missing []string
	for _, key := range RequiredFields() {
		if _, ok := candidate[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Record{}, &ValidationError{
			Keys:    missing,
			Message: fmt.Sprintf("missing required keys: [%s]", strings.Join(missing, ", ")),
		}
	}

	strs := make(map[string]string, 4)
	for _, key := range CategoricalFields {
		allowed, ok := Enum(key)
		if !ok {
			continue
		}
		value, isString := candidate[key].(string)
		if !isString || !slices.Contains(allowed, value) {
			return Record{}, &ValidationError{
				Keys:    []string{key},
				Message: fmt.Sprintf("invalid value for '%s': must be one of %s", key, quoteList(allowed)),
			}
		}
		strs[key] = value
	}

	bools := make(map[string]bool, len(BooleanFields))
	for _, key := range BooleanFields {
		value, ok := candidate[key].(bool)
		if !ok {
			return Record{}, &ValidationError{
				Keys:    []string{key},
				Message: fmt.Sprintf("invalid value for '%s': must be true or false", key),
			}
		}
		bools[key] = value
	}

	nums := make(map[string]float64, len(NumericFields))
	for _, key := range NumericFields {
		value, ok := toFloat(candidate[key])
		if !ok || !(value > 0) || math.IsInf(value, 0) {
			return Record{}, &ValidationError{
				Keys:    []string{key},
				Message: fmt.Sprintf("invalid value for '%s': must be a positive number", key),
			}
		}
		nums[key] = value
	}

	return Record{
		Age:             nums[FieldAge],
		AvgGlucoseLevel: nums[FieldAvgGlucoseLevel],
		BMI:             nums[FieldBMI],
		Gender:          strs[FieldGender],
		Hypertension:    bools[FieldHypertension],
		HeartDisease:    bools[FieldHeartDisease],
		EverMarried:     bools[FieldEverMarried],
		WorkType:        strs[FieldWorkType],
		ResidenceType:   strs[FieldResidenceType],
		SmokingStatus:   strs[FieldSmokingStatus],
	}, nil
}

// toFloat accepts the numeric shapes a decoded JSON object or a Go caller
// may carry. Booleans are not numbers here.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func quoteList(list []string) string {
	quoted := make([]string, len(list))
	for i, item := range list {
		quoted[i] = "'" + item + "'"
	}
	return strings.Join(quoted, ", ")
}
