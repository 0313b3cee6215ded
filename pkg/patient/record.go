// Package patient defines the closed set of patient fields the stroke model
// consumes and validates untrusted planner-supplied candidates into Records.
package patient

import "strconv"

// Wire keys, matching the column names the model was fitted on.
const (
	FieldAge             = "age"
	FieldAvgGlucoseLevel = "avg_glucose_level"
	FieldBMI             = "bmi"
	FieldGender          = "gender"
	FieldHypertension    = "hypertension"
	FieldHeartDisease    = "heart_disease"
	FieldEverMarried     = "ever_married"
	FieldWorkType        = "work_type"
	FieldResidenceType   = "Residence_type"
	FieldSmokingStatus   = "smoking_status"
)

// NumericFields lists the continuous fields in encoded column order.
var NumericFields = []string{FieldAge, FieldAvgGlucoseLevel, FieldBMI}

// CategoricalFields lists the categorical fields in encoded column order.
// Booleans are categorical for encoding purposes.
var CategoricalFields = []string{
	FieldGender, FieldHypertension, FieldHeartDisease, FieldEverMarried,
	FieldWorkType, FieldResidenceType, FieldSmokingStatus,
}

// BooleanFields lists the categorical fields carried as JSON booleans.
var BooleanFields = []string{FieldHypertension, FieldHeartDisease, FieldEverMarried}

// Enumerations accepted for the string-valued categorical fields.
var (
	Genders         = []string{"Male", "Female"}
	WorkTypes       = []string{"Private", "Self-employed", "Govt_job", "children", "Never_worked"}
	ResidenceTypes  = []string{"Urban", "Rural"}
	SmokingStatuses = []string{"never smoked", "formerly smoked", "smokes", "Unknown"}
)

// Enum returns the closed value set of a string-valued categorical field.
func Enum(field string) ([]string, bool) {
	switch field {
	case FieldGender:
		return Genders, true
	case FieldWorkType:
		return WorkTypes, true
	case FieldResidenceType:
		return ResidenceTypes, true
	case FieldSmokingStatus:
		return SmokingStatuses, true
	}
	return nil, false
}

// RequiredFields returns every required key, numeric fields first.
func RequiredFields() []string {
	out := make([]string, 0, len(NumericFields)+len(CategoricalFields))
	out = append(out, NumericFields...)
	return append(out, CategoricalFields...)
}

// Record is a validated patient. Build it with Validate.
type Record struct {
	Age             float64 `json:"age"`
	AvgGlucoseLevel float64 `json:"avg_glucose_level"`
	BMI             float64 `json:"bmi"`
	Gender          string  `json:"gender"`
	Hypertension    bool    `json:"hypertension"`
	HeartDisease    bool    `json:"heart_disease"`
	EverMarried     bool    `json:"ever_married"`
	WorkType        string  `json:"work_type"`
	ResidenceType   string  `json:"Residence_type"`
	SmokingStatus   string  `json:"smoking_status"`
}

// Numeric returns the value of a numeric field.
func (r Record) Numeric(field string) (float64, bool) {
	switch field {
	case FieldAge:
		return r.Age, true
	case FieldAvgGlucoseLevel:
		return r.AvgGlucoseLevel, true
	case FieldBMI:
		return r.BMI, true
	}
	return 0, false
}

// Category returns the categorical value of field in its vocabulary form.
// Booleans are rendered as "true"/"false".
func (r Record) Category(field string) (string, bool) {
	switch field {
	case FieldGender:
		return r.Gender, true
	case FieldHypertension:
		return strconv.FormatBool(r.Hypertension), true
	case FieldHeartDisease:
		return strconv.FormatBool(r.HeartDisease), true
	case FieldEverMarried:
		return strconv.FormatBool(r.EverMarried), true
	case FieldWorkType:
		return r.WorkType, true
	case FieldResidenceType:
		return r.ResidenceType, true
	case FieldSmokingStatus:
		return r.SmokingStatus, true
	}
	return "", false
}

// Map returns the record keyed by wire field name.
func (r Record) Map() map[string]any {
	return map[string]any{
		FieldAge:             r.Age,
		FieldAvgGlucoseLevel: r.AvgGlucoseLevel,
		FieldBMI:             r.BMI,
		FieldGender:          r.Gender,
		FieldHypertension:    r.Hypertension,
		FieldHeartDisease:    r.HeartDisease,
		FieldEverMarried:     r.EverMarried,
		FieldWorkType:        r.WorkType,
		FieldResidenceType:   r.ResidenceType,
		FieldSmokingStatus:   r.SmokingStatus,
	}
}
