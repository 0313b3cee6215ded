// Package fixture provides fitted artifacts shared by package tests.
package fixture

import (
	"math"

	"github.com/Protocol-Lattice/stroke-agent/pkg/codec"
	"github.com/Protocol-Lattice/stroke-agent/pkg/patient"
)

// Params mirrors the fitted preprocessor of the stroke dataset.
func Params() codec.Params {
	return codec.Params{
		Version: "stroke-preprocessor/test",
		Numeric: []codec.NumericParam{
			{Name: patient.FieldAge, Mean: 43.23, Scale: 22.61},
			{Name: patient.FieldAvgGlucoseLevel, Mean: 106.15, Scale: 45.28},
			{Name: patient.FieldBMI, Mean: 28.89, Scale: 7.85},
		},
		Categorical: []codec.CategoricalParam{
			{Name: patient.FieldGender, Categories: []string{"Female", "Male"}},
			{Name: patient.FieldHypertension, Categories: []string{"false", "true"}},
			{Name: patient.FieldHeartDisease, Categories: []string{"false", "true"}},
			{Name: patient.FieldEverMarried, Categories: []string{"false", "true"}},
			{Name: patient.FieldWorkType, Categories: []string{"Govt_job", "Never_worked", "Private", "Self-employed", "children"}},
			{Name: patient.FieldResidenceType, Categories: []string{"Rural", "Urban"}},
			{Name: patient.FieldSmokingStatus, Categories: []string{"Unknown", "formerly smoked", "never smoked", "smokes"}},
		},
	}
}

// Codec builds a codec from Params and panics on error.
func Codec() *codec.Codec {
	c, err := codec.New(Params())
	if err != nil {
		panic(err)
	}
	return c
}

// Candidate is the reference patient used across tests.
func Candidate() map[string]any {
	return map[string]any{
		"gender":            "Female",
		"age":               67.0,
		"hypertension":      false,
		"heart_disease":     true,
		"ever_married":      true,
		"work_type":         "Private",
		"Residence_type":    "Urban",
		"avg_glucose_level": 228.69,
		"bmi":               36.6,
		"smoking_status":    "formerly smoked",
	}
}

// Record validates Candidate and panics on error.
func Record() patient.Record {
	rec, err := patient.Validate(Candidate())
	if err != nil {
		panic(err)
	}
	return rec
}

// Weights is a logistic model over the 22 encoded columns with an
// interaction-free but nonlinear output through the sigmoid.
var Weights = []float64{
	1.6, 0.45, 0.2, // age, glucose, bmi
	-0.05, 0.05, // gender
	-0.2, 0.3, // hypertension
	-0.15, 0.35, // heart disease
	0.1, -0.1, // ever married
	0.05, -0.3, 0.1, 0.2, -0.6, // work type
	-0.02, 0.02, // residence
	0.0, 0.15, -0.05, 0.25, // smoking
}

// Bias of the logistic fixture model.
const Bias = -3.2

// Logistic scores an encoded vector with Weights and Bias.
func Logistic(x []float64) float64 {
	z := Bias
	for i, w := range Weights {
		z += w * x[i]
	}
	return 1 / (1 + math.Exp(-z))
}

// Background encodes a small deterministic reference population.
func Background() [][]float64 {
	c := Codec()
	candidates := []map[string]any{
		person("Male", 45, false, false, true, "Private", "Urban", 95.1, 27.4, "never smoked"),
		person("Female", 31, false, false, false, "Govt_job", "Rural", 82.3, 23.9, "Unknown"),
		person("Female", 58, true, false, true, "Self-employed", "Urban", 140.7, 31.2, "formerly smoked"),
		person("Male", 12, false, false, false, "children", "Rural", 101.0, 19.5, "Unknown"),
		person("Male", 72, true, true, true, "Private", "Rural", 190.2, 29.8, "smokes"),
		person("Female", 39, false, false, true, "Private", "Urban", 88.4, 35.1, "smokes"),
	}
	rows := make([][]float64, 0, len(candidates))
	for _, cand := range candidates {
		rec, err := patient.Validate(cand)
		if err != nil {
			panic(err)
		}
		vec, err := c.Encode(rec)
		if err != nil {
			panic(err)
		}
		rows = append(rows, vec)
	}
	return rows
}

func person(gender string, age float64, hyper, heart, married bool, work, residence string, glucose, bmi float64, smoking string) map[string]any {
	return map[string]any{
		"gender":            gender,
		"age":               age,
		"hypertension":      hyper,
		"heart_disease":     heart,
		"ever_married":      married,
		"work_type":         work,
		"Residence_type":    residence,
		"avg_glucose_level": glucose,
		"bmi":               bmi,
		"smoking_status":    smoking,
	}
}
