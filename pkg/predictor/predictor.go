// Package predictor validates patient candidates and estimates stroke risk
// through the frozen classifier.
package predictor

import (
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/Protocol-Lattice/stroke-agent/pkg/classifier"
	"github.com/Protocol-Lattice/stroke-agent/pkg/codec"
	"github.com/Protocol-Lattice/stroke-agent/pkg/patient"
)

// InferenceError wraps a codec or classifier failure.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string { return "inference failed: " + e.Err.Error() }
func (e *InferenceError) Unwrap() error { return e.Err }

// Prediction is the structured result handed back to the planner.
// Probability is nil when the estimate could not be computed.
type Prediction struct {
	Probability *float64 `json:"probability"`
	Message     string   `json:"message"`
}

// Predictor couples the codec with the classifier.
type Predictor struct {
	codec  *codec.Codec
	model  classifier.Model
	logger *log.Logger
}

// New builds a Predictor. A nil logger falls back to log.Default().
func New(c *codec.Codec, m classifier.Model, logger *log.Logger) (*Predictor, error) {
	if c == nil {
		return nil, errors.New("predictor requires a codec")
	}
	if m == nil {
		return nil, errors.New("predictor requires a model")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Predictor{codec: c, model: m, logger: logger}, nil
}

// Validate checks an untrusted candidate. See patient.Validate for ordering.
func (p *Predictor) Validate(candidate map[string]any) (patient.Record, error) {
	return patient.Validate(candidate)
}

// Predict validates, encodes and scores a candidate. Failures never escape:
// they come back as a Prediction with a nil Probability.
func (p *Predictor) Predict(candidate map[string]any) Prediction {
	rec, err := p.Validate(candidate)
	if err == nil {
		var prob float64
		prob, err = p.Score(rec)
		if err == nil {
			rounded := math.Round(prob*1e4) / 1e4
			return Prediction{
				Probability: &rounded,
				Message:     fmt.Sprintf("The estimated stroke probability is %.2f%%.", prob*100),
			}
		}
	}
	p.logger.Printf("prediction failed: %v", err)
	return Prediction{Message: fmt.Sprintf("Error computing the prediction: %v", err)}
}

// Score returns the raw classifier probability for a validated record.
func (p *Predictor) Score(rec patient.Record) (prob float64, err error) {
	vec, err := p.codec.Encode(rec)
	if err != nil {
		return 0, &InferenceError{Err: err}
	}
	return Infer(p.model, vec)
}

// Infer calls the model, converting panics and out-of-range scores into
// InferenceErrors.
func Infer(m classifier.Model, vec []float64) (prob float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &InferenceError{Err: fmt.Errorf("model panic: %v", r)}
		}
	}()
	prob, err = m.Infer(vec)
	if err != nil {
		return 0, &InferenceError{Err: err}
	}
	if math.IsNaN(prob) || prob < 0 || prob > 1 {
		return 0, &InferenceError{Err: fmt.Errorf("model returned %v outside [0,1]", prob)}
	}
	return prob, nil
}
