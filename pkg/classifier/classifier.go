// Package classifier is the frozen-model boundary: an encoded vector goes in,
// a stroke probability comes out.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// Model scores one encoded feature vector.
type Model interface {
	Infer(x []float64) (float64, error)
}

// Func adapts a plain scoring function to Model.
type Func func(x []float64) float64

func (f Func) Infer(x []float64) (float64, error) { return f(x), nil }

// Layer is one dense layer: out = act(W·in + b). Weights is [out][in].
type Layer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"`
}

// NetworkArtifact is the serialized form of a trained feed-forward network.
type NetworkArtifact struct {
	Version    string  `json:"version"`
	InputWidth int     `json:"input_width"`
	Layers     []Layer `json:"layers"`
}

// Network is a dense feed-forward network with a single output unit.
// It holds no mutable state and is safe for concurrent use.
type Network struct {
	version string
	width   int
	layers  []Layer
	acts    []func(float64) float64
}

var activations = map[string]func(float64) float64{
	"":        func(v float64) float64 { return v },
	"linear":  func(v float64) float64 { return v },
	"relu":    func(v float64) float64 { return math.Max(0, v) },
	"tanh":    math.Tanh,
	"sigmoid": func(v float64) float64 { return 1 / (1 + math.Exp(-v)) },
}

// NewNetwork validates the artifact's shapes and builds a Network.
func NewNetwork(a NetworkArtifact) (*Network, error) {
	if a.InputWidth <= 0 {
		return nil, errors.New("network: input width must be positive")
	}
	if len(a.Layers) == 0 {
		return nil, errors.New("network: no layers")
	}
	n := &Network{version: a.Version, width: a.InputWidth}
	in := a.InputWidth
	for i, l := range a.Layers {
		act, ok := activations[l.Activation]
		if !ok {
			return nil, fmt.Errorf("network: layer %d: unknown activation %q", i, l.Activation)
		}
		if len(l.Weights) == 0 || len(l.Weights) != len(l.Bias) {
			return nil, fmt.Errorf("network: layer %d: %d weight rows for %d biases", i, len(l.Weights), len(l.Bias))
		}
		for j, row := range l.Weights {
			if len(row) != in {
				return nil, fmt.Errorf("network: layer %d row %d has %d inputs, want %d", i, j, len(row), in)
			}
		}
		n.layers = append(n.layers, l)
		n.acts = append(n.acts, act)
		in = len(l.Weights)
	}
	if in != 1 {
		return nil, fmt.Errorf("network: output layer has %d units, want 1", in)
	}
	return n, nil
}

// LoadNetwork reads a JSON network artifact from path.
func LoadNetwork(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var a NetworkArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	n, err := NewNetwork(a)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return n, nil
}

// Version reports the artifact version.
func (n *Network) Version() string { return n.version }

// InputWidth is the expected encoded vector length.
func (n *Network) InputWidth() int { return n.width }

// Infer runs the forward pass.
func (n *Network) Infer(x []float64) (float64, error) {
	if len(x) != n.width {
		return 0, fmt.Errorf("network: got %d features, want %d", len(x), n.width)
	}
	cur := x
	for i, l := range n.layers {
		next := make([]float64, len(l.Weights))
		for j, row := range l.Weights {
			sum := l.Bias[j]
			for k, w := range row {
				sum += w * cur[k]
			}
			next[j] = n.acts[i](sum)
		}
		cur = next
	}
	return cur[0], nil
}

var _ Model = (*Network)(nil)
var _ Model = Func(nil)
