// Package explain computes Shapley attributions for a patient and expresses
// them in original feature space.
package explain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Protocol-Lattice/stroke-agent/pkg/cache"
	"github.com/Protocol-Lattice/stroke-agent/pkg/classifier"
	"github.com/Protocol-Lattice/stroke-agent/pkg/codec"
	"github.com/Protocol-Lattice/stroke-agent/pkg/concurrent"
	"github.com/Protocol-Lattice/stroke-agent/pkg/patient"
	"github.com/Protocol-Lattice/stroke-agent/pkg/predictor"
	"github.com/Protocol-Lattice/stroke-agent/pkg/shapley"
)

// ErrNoExplanation is returned when a view is requested before any
// explanation was computed.
var ErrNoExplanation = errors.New("no explanation computed for this session")

// Option configures an Engine.
type Option func(*config)

type config struct {
	exactMaxFeatures int
	permutations     int
	seed             int64
	workers          int
	cacheSize        int
	cacheTTL         time.Duration
}

func defaultConfig() *config {
	return &config{
		exactMaxFeatures: 12,
		permutations:     10,
		seed:             42,
		workers:          8,
		cacheSize:        256,
		cacheTTL:         time.Hour,
	}
}

// WithExactMaxFeatures sets the widest input explained by full coalition
// enumeration; wider inputs use permutation sampling.
func WithExactMaxFeatures(n int) Option {
	return func(c *config) { c.exactMaxFeatures = n }
}

// WithPermutations sets the number of antithetic permutation pairs.
func WithPermutations(pairs int) Option {
	return func(c *config) {
		if pairs > 0 {
			c.permutations = pairs
		}
	}
}

// WithSeed fixes the permutation generator seed.
func WithSeed(seed int64) Option {
	return func(c *config) { c.seed = seed }
}

// WithWorkers bounds the goroutines used per explanation.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithCache sizes the process-wide result cache. size <= 0 disables it.
func WithCache(size int, ttl time.Duration) Option {
	return func(c *config) {
		c.cacheSize = size
		c.cacheTTL = ttl
	}
}

// Engine explains predictions. Everything it holds is read-only after
// construction except the mutex-guarded cache.
type Engine struct {
	codec      *codec.Codec
	model      classifier.Model
	background [][]float64
	pool       *concurrent.Pool
	cache      *cache.LRUCache[*Result]
	cfg        *config
}

// NewEngine builds an Engine over a fixed background set of encoded rows.
func NewEngine(c *codec.Codec, m classifier.Model, background [][]float64, opts ...Option) (*Engine, error) {
	if c == nil || m == nil {
		return nil, errors.New("explain: codec and model are required")
	}
	if len(background) == 0 {
		return nil, errors.New("explain: background set is empty")
	}
	for i, row := range background {
		if len(row) != c.Width() {
			return nil, fmt.Errorf("explain: background row %d has %d columns, want %d", i, len(row), c.Width())
		}
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	rows := make([][]float64, len(background))
	for i, row := range background {
		rows[i] = append([]float64(nil), row...)
	}

	e := &Engine{
		codec:      c,
		model:      m,
		background: rows,
		pool:       concurrent.NewPool(cfg.workers),
		cfg:        cfg,
	}
	if cfg.cacheSize > 0 {
		e.cache = cache.NewLRUCache[*Result](cfg.cacheSize, cfg.cacheTTL)
	}
	return e, nil
}

// Explain computes attributions for rec in encoded space and re-expresses
// the inputs in original units.
func (e *Engine) Explain(ctx context.Context, rec patient.Record) (*Result, error) {
	vec, err := e.codec.Encode(rec)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}

	key := cache.VectorKey(vec)
	if e.cache != nil {
		if res, ok := e.cache.Get(key); ok {
			return res, nil
		}
	}

	f := func(x []float64) (float64, error) { return predictor.Infer(e.model, x) }

	var vals shapley.Values
	if len(vec) <= e.cfg.exactMaxFeatures && len(vec) <= shapley.MaxExactFeatures {
		vals, err = shapley.Exact(ctx, e.pool, f, vec, e.background)
	} else {
		vals, err = shapley.Permutation(ctx, e.pool, f, vec, e.background, e.cfg.permutations, e.cfg.seed)
	}
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}

	data := append([]float64(nil), vec...)
	n := e.codec.NumericCount()
	decoded, err := e.codec.DecodeNumeric(vec[:n], 0, n)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	copy(data, decoded)

	res := &Result{
		record: rec,
		base:   vals.Base,
		output: vals.Output,
		names:  e.codec.ExpandFeatureNames(),
		data:   data,
		phi:    vals.Phi,
		groups: e.codec.Groups(),
	}
	if e.cache != nil {
		e.cache.Set(key, res)
	}
	return res, nil
}
