// Package shapley computes interventional Shapley values of a scalar model
// against a fixed background sample.
//
// Both estimators satisfy completeness exactly: Base is the mean model output
// over the background rows and Base + Σ Phi equals the output at x up to
// floating-point rounding.
package shapley

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/Protocol-Lattice/stroke-agent/pkg/concurrent"
)

// Func is the model under explanation.
type Func func(x []float64) (float64, error)

// Values holds one explanation.
type Values struct {
	Base   float64
	Output float64
	Phi    []float64
}

// MaxExactFeatures caps coalition enumeration at 2^20 model calls per row.
const MaxExactFeatures = 20

func checkInputs(x []float64, background [][]float64) error {
	if len(x) == 0 {
		return errors.New("shapley: empty input")
	}
	if len(background) == 0 {
		return errors.New("shapley: empty background")
	}
	for i, row := range background {
		if len(row) != len(x) {
			return fmt.Errorf("shapley: background row %d has %d features, want %d", i, len(row), len(x))
		}
	}
	return nil
}

type rowResult struct {
	base float64
	phi  []float64
}

// reduce averages per-row results in row order.
func reduce(rows []rowResult, width int, output float64) Values {
	out := Values{Output: output, Phi: make([]float64, width)}
	n := float64(len(rows))
	for _, r := range rows {
		out.Base += r.base
		for i, v := range r.phi {
			out.Phi[i] += v
		}
	}
	out.Base /= n
	for i := range out.Phi {
		out.Phi[i] /= n
	}
	return out
}

// Exact enumerates every coalition. Cost is 2^M model calls per background
// row, so it is only suitable for narrow inputs.
func Exact(ctx context.Context, pool *concurrent.Pool, f Func, x []float64, background [][]float64) (Values, error) {
	if err := checkInputs(x, background); err != nil {
		return Values{}, err
	}
	m := len(x)
	if m > MaxExactFeatures {
		return Values{}, fmt.Errorf("shapley: %d features exceeds exact limit %d", m, MaxExactFeatures)
	}
	output, err := f(x)
	if err != nil {
		return Values{}, err
	}

	weights := coalitionWeights(m)
	full := 1 << m

	rows, err := concurrent.Map(ctx, pool, len(background), func(r int) (rowResult, error) {
		b := background[r]
		v := make([]float64, full)
		z := make([]float64, m)
		for mask := 0; mask < full; mask++ {
			for j := 0; j < m; j++ {
				if mask&(1<<j) != 0 {
					z[j] = x[j]
				} else {
					z[j] = b[j]
				}
			}
			val, err := f(z)
			if err != nil {
				return rowResult{}, err
			}
			v[mask] = val
		}
		phi := make([]float64, m)
		for i := 0; i < m; i++ {
			bit := 1 << i
			for mask := 0; mask < full; mask++ {
				if mask&bit != 0 {
					continue
				}
				phi[i] += weights[popcount(mask)] * (v[mask|bit] - v[mask])
			}
		}
		return rowResult{base: v[0], phi: phi}, nil
	})
	if err != nil {
		return Values{}, err
	}
	return reduce(rows, m, output), nil
}

// Permutation estimates Shapley values from pairs antithetic feature
// orderings drawn from a generator seeded with seed. Identical inputs and
// seed give identical values.
func Permutation(ctx context.Context, pool *concurrent.Pool, f Func, x []float64, background [][]float64, pairs int, seed int64) (Values, error) {
	if err := checkInputs(x, background); err != nil {
		return Values{}, err
	}
	if pairs <= 0 {
		pairs = 1
	}
	m := len(x)
	output, err := f(x)
	if err != nil {
		return Values{}, err
	}

	rng := rand.New(rand.NewSource(seed))
	perms := make([][]int, 0, 2*pairs)
	for k := 0; k < pairs; k++ {
		p := rng.Perm(m)
		rev := make([]int, m)
		for i, j := range p {
			rev[m-1-i] = j
		}
		perms = append(perms, p, rev)
	}

	rows, err := concurrent.Map(ctx, pool, len(background), func(r int) (rowResult, error) {
		b := background[r]
		base, err := f(b)
		if err != nil {
			return rowResult{}, err
		}
		phi := make([]float64, m)
		z := make([]float64, m)
		for _, perm := range perms {
			copy(z, b)
			prev := base
			for _, j := range perm {
				if z[j] == x[j] {
					continue
				}
				z[j] = x[j]
				cur, err := f(z)
				if err != nil {
					return rowResult{}, err
				}
				phi[j] += cur - prev
				prev = cur
			}
		}
		for j := range phi {
			phi[j] /= float64(len(perms))
		}
		return rowResult{base: base, phi: phi}, nil
	})
	if err != nil {
		return Values{}, err
	}
	return reduce(rows, m, output), nil
}

// coalitionWeights returns |S|!(M-|S|-1)!/M! indexed by |S|.
func coalitionWeights(m int) []float64 {
	w := make([]float64, m)
	for s := 0; s < m; s++ {
		// s!(m-s-1)!/m! = 1 / (m * C(m-1, s))
		w[s] = 1 / (float64(m) * binomial(m-1, s))
	}
	return w
}

func binomial(n, k int) float64 {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	r := 1.0
	for i := 1; i <= k; i++ {
		r = r * float64(n-k+i) / float64(i)
	}
	return r
}

func popcount(v int) int {
	n := 0
	for v != 0 {
		v &= v - 1
		n++
	}
	return n
}
