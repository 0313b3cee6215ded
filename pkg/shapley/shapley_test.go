package shapley

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/Protocol-Lattice/stroke-agent/pkg/concurrent"
)

func linear(w []float64, bias float64) Func {
	return func(x []float64) (float64, error) {
		s := bias
		for i, v := range w {
			s += v * x[i]
		}
		return s, nil
	}
}

func sigmoidOf(f Func) Func {
	return func(x []float64) (float64, error) {
		v, err := f(x)
		return 1 / (1 + math.Exp(-v)), err
	}
}

func interaction(x []float64) (float64, error) {
	return x[0]*x[1] + math.Sin(x[2])*x[0] + x[3]*x[3], nil
}

var testBackground = [][]float64{
	{0, 1, 0.5, -1},
	{1, 0, -0.5, 2},
	{-2, 3, 1.5, 0},
}

func assertComplete(t *testing.T, v Values) {
	t.Helper()
	sum := v.Base
	for _, p := range v.Phi {
		sum += p
	}
	if math.Abs(sum-v.Output) > 1e-9 {
		t.Fatalf("completeness violated: base+Σφ=%v output=%v", sum, v.Output)
	}
}

func TestExactLinearMatchesClosedForm(t *testing.T) {
	w := []float64{2, -1, 0.5, 3}
	x := []float64{1, 2, 3, 4}
	v, err := Exact(context.Background(), concurrent.NewPool(2), linear(w, 0.7), x, testBackground)
	if err != nil {
		t.Fatal(err)
	}
	for i := range w {
		mean := 0.0
		for _, row := range testBackground {
			mean += row[i]
		}
		mean /= float64(len(testBackground))
		want := w[i] * (x[i] - mean)
		if math.Abs(v.Phi[i]-want) > 1e-9 {
			t.Fatalf("φ[%d]=%v want %v", i, v.Phi[i], want)
		}
	}
	assertComplete(t, v)
}

func TestExactSplitsPureInteraction(t *testing.T) {
	f := func(x []float64) (float64, error) { return x[0] * x[1], nil }
	v, err := Exact(context.Background(), concurrent.NewPool(1), f, []float64{1, 1}, [][]float64{{0, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(v.Phi[0]-0.5) > 1e-12 || math.Abs(v.Phi[1]-0.5) > 1e-12 {
		t.Fatalf("expected symmetric split, got %v", v.Phi)
	}
}

func TestPermutationIsExactForAdditiveModels(t *testing.T) {
	w := []float64{2, -1, 0.5, 3}
	x := []float64{1, 2, 3, 4}
	exact, err := Exact(context.Background(), concurrent.NewPool(2), linear(w, 0), x, testBackground)
	if err != nil {
		t.Fatal(err)
	}
	perm, err := Permutation(context.Background(), concurrent.NewPool(2), linear(w, 0), x, testBackground, 3, 42)
	if err != nil {
		t.Fatal(err)
	}
	for i := range w {
		if math.Abs(exact.Phi[i]-perm.Phi[i]) > 1e-9 {
			t.Fatalf("φ[%d]: exact %v permutation %v", i, exact.Phi[i], perm.Phi[i])
		}
	}
}

func TestCompletenessNonlinear(t *testing.T) {
	x := []float64{0.3, -1.2, 2.0, 0.8}
	pool := concurrent.NewPool(4)
	models := map[string]Func{
		"interaction": interaction,
		"sigmoid":     sigmoidOf(linear([]float64{1, 2, -1, 0.5}, -0.2)),
	}
	for name, f := range models {
		t.Run(name, func(t *testing.T) {
			exact, err := Exact(context.Background(), pool, f, x, testBackground)
			if err != nil {
				t.Fatal(err)
			}
			assertComplete(t, exact)
			perm, err := Permutation(context.Background(), pool, f, x, testBackground, 5, 7)
			if err != nil {
				t.Fatal(err)
			}
			assertComplete(t, perm)
			if math.Abs(exact.Base-perm.Base) > 1e-12 {
				t.Fatalf("base differs: %v vs %v", exact.Base, perm.Base)
			}
		})
	}
}

func TestPermutationDeterministic(t *testing.T) {
	x := []float64{0.3, -1.2, 2.0, 0.8}
	a, err := Permutation(context.Background(), concurrent.NewPool(3), interaction, x, testBackground, 4, 99)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Permutation(context.Background(), concurrent.NewPool(1), interaction, x, testBackground, 4, 99)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected identical values, got %v and %v", a, b)
	}
}

func TestUnchangedFeaturesGetZero(t *testing.T) {
	x := []float64{1, 0, 0}
	bg := [][]float64{{0, 0, 1}, {0, 0, 0}}
	v, err := Permutation(context.Background(), concurrent.NewPool(2), interaction3, x, bg, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if v.Phi[1] != 0 {
		t.Fatalf("feature equal everywhere must get zero attribution, got %v", v.Phi[1])
	}
}

func interaction3(x []float64) (float64, error) { return x[0] + 2*x[1] - x[2], nil }

func TestInputErrors(t *testing.T) {
	pool := concurrent.NewPool(1)
	if _, err := Exact(context.Background(), pool, interaction, []float64{1, 2, 3, 4}, nil); err == nil {
		t.Fatalf("expected empty background error")
	}
	if _, err := Permutation(context.Background(), pool, interaction, []float64{1, 2}, [][]float64{{1}}, 1, 1); err == nil {
		t.Fatalf("expected width mismatch error")
	}
	if _, err := Exact(context.Background(), pool, interaction, make([]float64, MaxExactFeatures+1), [][]float64{make([]float64, MaxExactFeatures+1)}); err == nil {
		t.Fatalf("expected exact limit error")
	}
	boom := errors.New("boom")
	failing := func([]float64) (float64, error) { return 0, boom }
	if _, err := Permutation(context.Background(), pool, failing, []float64{1}, [][]float64{{0}}, 1, 1); !errors.Is(err, boom) {
		t.Fatalf("expected model error, got %v", err)
	}
}

func TestCoalitionWeightsSumPerFeature(t *testing.T) {
	m := 5
	w := coalitionWeights(m)
	total := 0.0
	for s := 0; s < m; s++ {
		total += w[s] * binomial(m-1, s)
	}
	if math.Abs(total-1) > 1e-12 {
		t.Fatalf("weights over coalitions excluding i must sum to 1, got %v", total)
	}
}
