package mcmc

import (
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// almostEqual checks if two floats are equal within a tolerance
func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// gaussTarget is a two-dimensional standard normal used to exercise the
// sampler against a known answer.
type gaussTarget struct{}

func (gaussTarget) ParamNames() []string { return []string{"x", "y"} }

func (gaussTarget) PriorSample(rng *rand.Rand) []float64 {
	n := distuv.Normal{Mu: 0, Sigma: 3, Src: rng}
	return []float64{n.Rand(), n.Rand()}
}

func (gaussTarget) LogProb(theta []float64) float64 {
	return -0.5 * (theta[0]*theta[0] + theta[1]*theta[1])
}

func (gaussTarget) Scales() []float64 { return []float64{1, 1} }

// rejectTarget has no support anywhere, so every chain must fail to start.
type rejectTarget struct{ gaussTarget }

func (rejectTarget) LogProb(theta []float64) float64 { return math.Inf(-1) }

func TestSample_RecoversGaussianMoments(t *testing.T) {
	ds, err := Sample(gaussTarget{}, Options{
		Chains:     2,
		Iterations: 2000,
		Warmup:     500,
		Seed:       1,
	})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if got := len(ds.Kept()); got != 2 {
		t.Fatalf("kept chains = %d, want 2", got)
	}
	if ds.NumDraws() != 4000 {
		t.Fatalf("NumDraws = %d, want 4000", ds.NumDraws())
	}

	for _, name := range []string{"x", "y"} {
		col, err := ds.Column(name)
		if err != nil {
			t.Fatalf("Column(%q): %v", name, err)
		}
		mean := stat.Mean(col, nil)
		sd := stat.StdDev(col, nil)
		if !almostEqual(mean, 0, 0.25) {
			t.Errorf("%s: posterior mean = %v, want 0 within 0.25", name, mean)
		}
		if sd < 0.6 || sd > 1.4 {
			t.Errorf("%s: posterior sd = %v, want near 1", name, sd)
		}
	}

	for _, c := range ds.Kept() {
		if c.Accept <= 0 || c.Accept >= 1 {
			t.Errorf("chain %d: acceptance rate = %v, want in (0,1)", c.ID, c.Accept)
		}
	}
}

func TestSample_DeterministicForSeed(t *testing.T) {
	opts := Options{Chains: 2, Iterations: 200, Warmup: 200, Seed: 7}

	a, err := Sample(gaussTarget{}, opts)
	if err != nil {
		t.Fatalf("first Sample: %v", err)
	}
	b, err := Sample(gaussTarget{}, opts)
	if err != nil {
		t.Fatalf("second Sample: %v", err)
	}

	for i := range a.Chains {
		da, db := a.Chains[i].Draws, b.Chains[i].Draws
		if !mat.Equal(da, db) {
			t.Errorf("chain %d: draws differ between identically seeded runs", i)
		}
	}
}

func TestSample_AllChainsFail(t *testing.T) {
	ds, err := Sample(rejectTarget{}, Options{
		Chains:       3,
		Iterations:   10,
		Warmup:       10,
		Seed:         5,
		MaxInitTries: 5,
	})
	if err == nil {
		t.Fatal("Sample succeeded against a target with no support")
	}
	if !strings.Contains(err.Error(), "all 3 chains failed") {
		t.Errorf("error = %q, want all-chains message", err)
	}
	if got := len(ds.Kept()); got != 0 {
		t.Errorf("kept chains = %d, want 0", got)
	}
	if got := len(ds.Errs()); got != 3 {
		t.Errorf("chain errors = %d, want 3", got)
	}
}

func TestDrawSet_FailedChainExcluded(t *testing.T) {
	ds := newDrawSet([]string{"a"}, 2)
	ds.Chains[0] = Chain{
		ID:    0,
		Draws: mat.NewDense(3, 1, []float64{1, 2, 3}),
	}
	ds.Chains[1] = Chain{
		ID:  1,
		Err: errFake,
	}

	if got := len(ds.Kept()); got != 1 {
		t.Fatalf("kept chains = %d, want 1", got)
	}
	if ds.NumDraws() != 3 {
		t.Errorf("NumDraws = %d, want 3", ds.NumDraws())
	}

	col, err := ds.Column("a")
	if err != nil {
		t.Fatalf("Column: %v", err)
	}
	want := []float64{1, 2, 3}
	for i := range want {
		if col[i] != want[i] {
			t.Errorf("col[%d] = %v, want %v", i, col[i], want[i])
		}
	}
}

func TestDrawSet_AddSeries(t *testing.T) {
	ds := newDrawSet([]string{"a"}, 1)
	ds.Chains[0] = Chain{ID: 0, Draws: mat.NewDense(2, 1, []float64{2, 5})}

	err := ds.AddSeries("pred", 3, func(theta []float64, _ *rand.Rand) []float64 {
		return []float64{theta[0], theta[0] * 10, theta[0] * 100}
	}, 1)
	if err != nil {
		t.Fatalf("AddSeries: %v", err)
	}

	if len(ds.Names) != 4 || ds.Names[1] != "pred[1]" || ds.Names[3] != "pred[3]" {
		t.Fatalf("names after AddSeries = %v", ds.Names)
	}
	start, n, ok := ds.Series("pred")
	if !ok || start != 1 || n != 3 {
		t.Fatalf("Series lookup = (%d, %d, %v)", start, n, ok)
	}

	col, err := ds.Column("pred[2]")
	if err != nil {
		t.Fatalf("Column: %v", err)
	}
	if col[0] != 20 || col[1] != 50 {
		t.Errorf("pred[2] column = %v, want [20 50]", col)
	}

	// Parameter columns are untouched by the widening.
	a, _ := ds.Column("a")
	if a[0] != 2 || a[1] != 5 {
		t.Errorf("a column = %v, want [2 5]", a)
	}
}

func TestDrawSet_AddSeriesFailureScopedToChain(t *testing.T) {
	ds := newDrawSet([]string{"a"}, 2)
	ds.Chains[0] = Chain{ID: 0, Draws: mat.NewDense(2, 1, []float64{1, 2})}
	ds.Chains[1] = Chain{ID: 1, Draws: mat.NewDense(2, 1, []float64{3, 4})}

	err := ds.AddSeries("bad", 2, func(theta []float64, _ *rand.Rand) []float64 {
		if theta[0] >= 3 {
			return []float64{math.NaN(), 0}
		}
		return []float64{theta[0], theta[0]}
	}, 1)
	if err != nil {
		t.Fatalf("AddSeries: %v", err)
	}

	kept := ds.Kept()
	if len(kept) != 1 || kept[0].ID != 0 {
		t.Fatalf("kept chains = %v, want only chain 0", len(kept))
	}
	if ds.Chains[1].Err == nil {
		t.Error("chain with non-finite replay kept no error")
	}

	col, err := ds.Column("bad[1]")
	if err != nil {
		t.Fatalf("Column: %v", err)
	}
	if len(col) != 2 || col[0] != 1 || col[1] != 2 {
		t.Errorf("bad[1] column = %v, want surviving chain only", col)
	}
}

// fakeGen unrolls a deterministic series so the fixed-parameter mode's
// bookkeeping is easy to check.
type fakeGen struct{ gaussTarget }

func (fakeGen) Len() int { return 3 }

func (fakeGen) Simulate(theta []float64, _ *rand.Rand) []float64 {
	return []float64{1, 2, 3}
}

func TestFixedParam_ShapeAndSeries(t *testing.T) {
	ds, err := FixedParam(fakeGen{}, "sim", Options{Iterations: 50, Seed: 3})
	if err != nil {
		t.Fatalf("FixedParam: %v", err)
	}

	if len(ds.Chains) != 1 {
		t.Fatalf("chains = %d, want 1", len(ds.Chains))
	}
	if ds.NumDraws() != 50 {
		t.Errorf("NumDraws = %d, want 50", ds.NumDraws())
	}
	if len(ds.Names) != 5 {
		t.Errorf("names = %v, want params plus sim[1..3]", ds.Names)
	}

	col, err := ds.Column("sim[2]")
	if err != nil {
		t.Fatalf("Column: %v", err)
	}
	for i, v := range col {
		if v != 2 {
			t.Fatalf("sim[2][%d] = %v, want 2", i, v)
		}
	}

	// Prior draws vary row to row.
	x, _ := ds.Column("x")
	if x[0] == x[1] && x[1] == x[2] {
		t.Error("prior draws look constant across iterations")
	}
}

var errFake = errors.New("synthetic chain failure")
