package dists

import (
	"math"
	"math/rand/v2"
	"testing"
)

// almostEqual checks if two floats are equal within a tolerance
func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestHalfNormal_LogProb(t *testing.T) {
	h := HalfNormal{Sigma: 1}

	// At x = 0 the density is 2/sqrt(2*pi), so the log is ln2 - ln(sqrt(2*pi)).
	want0 := math.Log(2) - 0.5*math.Log(2*math.Pi)
	if got := h.LogProb(0); !almostEqual(got, want0, 1e-12) {
		t.Errorf("LogProb(0) = %v, want %v", got, want0)
	}

	want1 := math.Log(2) - 0.5*math.Log(2*math.Pi) - 0.5
	if got := h.LogProb(1); !almostEqual(got, want1, 1e-12) {
		t.Errorf("LogProb(1) = %v, want %v", got, want1)
	}

	if got := h.LogProb(-0.1); !math.IsInf(got, -1) {
		t.Errorf("LogProb(-0.1) = %v, want -Inf", got)
	}
}

func TestHalfNormal_RandMoments(t *testing.T) {
	src := rand.NewPCG(7, 11)
	h := HalfNormal{Sigma: 1, Src: src}

	const n = 20000
	sum := 0.0
	for i := 0; i < n; i++ {
		v := h.Rand()
		if v < 0 {
			t.Fatalf("Rand() = %v, want non-negative", v)
		}
		sum += v
	}

	mean := sum / n
	if !almostEqual(mean, h.Mean(), 0.02) {
		t.Errorf("sample mean = %v, want %v within 0.02", mean, h.Mean())
	}
}

func TestNegBinomial_LogProbIsProperPMF(t *testing.T) {
	nb := NegBinomial{Mu: 5, Alpha: 3}

	total := 0.0
	expv := 0.0
	for k := 0.0; k <= 500; k++ {
		p := math.Exp(nb.LogProb(k))
		total += p
		expv += k * p
	}

	if !almostEqual(total, 1, 1e-9) {
		t.Errorf("sum of PMF over support = %v, want 1", total)
	}
	if !almostEqual(expv, nb.Mean(), 1e-6) {
		t.Errorf("expectation from PMF = %v, want %v", expv, nb.Mean())
	}
}

func TestNegBinomial_LogProbSupport(t *testing.T) {
	nb := NegBinomial{Mu: 5, Alpha: 3}

	for _, y := range []float64{-1, -0.5, 2.5, math.Inf(1)} {
		if got := nb.LogProb(y); !math.IsInf(got, -1) {
			t.Errorf("LogProb(%v) = %v, want -Inf", y, got)
		}
	}

	bad := []NegBinomial{
		{Mu: 0, Alpha: 3},
		{Mu: -2, Alpha: 3},
		{Mu: 5, Alpha: 0},
		{Mu: math.Inf(1), Alpha: 3},
		{Mu: math.NaN(), Alpha: 3},
	}
	for _, d := range bad {
		if got := d.LogProb(2); !math.IsInf(got, -1) {
			t.Errorf("LogProb with Mu=%v Alpha=%v = %v, want -Inf", d.Mu, d.Alpha, got)
		}
	}
}

// With very large dispersion the negative binomial collapses onto the
// Poisson with the same mean.
func TestNegBinomial_PoissonLimit(t *testing.T) {
	mu := 4.0
	nb := NegBinomial{Mu: mu, Alpha: 1e8}

	for k := 0.0; k <= 12; k++ {
		lg, _ := math.Lgamma(k + 1)
		poisson := -mu + k*math.Log(mu) - lg
		if got := nb.LogProb(k); !almostEqual(got, poisson, 1e-4) {
			t.Errorf("LogProb(%v) = %v, want Poisson value %v", k, got, poisson)
		}
	}
}

func TestNegBinomial_RandMoments(t *testing.T) {
	src := rand.NewPCG(3, 5)
	nb := NegBinomial{Mu: 10, Alpha: 5, Src: src}

	const n = 30000
	sum := 0.0
	sumSq := 0.0
	for i := 0; i < n; i++ {
		v := nb.Rand()
		if v < 0 || v != math.Floor(v) {
			t.Fatalf("Rand() = %v, want non-negative integer", v)
		}
		sum += v
		sumSq += v * v
	}

	mean := sum / n
	variance := sumSq/n - mean*mean
	if !almostEqual(mean, nb.Mean(), 0.2) {
		t.Errorf("sample mean = %v, want %v within 0.2", mean, nb.Mean())
	}
	if !almostEqual(variance, nb.Variance(), 2.0) {
		t.Errorf("sample variance = %v, want %v within 2.0", variance, nb.Variance())
	}
}
