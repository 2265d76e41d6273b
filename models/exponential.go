package models

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"epicurve/dists"
)

// expMean is the shared exponential growth curve a*(1+b)^t.
func expMean(a, b, t float64) float64 {
	return a * math.Pow(1+b, t)
}

// ExpNormal is the first-cut exponential growth model: cumulative cases at
// elapsed day t are Normal around a*(1+b)^t. It is deliberately naive
// (symmetric noise on count data) and mostly serves as the baseline the
// later models improve on.
//
// Priors: a ~ Normal(0, 1), b ~ Normal(0.3, 0.5), sigma ~ HalfNormal(1).
type ExpNormal struct {
	data Data
}

// NewExpNormal binds the model to its payload.
func NewExpNormal(data Data) (*ExpNormal, error) {
	if err := checkData(data); err != nil {
		return nil, err
	}
	return &ExpNormal{data: data}, nil
}

func (m *ExpNormal) Name() string { return "exponential" }

func (m *ExpNormal) ParamNames() []string { return []string{"a", "b", "sigma"} }

func (m *ExpNormal) Len() int { return len(m.data.T) }

func (m *ExpNormal) PriorSample(rng *rand.Rand) []float64 {
	return []float64{
		distuv.Normal{Mu: 0, Sigma: 1, Src: rng}.Rand(),
		distuv.Normal{Mu: 0.3, Sigma: 0.5, Src: rng}.Rand(),
		dists.HalfNormal{Sigma: 1, Src: rng}.Rand(),
	}
}

func (m *ExpNormal) LogProb(theta []float64) float64 {
	a, b, sigma := theta[0], theta[1], theta[2]
	if sigma <= 0 {
		return math.Inf(-1)
	}

	lp := distuv.Normal{Mu: 0, Sigma: 1}.LogProb(a) +
		distuv.Normal{Mu: 0.3, Sigma: 0.5}.LogProb(b) +
		dists.HalfNormal{Sigma: 1}.LogProb(sigma)

	if m.data.Y != nil {
		obs := distuv.Normal{Sigma: sigma}
		for i, t := range m.data.T {
			obs.Mu = expMean(a, b, t)
			lp += obs.LogProb(m.data.Y[i])
		}
	}
	return lp
}

func (m *ExpNormal) Simulate(theta []float64, rng *rand.Rand) []float64 {
	a, b, sigma := theta[0], theta[1], theta[2]
	out := make([]float64, len(m.data.T))
	for i, t := range m.data.T {
		out[i] = distuv.Normal{Mu: expMean(a, b, t), Sigma: sigma, Src: rng}.Rand()
	}
	return out
}

func (m *ExpNormal) Scales() []float64 { return []float64{0.25, 0.1, 0.25} }

// ExpNegBinom keeps the exponential mean but swaps the observation
// distribution for an overdispersed negative binomial, the right shape for
// count data. The growth curve has no overflow guard: fit to long horizons
// the mean can leave the representable range, and the affected chain fails.
//
// Priors: a ~ Exponential(0.01), b ~ Normal(0.3, 0.1), alpha ~ Gamma(6, 1).
type ExpNegBinom struct {
	data Data
}

// NewExpNegBinom binds the model to its payload.
func NewExpNegBinom(data Data) (*ExpNegBinom, error) {
	if err := checkData(data); err != nil {
		return nil, err
	}
	return &ExpNegBinom{data: data}, nil
}

func (m *ExpNegBinom) Name() string { return "negbinomial" }

func (m *ExpNegBinom) ParamNames() []string { return []string{"a", "b", "alpha"} }

func (m *ExpNegBinom) Len() int { return len(m.data.T) }

func (m *ExpNegBinom) PriorSample(rng *rand.Rand) []float64 {
	return []float64{
		distuv.Exponential{Rate: 0.01, Src: rng}.Rand(),
		distuv.Normal{Mu: 0.3, Sigma: 0.1, Src: rng}.Rand(),
		distuv.Gamma{Alpha: 6, Beta: 1, Src: rng}.Rand(),
	}
}

func (m *ExpNegBinom) LogProb(theta []float64) float64 {
	a, b, alpha := theta[0], theta[1], theta[2]
	if a <= 0 || alpha <= 0 {
		return math.Inf(-1)
	}

	lp := distuv.Exponential{Rate: 0.01}.LogProb(a) +
		distuv.Normal{Mu: 0.3, Sigma: 0.1}.LogProb(b) +
		distuv.Gamma{Alpha: 6, Beta: 1}.LogProb(alpha)

	if m.data.Y != nil {
		for i, t := range m.data.T {
			mu := expMean(a, b, t)
			if !(mu > 0) {
				return math.Inf(-1)
			}
			lp += dists.NegBinomial{Mu: mu, Alpha: alpha}.LogProb(m.data.Y[i])
		}
	}
	return lp
}

func (m *ExpNegBinom) Simulate(theta []float64, rng *rand.Rand) []float64 {
	a, b, alpha := theta[0], theta[1], theta[2]
	out := make([]float64, len(m.data.T))
	for i, t := range m.data.T {
		out[i] = dists.NegBinomial{Mu: expMean(a, b, t), Alpha: alpha, Src: rng}.Rand()
	}
	return out
}

func (m *ExpNegBinom) Scales() []float64 { return []float64{20, 0.03, 0.6} }
