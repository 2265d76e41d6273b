package models

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"epicurve/dists"
)

// Carrying-capacity prior bounds.
const (
	ccLow  = 1e5
	ccHigh = 8e7
)

// Logistic caps the growth at a carrying capacity cc: the mean follows
// cc / (1 + a*exp(-b*t)) with a chosen so the curve passes through the
// intercept at t = 0. Like the exponential models it carries no overflow
// guard on the mean.
//
// Priors: intercept ~ Exponential(0.01), b ~ Normal(0.3, 0.1),
// cc ~ Uniform(1e5, 8e7), alpha ~ Gamma(6, 1).
type Logistic struct {
	data Data
}

// NewLogistic binds the model to its payload.
func NewLogistic(data Data) (*Logistic, error) {
	if err := checkData(data); err != nil {
		return nil, err
	}
	return &Logistic{data: data}, nil
}

func (m *Logistic) Name() string { return "logistic" }

func (m *Logistic) ParamNames() []string {
	return []string{"intercept", "b", "cc", "alpha"}
}

func (m *Logistic) Len() int { return len(m.data.T) }

func (m *Logistic) PriorSample(rng *rand.Rand) []float64 {
	return []float64{
		distuv.Exponential{Rate: 0.01, Src: rng}.Rand(),
		distuv.Normal{Mu: 0.3, Sigma: 0.1, Src: rng}.Rand(),
		distuv.Uniform{Min: ccLow, Max: ccHigh, Src: rng}.Rand(),
		distuv.Gamma{Alpha: 6, Beta: 1, Src: rng}.Rand(),
	}
}

// logisticMean evaluates the curve at elapsed day t.
func logisticMean(intercept, b, cc, t float64) float64 {
	a := cc/intercept - 1
	return cc / (1 + a*math.Exp(-b*t))
}

func (m *Logistic) LogProb(theta []float64) float64 {
	intercept, b, cc, alpha := theta[0], theta[1], theta[2], theta[3]
	if intercept <= 0 || alpha <= 0 || cc <= ccLow || cc >= ccHigh {
		return math.Inf(-1)
	}

	lp := distuv.Exponential{Rate: 0.01}.LogProb(intercept) +
		distuv.Normal{Mu: 0.3, Sigma: 0.1}.LogProb(b) +
		distuv.Uniform{Min: ccLow, Max: ccHigh}.LogProb(cc) +
		distuv.Gamma{Alpha: 6, Beta: 1}.LogProb(alpha)

	if m.data.Y != nil {
		for i, t := range m.data.T {
			mu := logisticMean(intercept, b, cc, t)
			if !(mu > 0) {
				return math.Inf(-1)
			}
			lp += dists.NegBinomial{Mu: mu, Alpha: alpha}.LogProb(m.data.Y[i])
		}
	}
	return lp
}

func (m *Logistic) Simulate(theta []float64, rng *rand.Rand) []float64 {
	intercept, b, cc, alpha := theta[0], theta[1], theta[2], theta[3]
	out := make([]float64, len(m.data.T))
	for i, t := range m.data.T {
		mu := logisticMean(intercept, b, cc, t)
		out[i] = dists.NegBinomial{Mu: mu, Alpha: alpha, Src: rng}.Rand()
	}
	return out
}

func (m *Logistic) Scales() []float64 { return []float64{20, 0.03, 2e6, 0.6} }
