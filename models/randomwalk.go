package models

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"epicurve/dists"
)

// RandomWalkConfig collects the tuning constants of the time-varying-R
// model. Zero values fall back to the published defaults.
type RandomWalkConfig struct {
	// StepSD is the standard deviation of the log reproduction-number walk.
	StepSD float64

	// MeanFloor is added to r(n)*cases[n-1] so the negative-binomial mean
	// argument stays strictly positive even when the previous count is zero.
	MeanFloor float64

	// SimFloor and SimCeiling clamp simulated case counts. The clamp applies
	// to generated series only, never to likelihood evaluation. The floor
	// keeps a simulated outbreak from dying to zero and stalling the
	// recursion; the ceiling keeps it from running away.
	SimFloor   float64
	SimCeiling float64

	// SimSeed is the first simulated count when the model carries no
	// observations to seed from.
	SimSeed float64
}

func (c *RandomWalkConfig) setDefaults() {
	if c.StepSD <= 0 {
		c.StepSD = 0.035
	}
	if c.MeanFloor <= 0 {
		c.MeanFloor = 0.01
	}
	if c.SimFloor <= 0 {
		c.SimFloor = 1
	}
	if c.SimCeiling <= 0 {
		c.SimCeiling = 1e7
	}
	if c.SimSeed <= 0 {
		c.SimSeed = 1
	}
}

// RandomWalk models daily new-case counts through a latent reproduction
// number that evolves as a first-order random walk in log space: each day's
// expected count is r(n) times the previous day's count plus a small floor.
// The walk has no exogenous covariates; all dynamics are self-referential.
//
// Priors: logr[1] ~ Normal(0, step), logr[n] ~ Normal(logr[n-1], step),
// alpha ~ Gamma(36, 6). The likelihood runs from the second index, each
// step's mean conditioned on the observed previous count.
type RandomWalk struct {
	data Data
	cfg  RandomWalkConfig
}

// NewRandomWalk binds the model to its payload. The payload Y is the daily
// new-case series, not the cumulative one.
func NewRandomWalk(data Data, cfg RandomWalkConfig) (*RandomWalk, error) {
	if err := checkData(data); err != nil {
		return nil, err
	}
	if len(data.T) < 2 {
		return nil, fmt.Errorf("need at least 2 time indices, got %d", len(data.T))
	}
	cfg.setDefaults()
	return &RandomWalk{data: data, cfg: cfg}, nil
}

func (m *RandomWalk) Name() string { return "randomwalk" }

func (m *RandomWalk) ParamNames() []string {
	n := len(m.data.T)
	names := make([]string, n+1)
	for i := 0; i < n; i++ {
		names[i] = fmt.Sprintf("log_rt[%d]", i+1)
	}
	names[n] = "alpha"
	return names
}

func (m *RandomWalk) Len() int { return len(m.data.T) }

// Config reports the constants the instance runs with, defaults filled in.
func (m *RandomWalk) Config() RandomWalkConfig { return m.cfg }

func (m *RandomWalk) PriorSample(rng *rand.Rand) []float64 {
	n := len(m.data.T)
	theta := make([]float64, n+1)
	theta[0] = distuv.Normal{Mu: 0, Sigma: m.cfg.StepSD, Src: rng}.Rand()
	for i := 1; i < n; i++ {
		theta[i] = distuv.Normal{Mu: theta[i-1], Sigma: m.cfg.StepSD, Src: rng}.Rand()
	}
	theta[n] = distuv.Gamma{Alpha: 36, Beta: 6, Src: rng}.Rand()
	return theta
}

// stepMean is the negative-binomial mean for one step of the recursion.
func (m *RandomWalk) stepMean(logr, prev float64) float64 {
	return math.Exp(logr)*prev + m.cfg.MeanFloor
}

func (m *RandomWalk) LogProb(theta []float64) float64 {
	n := len(m.data.T)
	alpha := theta[n]
	if alpha <= 0 {
		return math.Inf(-1)
	}

	lp := distuv.Normal{Mu: 0, Sigma: m.cfg.StepSD}.LogProb(theta[0])
	for i := 1; i < n; i++ {
		lp += distuv.Normal{Mu: theta[i-1], Sigma: m.cfg.StepSD}.LogProb(theta[i])
	}
	lp += distuv.Gamma{Alpha: 36, Beta: 6}.LogProb(alpha)

	if m.data.Y != nil {
		for i := 1; i < n; i++ {
			mean := m.stepMean(theta[i], m.data.Y[i-1])
			if !(mean > 0) {
				return math.Inf(-1)
			}
			lp += dists.NegBinomial{Mu: mean, Alpha: alpha}.LogProb(m.data.Y[i])
		}
	}
	return lp
}

// Simulate runs the recursion forward with carried state: each step's mean
// uses the previously simulated count, never the observed one. The first
// value is pinned to the seed and every generated count is clamped into
// [SimFloor, SimCeiling].
func (m *RandomWalk) Simulate(theta []float64, rng *rand.Rand) []float64 {
	n := len(m.data.T)
	alpha := theta[n]
	out := make([]float64, n)
	out[0] = m.simSeed()
	for i := 1; i < n; i++ {
		mean := m.stepMean(theta[i], out[i-1])
		v := dists.NegBinomial{Mu: mean, Alpha: alpha, Src: rng}.Rand()
		if v < m.cfg.SimFloor {
			v = m.cfg.SimFloor
		}
		if v > m.cfg.SimCeiling {
			v = m.cfg.SimCeiling
		}
		out[i] = v
	}
	return out
}

// Rt maps a parameter vector to the reproduction-number series exp(logr).
// The signature matches Simulate so draw-set replay can use either.
func (m *RandomWalk) Rt(theta []float64, _ *rand.Rand) []float64 {
	n := len(m.data.T)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = math.Exp(theta[i])
	}
	return out
}

func (m *RandomWalk) simSeed() float64 {
	if len(m.data.Y) > 0 {
		return m.data.Y[0]
	}
	return m.cfg.SimSeed
}

func (m *RandomWalk) Scales() []float64 {
	n := len(m.data.T)
	s := constant(n+1, 0.05)
	s[n] = 0.4
	return s
}
