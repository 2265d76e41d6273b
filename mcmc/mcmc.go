// Package mcmc drives posterior sampling for the case-trajectory models.
// Chains run in parallel on a worker pool, each one a random-walk
// Metropolis-Hastings sampler with windowed proposal-scale adaptation
// during warmup. Per-chain failures are captured, never fatal to siblings.
package mcmc

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/samplemv"
)

const seedMix = 0x9e3779b97f4a7c15

// Target is what the sampler needs from a model: an unnormalized log
// density over a flat parameter vector, prior draws to start chains from,
// and per-parameter proposal scales.
type Target interface {
	ParamNames() []string
	PriorSample(rng *rand.Rand) []float64
	LogProb(theta []float64) float64
	Scales() []float64
}

// Options tunes a sampling run. Zero values fall back to defaults.
type Options struct {
	// Chains is the number of independent chains.
	Chains int

	// Iterations is the number of kept draws per chain.
	Iterations int

	// Warmup iterations precede sampling and adapt the proposal scale.
	Warmup int

	// Thin keeps every Thin-th draw during the sampling phase.
	Thin int

	// Seed drives the whole run; 0 picks a time-based seed.
	Seed uint64

	// AdaptWindow is the warmup slice length between scale updates.
	AdaptWindow int

	// TargetAccept is the acceptance rate adaptation steers toward.
	TargetAccept float64

	// MaxInitTries bounds the prior draws tried when starting a chain.
	MaxInitTries int
}

func (o *Options) setDefaults() {
	if o.Chains <= 0 {
		o.Chains = 4
	}
	if o.Iterations <= 0 {
		o.Iterations = 1000
	}
	if o.Warmup <= 0 {
		o.Warmup = 1000
	}
	if o.Thin <= 0 {
		o.Thin = 1
	}
	if o.Seed == 0 {
		o.Seed = uint64(time.Now().UnixNano())
	}
	if o.AdaptWindow <= 0 {
		o.AdaptWindow = 100
	}
	if o.TargetAccept <= 0 || o.TargetAccept >= 1 {
		o.TargetAccept = 0.234
	}
	if o.MaxInitTries <= 0 {
		o.MaxInitTries = 100
	}
}

// Sample runs full posterior sampling: Chains independent chains in
// parallel, each seeded from a master RNG. The returned draw set always
// carries every chain; an error comes back only when no chain survived.
func Sample(target Target, opts Options) (*DrawSet, error) {
	opts.setDefaults()

	names := target.ParamNames()
	if len(names) == 0 {
		return nil, fmt.Errorf("target has no parameters")
	}
	if len(target.Scales()) != len(names) {
		return nil, fmt.Errorf("target has %d scales for %d parameters",
			len(target.Scales()), len(names))
	}

	ds := newDrawSet(names, opts.Chains)

	// Per-chain seeds fanned out from the master RNG keep chains
	// independent but the whole run reproducible.
	masterRng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^seedMix))
	seeds := make([]uint64, opts.Chains)
	for i := range seeds {
		seeds[i] = masterRng.Uint64()
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > opts.Chains {
		numWorkers = opts.Chains
	}

	jobs := make(chan int)
	resultsCh := make(chan Chain, opts.Chains)

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	worker := func() {
		defer wg.Done()
		for c := range jobs {
			resultsCh <- runChain(target, c, seeds[c], opts)
		}
	}

	for w := 0; w < numWorkers; w++ {
		go worker()
	}

	go func() {
		for c := 0; c < opts.Chains; c++ {
			jobs <- c
		}
		close(jobs)
	}()

	for i := 0; i < opts.Chains; i++ {
		ch := <-resultsCh
		ds.Chains[ch.ID] = ch
	}

	wg.Wait()
	close(resultsCh)

	if len(ds.Kept()) == 0 {
		return ds, fmt.Errorf("all %d chains failed: %v", opts.Chains, ds.Errs()[0])
	}
	return ds, nil
}

// runChain runs warmup plus sampling for one chain. Every failure mode
// lands in the returned Chain's Err; panics from degenerate numerics are
// recovered so one bad chain cannot take down the run.
func runChain(target Target, id int, seed uint64, opts Options) (ch Chain) {
	ch = Chain{ID: id}
	defer func() {
		if r := recover(); r != nil {
			ch.Draws = nil
			ch.Err = fmt.Errorf("chain %d: sampler panic: %v", id, r)
		}
	}()

	dim := len(target.ParamNames())
	rng := rand.New(rand.NewPCG(seed, seed^seedMix))

	theta, err := findInit(target, rng, opts.MaxInitTries)
	if err != nil {
		ch.Err = fmt.Errorf("chain %d: %v", id, err)
		return ch
	}

	scales := target.Scales()
	for i, s := range scales {
		if s <= 0 {
			ch.Err = fmt.Errorf("chain %d: non-positive proposal scale %v at parameter %d", id, s, i)
			return ch
		}
	}

	// Warmup: sample in windows, nudging a global scale factor toward the
	// target acceptance rate after each window.
	factor := 1.0
	remaining := opts.Warmup
	for remaining > 0 {
		w := opts.AdaptWindow
		if w > remaining {
			w = remaining
		}
		window := mat.NewDense(w, dim, nil)

		prop, err := proposal(scales, factor, rng)
		if err != nil {
			ch.Err = fmt.Errorf("chain %d: build proposal: %v", id, err)
			return ch
		}
		mh := samplemv.MetropolisHastingser{
			Initial:  theta,
			Target:   target,
			Proposal: prop,
			Src:      rng,
		}
		mh.Sample(window)

		acc := acceptance(theta, window)
		theta = append([]float64(nil), window.RawRowView(w-1)...)
		factor = clampFactor(factor * math.Exp(2*(acc-opts.TargetAccept)))
		remaining -= w
	}

	// Sampling phase at the adapted scale.
	prop, err := proposal(scales, factor, rng)
	if err != nil {
		ch.Err = fmt.Errorf("chain %d: build proposal: %v", id, err)
		return ch
	}
	draws := mat.NewDense(opts.Iterations, dim, nil)
	mh := samplemv.MetropolisHastingser{
		Initial:  theta,
		Target:   target,
		Proposal: prop,
		Src:      rng,
		Rate:     opts.Thin,
	}
	mh.Sample(draws)

	ch.Accept = acceptance(theta, draws)
	if ch.Accept == 0 {
		ch.Err = fmt.Errorf("chain %d: no accepted moves in %d sampling iterations", id, opts.Iterations)
		return ch
	}
	if !finiteAll(draws) {
		ch.Err = fmt.Errorf("chain %d: non-finite draws", id)
		return ch
	}

	ch.Draws = draws
	return ch
}

// findInit draws from the prior until the target density is finite there.
func findInit(target Target, rng *rand.Rand, tries int) ([]float64, error) {
	for i := 0; i < tries; i++ {
		theta := target.PriorSample(rng)
		lp := target.LogProb(theta)
		if !math.IsInf(lp, 0) && !math.IsNaN(lp) {
			return theta, nil
		}
	}
	return nil, fmt.Errorf("no finite-density starting point after %d prior draws", tries)
}

// proposal builds the diagonal Gaussian random-walk proposal at the given
// global scale factor.
func proposal(scales []float64, factor float64, src rand.Source) (*samplemv.ProposalNormal, error) {
	d := len(scales)
	sigma := mat.NewSymDense(d, nil)
	for i, s := range scales {
		v := s * factor
		sigma.SetSym(i, i, v*v)
	}
	p, ok := samplemv.NewProposalNormal(sigma, src)
	if !ok {
		return nil, fmt.Errorf("proposal covariance is not positive definite")
	}
	return p, nil
}

// acceptance reports the fraction of rows that differ from their
// predecessor, starting against the initial state. With thinning this is a
// per-row proxy rather than a per-step rate.
func acceptance(initial []float64, batch *mat.Dense) float64 {
	rows, _ := batch.Dims()
	if rows == 0 {
		return 0
	}
	accepted := 0
	prev := initial
	for r := 0; r < rows; r++ {
		row := batch.RawRowView(r)
		if !floats.Equal(prev, row) {
			accepted++
		}
		prev = row
	}
	return float64(accepted) / float64(rows)
}

func clampFactor(f float64) float64 {
	switch {
	case f < 1e-4:
		return 1e-4
	case f > 1e4:
		return 1e4
	}
	return f
}

func finiteAll(m *mat.Dense) bool {
	rows, cols := m.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := m.At(r, c)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
