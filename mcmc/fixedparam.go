package mcmc

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Generative is a Target that can also unroll its observation process,
// which is what prior-predictive runs replay.
type Generative interface {
	Target
	Len() int
	Simulate(theta []float64, rng *rand.Rand) []float64
}

// FixedParam runs the prior-only mode: a single chain with zero warmup
// where every iteration draws the parameters from their priors and unrolls
// the generative process once. The draw set carries the parameters plus the
// simulated series under the given quantity name.
func FixedParam(g Generative, quantity string, opts Options) (ds *DrawSet, err error) {
	opts.setDefaults()
	defer func() {
		if r := recover(); r != nil {
			ds = nil
			err = fmt.Errorf("prior simulation panic: %v", r)
		}
	}()

	names := g.ParamNames()
	dim := len(names)
	if dim == 0 {
		return nil, fmt.Errorf("target has no parameters")
	}
	n := g.Len()
	if n <= 0 {
		return nil, fmt.Errorf("target has no time indices")
	}

	ds = newDrawSet(names, 1)
	ds.Chains[0] = Chain{ID: 0, Accept: 1}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^seedMix))
	draws, err := priorDraws(g, dim, n, opts.Iterations, rng)
	if err != nil {
		ds.Chains[0].Err = err
		return ds, err
	}

	ds.Chains[0].Draws = draws
	ds.Names = append(ds.Names, seriesNames(quantity, n)...)
	ds.series[quantity] = seriesRange{start: dim, n: n}
	return ds, nil
}

func priorDraws(g Generative, dim, n, iters int, rng *rand.Rand) (*mat.Dense, error) {
	draws := mat.NewDense(iters, dim+n, nil)
	for it := 0; it < iters; it++ {
		theta := g.PriorSample(rng)
		if len(theta) != dim {
			return nil, fmt.Errorf("prior sample has %d entries, want %d", len(theta), dim)
		}
		sim := g.Simulate(theta, rng)
		if len(sim) != n {
			return nil, fmt.Errorf("simulated series has %d entries, want %d", len(sim), n)
		}
		row := draws.RawRowView(it)
		copy(row[:dim], theta)
		copy(row[dim:], sim)
	}
	return draws, nil
}
