package mcmc

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Chain holds one sampler run. A failed chain keeps its error and a nil
// draw matrix; it never contributes rows to accessors.
type Chain struct {
	ID int

	// Draws is iterations x len(Names), nil when the chain failed.
	Draws *mat.Dense

	// Accept is the fraction of sampling-phase rows that moved.
	Accept float64

	Err error
}

// DrawSet is the immutable-once-produced result of one sampling run:
// column names for every parameter and generated quantity, and one Chain
// per independent run. Some chains may have failed; their draws are
// excluded rather than zero-filled.
type DrawSet struct {
	Names  []string
	Chains []Chain

	paramDim int
	series   map[string]seriesRange
}

type seriesRange struct {
	start, n int
}

func newDrawSet(names []string, chains int) *DrawSet {
	return &DrawSet{
		Names:    append([]string(nil), names...),
		Chains:   make([]Chain, chains),
		paramDim: len(names),
		series:   make(map[string]seriesRange),
	}
}

// ParamNames lists the model parameter columns, without any appended
// generated quantities.
func (ds *DrawSet) ParamNames() []string {
	return ds.Names[:ds.paramDim]
}

// Kept returns the surviving chains.
func (ds *DrawSet) Kept() []*Chain {
	var out []*Chain
	for i := range ds.Chains {
		c := &ds.Chains[i]
		if c.Err == nil && c.Draws != nil {
			out = append(out, c)
		}
	}
	return out
}

// Errs collects the failures of the chains that did not survive.
func (ds *DrawSet) Errs() []error {
	var out []error
	for i := range ds.Chains {
		if ds.Chains[i].Err != nil {
			out = append(out, ds.Chains[i].Err)
		}
	}
	return out
}

// NumDraws is the total number of kept draws across surviving chains.
func (ds *DrawSet) NumDraws() int {
	total := 0
	for _, c := range ds.Kept() {
		r, _ := c.Draws.Dims()
		total += r
	}
	return total
}

func (ds *DrawSet) columnIndex(name string) (int, bool) {
	for j, n := range ds.Names {
		if n == name {
			return j, true
		}
	}
	return 0, false
}

// Column concatenates one named column across the surviving chains.
func (ds *DrawSet) Column(name string) ([]float64, error) {
	j, ok := ds.columnIndex(name)
	if !ok {
		return nil, fmt.Errorf("no column %q in draw set", name)
	}
	kept := ds.Kept()
	if len(kept) == 0 {
		return nil, fmt.Errorf("no surviving chains")
	}
	var out []float64
	for _, c := range kept {
		r, _ := c.Draws.Dims()
		for i := 0; i < r; i++ {
			out = append(out, c.Draws.At(i, j))
		}
	}
	return out, nil
}

// Series locates a vector quantity added by AddSeries or FixedParam,
// returning its first column and length.
func (ds *DrawSet) Series(name string) (start, n int, ok bool) {
	sr, ok := ds.series[name]
	return sr.start, sr.n, ok
}

// AddSeries widens the draw set with a vector quantity of length n,
// computed per draw by replaying fn on the parameter part of each row.
// Replay failures are scoped to the chain they happen in: the chain is
// marked failed and the remaining chains keep their draws.
func (ds *DrawSet) AddSeries(name string, n int, fn func(theta []float64, rng *rand.Rand) []float64, seed uint64) error {
	if _, exists := ds.series[name]; exists {
		return fmt.Errorf("series %q already present", name)
	}
	if n <= 0 {
		return fmt.Errorf("series %q has no length", name)
	}

	start := len(ds.Names)
	for _, c := range ds.Kept() {
		if err := extendChain(c, ds.paramDim, start, n, fn, seed); err != nil {
			c.Draws = nil
			c.Err = err
		}
	}
	ds.Names = append(ds.Names, seriesNames(name, n)...)
	ds.series[name] = seriesRange{start: start, n: n}

	if len(ds.Kept()) == 0 {
		return fmt.Errorf("series %q failed on every chain", name)
	}
	return nil
}

func extendChain(c *Chain, paramDim, start, n int, fn func([]float64, *rand.Rand) []float64, seed uint64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chain %d: replay panic: %v", c.ID, r)
		}
	}()

	rows, cols := c.Draws.Dims()
	rng := rand.New(rand.NewPCG(seed, uint64(c.ID)+1))
	wide := mat.NewDense(rows, start+n, nil)

	for r := 0; r < rows; r++ {
		row := c.Draws.RawRowView(r)
		copy(wide.RawRowView(r)[:cols], row)

		out := fn(row[:paramDim], rng)
		if len(out) != n {
			return fmt.Errorf("chain %d: replay produced %d values, want %d", c.ID, len(out), n)
		}
		for k, v := range out {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("chain %d: non-finite generated value at row %d index %d", c.ID, r, k)
			}
			wide.Set(r, start+k, v)
		}
	}
	c.Draws = wide
	return nil
}

func seriesNames(name string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s[%d]", name, i+1)
	}
	return out
}
