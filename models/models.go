// Package models defines the generative models of the case-trajectory
// workflow: exponential growth with Gaussian noise, exponential and logistic
// growth with negative-binomial observations, and a latent time-varying
// reproduction-number random walk.
//
// Every model exposes the same surface: prior sampling, an unnormalized log
// posterior over a flat parameter vector, and forward simulation of a
// synthetic series. A model built without observations evaluates the prior
// alone, which is what prior-predictive runs use.
package models

import (
	"fmt"
	"math/rand/v2"
)

// Data is the payload a model is conditioned on. T holds the elapsed-time
// regressor for each index and Y the observed counts. A nil Y leaves the
// model unconditioned.
type Data struct {
	T []float64
	Y []float64
}

// Model is one generative case-count model bound to its data payload.
type Model interface {
	// Name identifies the model variant in logs and output files.
	Name() string
	// ParamNames lists the scalar parameter labels in vector order.
	ParamNames() []string
	// PriorSample draws one parameter vector from the joint prior.
	PriorSample(rng *rand.Rand) []float64
	// LogProb evaluates the unnormalized log posterior at theta: the joint
	// prior plus the likelihood when observations are attached.
	// Out-of-support theta yields -Inf.
	LogProb(theta []float64) float64
	// Simulate draws one synthetic series from the observation model at
	// theta, one value per time index.
	Simulate(theta []float64, rng *rand.Rand) []float64
	// Scales gives per-parameter proposal scales for the sampler.
	Scales() []float64
	// Len is the number of time indices the model covers.
	Len() int
}

func checkData(data Data) error {
	if len(data.T) == 0 {
		return fmt.Errorf("empty data payload")
	}
	if data.Y != nil && len(data.Y) != len(data.T) {
		return fmt.Errorf("length mismatch: %d time indices, %d observations",
			len(data.T), len(data.Y))
	}
	return nil
}

// constant fills a slice with one proposal scale per parameter.
func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
