// Package dists supplies the two distributions the case-trajectory models
// need beyond what gonum's distuv exports directly: a half-normal prior and
// the mean-dispersion form of the negative binomial.
package dists

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

const ln2 = 0.6931471805599453

// HalfNormal is the distribution of |X| for X ~ Normal(0, Sigma).
type HalfNormal struct {
	Sigma float64
	Src   rand.Source
}

// Rand returns a random sample drawn from the distribution.
func (h HalfNormal) Rand() float64 {
	n := distuv.Normal{Mu: 0, Sigma: h.Sigma, Src: h.Src}
	return math.Abs(n.Rand())
}

// LogProb computes the natural logarithm of the value of the probability
// density function at x. The mass below zero is folded onto the positive
// half-line, hence the extra ln 2 relative to the full normal.
func (h HalfNormal) LogProb(x float64) float64 {
	if x < 0 {
		return math.Inf(-1)
	}
	n := distuv.Normal{Mu: 0, Sigma: h.Sigma}
	return ln2 + n.LogProb(x)
}

// Mean returns the mean of the probability distribution.
func (h HalfNormal) Mean() float64 {
	return h.Sigma * math.Sqrt(2/math.Pi)
}

// NegBinomial is the negative binomial distribution in its mean-dispersion
// parameterization: E[Y] = Mu and Var[Y] = Mu + Mu^2/Alpha. Smaller Alpha
// means heavier overdispersion; as Alpha grows the distribution approaches
// Poisson(Mu).
type NegBinomial struct {
	// Mu is the mean. Must be positive and finite.
	Mu float64
	// Alpha is the dispersion shape. Must be positive.
	Alpha float64

	Src rand.Source
}

// LogProb computes the natural logarithm of the probability mass at y.
// It returns -Inf off the non-negative integer support and for parameter
// values outside the distribution's domain.
func (nb NegBinomial) LogProb(y float64) float64 {
	if !(nb.Mu > 0 && nb.Alpha > 0) || math.IsInf(nb.Mu, 1) {
		return math.Inf(-1)
	}
	if y < 0 || y != math.Floor(y) || math.IsInf(y, 1) {
		return math.Inf(-1)
	}

	lgYA, _ := math.Lgamma(y + nb.Alpha)
	lgA, _ := math.Lgamma(nb.Alpha)
	lgY1, _ := math.Lgamma(y + 1)

	return lgYA - lgA - lgY1 +
		nb.Alpha*math.Log(nb.Alpha/(nb.Alpha+nb.Mu)) +
		y*math.Log(nb.Mu/(nb.Alpha+nb.Mu))
}

// Rand returns a random sample drawn from the distribution via the
// gamma-Poisson mixture: lambda ~ Gamma(Alpha, Alpha/Mu), y ~ Poisson(lambda).
func (nb NegBinomial) Rand() float64 {
	if !(nb.Mu > 0 && nb.Alpha > 0) || math.IsInf(nb.Mu, 1) {
		return math.NaN()
	}
	lam := distuv.Gamma{Alpha: nb.Alpha, Beta: nb.Alpha / nb.Mu, Src: nb.Src}.Rand()
	if math.IsInf(lam, 1) || math.IsNaN(lam) {
		return math.NaN()
	}
	if !(lam > 0) {
		// The gamma draw underflows to zero for tiny means; the Poisson
		// limit there is a point mass at zero.
		return 0
	}
	return distuv.Poisson{Lambda: lam, Src: nb.Src}.Rand()
}

// Mean returns the mean of the probability distribution.
func (nb NegBinomial) Mean() float64 {
	return nb.Mu
}

// Variance returns the variance of the probability distribution.
func (nb NegBinomial) Variance() float64 {
	return nb.Mu + nb.Mu*nb.Mu/nb.Alpha
}
