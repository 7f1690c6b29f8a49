// Package sensors turns the true state into the measurement handed to the
// estimator.
package sensors

import (
	"fmt"
	"math/rand/v2"

	"github.com/san-kum/certsim/internal/sim"
	"gonum.org/v1/gonum/mat"
)

// Perfect measures the state exactly.
type Perfect struct{}

func NewPerfect() *Perfect {
	return &Perfect{}
}

func (p *Perfect) Measure(_ float64, x sim.State) (sim.State, error) {
	return x.Clone(), nil
}

// Gaussian adds zero-mean noise with a fixed covariance. Draws come from a
// private seeded generator, so two sensors with the same seed produce the
// same measurement sequence.
type Gaussian struct {
	chol  mat.TriDense
	rng   *rand.Rand
	noise []float64
}

func NewGaussian(cov *mat.SymDense, seed uint64) (*Gaussian, error) {
	var c mat.Cholesky
	if ok := c.Factorize(cov); !ok {
		return nil, fmt.Errorf("%w: measurement covariance must be positive definite", sim.ErrInvalidConfig)
	}
	g := &Gaussian{
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		noise: make([]float64, cov.SymmetricDim()),
	}
	c.LTo(&g.chol)
	return g, nil
}

// NewIsotropicGaussian is NewGaussian with covariance stddev²·I.
func NewIsotropicGaussian(n int, stddev float64, seed uint64) (*Gaussian, error) {
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		cov.SetSym(i, i, stddev*stddev)
	}
	return NewGaussian(cov, seed)
}

func (g *Gaussian) Measure(_ float64, x sim.State) (sim.State, error) {
	if len(x) != len(g.noise) {
		return nil, fmt.Errorf("%w: sensor covers %d states, got %d", sim.ErrDimensionMismatch, len(g.noise), len(x))
	}
	for i := range g.noise {
		g.noise[i] = g.rng.NormFloat64()
	}
	var e mat.VecDense
	e.MulVec(&g.chol, mat.NewVecDense(len(g.noise), g.noise))

	z := x.Clone()
	for i := range z {
		z[i] += e.AtVec(i)
	}
	return z, nil
}
