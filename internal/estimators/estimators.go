// Package estimators fuse a measurement with the previous estimate.
package estimators

import (
	"fmt"

	"github.com/san-kum/certsim/internal/sim"
	"gonum.org/v1/gonum/mat"
)

// Naive trusts the measurement completely and leaves the covariance as it
// was.
type Naive struct{}

func NewNaive() *Naive {
	return &Naive{}
}

func (n *Naive) Estimate(_ float64, z sim.State, _ sim.State, cov *mat.SymDense) (sim.State, *mat.SymDense, error) {
	return z.Clone(), cloneSym(cov), nil
}

// Smoothing blends the measurement into the prior with a fixed gain k:
// x ← x + k(z − x), P ← (1 − k)P.
type Smoothing struct {
	Gain float64
}

func NewSmoothing(gain float64) (*Smoothing, error) {
	if gain <= 0 || gain > 1 {
		return nil, fmt.Errorf("%w: smoothing gain must be in (0, 1], got %g", sim.ErrInvalidConfig, gain)
	}
	return &Smoothing{Gain: gain}, nil
}

func (s *Smoothing) Estimate(_ float64, z sim.State, prior sim.State, cov *mat.SymDense) (sim.State, *mat.SymDense, error) {
	if len(z) != len(prior) {
		return nil, nil, fmt.Errorf("%w: measurement has %d entries, estimate %d", sim.ErrDimensionMismatch, len(z), len(prior))
	}
	est := make(sim.State, len(z))
	for i := range z {
		est[i] = prior[i] + s.Gain*(z[i]-prior[i])
	}
	p := cloneSym(cov)
	if p != nil {
		p.ScaleSym(1-s.Gain, p)
	}
	return est, p, nil
}

func cloneSym(m *mat.SymDense) *mat.SymDense {
	if m == nil {
		return nil
	}
	out := mat.NewSymDense(m.SymmetricDim(), nil)
	out.CopySym(m)
	return out
}
