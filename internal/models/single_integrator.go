package models

import (
	"github.com/san-kum/certsim/internal/sim"
	"gonum.org/v1/gonum/mat"
)

// SingleIntegrator is dx/dt = u in n dimensions.
type SingleIntegrator struct {
	N int
}

func NewSingleIntegrator(n int) *SingleIntegrator {
	return &SingleIntegrator{N: n}
}

func (s *SingleIntegrator) StateDim() int   { return s.N }
func (s *SingleIntegrator) ControlDim() int { return s.N }

func (s *SingleIntegrator) Decompose(x sim.State) (*mat.VecDense, *mat.Dense) {
	return mat.NewVecDense(s.N, nil), actuated(s.N, s.N, 0)
}
