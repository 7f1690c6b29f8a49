package controllers

import (
	"github.com/san-kum/certsim/internal/sim"
	"gonum.org/v1/gonum/mat"
)

// LQR is linear state feedback u = Offset − K(x − Target).
type LQR struct {
	K      *mat.Dense
	Target sim.State
	Offset sim.Control
}

func NewLQR(k *mat.Dense, target sim.State) *LQR {
	m, _ := k.Dims()
	return &LQR{K: k, Target: target.Clone(), Offset: make(sim.Control, m)}
}

func (l *LQR) Compute(_ float64, x sim.State) sim.Control {
	m, n := l.K.Dims()
	e := make([]float64, n)
	for j := 0; j < n && j < len(x); j++ {
		target := 0.0
		if j < len(l.Target) {
			target = l.Target[j]
		}
		e[j] = x[j] - target
	}

	var ku mat.VecDense
	ku.MulVec(l.K, mat.NewVecDense(n, e))

	u := make(sim.Control, m)
	for i := range u {
		u[i] = l.Offset[i] - ku.AtVec(i)
	}
	return u
}

// NewPendulumLQR holds the pendulum at the hanging equilibrium.
func NewPendulumLQR() *LQR {
	return NewLQR(mat.NewDense(1, 2, []float64{31.62, 10.0}), sim.State{0, 0})
}
