package models

import (
	"math"

	"github.com/san-kum/certsim/internal/sim"
	"gonum.org/v1/gonum/mat"
)

// Pendulum is a damped pendulum driven by a torque on the pivot.
// State is [theta, omega].
type Pendulum struct {
	Mass    float64
	Length  float64
	Damping float64
	Gravity float64
}

func NewPendulum() *Pendulum {
	return &Pendulum{
		Mass:    DefaultMass,
		Length:  DefaultLength,
		Damping: 0.1,
		Gravity: DefaultGravity,
	}
}

func (p *Pendulum) StateDim() int {
	return 2
}

func (p *Pendulum) ControlDim() int {
	return 1
}

func (p *Pendulum) Decompose(x sim.State) (*mat.VecDense, *mat.Dense) {
	theta, omega := x[0], x[1]
	inertia := p.Mass * p.Length * p.Length

	alpha := (-p.Damping*omega - p.Mass*p.Gravity*p.Length*math.Sin(theta)) / inertia
	f := mat.NewVecDense(2, []float64{omega, alpha})
	g := mat.NewDense(2, 1, []float64{0, 1 / inertia})
	return f, g
}
