// Package controllers provides nominal inputs: the unconstrained control
// the certificate QP tries to stay close to.
package controllers

import "github.com/san-kum/certsim/internal/sim"

type Zero struct {
	dim int
}

func NewZero(dim int) *Zero {
	return &Zero{
		dim: dim,
	}
}

func (z *Zero) Compute(_ float64, _ sim.State) sim.Control {
	return make(sim.Control, z.dim)
}

// Constant returns the same input every step, e.g. a hover thrust.
type Constant struct {
	U sim.Control
}

func NewConstant(u sim.Control) *Constant {
	return &Constant{U: u.Clone()}
}

func (c *Constant) Compute(_ float64, _ sim.State) sim.Control {
	return c.U.Clone()
}

// Proportional steers input i toward goal[i] on state coordinate
// indices[i]: u_i = gain·(goal_i − x[indices_i]). Inputs beyond
// len(indices) are zero.
type Proportional struct {
	Goal    []float64
	Indices []int
	Gain    float64
	dim     int
}

func NewProportional(goal []float64, indices []int, gain float64, dim int) *Proportional {
	return &Proportional{
		Goal:    append([]float64(nil), goal...),
		Indices: append([]int(nil), indices...),
		Gain:    gain,
		dim:     dim,
	}
}

func (p *Proportional) Compute(_ float64, x sim.State) sim.Control {
	u := make(sim.Control, p.dim)
	for i, idx := range p.Indices {
		if i >= p.dim {
			break
		}
		u[i] = p.Gain * (p.Goal[i] - x[idx])
	}
	return u
}
