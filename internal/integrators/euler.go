package integrators

import "github.com/san-kum/certsim/internal/sim"

// Euler is forward Euler with the input held constant over the step.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn sim.Dynamics, x sim.State, u sim.Control, dt float64) sim.State {
	dx := sim.Derivative(dyn, x, u)
	result := make(sim.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}
