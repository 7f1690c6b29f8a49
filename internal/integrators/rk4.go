package integrators

import "github.com/san-kum/certsim/internal/sim"

// RK4 is the classic fourth-order Runge-Kutta scheme under a zero-order
// hold on u. Scratch buffers are per instance, so an RK4 must not be
// shared between concurrent runs.
type RK4 struct {
	k1, k2, k3, k4 sim.State
	scratch        sim.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make(sim.State, n)
		r.k2 = make(sim.State, n)
		r.k3 = make(sim.State, n)
		r.k4 = make(sim.State, n)
		r.scratch = make(sim.State, n)
	}
}

func (r *RK4) stage(dyn sim.Dynamics, x sim.State, k sim.State, h float64, u sim.Control, out sim.State) {
	for i := range x {
		r.scratch[i] = x[i] + h*k[i]
	}
	copy(out, sim.Derivative(dyn, r.scratch, u))
}

func (r *RK4) Step(dyn sim.Dynamics, x sim.State, u sim.Control, dt float64) sim.State {
	n := len(x)
	r.ensureScratch(n)

	copy(r.k1, sim.Derivative(dyn, x, u))
	r.stage(dyn, x, r.k1, dt*0.5, u, r.k2)
	r.stage(dyn, x, r.k2, dt*0.5, u, r.k3)
	r.stage(dyn, x, r.k3, dt, u, r.k4)

	result := make(sim.State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}
	return result
}
