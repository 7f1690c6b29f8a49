package integrators

import (
	"testing"

	"github.com/san-kum/certsim/internal/sim"
)

func BenchmarkEuler(b *testing.B) {
	integrator := NewEuler()
	x := sim.State{1.0, 0.0}
	u := sim.Control{0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(oscillator{}, x, u, 0.01)
	}
}

func BenchmarkRK4(b *testing.B) {
	integrator := NewRK4()
	x := sim.State{1.0, 0.0}
	u := sim.Control{0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(oscillator{}, x, u, 0.01)
	}
}
