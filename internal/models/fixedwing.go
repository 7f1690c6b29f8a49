package models

import (
	"math"

	"github.com/san-kum/certsim/internal/sim"
	"gonum.org/v1/gonum/mat"
)

// Indices into the fixed-wing state [x, y, z, v, psi, gamma].
const (
	FixedWingX = iota
	FixedWingY
	FixedWingZ
	FixedWingSpeed
	FixedWingHeading
	FixedWingFlightPath
)

// FixedWing is kinematic fixed-wing UAV flight: position driven by airspeed
// v, heading psi and flight-path angle gamma, with u = [dv, dpsi, dgamma].
type FixedWing struct{}

func NewFixedWing() *FixedWing {
	return &FixedWing{}
}

func (w *FixedWing) StateDim() int   { return 6 }
func (w *FixedWing) ControlDim() int { return 3 }

func (w *FixedWing) Decompose(x sim.State) (*mat.VecDense, *mat.Dense) {
	vel := w.Velocity(x)
	f := mat.NewVecDense(6, []float64{vel[0], vel[1], vel[2], 0, 0, 0})
	return f, actuated(6, 3, FixedWingSpeed)
}

// Velocity is the inertial velocity [dx, dy, dz] implied by x.
func (w *FixedWing) Velocity(x []float64) []float64 {
	v, psi, gamma := x[FixedWingSpeed], x[FixedWingHeading], x[FixedWingFlightPath]
	sp, cp := math.Sincos(psi)
	sg, cg := math.Sincos(gamma)
	return []float64{v * cp * cg, v * sp * cg, v * sg}
}
