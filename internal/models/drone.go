package models

import (
	"math"

	"github.com/san-kum/certsim/internal/sim"
	"gonum.org/v1/gonum/mat"
)

// Drone is a planar quadrotor with two rotor thrusts as inputs.
// State is [x, y, theta, vx, vy, omega].
type Drone struct {
	Mass, Inertia, ArmLength float64
	Gravity, DragCoeff       float64
	AngDrag                  float64
}

func NewDrone() *Drone {
	return &Drone{
		Mass:      DefaultMass,
		Inertia:   0.1,
		ArmLength: 0.25,
		Gravity:   DefaultGravity,
		DragCoeff: 0.1,
		AngDrag:   0.05,
	}
}

func (d *Drone) StateDim() int   { return 6 }
func (d *Drone) ControlDim() int { return 2 }

// Decompose keeps thrust signed so the model stays control-affine; the
// QP input limits are what keep rotors from pulling.
func (d *Drone) Decompose(x sim.State) (*mat.VecDense, *mat.Dense) {
	theta, vx, vy, omega := x[2], x[3], x[4], x[5]
	sin, cos := math.Sin(theta), math.Cos(theta)

	f := mat.NewVecDense(6, []float64{
		vx,
		vy,
		omega,
		-d.DragCoeff * vx / d.Mass,
		-d.Gravity - d.DragCoeff*vy/d.Mass,
		-d.AngDrag * omega / d.Inertia,
	})

	g := mat.NewDense(6, 2, nil)
	g.Set(3, 0, -sin/d.Mass)
	g.Set(3, 1, -sin/d.Mass)
	g.Set(4, 0, cos/d.Mass)
	g.Set(4, 1, cos/d.Mass)
	g.Set(5, 0, -d.ArmLength/d.Inertia)
	g.Set(5, 1, d.ArmLength/d.Inertia)
	return f, g
}

func (d *Drone) HoverThrust() float64 {
	return d.Mass * d.Gravity / 2.0
}

// Velocity is the planar velocity [vx, vy].
func (d *Drone) Velocity(x []float64) []float64 {
	return []float64{x[3], x[4]}
}
