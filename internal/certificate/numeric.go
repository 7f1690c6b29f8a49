package certificate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

var central = &fd.Settings{Formula: fd.Central}

// Numeric builds a certificate from its value alone. Time partial,
// gradient and Hessian come from central finite differences, so value
// must be smooth near every state it is evaluated at.
func Numeric(name string, value func(t float64, x []float64) float64, bound func(float64) float64) Certificate {
	return Certificate{
		Name:  name,
		Value: value,
		TimePartial: func(t float64, x []float64) float64 {
			return fd.Derivative(func(s float64) float64 { return value(s, x) }, t, central)
		},
		Gradient: func(t float64, x []float64) *mat.VecDense {
			grad := make([]float64, len(x))
			fd.Gradient(grad, func(y []float64) float64 { return value(t, y) }, x, central)
			return mat.NewVecDense(len(x), grad)
		},
		Hessian: func(t float64, x []float64) *mat.SymDense {
			hess := mat.NewSymDense(len(x), nil)
			fd.Hessian(hess, func(y []float64) float64 { return value(t, y) }, x, nil)
			return hess
		},
		Bound: bound,
	}
}

// VelocityField maps a state to the inertial velocity of the tracked
// position coordinates.
type VelocityField func(x []float64) []float64

// Ellipsoid is an axis-aligned ellipsoid over the tracked coordinates.
type Ellipsoid struct {
	Center []float64
	Radii  []float64
}

func (e Ellipsoid) check(dim int) error {
	if len(e.Center) != dim || len(e.Radii) != dim {
		return fmt.Errorf("certificate: ellipsoid has %d center and %d radii entries, want %d", len(e.Center), len(e.Radii), dim)
	}
	for k, r := range e.Radii {
		if r <= 0 {
			return fmt.Errorf("certificate: ellipsoid radius %d must be positive, got %g", k, r)
		}
	}
	return nil
}

// Guidance is a desired-velocity field over position: it points at Goal
// with magnitude Speed*d/sqrt(d^2 + Slowdown^2), d the distance left, and
// bends around each obstacle by scaling the component along the outward
// normal by 1 - 1/G^2, G^2 = sum(((p - c)/r)^2). The normal component
// vanishes on an obstacle surface, so integral curves started outside
// never enter it.
type Guidance struct {
	Goal      []float64
	Speed     float64
	Slowdown  float64
	Obstacles []Ellipsoid
}

func (g Guidance) validate() error {
	if g.Speed <= 0 {
		return fmt.Errorf("certificate: cruise speed must be positive, got %g", g.Speed)
	}
	if g.Slowdown < 0 {
		return fmt.Errorf("certificate: slowdown distance must be non-negative, got %g", g.Slowdown)
	}
	for i, o := range g.Obstacles {
		if err := o.check(len(g.Goal)); err != nil {
			return fmt.Errorf("obstacle %d: %w", i, err)
		}
	}
	return nil
}

// Velocity writes the desired velocity at p into dst.
func (g Guidance) Velocity(dst, p []float64) {
	slow := g.Slowdown
	if slow == 0 {
		slow = 1
	}
	dist := 0.0
	for k := range dst {
		d := g.Goal[k] - p[k]
		dst[k] = d
		dist += d * d
	}
	scale := g.Speed / math.Sqrt(dist+slow*slow)
	for k := range dst {
		dst[k] *= scale
	}

	normal := make([]float64, len(dst))
	for _, o := range g.Obstacles {
		gamma2, norm2 := 0.0, 0.0
		for k := range normal {
			q := (p[k] - o.Center[k]) / o.Radii[k]
			gamma2 += q * q
			normal[k] = q / o.Radii[k]
			norm2 += normal[k] * normal[k]
		}
		if norm2 == 0 {
			continue
		}
		along := 0.0
		for k := range normal {
			normal[k] /= math.Sqrt(norm2)
			along += dst[k] * normal[k]
		}
		shrink := -along / gamma2
		for k := range dst {
			dst[k] += shrink * normal[k]
		}
	}
}

// GoalVelocityLyapunov drives the vehicle velocity toward a guidance
// field: V = ||vel(x) - vd(p)||^2 - tolerance^2.
func GoalVelocityLyapunov(n int, vel VelocityField, pos []int, guide Guidance, tolerance float64, bound func(float64) float64) (Certificate, error) {
	if err := checkIndices(n, pos, guide.Goal); err != nil {
		return Certificate{}, err
	}
	if vel == nil || bound == nil {
		return Certificate{}, fmt.Errorf("%w: velocity field and bound", ErrIncomplete)
	}
	if err := guide.validate(); err != nil {
		return Certificate{}, err
	}
	idx := append([]int(nil), pos...)
	guide.Goal = append([]float64(nil), guide.Goal...)
	guide.Obstacles = append([]Ellipsoid(nil), guide.Obstacles...)

	value := func(_ float64, x []float64) float64 {
		v := vel(x)
		p := make([]float64, len(idx))
		for k, i := range idx {
			p[k] = x[i]
		}
		vd := make([]float64, len(idx))
		guide.Velocity(vd, p)

		sum := 0.0
		for k := range idx {
			e := v[k] - vd[k]
			sum += e * e
		}
		return sum - tolerance*tolerance
	}
	name := "goal_velocity"
	if len(guide.Obstacles) > 0 {
		name = "goal_velocity_obstacles"
	}
	return Numeric(name, value, bound), nil
}

// LookaheadBarrier keeps the position predicted horizon seconds ahead
// outside an ellipsoid: h = sum(((p + horizon*vel) - c)/r)^2 - 1 with
// Bound(h) = -alpha*h.
func LookaheadBarrier(n int, vel VelocityField, pos []int, center, radii []float64, horizon, alpha float64) (Certificate, error) {
	if err := checkIndices(n, pos, center); err != nil {
		return Certificate{}, err
	}
	if vel == nil {
		return Certificate{}, fmt.Errorf("%w: velocity field", ErrIncomplete)
	}
	if len(radii) != len(center) {
		return Certificate{}, fmt.Errorf("certificate: %d radii for %d center coordinates", len(radii), len(center))
	}
	if horizon < 0 {
		return Certificate{}, fmt.Errorf("certificate: lookahead horizon must be non-negative, got %g", horizon)
	}
	idx := append([]int(nil), pos...)
	c := append([]float64(nil), center...)
	r := append([]float64(nil), radii...)
	for k, rk := range r {
		if rk <= 0 {
			return Certificate{}, fmt.Errorf("certificate: ellipsoid radius %d must be positive, got %g", k, rk)
		}
	}

	value := func(_ float64, x []float64) float64 {
		v := vel(x)
		sum := 0.0
		for k, i := range idx {
			d := (x[i] + horizon*v[k] - c[k]) / r[k]
			sum += d * d
		}
		return sum - 1
	}
	return Numeric("lookahead_obstacle", value, LinearBound(alpha)), nil
}
