package certificate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LinearBound is the exponential-convergence law Bound(v) = -c*v.
func LinearBound(c float64) func(float64) float64 {
	return func(v float64) float64 { return -c * v }
}

// FixedTimeBound is the fixed-time stability law
// Bound(v) = -c1*sig(v)^e1 - c2*sig(v)^e2 with 0 < e1 < 1 < e2, where
// sig(v)^e = sign(v)*|v|^e. Inside the target set the bound is positive,
// so V may grow back toward zero but never leave the set.
func FixedTimeBound(c1, c2, e1, e2 float64) func(float64) float64 {
	return func(v float64) float64 {
		a := math.Abs(v)
		return -math.Copysign(c1*math.Pow(a, e1)+c2*math.Pow(a, e2), v)
	}
}

// weightedDistance builds value/gradient/hessian for
// sum_k w_k (x[idx_k] - center_k)^2 - offset over an n-dimensional state.
func weightedDistance(n int, indices []int, center, weights []float64, offset float64) Certificate {
	idx := append([]int(nil), indices...)
	c := append([]float64(nil), center...)
	w := append([]float64(nil), weights...)

	hess := mat.NewSymDense(n, nil)
	for k, i := range idx {
		hess.SetSym(i, i, 2*w[k])
	}

	return Certificate{
		Value: func(_ float64, x []float64) float64 {
			sum := 0.0
			for k, i := range idx {
				d := x[i] - c[k]
				sum += w[k] * d * d
			}
			return sum - offset
		},
		TimePartial: func(float64, []float64) float64 { return 0 },
		Gradient: func(_ float64, x []float64) *mat.VecDense {
			g := mat.NewVecDense(len(x), nil)
			for k, i := range idx {
				g.SetVec(i, 2*w[k]*(x[i]-c[k]))
			}
			return g
		},
		Hessian: func(float64, []float64) *mat.SymDense {
			out := mat.NewSymDense(n, nil)
			out.CopySym(hess)
			return out
		},
	}
}

func checkIndices(n int, indices []int, center []float64) error {
	if len(indices) == 0 || len(indices) != len(center) {
		return fmt.Errorf("certificate: %d indices for %d center coordinates", len(indices), len(center))
	}
	for _, i := range indices {
		if i < 0 || i >= n {
			return fmt.Errorf("certificate: index %d outside state of dimension %d", i, n)
		}
	}
	return nil
}

func ones(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

// GoalLyapunov returns V(x) = ||x_I - goal||^2 - radius^2 with the given
// bound law. V <= 0 exactly when the selected coordinates are within
// radius of goal.
func GoalLyapunov(n int, indices []int, goal []float64, radius float64, bound func(float64) float64) (Certificate, error) {
	if err := checkIndices(n, indices, goal); err != nil {
		return Certificate{}, err
	}
	if bound == nil {
		return Certificate{}, fmt.Errorf("%w: bound", ErrIncomplete)
	}
	cert := weightedDistance(n, indices, goal, ones(len(goal)), radius*radius)
	cert.Name = "goal"
	cert.Bound = bound
	return cert, nil
}

// QuadraticLyapunov is GoalLyapunov with the exponential law -rate*V.
func QuadraticLyapunov(n int, indices []int, goal []float64, radius, rate float64) (Certificate, error) {
	return GoalLyapunov(n, indices, goal, radius, LinearBound(rate))
}

// FixedTimeLyapunov is GoalLyapunov with the fixed-time law.
func FixedTimeLyapunov(n int, indices []int, goal []float64, radius, c1, c2, e1, e2 float64) (Certificate, error) {
	if !(e1 > 0 && e1 < 1 && e2 > 1) {
		return Certificate{}, fmt.Errorf("certificate: fixed-time exponents need 0 < e1 < 1 < e2, got e1=%g e2=%g", e1, e2)
	}
	if c1 <= 0 || c2 <= 0 {
		return Certificate{}, fmt.Errorf("certificate: fixed-time gains must be positive, got c1=%g c2=%g", c1, c2)
	}
	cert, err := GoalLyapunov(n, indices, goal, radius, FixedTimeBound(c1, c2, e1, e2))
	if err != nil {
		return Certificate{}, err
	}
	cert.Name = "goal_fxt"
	return cert, nil
}

// EllipsoidBarrier returns h(x) = sum((x_i - c_i)/r_i)^2 - 1, positive
// outside the ellipsoid, with Bound(h) = -alpha*h.
func EllipsoidBarrier(n int, indices []int, center, radii []float64, alpha float64) (Certificate, error) {
	if err := checkIndices(n, indices, center); err != nil {
		return Certificate{}, err
	}
	if len(radii) != len(center) {
		return Certificate{}, fmt.Errorf("certificate: %d radii for %d center coordinates", len(radii), len(center))
	}
	w := make([]float64, len(radii))
	for k, r := range radii {
		if r <= 0 {
			return Certificate{}, fmt.Errorf("certificate: ellipsoid radius %d must be positive, got %g", k, r)
		}
		w[k] = 1 / (r * r)
	}
	cert := weightedDistance(n, indices, center, w, 1)
	cert.Name = "obstacle"
	cert.Bound = LinearBound(alpha)
	return cert, nil
}
