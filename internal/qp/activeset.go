package qp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// ActiveSet is a primal active-set solver for strictly convex QPs. A
// feasible starting point is taken from the caller when it satisfies the
// constraints, otherwise from a phase-one linear program; the LP is what
// separates genuine infeasibility from numerical trouble.
type ActiveSet struct {
	MaxIterations int
	Tolerance     float64
}

func NewActiveSet() *ActiveSet {
	return &ActiveSet{MaxIterations: 500, Tolerance: 1e-9}
}

func (s *ActiveSet) Solve(p Problem, start []float64) (Solution, error) {
	if err := p.validate(); err != nil {
		return Solution{}, err
	}
	n := p.Dim()

	var z []float64
	if len(start) == n && p.Violation(start) <= s.Tolerance {
		z = append([]float64(nil), start...)
	} else if len(p.B) == 0 {
		z = make([]float64, n)
	} else {
		var err error
		if z, err = s.phaseOne(p); err != nil {
			return Solution{}, err
		}
	}

	working := make([]int, 0, n)
	inWorking := make([]bool, len(p.B))
	g := mat.NewVecDense(n, nil)

	for iter := 1; iter <= s.MaxIterations; iter++ {
		zv := mat.NewVecDense(n, z)
		g.MulVec(p.Hessian, zv)
		g.AddVec(g, mat.NewVecDense(n, p.Linear))

		step, lambda, err := s.kkt(p, working, g)
		if err != nil {
			return Solution{}, err
		}

		if floats.Norm(step, math.Inf(1)) <= s.Tolerance*(1+floats.Norm(z, math.Inf(1))) {
			j := -1
			worst := -s.Tolerance
			for k, l := range lambda {
				if l < worst {
					worst, j = l, k
				}
			}
			if j < 0 {
				return Solution{Z: z, Iterations: iter, Active: append([]int(nil), working...)}, nil
			}
			inWorking[working[j]] = false
			working = append(working[:j], working[j+1:]...)
			continue
		}

		alpha, blocking := 1.0, -1
		for i := range p.B {
			if inWorking[i] {
				continue
			}
			ap := rowDot(p.A, i, step)
			if ap <= s.Tolerance {
				continue
			}
			ratio := math.Max((p.B[i]-rowDot(p.A, i, z))/ap, 0)
			if ratio < alpha {
				alpha, blocking = ratio, i
			}
		}

		floats.AddScaled(z, alpha, step)
		if blocking >= 0 {
			working = append(working, blocking)
			inWorking[blocking] = true
		}
	}
	return Solution{}, ErrMaxIterations
}

// kkt solves the equality-constrained subproblem on the working set:
//
//	[H  Awᵀ] [p]   [-g]
//	[Aw  0 ] [λ] = [ 0]
func (s *ActiveSet) kkt(p Problem, working []int, g *mat.VecDense) ([]float64, []float64, error) {
	n := p.Dim()
	size := n + len(working)

	k := mat.NewDense(size, size, nil)
	rhs := mat.NewVecDense(size, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			k.Set(i, j, p.Hessian.At(i, j))
		}
		rhs.SetVec(i, -g.AtVec(i))
	}
	for w, row := range working {
		for j := 0; j < n; j++ {
			v := p.A.At(row, j)
			k.Set(n+w, j, v)
			k.Set(j, n+w, v)
		}
	}

	var sol mat.VecDense
	if err := sol.SolveVec(k, rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, nil, fmt.Errorf("%w: kkt system: %v", ErrNumerical, err)
		}
	}
	raw := sol.RawVector().Data
	step := append([]float64(nil), raw[:n]...)
	lambda := append([]float64(nil), raw[n:]...)
	return step, lambda, nil
}

// phaseOne finds any z with A z <= b by solving the LP
// min 0 s.t. A z <= b, with z split into non-negative parts.
func (s *ActiveSet) phaseOne(p Problem) ([]float64, error) {
	n := p.Dim()
	c := make([]float64, n)
	cStd, aStd, bStd := lp.Convert(c, p.A, p.B, nil, nil)

	_, x, err := lp.Simplex(cStd, aStd, bStd, s.Tolerance, nil)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return nil, ErrInfeasible
	case err != nil:
		return nil, fmt.Errorf("%w: phase one: %v", ErrNumerical, err)
	}

	z := make([]float64, n)
	for i := range z {
		z[i] = x[i] - x[n+i]
	}
	if v := p.Violation(z); v > math.Sqrt(s.Tolerance) {
		return nil, fmt.Errorf("%w: phase one point violates constraints by %g", ErrNumerical, v)
	}
	return z, nil
}
