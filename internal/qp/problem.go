// Package qp solves the per-step control quadratic program
//
//	minimize   ½ zᵀ H z + cᵀ z
//	subject to A z <= b
//
// and assembles that program from certificate constraint rows, actuator
// limits and a nominal input.
package qp

import (
	"fmt"

	"github.com/san-kum/certsim/internal/sim"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInfeasible is returned when no z satisfies A z <= b.
	ErrInfeasible = sim.ErrInfeasible
	// ErrNumerical is returned for solver breakdowns unrelated to feasibility.
	ErrNumerical = sim.ErrNumerical
	// ErrMaxIterations is returned when the active set fails to settle.
	ErrMaxIterations = fmt.Errorf("%w: qp iteration limit reached", sim.ErrNumerical)
)

type Problem struct {
	Hessian *mat.SymDense
	Linear  []float64
	// A is nil when the problem has no inequality rows.
	A *mat.Dense
	B []float64
}

func (p Problem) Dim() int { return len(p.Linear) }

func (p Problem) validate() error {
	n := len(p.Linear)
	if n == 0 || p.Hessian == nil || p.Hessian.SymmetricDim() != n {
		return fmt.Errorf("%w: hessian/linear term size mismatch", sim.ErrDimensionMismatch)
	}
	if len(p.B) == 0 {
		return nil
	}
	if p.A == nil {
		return fmt.Errorf("%w: %d bounds without a constraint matrix", sim.ErrDimensionMismatch, len(p.B))
	}
	if r, c := p.A.Dims(); r != len(p.B) || c != n {
		return fmt.Errorf("%w: constraint matrix is %dx%d, want %dx%d", sim.ErrDimensionMismatch, r, c, len(p.B), n)
	}
	return nil
}

// Violation returns max(A z - b, 0).
func (p Problem) Violation(z []float64) float64 {
	worst := 0.0
	for i := range p.B {
		if v := rowDot(p.A, i, z) - p.B[i]; v > worst {
			worst = v
		}
	}
	return worst
}

func (p Problem) Objective(z []float64) float64 {
	zv := mat.NewVecDense(len(z), z)
	return 0.5*mat.Inner(zv, p.Hessian, zv) + mat.Dot(mat.NewVecDense(len(p.Linear), p.Linear), zv)
}

type Solution struct {
	Z          []float64
	Iterations int
	Active     []int
}

type Solver interface {
	Solve(p Problem, start []float64) (Solution, error)
}

func rowDot(a *mat.Dense, i int, z []float64) float64 {
	sum := 0.0
	for j, v := range z {
		sum += a.At(i, j) * v
	}
	return sum
}
