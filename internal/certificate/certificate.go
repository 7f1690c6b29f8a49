// Package certificate defines Lyapunov and barrier certificate functions
// and evaluates them at a (time, state) pair.
//
// A [Certificate] bundles a scalar function of time and state with its
// time partial, state gradient, state Hessian and the bound its time
// derivative must respect:
//
//   - Lyapunov: dV/dt <= Bound(V)
//   - Barrier:  dh/dt >= Bound(h)
//
// Certificates are immutable once built and safe to share between
// goroutines as long as the supplied closures are pure.
package certificate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNonFinite indicates a certificate produced NaN or Inf, typically
	// because it was evaluated outside its domain.
	ErrNonFinite = errors.New("certificate: non-finite value")

	// ErrShape indicates a gradient or Hessian with the wrong dimension.
	ErrShape = errors.New("certificate: gradient/hessian dimension mismatch")

	// ErrIncomplete indicates a certificate missing one of its functions.
	ErrIncomplete = errors.New("certificate: missing function")
)

// EvalError reports which certificate of a collection failed to evaluate.
type EvalError struct {
	Kind    Kind
	Index   int
	Name    string
	Wrapped error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s %d (%s): %v", e.Kind, e.Index, e.Name, e.Wrapped)
}

func (e *EvalError) Unwrap() error { return e.Wrapped }

type Kind int

const (
	Lyapunov Kind = iota + 1
	Barrier
)

func (k Kind) String() string {
	switch k {
	case Lyapunov:
		return "lyapunov"
	case Barrier:
		return "barrier"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Satisfied reports whether v is inside the certificate's target set:
// V <= 0 for Lyapunov functions, h >= 0 for barriers.
func (k Kind) Satisfied(v float64) bool {
	if k == Barrier {
		return v >= 0
	}
	return v <= 0
}

type Certificate struct {
	Name        string
	Value       func(t float64, x []float64) float64
	TimePartial func(t float64, x []float64) float64
	Gradient    func(t float64, x []float64) *mat.VecDense
	Hessian     func(t float64, x []float64) *mat.SymDense
	Bound       func(v float64) float64
	// Relaxable marks the constraint as soft: the QP may scale the bound
	// with a penalized relaxation variable instead of failing.
	Relaxable bool
}

func (c Certificate) validate() error {
	switch {
	case c.Value == nil:
		return fmt.Errorf("%w: value", ErrIncomplete)
	case c.Gradient == nil:
		return fmt.Errorf("%w: gradient", ErrIncomplete)
	case c.Bound == nil:
		return fmt.Errorf("%w: bound", ErrIncomplete)
	}
	return nil
}

// Collection is an ordered set of certificates of a single kind. Order
// fixes the row order of generated constraints.
type Collection struct {
	Kind         Kind
	Certificates []Certificate
}

func NewCollection(kind Kind, certs ...Certificate) (Collection, error) {
	if kind != Lyapunov && kind != Barrier {
		return Collection{}, fmt.Errorf("certificate: unknown kind %d", int(kind))
	}
	for i, c := range certs {
		if err := c.validate(); err != nil {
			return Collection{}, fmt.Errorf("%s %d (%s): %w", kind, i, c.Name, err)
		}
	}
	out := make([]Certificate, len(certs))
	copy(out, certs)
	return Collection{Kind: kind, Certificates: out}, nil
}

func (c Collection) Len() int { return len(c.Certificates) }

func (c Collection) RelaxableCount() int {
	n := 0
	for _, cert := range c.Certificates {
		if cert.Relaxable {
			n++
		}
	}
	return n
}

// Relaxed returns a copy of the collection with every certificate marked
// relaxable.
func (c Collection) Relaxed() Collection {
	out := Collection{Kind: c.Kind, Certificates: make([]Certificate, len(c.Certificates))}
	for i, cert := range c.Certificates {
		cert.Relaxable = true
		out.Certificates[i] = cert
	}
	return out
}

// Values holds one entry per certificate, aligned with collection order.
// Hessians entries are nil for certificates without a Hessian.
type Values struct {
	Values       []float64
	TimePartials []float64
	Gradients    []*mat.VecDense
	Hessians     []*mat.SymDense
	Bounds       []float64
}

// Evaluate computes every certificate at (t, x). It does not mutate x or
// the certificates, so repeated calls with the same input agree.
func (c Collection) Evaluate(t float64, x []float64) (Values, error) {
	n := len(c.Certificates)
	out := Values{
		Values:       make([]float64, n),
		TimePartials: make([]float64, n),
		Gradients:    make([]*mat.VecDense, n),
		Hessians:     make([]*mat.SymDense, n),
		Bounds:       make([]float64, n),
	}
	for i, cert := range c.Certificates {
		v := cert.Value(t, x)
		dt := 0.0
		if cert.TimePartial != nil {
			dt = cert.TimePartial(t, x)
		}
		grad := cert.Gradient(t, x)
		if grad == nil || grad.Len() != len(x) {
			return Values{}, &EvalError{Kind: c.Kind, Index: i, Name: cert.Name, Wrapped: ErrShape}
		}
		var hess *mat.SymDense
		if cert.Hessian != nil {
			hess = cert.Hessian(t, x)
			if hess != nil && hess.SymmetricDim() != len(x) {
				return Values{}, &EvalError{Kind: c.Kind, Index: i, Name: cert.Name, Wrapped: ErrShape}
			}
		}
		bound := cert.Bound(v)

		if !finite(v) || !finite(dt) || !finite(bound) || !finiteVec(grad) {
			return Values{}, &EvalError{Kind: c.Kind, Index: i, Name: cert.Name, Wrapped: ErrNonFinite}
		}

		out.Values[i] = v
		out.TimePartials[i] = dt
		out.Gradients[i] = grad
		out.Hessians[i] = hess
		out.Bounds[i] = bound
	}
	return out, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func finiteVec(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		if !finite(v.AtVec(i)) {
			return false
		}
	}
	return true
}
