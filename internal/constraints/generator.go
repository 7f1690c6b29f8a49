// Package constraints turns certificate values into affine rows A*z <= b
// of the per-step control QP.
//
// The decision vector seen by a generator is [u; delta], where u is the
// control input and delta holds one relaxation variable per relaxable
// certificate, in collection order. Rows map 1:1 onto certificates.
package constraints

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/certsim/internal/certificate"
	"github.com/san-kum/certsim/internal/sim"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrMissingRiskParams = errors.New("constraints: risk-aware generator requires risk parameters with a sigma function")
	ErrConfidenceBound   = errors.New("constraints: confidence bound must lie strictly between 0 and 1")
	ErrKindMismatch      = errors.New("constraints: collection kind does not match generator")
)

// CertificateError names the certificate whose row could not be built.
type CertificateError struct {
	Kind    certificate.Kind
	Index   int
	Name    string
	Wrapped error
}

func (e *CertificateError) Error() string {
	return fmt.Sprintf("%s certificate %d (%s): %v", e.Kind, e.Index, e.Name, e.Wrapped)
}

func (e *CertificateError) Unwrap() error { return e.Wrapped }

// Rows is a block of constraint rows A*[u; delta] <= B. A is nil when the
// block is empty.
type Rows struct {
	A          *mat.Dense
	B          []float64
	ControlDim int
	Relax      int
}

func (r Rows) Len() int { return len(r.B) }

// Empty returns a zero-row block for a control space of dimension m.
func Empty(m int) Rows { return Rows{ControlDim: m} }

type Generator interface {
	Kind() certificate.Kind
	Len() int
	// ControlDim is the width of the u block of every generated row.
	ControlDim() int
	Relaxations() int
	Generate(t float64, x sim.State) (Rows, sim.Diagnostics, error)
}

type generator struct {
	dyn      sim.Dynamics
	coll     certificate.Collection
	relaxCol []int
	nRelax   int
	risk     *RiskParams
	buffer   float64
}

func newGenerator(dyn sim.Dynamics, coll certificate.Collection, want certificate.Kind) (*generator, error) {
	if dyn == nil {
		return nil, fmt.Errorf("%w: nil dynamics", sim.ErrInvalidConfig)
	}
	if coll.Len() > 0 && coll.Kind != want {
		return nil, fmt.Errorf("%w: %w: got %s, want %s", sim.ErrInvalidConfig, ErrKindMismatch, coll.Kind, want)
	}
	coll.Kind = want

	g := &generator{dyn: dyn, coll: coll, relaxCol: make([]int, coll.Len())}
	for i, c := range coll.Certificates {
		g.relaxCol[i] = -1
		if c.Relaxable {
			g.relaxCol[i] = dyn.ControlDim() + g.nRelax
			g.nRelax++
		}
	}
	return g, nil
}

// NewCLF builds stability rows dV/dt <= Bound(V).
func NewCLF(dyn sim.Dynamics, coll certificate.Collection) (Generator, error) {
	return newGenerator(dyn, coll, certificate.Lyapunov)
}

// NewCBF builds safety rows dh/dt >= Bound(h).
func NewCBF(dyn sim.Dynamics, coll certificate.Collection) (Generator, error) {
	return newGenerator(dyn, coll, certificate.Barrier)
}

// NewRiskAwareCLF builds stability rows for the Ito dynamics
// dx = (f + g u) dt + sigma dW, adding the diffusion correction
// 0.5*tr(sigma^T H sigma) and reporting buffer-adjusted values V - r.
func NewRiskAwareCLF(dyn sim.Dynamics, coll certificate.Collection, params *RiskParams) (Generator, error) {
	if params == nil || params.Sigma == nil {
		return nil, fmt.Errorf("%w: %w", sim.ErrInvalidConfig, ErrMissingRiskParams)
	}
	r, err := RiskBuffer(*params)
	if err != nil {
		return nil, err
	}
	g, err := newGenerator(dyn, coll, certificate.Lyapunov)
	if err != nil {
		return nil, err
	}
	p := *params
	g.risk = &p
	g.buffer = r
	return g, nil
}

func (g *generator) Kind() certificate.Kind { return g.coll.Kind }
func (g *generator) Len() int               { return g.coll.Len() }
func (g *generator) ControlDim() int        { return g.dyn.ControlDim() }
func (g *generator) Relaxations() int       { return g.nRelax }

func (g *generator) prefix() string {
	if g.coll.Kind == certificate.Barrier {
		return "cbf"
	}
	return "clf"
}

func (g *generator) Generate(t float64, x sim.State) (Rows, sim.Diagnostics, error) {
	m := g.dyn.ControlDim()
	k := g.coll.Len()
	if k == 0 {
		return Empty(m), sim.Diagnostics{}, nil
	}

	vals, err := g.coll.Evaluate(t, x)
	if err != nil {
		var ee *certificate.EvalError
		if errors.As(err, &ee) {
			return Rows{}, nil, g.certErr(ee.Index, g.coll.Certificates[ee.Index], fmt.Errorf("%w: %w", sim.ErrNumerical, ee.Wrapped))
		}
		return Rows{}, nil, fmt.Errorf("%w: %w", sim.ErrNumerical, err)
	}

	n := g.dyn.StateDim()
	f, gx := g.dyn.Decompose(x)
	if f.Len() != n {
		return Rows{}, nil, fmt.Errorf("%w: drift has %d entries, want %d", sim.ErrDimensionMismatch, f.Len(), n)
	}
	if r, c := gx.Dims(); r != n || c != m {
		return Rows{}, nil, fmt.Errorf("%w: control gain is %dx%d, want %dx%d", sim.ErrDimensionMismatch, r, c, n, m)
	}

	var sigma *mat.Dense
	if g.risk != nil {
		sigma = g.risk.Sigma(x)
		if sigma == nil {
			return Rows{}, nil, fmt.Errorf("%w: %w", sim.ErrNumerical, ErrMissingRiskParams)
		}
		if r, _ := sigma.Dims(); r != n {
			return Rows{}, nil, fmt.Errorf("%w: sigma has %d rows, want %d", sim.ErrDimensionMismatch, r, n)
		}
	}

	a := mat.NewDense(k, m+g.nRelax, nil)
	b := make([]float64, k)
	lg := mat.NewVecDense(m, nil)
	barrier := g.coll.Kind == certificate.Barrier

	for i, cert := range g.coll.Certificates {
		grad := vals.Gradients[i]
		lg.MulVec(gx.T(), grad)
		lf := mat.Dot(grad, f)
		bound := vals.Bounds[i]

		drift := vals.TimePartials[i] + lf
		if sigma != nil {
			if vals.Hessians[i] == nil {
				return Rows{}, nil, g.certErr(i, cert, fmt.Errorf("%w: risk-aware row needs a hessian", sim.ErrNumerical))
			}
			drift += diffusionTrace(sigma, vals.Hessians[i])
		}

		// Lyapunov:  dV/dt <= bound  ->   LgV u <= -drift + bound
		// Barrier:   dh/dt >= bound  ->  -Lgh u <=  drift - bound
		sign := 1.0
		if barrier {
			sign = -1.0
		}
		for j := 0; j < m; j++ {
			a.Set(i, j, sign*lg.AtVec(j))
		}
		if col := g.relaxCol[i]; col >= 0 {
			a.Set(i, col, -sign*bound)
			b[i] = -sign * drift
		} else {
			b[i] = -sign*drift + sign*bound
		}

		if math.IsNaN(b[i]) || math.IsInf(b[i], 0) {
			return Rows{}, nil, g.certErr(i, cert, fmt.Errorf("%w: non-finite row", sim.ErrNumerical))
		}
	}

	return Rows{A: a, B: b, ControlDim: m, Relax: g.nRelax}, g.diagnostics(vals.Values), nil
}

func (g *generator) certErr(i int, c certificate.Certificate, err error) error {
	return &CertificateError{Kind: g.coll.Kind, Index: i, Name: c.Name, Wrapped: err}
}

func (g *generator) diagnostics(values []float64) sim.Diagnostics {
	p := g.prefix()
	complete := true
	for _, v := range values {
		if !g.coll.Kind.Satisfied(v) {
			complete = false
			break
		}
	}
	d := sim.Diagnostics{
		p + "_values":   append([]float64(nil), values...),
		p + "_complete": sim.Flag(complete),
	}
	if g.risk != nil {
		nominal := make([]float64, len(values))
		for i, v := range values {
			nominal[i] = v - g.buffer
		}
		d[p+"_values_nominal"] = nominal
		d[p+"_buffer"] = []float64{g.buffer}
	}
	return d
}

// diffusionTrace computes 0.5*tr(sigma^T H sigma).
func diffusionTrace(sigma *mat.Dense, h *mat.SymDense) float64 {
	var hs mat.Dense
	hs.Mul(h, sigma)
	_, q := sigma.Dims()
	tr := 0.0
	for j := 0; j < q; j++ {
		tr += mat.Dot(sigma.ColView(j), hs.ColView(j))
	}
	return 0.5 * tr
}
