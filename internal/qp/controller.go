package qp

import (
	"errors"
	"fmt"
	"time"

	"github.com/san-kum/certsim/internal/constraints"
	"github.com/san-kum/certsim/internal/sim"
	"gonum.org/v1/gonum/mat"
)

const (
	DefaultRelaxationPenalty = 1e3
	DefaultRelaxationLimit   = 1e3
)

// Nominal produces the unconstrained input the QP stays close to.
type Nominal interface {
	Compute(t float64, x sim.State) sim.Control
}

type Limits struct {
	Min []float64
	Max []float64
}

type ControllerConfig struct {
	Dynamics sim.Dynamics
	Nominal  Nominal
	Limits   Limits
	// R weights the input deviation; nil means identity.
	R *mat.SymDense
	// RelaxationPenalty weights (delta - 1)^2 for each relaxation variable.
	RelaxationPenalty float64
	// RelaxationLimit is the upper bound of each relaxation variable.
	RelaxationLimit float64
	Generators      []constraints.Generator
	Solver          Solver
}

// Controller computes u* = argmin ||u - u_nom||²_R + p·Σ(δ-1)² subject to
// every generator's rows, u_min <= u <= u_max and 0 <= δ <= limit.
// It implements sim.Controller.
type Controller struct {
	cfg    ControllerConfig
	m      int
	nRelax int
	cost   *mat.SymDense
}

func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Dynamics == nil || cfg.Nominal == nil {
		return nil, fmt.Errorf("%w: dynamics and nominal input are required", sim.ErrInvalidConfig)
	}
	m := cfg.Dynamics.ControlDim()
	if m <= 0 {
		return nil, fmt.Errorf("%w: control dimension must be positive", sim.ErrInvalidConfig)
	}
	if len(cfg.Limits.Min) != m || len(cfg.Limits.Max) != m {
		return nil, fmt.Errorf("%w: %w: limits have %d/%d entries, control dimension is %d",
			sim.ErrInvalidConfig, sim.ErrDimensionMismatch, len(cfg.Limits.Min), len(cfg.Limits.Max), m)
	}
	for i := range cfg.Limits.Min {
		if cfg.Limits.Min[i] > cfg.Limits.Max[i] {
			return nil, fmt.Errorf("%w: limit %d has min %g > max %g", sim.ErrInvalidConfig, i, cfg.Limits.Min[i], cfg.Limits.Max[i])
		}
	}

	if cfg.R == nil {
		cfg.R = mat.NewSymDense(m, nil)
		for i := 0; i < m; i++ {
			cfg.R.SetSym(i, i, 1)
		}
	}
	if cfg.R.SymmetricDim() != m {
		return nil, fmt.Errorf("%w: %w: R is %dx%d, control dimension is %d",
			sim.ErrInvalidConfig, sim.ErrDimensionMismatch, cfg.R.SymmetricDim(), cfg.R.SymmetricDim(), m)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(cfg.R); !ok {
		return nil, fmt.Errorf("%w: R must be positive definite", sim.ErrInvalidConfig)
	}

	nRelax := 0
	for i, g := range cfg.Generators {
		if g == nil {
			return nil, fmt.Errorf("%w: generator %d is nil", sim.ErrInvalidConfig, i)
		}
		if gm := g.ControlDim(); gm != m {
			return nil, fmt.Errorf("%w: %w: %s generator %d has %d inputs, control dimension is %d",
				sim.ErrInvalidConfig, sim.ErrDimensionMismatch, g.Kind(), i, gm, m)
		}
		nRelax += g.Relaxations()
	}
	if cfg.RelaxationPenalty == 0 {
		cfg.RelaxationPenalty = DefaultRelaxationPenalty
	}
	if cfg.RelaxationLimit == 0 {
		cfg.RelaxationLimit = DefaultRelaxationLimit
	}
	if cfg.RelaxationPenalty < 0 || cfg.RelaxationLimit < 1 {
		return nil, fmt.Errorf("%w: relaxation penalty must be positive and limit at least 1", sim.ErrInvalidConfig)
	}
	if cfg.Solver == nil {
		cfg.Solver = NewActiveSet()
	}

	nz := m + nRelax
	cost := mat.NewSymDense(nz, nil)
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			cost.SetSym(i, j, 2*cfg.R.At(i, j))
		}
	}
	for i := m; i < nz; i++ {
		cost.SetSym(i, i, 2*cfg.RelaxationPenalty)
	}

	return &Controller{cfg: cfg, m: m, nRelax: nRelax, cost: cost}, nil
}

// Relaxations is the number of relaxation variables appended after u.
func (c *Controller) Relaxations() int { return c.nRelax }

func (c *Controller) Compute(t float64, x sim.State) (sim.Control, sim.Diagnostics, error) {
	start := time.Now()
	defer func() { solveDuration.Observe(time.Since(start).Seconds()) }()

	m, nz := c.m, c.m+c.nRelax
	diag := sim.Diagnostics{}

	uNom := c.cfg.Nominal.Compute(t, x)
	if len(uNom) != m {
		return nil, diag, fmt.Errorf("%w: nominal input has %d entries, want %d", sim.ErrDimensionMismatch, len(uNom), m)
	}

	blocks := make([]constraints.Rows, len(c.cfg.Generators))
	nRows := 2 * nz
	for i, g := range c.cfg.Generators {
		rows, d, err := g.Generate(t, x)
		if err != nil {
			return nil, diag, fmt.Errorf("%s constraints: %w", g.Kind(), err)
		}
		if rows.Len() > 0 && (rows.ControlDim != m || rows.Relax != g.Relaxations()) {
			return nil, diag, fmt.Errorf("%w: %s rows cover %d inputs and %d relaxations, want %d and %d",
				sim.ErrDimensionMismatch, g.Kind(), rows.ControlDim, rows.Relax, m, g.Relaxations())
		}
		blocks[i] = rows
		nRows += rows.Len()
		diag.Merge(d)
	}

	a := mat.NewDense(nRows, nz, nil)
	b := make([]float64, nRows)
	row, relaxOffset := 0, m
	for _, rows := range blocks {
		for i := 0; i < rows.Len(); i++ {
			for j := 0; j < m; j++ {
				a.Set(row, j, rows.A.At(i, j))
			}
			for j := 0; j < rows.Relax; j++ {
				a.Set(row, relaxOffset+j, rows.A.At(i, m+j))
			}
			b[row] = rows.B[i]
			row++
		}
		relaxOffset += rows.Relax
	}
	for j := 0; j < nz; j++ {
		lo, hi := 0.0, c.cfg.RelaxationLimit
		if j < m {
			lo, hi = c.cfg.Limits.Min[j], c.cfg.Limits.Max[j]
		}
		a.Set(row, j, 1)
		b[row] = hi
		a.Set(row+1, j, -1)
		b[row+1] = -lo
		row += 2
	}

	zNom := make([]float64, nz)
	copy(zNom, uNom)
	for j := m; j < nz; j++ {
		zNom[j] = 1
	}
	lin := mat.NewVecDense(nz, nil)
	lin.MulVec(c.cost, mat.NewVecDense(nz, zNom))
	lin.ScaleVec(-1, lin)

	sol, err := c.cfg.Solver.Solve(Problem{Hessian: c.cost, Linear: lin.RawVector().Data, A: a, B: b}, zNom)
	if err != nil {
		switch {
		case errors.Is(err, ErrInfeasible):
			solvesTotal.WithLabelValues(outcomeInfeasible).Inc()
			diag["qp_infeasible"] = sim.Flag(true)
		default:
			solvesTotal.WithLabelValues(outcomeNumerical).Inc()
		}
		return nil, diag, fmt.Errorf("qp at t=%.4f: %w", t, err)
	}
	solvesTotal.WithLabelValues(outcomeOptimal).Inc()
	solveIterations.Observe(float64(sol.Iterations))

	u := make(sim.Control, m)
	copy(u, sol.Z[:m])
	if c.nRelax > 0 {
		diag["qp_relaxation"] = append([]float64(nil), sol.Z[m:]...)
	}
	diag["qp_iterations"] = []float64{float64(sol.Iterations)}
	return u, diag, nil
}
