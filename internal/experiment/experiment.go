// Package experiment assembles a runnable scenario from a config: model,
// sensor, estimator, certificate QP controller and integrator.
package experiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/certsim/internal/config"
	"github.com/san-kum/certsim/internal/metrics"
	"github.com/san-kum/certsim/internal/sim"
	"gonum.org/v1/gonum/mat"
)

type Experiment struct {
	cfg    *config.Config
	reg    *Registry
	logger *slog.Logger
}

type Option func(*Experiment)

func WithLogger(l *slog.Logger) Option {
	return func(e *Experiment) { e.logger = l }
}

func WithRegistry(r *Registry) Option {
	return func(e *Experiment) { e.reg = r }
}

// New validates cfg and checks that it builds against its model, so
// configuration errors surface before any step runs.
func New(cfg *config.Config, opts ...Option) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", sim.ErrInvalidConfig, err)
	}
	e := &Experiment{cfg: cfg.Clone(), reg: NewRegistry(), logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if _, err := e.Build(0, e.cfg.Seed); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Experiment) Config() *config.Config { return e.cfg.Clone() }

// Build returns a simulator whose collaborators are all fresh, so
// simulators from separate calls share no mutable state.
func (e *Experiment) Build(run int, seed uint64) (*sim.Simulator, error) {
	dyn, err := e.reg.GetModel(e.cfg.Model, e.cfg.Dimension)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sim.ErrInvalidConfig, err)
	}
	n, m := dyn.StateDim(), dyn.ControlDim()
	if len(e.cfg.InitialState) != n {
		return nil, fmt.Errorf("%w: %w: initial state has %d entries, %s has %d states",
			sim.ErrInvalidConfig, sim.ErrDimensionMismatch, len(e.cfg.InitialState), e.cfg.Model, n)
	}
	if len(e.cfg.Limits.Min) != m {
		return nil, fmt.Errorf("%w: %w: limits have %d entries, %s takes %d inputs",
			sim.ErrInvalidConfig, sim.ErrDimensionMismatch, len(e.cfg.Limits.Min), e.cfg.Model, m)
	}

	integ, err := e.reg.GetIntegrator(e.cfg.Integrator)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sim.ErrInvalidConfig, err)
	}
	sensor, err := e.sensor(n, seed)
	if err != nil {
		return nil, err
	}
	est, err := e.estimator()
	if err != nil {
		return nil, err
	}
	ctrl, err := e.controller(dyn)
	if err != nil {
		return nil, err
	}

	s := sim.New(dyn, sensor, est, ctrl, integ, sim.WithLogger(e.logger.With("run", run)))
	for _, metric := range e.metrics(dyn) {
		s.AddMetric(metric)
	}
	return s, nil
}

func (e *Experiment) metrics(dyn sim.Dynamics) []sim.Metric {
	out := []sim.Metric{
		metrics.NewControlEffort(),
		metrics.NewStability(1e6),
	}
	if len(e.cfg.Lyapunovs) > 0 {
		l := e.cfg.Lyapunovs[0]
		out = append(out, metrics.NewGoalDistance(l.Indices, l.Goal))
	}
	// barrier collections were validated in Build
	if cbfs, err := e.barriers(dyn); err == nil {
		for i, c := range cbfs.Certificates {
			out = append(out, metrics.NewMinValue(fmt.Sprintf("min_barrier_%d", i), c.Value))
		}
	}
	return out
}

func (e *Experiment) InitialState() sim.State {
	return sim.State(e.cfg.InitialState).Clone()
}

// InitialCovariance is InitialVariance·I.
func (e *Experiment) InitialCovariance() *mat.SymDense {
	n := len(e.cfg.InitialState)
	p := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		p.SetSym(i, i, e.cfg.InitialVariance)
	}
	return p
}

func (e *Experiment) SimConfig() sim.Config {
	return sim.Config{
		Dt:                  e.cfg.Dt,
		NumSteps:            e.cfg.Steps(),
		ControlFromEstimate: e.cfg.ControlFromEstimate,
		ValidateState:       true,
	}
}

// Run executes the scenario once with the configured seed.
func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	s, err := e.Build(0, e.cfg.Seed)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, e.InitialState(), e.InitialCovariance(), e.SimConfig())
}

// Ensemble executes runs independent copies of the scenario in parallel,
// run i seeded with Seed+i. limit bounds concurrency; limit <= 0 means
// unbounded.
func (e *Experiment) Ensemble(ctx context.Context, runs, limit int) ([]*sim.Result, error) {
	ens := sim.NewEnsemble(func(run int, seed int64) (*sim.Simulator, error) {
		return e.Build(run, uint64(seed))
	}, runs, int64(e.cfg.Seed))
	ens.SetLimit(limit)
	return ens.Run(ctx, e.InitialState(), e.InitialCovariance(), e.SimConfig())
}
