package sim

import (
	"context"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"
)

type Simulator struct {
	dyn        Dynamics
	sensor     Sensor
	estimator  Estimator
	controller Controller
	integrator Integrator
	metrics    []Metric
	observers  []Observer
	logger     *slog.Logger
}

type Option func(*Simulator)

func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) { s.logger = l }
}

func New(dyn Dynamics, sensor Sensor, estimator Estimator, controller Controller, integrator Integrator, opts ...Option) *Simulator {
	s := &Simulator{
		dyn:        dyn,
		sensor:     sensor,
		estimator:  estimator,
		controller: controller,
		integrator: integrator,
		metrics:    make([]Metric, 0),
		observers:  make([]Observer, 0),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Execute runs exactly cfg.NumSteps control steps starting from x0 with
// initial estimator covariance p0 (nil means identity). Any per-step
// failure aborts the run and is returned as a *StepError alongside the
// history accumulated so far.
func (s *Simulator) Execute(ctx context.Context, x0 State, p0 *mat.SymDense, cfg Config) (*Result, error) {
	if err := s.validateConfig(x0, p0, cfg); err != nil {
		return nil, err
	}

	n := cfg.NumSteps
	result := &Result{
		States:       make([]State, 0, n+1),
		Controls:     make([]Control, 0, n),
		Measurements: make([]State, 0, n),
		Estimates:    make([]State, 0, n),
		Covariances:  make([]*mat.SymDense, 0, n),
		Diagnostics:  make([]Diagnostics, 0, n),
		Times:        make([]float64, 0, n+1),
		Metrics:      make(map[string]float64),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	x := x0.Clone()
	xHat := x0.Clone()
	cov := p0
	if cov == nil {
		cov = identity(len(x0))
	}
	t := 0.0
	keys := make(map[string]struct{})

	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)

	s.logger.Info("run started", "steps", n, "dt", cfg.Dt, "state_dim", len(x0))

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			s.logger.Warn("run cancelled", "step", i, "time", t)
			return s.finish(result, keys), ctx.Err()
		default:
		}

		z, err := s.sensor.Measure(t, x)
		if err != nil {
			return s.finish(result, keys), s.fail(i, t, StageSensor, err)
		}

		xHat, cov, err = s.estimator.Estimate(t, z, xHat, cov)
		if err != nil {
			return s.finish(result, keys), s.fail(i, t, StageEstimator, err)
		}
		if cov == nil {
			return s.finish(result, keys), s.fail(i, t, StageEstimator, fmt.Errorf("%w: estimator returned nil covariance", ErrNumerical))
		}

		feedback := x
		if cfg.ControlFromEstimate {
			feedback = xHat
		}
		u, diag, err := s.controller.Compute(t, feedback.Clone())
		if err != nil {
			return s.finish(result, keys), s.fail(i, t, StageController, err)
		}
		if diag == nil {
			diag = Diagnostics{}
		}

		for _, m := range s.metrics {
			m.Observe(x, u, t)
		}

		next := s.integrator.Step(s.dyn, x, u, cfg.Dt)
		if cfg.ValidateState && !next.IsValid() {
			return s.finish(result, keys), s.fail(i, t, StageIntegrator, ErrInvalidState)
		}

		rec := StepRecord{
			Step:        i,
			Time:        t,
			State:       x,
			Control:     u.Clone(),
			Measurement: z.Clone(),
			Estimate:    xHat.Clone(),
			Covariance:  mat.NewSymDense(cov.SymmetricDim(), nil),
			Diagnostics: diag,
		}
		rec.Covariance.CopySym(cov)
		for _, obs := range s.observers {
			obs.OnStep(rec)
		}

		x = next
		t += cfg.Dt
		result.StepsTaken++

		result.States = append(result.States, x.Clone())
		result.Controls = append(result.Controls, rec.Control)
		result.Measurements = append(result.Measurements, rec.Measurement)
		result.Estimates = append(result.Estimates, rec.Estimate)
		result.Covariances = append(result.Covariances, rec.Covariance)
		result.Diagnostics = append(result.Diagnostics, diag)
		result.Times = append(result.Times, t)
		for k := range diag {
			keys[k] = struct{}{}
		}

		s.logger.Debug("step", "step", i, "time", t, "diagnostics", len(diag))
	}

	s.finish(result, keys)
	s.logger.Info("run finished", "steps", result.StepsTaken, "final_time", t)
	return result, nil
}

// finish fills the run-level summaries from whatever steps completed.
func (s *Simulator) finish(result *Result, keys map[string]struct{}) *Result {
	result.DiagnosticKeys = sortedKeys(keys)
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	return result
}

func (s *Simulator) fail(step int, t float64, stage Stage, err error) error {
	s.logger.Error("step failed", "step", step, "time", t, "stage", string(stage), "error", err)
	return &StepError{Step: step, Time: t, Stage: stage, Wrapped: err}
}

func (s *Simulator) validateConfig(x0 State, p0 *mat.SymDense, cfg Config) error {
	if cfg.NumSteps <= 0 {
		return fmt.Errorf("%w: num_steps must be positive, got %d", ErrInvalidConfig, cfg.NumSteps)
	}
	if cfg.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %f", ErrInvalidConfig, cfg.Dt)
	}
	if s.dyn == nil || s.sensor == nil || s.estimator == nil || s.controller == nil || s.integrator == nil {
		return fmt.Errorf("%w: missing collaborator", ErrInvalidConfig)
	}
	if len(x0) != s.dyn.StateDim() {
		return fmt.Errorf("%w: %w: initial state has %d entries, dynamics expects %d",
			ErrInvalidConfig, ErrDimensionMismatch, len(x0), s.dyn.StateDim())
	}
	if p0 != nil && p0.SymmetricDim() != len(x0) {
		return fmt.Errorf("%w: %w: initial covariance is %dx%d for %d states",
			ErrInvalidConfig, ErrDimensionMismatch, p0.SymmetricDim(), p0.SymmetricDim(), len(x0))
	}
	if !x0.IsValid() {
		return ErrInvalidState
	}
	return nil
}

func identity(n int) *mat.SymDense {
	p := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		p.SetSym(i, i, 1)
	}
	return p
}

func sortedKeys(set map[string]struct{}) []string {
	d := make(Diagnostics, len(set))
	for k := range set {
		d[k] = nil
	}
	return d.Keys()
}
