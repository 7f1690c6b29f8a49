// Package automation runs batches of scenarios: parameter sweeps, grid
// searches and Monte Carlo studies over perturbed initial states.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/san-kum/certsim/internal/config"
	"github.com/san-kum/certsim/internal/experiment"
	"github.com/san-kum/certsim/internal/sim"
	"golang.org/x/sync/errgroup"
)

// Outcome summarizes one run.
type Outcome struct {
	Metrics    map[string]float64
	StepsTaken int
	FinalState sim.State
	// Converged is the CLF completion flag of the last step.
	Converged bool
	// Safe holds when every step reported its barriers non-negative, or
	// the scenario has no barriers.
	Safe bool
	Err  error
}

func (o Outcome) Infeasible() bool { return errors.Is(o.Err, sim.ErrInfeasible) }

func Summarize(res *sim.Result, err error) Outcome {
	out := Outcome{Err: err, Safe: true}
	if res == nil {
		out.Safe = false
		return out
	}
	out.Metrics = res.Metrics
	out.StepsTaken = res.StepsTaken
	if n := len(res.States); n > 0 {
		out.FinalState = res.States[n-1]
	}
	if n := len(res.Diagnostics); n > 0 {
		out.Converged = res.Diagnostics[n-1].Bool("clf_complete")
	}
	for _, d := range res.Diagnostics {
		if _, ok := d["cbf_complete"]; ok && !d.Bool("cbf_complete") {
			out.Safe = false
			break
		}
	}
	return out
}

type Runner struct {
	base   *config.Config
	logger *slog.Logger
	limit  int
}

type Option func(*Runner)

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithLimit bounds the number of concurrent runs; n <= 0 means unbounded.
func WithLimit(n int) Option {
	return func(r *Runner) { r.limit = n }
}

func NewRunner(base *config.Config, opts ...Option) *Runner {
	r := &Runner{base: base.Clone(), logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// run executes cfg once. Configuration errors are returned; run errors
// such as infeasibility are part of the outcome.
func (r *Runner) run(ctx context.Context, cfg *config.Config) (Outcome, error) {
	exp, err := experiment.New(cfg, experiment.WithLogger(r.logger))
	if err != nil {
		return Outcome{}, err
	}
	res, err := exp.Run(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Outcome{}, ctxErr
	}
	return Summarize(res, err), nil
}

func (r *Runner) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}
	for i := 0; i < n; i++ {
		idx := i
		g.Go(func() error { return fn(ctx, idx) })
	}
	return g.Wait()
}

type Sweep struct {
	Param  string
	Values []float64
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}

type SweepResult struct {
	Value float64
	Outcome
}

// RunSweep runs the base scenario once per value of a single parameter.
func (r *Runner) RunSweep(ctx context.Context, sweep Sweep) ([]SweepResult, error) {
	if len(sweep.Values) == 0 {
		return nil, fmt.Errorf("%w: sweep over %s has no values", sim.ErrInvalidConfig, sweep.Param)
	}
	cfgs := make([]*config.Config, len(sweep.Values))
	for i, v := range sweep.Values {
		cfgs[i] = r.base.Clone()
		if err := SetParam(cfgs[i], sweep.Param, v); err != nil {
			return nil, err
		}
	}

	results := make([]SweepResult, len(sweep.Values))
	err := r.forEach(ctx, len(cfgs), func(ctx context.Context, i int) error {
		out, err := r.run(ctx, cfgs[i])
		if err != nil {
			return fmt.Errorf("%s=%g: %w", sweep.Param, sweep.Values[i], err)
		}
		results[i] = SweepResult{Value: sweep.Values[i], Outcome: out}
		r.logger.Info("sweep point done", "param", sweep.Param, "value", sweep.Values[i],
			"converged", out.Converged, "safe", out.Safe, "err", out.Err)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

type MonteCarlo struct {
	Trials int
	// Perturbation is the half-width of the uniform offset added to each
	// initial state component.
	Perturbation float64
	Seed         uint64
}

type Trial struct {
	ID           int
	InitialState sim.State
	Outcome
}

// RunMonteCarlo runs the base scenario from randomly perturbed initial
// states. Trial i also uses base seed + i for its sensor noise.
func (r *Runner) RunMonteCarlo(ctx context.Context, mc MonteCarlo) ([]Trial, error) {
	if mc.Trials <= 0 || mc.Perturbation < 0 {
		return nil, fmt.Errorf("%w: monte carlo needs trials > 0 and perturbation >= 0", sim.ErrInvalidConfig)
	}

	cfgs := make([]*config.Config, mc.Trials)
	for i := range cfgs {
		rng := rand.New(rand.NewPCG(mc.Seed, uint64(i)))
		cfg := r.base.Clone()
		for j := range cfg.InitialState {
			cfg.InitialState[j] += (2*rng.Float64() - 1) * mc.Perturbation
		}
		cfg.Seed = r.base.Seed + uint64(i)
		cfgs[i] = cfg
	}

	trials := make([]Trial, mc.Trials)
	err := r.forEach(ctx, mc.Trials, func(ctx context.Context, i int) error {
		out, err := r.run(ctx, cfgs[i])
		if err != nil {
			return fmt.Errorf("trial %d: %w", i, err)
		}
		trials[i] = Trial{ID: i, InitialState: cfgs[i].InitialState, Outcome: out}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trials, nil
}

type Stats struct {
	Total      int
	Completed  int
	Converged  int
	Safe       int
	Infeasible int
}

func MonteCarloStats(trials []Trial) Stats {
	s := Stats{Total: len(trials)}
	for _, t := range trials {
		if t.Err == nil {
			s.Completed++
		}
		if t.Converged {
			s.Converged++
		}
		if t.Safe {
			s.Safe++
		}
		if t.Infeasible() {
			s.Infeasible++
		}
	}
	return s
}
