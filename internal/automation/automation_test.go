package automation

import (
	"context"
	"testing"

	"github.com/san-kum/certsim/internal/config"
	"github.com/san-kum/certsim/internal/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shortScenario() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Duration = 1
	return cfg
}

func TestSetParam(t *testing.T) {
	cfg := config.GetPreset("single_integrator", "obstacle")
	require.NotNil(t, cfg)

	require.NoError(t, SetParam(cfg, "barrier.alpha", 3))
	require.NoError(t, SetParam(cfg, "lyapunov.rate", 2))
	require.NoError(t, SetParam(cfg, "qp.relaxation_penalty", 50))
	assert.Equal(t, 3.0, cfg.Barriers[0].Alpha)
	assert.Equal(t, 2.0, cfg.Lyapunovs[0].Rate)
	assert.Equal(t, 50.0, cfg.QP.RelaxationPenalty)

	assert.ErrorIs(t, SetParam(cfg, "bogus", 1), ErrUnknownParam)
	assert.Error(t, SetParam(cfg, "risk.p_bound", 0.5), "scenario has no risk section")
	assert.Contains(t, Params(), "risk.p_bound")

	fw := config.GetPreset("fixed_wing", "reach_drop_point")
	require.NoError(t, SetParam(fw, "lyapunov.slowdown", 80))
	assert.Equal(t, 80.0, fw.Lyapunovs[0].Slowdown)
}

func TestLinspace(t *testing.T) {
	assert.Equal(t, []float64{0, 0.5, 1}, Linspace(0, 1, 3))
	assert.Equal(t, []float64{2}, Linspace(2, 5, 1))
	assert.Nil(t, Linspace(0, 1, 0))
}

func TestSummarize(t *testing.T) {
	res := &sim.Result{
		States: []sim.State{{1}, {0.5}, {0.1}},
		Diagnostics: []sim.Diagnostics{
			{"clf_complete": sim.Flag(false), "cbf_complete": sim.Flag(true)},
			{"clf_complete": sim.Flag(true), "cbf_complete": sim.Flag(false)},
		},
		StepsTaken: 2,
	}
	out := Summarize(res, nil)
	assert.True(t, out.Converged)
	assert.False(t, out.Safe)
	assert.Equal(t, sim.State{0.1}, out.FinalState)

	noBarrier := Summarize(&sim.Result{Diagnostics: []sim.Diagnostics{{}}}, nil)
	assert.True(t, noBarrier.Safe)

	failed := Summarize(nil, &sim.StepError{Stage: sim.StageController, Wrapped: sim.ErrInfeasible})
	assert.True(t, failed.Infeasible())
	assert.False(t, failed.Safe)
}

func TestRunSweep(t *testing.T) {
	r := NewRunner(shortScenario(), WithLimit(2))

	results, err := r.RunSweep(context.Background(), Sweep{Param: "lyapunov.rate", Values: []float64{0.5, 1, 2}})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, []float64{0.5, 1, 2}[i], res.Value)
		assert.NoError(t, res.Err)
		assert.Equal(t, 100, res.StepsTaken)
	}
	// faster required decay ends closer to the goal
	assert.Less(t, results[2].Metrics["goal_distance"], results[0].Metrics["goal_distance"])
}

func TestRunSweepInvalidValue(t *testing.T) {
	r := NewRunner(shortScenario())
	_, err := r.RunSweep(context.Background(), Sweep{Param: "dt", Values: []float64{0.01, -1}})
	assert.ErrorIs(t, err, sim.ErrInvalidConfig)

	_, err = r.RunSweep(context.Background(), Sweep{Param: "dt"})
	assert.ErrorIs(t, err, sim.ErrInvalidConfig)
}

func TestRunMonteCarlo(t *testing.T) {
	r := NewRunner(shortScenario())
	mc := MonteCarlo{Trials: 4, Perturbation: 0.2, Seed: 7}

	first, err := r.RunMonteCarlo(context.Background(), mc)
	require.NoError(t, err)
	second, err := r.RunMonteCarlo(context.Background(), mc)
	require.NoError(t, err)

	require.Len(t, first, 4)
	for i := range first {
		assert.Equal(t, first[i].InitialState, second[i].InitialState)
		for j, x := range first[i].InitialState {
			assert.InDelta(t, 1.0, x, 0.2, "trial %d component %d", i, j)
		}
	}
	assert.NotEqual(t, first[0].InitialState, first[1].InitialState)

	stats := MonteCarloStats(first)
	assert.Equal(t, Stats{Total: 4, Completed: 4, Converged: stats.Converged, Safe: 4}, stats)

	_, err = r.RunMonteCarlo(context.Background(), MonteCarlo{Trials: 0})
	assert.ErrorIs(t, err, sim.ErrInvalidConfig)
}

func TestGridSearch(t *testing.T) {
	r := NewRunner(shortScenario())

	best, err := r.GridSearch(context.Background(), []Sweep{
		{Param: "lyapunov.rate", Values: []float64{0.5, 2}},
		{Param: "qp.relaxation_penalty", Values: []float64{10, 100}},
	}, "goal_distance")
	require.NoError(t, err)
	assert.Equal(t, 2.0, best.Params["lyapunov.rate"])
	assert.Len(t, best.Params, 2)

	_, err = r.GridSearch(context.Background(), []Sweep{{Param: "lyapunov.rate", Values: []float64{1}}}, "missing_metric")
	assert.ErrorIs(t, err, ErrNoCandidate)

	_, err = r.GridSearch(context.Background(), nil, "goal_distance")
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestExpandGrid(t *testing.T) {
	var points []map[string]float64
	expand([]Sweep{{Param: "a", Values: []float64{1, 2}}, {Param: "b", Values: []float64{3, 4, 5}}}, 0, map[string]float64{}, &points)
	require.Len(t, points, 6)
	assert.Equal(t, map[string]float64{"a": 1, "b": 3}, points[0])
	assert.Equal(t, map[string]float64{"a": 2, "b": 5}, points[5])
}
