package experiment

import (
	"context"
	"math"
	"testing"

	"github.com/san-kum/certsim/internal/config"
	"github.com/san-kum/certsim/internal/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"drone", "fixed_wing", "pendulum", "single_integrator"}, r.ListModels())
	assert.Equal(t, []string{"euler", "rk4"}, r.ListIntegrators())

	dyn, err := r.GetModel("single_integrator", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, dyn.StateDim())

	_, err = r.GetModel("submarine", 0)
	assert.Error(t, err)
	_, err = r.GetIntegrator("leapfrog")
	assert.Error(t, err)

	fw, _ := r.GetModel("fixed_wing", 0)
	_, err = r.VelocityField(fw)
	assert.NoError(t, err)
	_, err = r.VelocityField(dyn)
	assert.ErrorIs(t, err, sim.ErrInvalidConfig)
}

func TestPresetsBuild(t *testing.T) {
	for _, model := range config.ListModels() {
		for _, name := range config.ListPresets(model) {
			t.Run(model+"/"+name, func(t *testing.T) {
				_, err := New(config.GetPreset(model, name))
				require.NoError(t, err)
			})
		}
	}
}

func TestDefaultScenarioReachesGoal(t *testing.T) {
	e, err := New(config.DefaultConfig())
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)

	n := e.SimConfig().NumSteps
	require.Len(t, res.States, n+1)
	require.Len(t, res.Controls, n)
	assert.Contains(t, res.DiagnosticKeys, "clf_values")
	assert.Contains(t, res.DiagnosticKeys, "qp_iterations")
	assert.NotContains(t, res.DiagnosticKeys, "cbf_values")

	// exponential decay at rate 1 over 10s leaves about e^-10 of V
	assert.Less(t, res.Metrics["goal_distance"], 0.02)
	for i, u := range res.Controls {
		for j, v := range u {
			require.LessOrEqualf(t, v, 1+1e-9, "step %d input %d", i, j)
			require.GreaterOrEqualf(t, v, -1-1e-9, "step %d input %d", i, j)
		}
	}
}

func TestObstacleScenarioStaysSafe(t *testing.T) {
	e, err := New(config.GetPreset("single_integrator", "obstacle"))
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.Metrics["min_barrier_0"], -1e-6)
	for _, h := range res.Series("cbf_values", 0) {
		require.GreaterOrEqual(t, h, -1e-6)
	}
	assert.Contains(t, res.DiagnosticKeys, "qp_relaxation")
}

func TestDropPointScenariosReachGoal(t *testing.T) {
	for _, name := range []string{"reach_drop_point", "reach_drop_point_noisy"} {
		t.Run(name, func(t *testing.T) {
			cfg := config.GetPreset("fixed_wing", name)
			require.NotNil(t, cfg)
			e, err := New(cfg)
			require.NoError(t, err)

			res, err := e.Run(context.Background())
			require.NoError(t, err)
			require.Len(t, res.States, cfg.Steps()+1)

			lyap := cfg.Lyapunovs[0]
			final := res.States[len(res.States)-1]
			dist := 0.0
			for k, i := range lyap.Indices {
				d := final[i] - lyap.Goal[k]
				dist += d * d
			}
			assert.Less(t, math.Sqrt(dist), lyap.Radius, "final state %v", final)

			for step, x := range res.States {
				for j, o := range lyap.Obstacles {
					h := -1.0
					for k, i := range lyap.Indices {
						q := (x[i] - o.Center[k]) / o.Radii[k]
						h += q * q
					}
					require.Greaterf(t, h, 0.0, "step %d inside obstacle %d", step, j)
				}
			}

			for _, key := range []string{"clf_values", "clf_values_nominal", "clf_buffer", "clf_complete", "qp_relaxation"} {
				assert.Contains(t, res.DiagnosticKeys, key)
			}
			buffer := res.Diagnostics[0]["clf_buffer"][0]
			v := res.Diagnostics[0]["clf_values"][0]
			assert.InDelta(t, v-buffer, res.Diagnostics[0]["clf_values_nominal"][0], 1e-12)
			assert.Greater(t, buffer, 0.0)
		})
	}
}

func TestBuildRejectsMismatchedScenario(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"initial state", func(c *config.Config) { c.InitialState = []float64{1, 2, 3} }},
		{"limits", func(c *config.Config) { c.Limits = config.LimitsConfig{Min: []float64{-1}, Max: []float64{1}} }},
		{"certificate index", func(c *config.Config) { c.Lyapunovs[0].Indices = []int{0, 5} }},
		{"velocity field", func(c *config.Config) {
			c.Lyapunovs[0].Type = "goal_velocity"
			c.Lyapunovs[0].Speed = 1
		}},
		{"R size", func(c *config.Config) { c.QP.R = []float64{1, 1, 1} }},
		{"lqr shape", func(c *config.Config) { c.Nominal = config.NominalConfig{Type: "lqr", K: [][]float64{{1, 0}}} }},
		{"constant shape", func(c *config.Config) { c.Nominal = config.NominalConfig{Type: "constant", Input: []float64{1}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			_, err := New(cfg)
			assert.ErrorIs(t, err, sim.ErrInvalidConfig)
		})
	}
}

func TestEnsembleSeeds(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.InitialState = []float64{0.5, -0.5}
	cfg.Duration = 1
	cfg.Seed = 42
	cfg.Sensor = config.SensorConfig{Type: "gaussian", Stddev: 0.05}
	cfg.Estimator = config.EstimatorConfig{Type: "smoothing", Gain: 0.5}

	e, err := New(cfg)
	require.NoError(t, err)

	first, err := e.Ensemble(context.Background(), 3, 2)
	require.NoError(t, err)
	second, err := e.Ensemble(context.Background(), 3, 0)
	require.NoError(t, err)
	require.Len(t, first, 3)

	for i := range first {
		assert.Equal(t, first[i].Measurements, second[i].Measurements, "run %d not reproducible", i)
	}
	assert.NotEqual(t, first[0].Measurements[0], first[1].Measurements[0])
}
