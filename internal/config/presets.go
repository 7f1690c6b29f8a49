package config

import "sort"

// dropPoint is the fixed-wing "reach drop point" scenario: fly to a goal
// region while tracking a guidance field that bends around two ellipsoidal
// obstacles, under one risk-aware fixed-time CLF. Obstacle avoidance lives
// in the field, so there are no separate barrier rows to conflict with it.
func dropPoint() *Config {
	return &Config{
		Model:               "fixed_wing",
		Integrator:          "euler",
		Dt:                  0.1,
		Duration:            60,
		InitialState:        []float64{0, 0, 100, 20, 0, 0},
		InitialVariance:     DefaultVariance,
		ControlFromEstimate: true,
		Sensor:              SensorConfig{Type: "perfect"},
		Estimator:           EstimatorConfig{Type: "naive"},
		Nominal:             NominalConfig{Type: "zero"},
		Limits: LimitsConfig{
			Min: []float64{-5, -0.5, -0.3},
			Max: []float64{5, 0.5, 0.3},
		},
		QP: QPConfig{R: []float64{1, 100, 100}, RelaxationPenalty: 1e3},
		Lyapunovs: []LyapunovConfig{{
			Type:      "goal_velocity",
			Indices:   []int{0, 1, 2},
			Goal:      []float64{800, 400, 100},
			Radius:    25,
			Speed:     25,
			Slowdown:  50,
			Tolerance: 1,
			Obstacles: []ObstacleConfig{
				{Center: []float64{300, 200, 100}, Radii: []float64{60, 60, 60}},
				{Center: []float64{550, 250, 100}, Radii: []float64{50, 50, 50}},
			},
			FixedTime: &FixedTimeConfig{C1: 1, C2: 1, E1: 0.5, E2: 1.5},
			Relaxable: true,
		}},
		Risk: &RiskConfig{
			TMax:   10,
			Eta:    0.5,
			PBound: 0.9,
			Sigma:  dropPointSigma(),
		},
	}
}

func dropPointSigma() []float64 { return []float64{0.5, 0.5, 0.5, 0.1, 0.01, 0.01} }

func noisyDropPoint() *Config {
	cfg := dropPoint()
	cfg.Sensor = SensorConfig{Type: "gaussian", Stddevs: dropPointSigma()}
	cfg.Estimator = EstimatorConfig{Type: "smoothing", Gain: 0.5}
	cfg.InitialVariance = 0.25
	return cfg
}

func planar(x0 []float64) *Config {
	cfg := base()
	cfg.Model = "single_integrator"
	cfg.Dimension = 2
	cfg.InitialState = x0
	cfg.Limits = LimitsConfig{Min: []float64{-1, -1}, Max: []float64{1, 1}}
	return cfg
}

var Presets = map[string]map[string]*Config{
	"single_integrator": {
		"goal": func() *Config {
			cfg := planar([]float64{2, -1})
			cfg.Lyapunovs = []LyapunovConfig{{Type: "goal", Indices: []int{0, 1}, Goal: []float64{0, 0}, Rate: 1}}
			return cfg
		}(),
		"fixed_time": func() *Config {
			cfg := planar([]float64{2, -1})
			cfg.Lyapunovs = []LyapunovConfig{{
				Type: "goal", Indices: []int{0, 1}, Goal: []float64{0, 0}, Radius: 0.05,
				FixedTime: &FixedTimeConfig{C1: 1, C2: 1, E1: 0.5, E2: 1.5}, Relaxable: true,
			}}
			return cfg
		}(),
		"obstacle": func() *Config {
			cfg := planar([]float64{-2, 0.1})
			cfg.Nominal = NominalConfig{Type: "proportional", Goal: []float64{2, 0}, Indices: []int{0, 1}, Gain: 1}
			cfg.Lyapunovs = []LyapunovConfig{{Type: "goal", Indices: []int{0, 1}, Goal: []float64{2, 0}, Rate: 1, Relaxable: true}}
			cfg.Barriers = []BarrierConfig{{Type: "ellipsoid", Indices: []int{0, 1}, Center: []float64{0, 0}, Radii: []float64{0.5, 0.5}, Alpha: 1}}
			return cfg
		}(),
	},
	"pendulum": {
		"regulate": func() *Config {
			cfg := base()
			cfg.Model = "pendulum"
			cfg.Integrator = "rk4"
			cfg.InitialState = []float64{1, 0}
			cfg.Nominal = NominalConfig{Type: "lqr", K: [][]float64{{31.62, 10}}}
			cfg.Limits = LimitsConfig{Min: []float64{-20}, Max: []float64{20}}
			cfg.Lyapunovs = []LyapunovConfig{{Type: "goal", Indices: []int{0, 1}, Goal: []float64{0, 0}, Rate: 0.5, Relaxable: true}}
			return cfg
		}(),
	},
	"fixed_wing": {
		"reach_drop_point":       dropPoint(),
		"reach_drop_point_noisy": noisyDropPoint(),
	},
}

// GetPreset returns a copy of the named preset, or nil if it does not
// exist.
func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ListModels() []string {
	models := make([]string, 0, len(Presets))
	for m := range Presets {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}
