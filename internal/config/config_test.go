package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model != "single_integrator" {
		t.Errorf("expected model single_integrator, got %s", cfg.Model)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if got := cfg.Steps(); got != 1000 {
		t.Errorf("steps = %d, want 1000", got)
	}
}

func TestSteps(t *testing.T) {
	tests := []struct {
		duration, dt float64
		want         int
	}{
		{60, 0.1, 600},
		{0.3, 0.1, 3},
		{1.05, 0.1, 10},
		{0.25, 0.1, 2},
	}
	for _, tt := range tests {
		cfg := &Config{Duration: tt.duration, Dt: tt.dt}
		if got := cfg.Steps(); got != tt.want {
			t.Errorf("Steps(%v/%v) = %d, want %d", tt.duration, tt.dt, got, tt.want)
		}
	}
}

func TestPresetsValidate(t *testing.T) {
	for _, model := range ListModels() {
		for _, name := range ListPresets(model) {
			cfg := GetPreset(model, name)
			if cfg.Model != model {
				t.Errorf("%s/%s: model = %s", model, name, cfg.Model)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("%s/%s: %v", model, name, err)
			}
		}
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("fixed_wing", "reach_drop_point")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Steps() != 600 {
		t.Errorf("expected 600 steps, got %d", cfg.Steps())
	}

	// callers get a copy
	cfg.Lyapunovs[0].Goal[0] = -1
	cfg.Lyapunovs[0].Obstacles[0].Center[0] = -1
	cfg.Risk.PBound = 0.1
	again := GetPreset("fixed_wing", "reach_drop_point")
	if again.Lyapunovs[0].Goal[0] != 800 || again.Lyapunovs[0].Obstacles[0].Center[0] != 300 || again.Risk.PBound != 0.9 {
		t.Error("preset mutated through returned config")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("pendulum", "nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if cfg := GetPreset("nonexistent", "small"); cfg != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets("single_integrator")
	if len(presets) != 3 || presets[0] != "fixed_time" {
		t.Errorf("presets = %v, want sorted list of 3", presets)
	}
	if presets := ListPresets("nonexistent"); presets != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown model", func(c *Config) { c.Model = "submarine" }},
		{"zero dt", func(c *Config) { c.Dt = 0 }},
		{"duration below dt", func(c *Config) { c.Duration = c.Dt / 2 }},
		{"p_bound at 1", func(c *Config) { c.Risk.PBound = 1 }},
		{"p_bound at 0", func(c *Config) { c.Risk.PBound = 0 }},
		{"limits swapped", func(c *Config) { c.Limits.Min[0] = 10 }},
		{"limits ragged", func(c *Config) { c.Limits.Max = c.Limits.Max[:1] }},
		{"goal length", func(c *Config) { c.Lyapunovs[0].Goal = []float64{1} }},
		{"fixed-time exponent", func(c *Config) { c.Lyapunovs[0].FixedTime.E1 = 1.5 }},
		{"negative radius", func(c *Config) { c.Lyapunovs[0].Obstacles[0].Radii[0] = -1 }},
		{"obstacle length", func(c *Config) { c.Lyapunovs[0].Obstacles[1].Center = []float64{1, 2} }},
		{"negative slowdown", func(c *Config) { c.Lyapunovs[0].Slowdown = -1 }},
		{"stddevs length", func(c *Config) { c.Sensor = SensorConfig{Type: "gaussian", Stddevs: []float64{1}} }},
		{"sigma length", func(c *Config) { c.Risk.Sigma = []float64{1} }},
		{"gaussian without stddev", func(c *Config) { c.Sensor = SensorConfig{Type: "gaussian"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetPreset("fixed_wing", "reach_drop_point")
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	want := GetPreset("single_integrator", "obstacle")
	if err := Save(path, want); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Barriers[0].Radii[1] != 0.5 || got.Nominal.Type != "proportional" || got.Lyapunovs[0].Goal[0] != 2 {
		t.Errorf("round trip lost fields: %+v", got)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "min.yaml")
	doc := `model: single_integrator
dimension: 1
initial_state: [3]
limits: {min: [-1], max: [1]}
lyapunovs:
  - {type: goal, indices: [0], goal: [0], rate: 2}
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Integrator != "euler" || cfg.Dt != DefaultDt || cfg.Sensor.Type != "perfect" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if len(cfg.Lyapunovs) != 1 || cfg.Lyapunovs[0].Rate != 2 {
		t.Errorf("lyapunovs = %+v", cfg.Lyapunovs)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("model: pendulum\ndt: -1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}
