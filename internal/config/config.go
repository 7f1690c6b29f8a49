// Package config loads and validates YAML scenario files.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDt       = 0.01
	DefaultDuration = 10.0
	DefaultVariance = 1.0
)

var ErrInvalid = errors.New("config: invalid scenario")

// stepSlack absorbs floating-point error in Duration/Dt without rounding
// a genuine fractional step up.
const stepSlack = 1e-9

type Config struct {
	Model      string `yaml:"model" validate:"required,oneof=single_integrator pendulum drone fixed_wing"`
	Dimension  int    `yaml:"dimension,omitempty" validate:"gte=0"`
	Integrator string `yaml:"integrator" validate:"required,oneof=euler rk4"`

	Dt       float64 `yaml:"dt" validate:"gt=0"`
	Duration float64 `yaml:"duration" validate:"gt=0,gtefield=Dt"`
	Seed     uint64  `yaml:"seed"`

	InitialState    []float64 `yaml:"initial_state" validate:"required,min=1"`
	InitialVariance float64   `yaml:"initial_variance" validate:"gte=0"`
	// ControlFromEstimate feeds the estimate, not the true state, to the
	// controller.
	ControlFromEstimate bool `yaml:"control_from_estimate"`

	Sensor    SensorConfig    `yaml:"sensor"`
	Estimator EstimatorConfig `yaml:"estimator"`
	Nominal   NominalConfig   `yaml:"nominal"`
	Limits    LimitsConfig    `yaml:"limits"`
	QP        QPConfig        `yaml:"qp"`

	Lyapunovs []LyapunovConfig `yaml:"lyapunovs" validate:"dive"`
	Barriers  []BarrierConfig  `yaml:"barriers" validate:"dive"`
	Risk      *RiskConfig      `yaml:"risk,omitempty"`
}

// SensorConfig picks the measurement model. A gaussian sensor takes
// either one Stddev for every state or per-state Stddevs.
type SensorConfig struct {
	Type    string    `yaml:"type" validate:"required,oneof=perfect gaussian"`
	Stddev  float64   `yaml:"stddev,omitempty" validate:"gte=0"`
	Stddevs []float64 `yaml:"stddevs,omitempty" validate:"omitempty,dive,gt=0"`
}

type EstimatorConfig struct {
	Type string  `yaml:"type" validate:"required,oneof=naive smoothing"`
	Gain float64 `yaml:"gain,omitempty" validate:"required_if=Type smoothing,gte=0,lte=1"`
}

type NominalConfig struct {
	Type    string      `yaml:"type" validate:"required,oneof=zero constant proportional lqr"`
	Input   []float64   `yaml:"input,omitempty"`
	Goal    []float64   `yaml:"goal,omitempty"`
	Indices []int       `yaml:"indices,omitempty"`
	Gain    float64     `yaml:"gain,omitempty"`
	K       [][]float64 `yaml:"k,omitempty"`
}

type LimitsConfig struct {
	Min []float64 `yaml:"min" validate:"required"`
	Max []float64 `yaml:"max" validate:"required"`
}

type QPConfig struct {
	// R is the diagonal of the input weight; empty means identity.
	R                 []float64 `yaml:"r,omitempty" validate:"dive,gt=0"`
	RelaxationPenalty float64   `yaml:"relaxation_penalty,omitempty" validate:"gte=0"`
	RelaxationLimit   float64   `yaml:"relaxation_limit,omitempty" validate:"omitempty,gte=1"`
	MaxIterations     int       `yaml:"max_iterations,omitempty" validate:"gte=0"`
	Tolerance         float64   `yaml:"tolerance,omitempty" validate:"gte=0"`
}

type FixedTimeConfig struct {
	C1 float64 `yaml:"c1" validate:"gt=0"`
	C2 float64 `yaml:"c2" validate:"gt=0"`
	E1 float64 `yaml:"e1" validate:"gt=0,lt=1"`
	E2 float64 `yaml:"e2" validate:"gt=1"`
}

type LyapunovConfig struct {
	Type    string    `yaml:"type" validate:"required,oneof=goal goal_velocity"`
	Indices []int     `yaml:"indices" validate:"required,min=1,dive,gte=0"`
	Goal    []float64 `yaml:"goal" validate:"required,min=1"`
	Radius  float64   `yaml:"radius,omitempty" validate:"gte=0"`
	// Speed, Slowdown, Tolerance and Obstacles apply to goal_velocity.
	Speed     float64          `yaml:"speed,omitempty" validate:"required_if=Type goal_velocity,gte=0"`
	Slowdown  float64          `yaml:"slowdown,omitempty" validate:"gte=0"`
	Tolerance float64          `yaml:"tolerance,omitempty" validate:"gte=0"`
	Obstacles []ObstacleConfig `yaml:"obstacles,omitempty" validate:"dive"`
	Rate      float64          `yaml:"rate,omitempty" validate:"gte=0"`
	FixedTime *FixedTimeConfig `yaml:"fixed_time,omitempty"`
	Relaxable bool             `yaml:"relaxable"`
}

// ObstacleConfig is an ellipsoid the guidance field steers around, over
// the same coordinates as the certificate indices.
type ObstacleConfig struct {
	Center []float64 `yaml:"center" validate:"required,min=1"`
	Radii  []float64 `yaml:"radii" validate:"required,min=1,dive,gt=0"`
}

type BarrierConfig struct {
	Type      string    `yaml:"type" validate:"required,oneof=ellipsoid lookahead"`
	Indices   []int     `yaml:"indices" validate:"required,min=1,dive,gte=0"`
	Center    []float64 `yaml:"center" validate:"required,min=1"`
	Radii     []float64 `yaml:"radii" validate:"required,min=1,dive,gt=0"`
	Alpha     float64   `yaml:"alpha" validate:"gt=0"`
	Horizon   float64   `yaml:"horizon,omitempty" validate:"gte=0"`
	Relaxable bool      `yaml:"relaxable"`
}

// RiskConfig turns the Lyapunov constraints risk-aware. Sigma is the
// diagonal of a constant noise intensity.
type RiskConfig struct {
	TMax   float64   `yaml:"t_max" validate:"gte=0"`
	Eta    float64   `yaml:"eta" validate:"gte=0"`
	PBound float64   `yaml:"p_bound" validate:"gt=0,lt=1"`
	Sigma  []float64 `yaml:"sigma" validate:"required,min=1"`
}

// base holds the defaults a scenario file may omit.
func base() *Config {
	return &Config{
		Integrator:          "euler",
		Dt:                  DefaultDt,
		Duration:            DefaultDuration,
		InitialVariance:     DefaultVariance,
		ControlFromEstimate: true,
		Sensor:              SensorConfig{Type: "perfect"},
		Estimator:           EstimatorConfig{Type: "naive"},
		Nominal:             NominalConfig{Type: "zero"},
	}
}

// DefaultConfig is a planar single integrator steered to the origin.
func DefaultConfig() *Config {
	cfg := base()
	cfg.Model = "single_integrator"
	cfg.Dimension = 2
	cfg.InitialState = []float64{1, 1}
	cfg.Limits = LimitsConfig{Min: []float64{-1, -1}, Max: []float64{1, 1}}
	cfg.Lyapunovs = []LyapunovConfig{
		{Type: "goal", Indices: []int{0, 1}, Goal: []float64{0, 0}, Rate: 1},
	}
	return cfg
}

// Steps is the number of control steps the scenario runs.
func (c *Config) Steps() int {
	return int(c.Duration/c.Dt + stepSlack)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field shapes that do not
// need the model. Model-dependent dimensions are checked when the scenario
// is assembled.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if len(c.Limits.Min) != len(c.Limits.Max) {
		return fmt.Errorf("%w: limits have %d min and %d max entries", ErrInvalid, len(c.Limits.Min), len(c.Limits.Max))
	}
	for i := range c.Limits.Min {
		if c.Limits.Min[i] > c.Limits.Max[i] {
			return fmt.Errorf("%w: limit %d has min %g > max %g", ErrInvalid, i, c.Limits.Min[i], c.Limits.Max[i])
		}
	}
	for i, l := range c.Lyapunovs {
		if len(l.Indices) != len(l.Goal) {
			return fmt.Errorf("%w: lyapunov %d has %d indices for %d goal coordinates", ErrInvalid, i, len(l.Indices), len(l.Goal))
		}
		if l.FixedTime == nil && l.Rate <= 0 {
			return fmt.Errorf("%w: lyapunov %d needs a positive rate or fixed_time gains", ErrInvalid, i)
		}
		for j, o := range l.Obstacles {
			if len(o.Center) != len(l.Indices) || len(o.Radii) != len(l.Indices) {
				return fmt.Errorf("%w: lyapunov %d obstacle %d has %d center and %d radii entries for %d indices",
					ErrInvalid, i, j, len(o.Center), len(o.Radii), len(l.Indices))
			}
		}
	}
	for i, b := range c.Barriers {
		if len(b.Indices) != len(b.Center) || len(b.Radii) != len(b.Center) {
			return fmt.Errorf("%w: barrier %d has %d indices, %d center and %d radii entries",
				ErrInvalid, i, len(b.Indices), len(b.Center), len(b.Radii))
		}
	}
	if s := c.Sensor; s.Type == "gaussian" {
		switch {
		case len(s.Stddevs) > 0 && len(s.Stddevs) != len(c.InitialState):
			return fmt.Errorf("%w: sensor has %d stddevs for a %d-dimensional state", ErrInvalid, len(s.Stddevs), len(c.InitialState))
		case len(s.Stddevs) == 0 && s.Stddev <= 0:
			return fmt.Errorf("%w: gaussian sensor needs a positive stddev", ErrInvalid)
		}
	}
	if c.Risk != nil && len(c.Risk.Sigma) != len(c.InitialState) {
		return fmt.Errorf("%w: risk sigma has %d entries for a %d-dimensional state", ErrInvalid, len(c.Risk.Sigma), len(c.InitialState))
	}
	return nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := base()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy, so presets can be tweaked by callers.
func (c *Config) Clone() *Config {
	out := *c
	out.InitialState = slices.Clone(c.InitialState)
	out.Sensor.Stddevs = slices.Clone(c.Sensor.Stddevs)
	out.Nominal.Input = slices.Clone(c.Nominal.Input)
	out.Nominal.Goal = slices.Clone(c.Nominal.Goal)
	out.Nominal.Indices = slices.Clone(c.Nominal.Indices)
	out.Nominal.K = make([][]float64, len(c.Nominal.K))
	for i, row := range c.Nominal.K {
		out.Nominal.K[i] = slices.Clone(row)
	}
	out.Limits = LimitsConfig{Min: slices.Clone(c.Limits.Min), Max: slices.Clone(c.Limits.Max)}
	out.QP.R = slices.Clone(c.QP.R)

	out.Lyapunovs = make([]LyapunovConfig, len(c.Lyapunovs))
	for i, l := range c.Lyapunovs {
		l.Indices = slices.Clone(l.Indices)
		l.Goal = slices.Clone(l.Goal)
		obstacles := make([]ObstacleConfig, len(l.Obstacles))
		for j, o := range l.Obstacles {
			obstacles[j] = ObstacleConfig{Center: slices.Clone(o.Center), Radii: slices.Clone(o.Radii)}
		}
		l.Obstacles = obstacles
		if l.FixedTime != nil {
			ft := *l.FixedTime
			l.FixedTime = &ft
		}
		out.Lyapunovs[i] = l
	}
	out.Barriers = make([]BarrierConfig, len(c.Barriers))
	for i, b := range c.Barriers {
		b.Indices = slices.Clone(b.Indices)
		b.Center = slices.Clone(b.Center)
		b.Radii = slices.Clone(b.Radii)
		out.Barriers[i] = b
	}
	if c.Risk != nil {
		r := *c.Risk
		r.Sigma = slices.Clone(c.Risk.Sigma)
		out.Risk = &r
	}
	return &out
}
