package automation

import (
	"errors"
	"fmt"
	"slices"

	"github.com/san-kum/certsim/internal/config"
)

var ErrUnknownParam = errors.New("unknown parameter")

// setters apply a scalar to a scenario. Certificate parameters apply to
// every Lyapunov or barrier entry.
var setters = map[string]func(*config.Config, float64) error{
	"dt":               func(c *config.Config, v float64) error { c.Dt = v; return nil },
	"duration":         func(c *config.Config, v float64) error { c.Duration = v; return nil },
	"initial_variance": func(c *config.Config, v float64) error { c.InitialVariance = v; return nil },
	"sensor.stddev":    func(c *config.Config, v float64) error { c.Sensor.Stddev = v; return nil },
	"estimator.gain":   func(c *config.Config, v float64) error { c.Estimator.Gain = v; return nil },
	"nominal.gain":     func(c *config.Config, v float64) error { c.Nominal.Gain = v; return nil },
	"qp.relaxation_penalty": func(c *config.Config, v float64) error {
		c.QP.RelaxationPenalty = v
		return nil
	},
	"qp.relaxation_limit": func(c *config.Config, v float64) error {
		c.QP.RelaxationLimit = v
		return nil
	},
	"lyapunov.rate": func(c *config.Config, v float64) error {
		for i := range c.Lyapunovs {
			c.Lyapunovs[i].Rate = v
		}
		return nil
	},
	"lyapunov.speed": func(c *config.Config, v float64) error {
		for i := range c.Lyapunovs {
			c.Lyapunovs[i].Speed = v
		}
		return nil
	},
	"lyapunov.slowdown": func(c *config.Config, v float64) error {
		for i := range c.Lyapunovs {
			c.Lyapunovs[i].Slowdown = v
		}
		return nil
	},
	"lyapunov.radius": func(c *config.Config, v float64) error {
		for i := range c.Lyapunovs {
			c.Lyapunovs[i].Radius = v
		}
		return nil
	},
	"barrier.alpha": func(c *config.Config, v float64) error {
		for i := range c.Barriers {
			c.Barriers[i].Alpha = v
		}
		return nil
	},
	"barrier.horizon": func(c *config.Config, v float64) error {
		for i := range c.Barriers {
			c.Barriers[i].Horizon = v
		}
		return nil
	},
	"risk.p_bound": func(c *config.Config, v float64) error {
		if c.Risk == nil {
			return errNoRisk
		}
		c.Risk.PBound = v
		return nil
	},
	"risk.eta": func(c *config.Config, v float64) error {
		if c.Risk == nil {
			return errNoRisk
		}
		c.Risk.Eta = v
		return nil
	},
	"risk.t_max": func(c *config.Config, v float64) error {
		if c.Risk == nil {
			return errNoRisk
		}
		c.Risk.TMax = v
		return nil
	},
}

var errNoRisk = errors.New("scenario has no risk section")

// SetParam sets a named scalar of cfg. The result is not validated here;
// the run that uses it does that.
func SetParam(cfg *config.Config, name string, v float64) error {
	set, ok := setters[name]
	if !ok {
		return fmt.Errorf("%w: %s (available: %v)", ErrUnknownParam, name, Params())
	}
	if err := set(cfg, v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Params lists the parameter names SetParam accepts.
func Params() []string {
	out := make([]string, 0, len(setters))
	for k := range setters {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
