package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/certsim/internal/certificate"
	"github.com/san-kum/certsim/internal/integrators"
	"github.com/san-kum/certsim/internal/models"
	"github.com/san-kum/certsim/internal/sim"
)

// Kinematic is implemented by models whose tracked position has a
// velocity that depends on the state alone. Velocity-based certificates
// need it.
type Kinematic interface {
	Velocity(x []float64) []float64
}

type Registry struct {
	models      map[string]func(dim int) sim.Dynamics
	integrators map[string]func() sim.Integrator
}

func NewRegistry() *Registry {
	r := &Registry{
		models:      make(map[string]func(int) sim.Dynamics),
		integrators: make(map[string]func() sim.Integrator),
	}

	r.models["single_integrator"] = func(dim int) sim.Dynamics {
		if dim <= 0 {
			dim = 2
		}
		return models.NewSingleIntegrator(dim)
	}
	r.models["pendulum"] = func(int) sim.Dynamics { return models.NewPendulum() }
	r.models["drone"] = func(int) sim.Dynamics { return models.NewDrone() }
	r.models["fixed_wing"] = func(int) sim.Dynamics { return models.NewFixedWing() }

	r.integrators["euler"] = func() sim.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() sim.Integrator { return integrators.NewRK4() }

	return r
}

// GetModel builds a fresh model. dim only applies to models without a
// fixed state dimension.
func (r *Registry) GetModel(name string, dim int) (sim.Dynamics, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", name)
	}
	return fn(dim), nil
}

func (r *Registry) GetIntegrator(name string) (sim.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

// VelocityField returns the model's velocity as a certificate field, or an
// error if the model has none.
func (r *Registry) VelocityField(dyn sim.Dynamics) (certificate.VelocityField, error) {
	k, ok := dyn.(Kinematic)
	if !ok {
		return nil, fmt.Errorf("%w: model %T has no velocity field", sim.ErrInvalidConfig, dyn)
	}
	return k.Velocity, nil
}

func (r *Registry) ListModels() []string {
	return sortedKeys(r.models)
}

func (r *Registry) ListIntegrators() []string {
	return sortedKeys(r.integrators)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
