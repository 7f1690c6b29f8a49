package experiment

import (
	"fmt"

	"github.com/san-kum/certsim/internal/certificate"
	"github.com/san-kum/certsim/internal/constraints"
	"github.com/san-kum/certsim/internal/controllers"
	"github.com/san-kum/certsim/internal/estimators"
	"github.com/san-kum/certsim/internal/qp"
	"github.com/san-kum/certsim/internal/sensors"
	"github.com/san-kum/certsim/internal/sim"
	"gonum.org/v1/gonum/mat"
)

func (e *Experiment) lyapunovs(dyn sim.Dynamics) (certificate.Collection, error) {
	n := dyn.StateDim()
	certs := make([]certificate.Certificate, 0, len(e.cfg.Lyapunovs))
	for i, l := range e.cfg.Lyapunovs {
		bound := certificate.LinearBound(l.Rate)
		if ft := l.FixedTime; ft != nil {
			bound = certificate.FixedTimeBound(ft.C1, ft.C2, ft.E1, ft.E2)
		}

		var (
			c   certificate.Certificate
			err error
		)
		switch l.Type {
		case "goal":
			c, err = certificate.GoalLyapunov(n, l.Indices, l.Goal, l.Radius, bound)
		case "goal_velocity":
			var vel certificate.VelocityField
			if vel, err = e.reg.VelocityField(dyn); err == nil {
				guide := certificate.Guidance{Goal: l.Goal, Speed: l.Speed, Slowdown: l.Slowdown}
				for _, o := range l.Obstacles {
					guide.Obstacles = append(guide.Obstacles, certificate.Ellipsoid{Center: o.Center, Radii: o.Radii})
				}
				c, err = certificate.GoalVelocityLyapunov(n, vel, l.Indices, guide, l.Tolerance, bound)
			}
		default:
			err = fmt.Errorf("unknown lyapunov type %q", l.Type)
		}
		if err != nil {
			return certificate.Collection{}, fmt.Errorf("%w: lyapunov %d: %w", sim.ErrInvalidConfig, i, err)
		}
		c.Name = fmt.Sprintf("%s_%d", c.Name, i)
		c.Relaxable = l.Relaxable
		certs = append(certs, c)
	}
	return certificate.NewCollection(certificate.Lyapunov, certs...)
}

func (e *Experiment) barriers(dyn sim.Dynamics) (certificate.Collection, error) {
	n := dyn.StateDim()
	certs := make([]certificate.Certificate, 0, len(e.cfg.Barriers))
	for i, b := range e.cfg.Barriers {
		var (
			c   certificate.Certificate
			err error
		)
		switch b.Type {
		case "ellipsoid":
			c, err = certificate.EllipsoidBarrier(n, b.Indices, b.Center, b.Radii, b.Alpha)
		case "lookahead":
			var vel certificate.VelocityField
			if vel, err = e.reg.VelocityField(dyn); err == nil {
				c, err = certificate.LookaheadBarrier(n, vel, b.Indices, b.Center, b.Radii, b.Horizon, b.Alpha)
			}
		default:
			err = fmt.Errorf("unknown barrier type %q", b.Type)
		}
		if err != nil {
			return certificate.Collection{}, fmt.Errorf("%w: barrier %d: %w", sim.ErrInvalidConfig, i, err)
		}
		c.Name = fmt.Sprintf("%s_%d", c.Name, i)
		c.Relaxable = b.Relaxable
		certs = append(certs, c)
	}
	return certificate.NewCollection(certificate.Barrier, certs...)
}

func (e *Experiment) nominal(dyn sim.Dynamics) (qp.Nominal, error) {
	n, m := dyn.StateDim(), dyn.ControlDim()
	nc := e.cfg.Nominal
	switch nc.Type {
	case "zero":
		return controllers.NewZero(m), nil
	case "constant":
		if len(nc.Input) != m {
			return nil, fmt.Errorf("%w: %w: constant nominal has %d inputs, model takes %d",
				sim.ErrInvalidConfig, sim.ErrDimensionMismatch, len(nc.Input), m)
		}
		return controllers.NewConstant(nc.Input), nil
	case "proportional":
		if len(nc.Goal) != len(nc.Indices) {
			return nil, fmt.Errorf("%w: proportional nominal has %d goal entries for %d indices", sim.ErrInvalidConfig, len(nc.Goal), len(nc.Indices))
		}
		for _, i := range nc.Indices {
			if i < 0 || i >= n {
				return nil, fmt.Errorf("%w: proportional nominal index %d outside state of dimension %d", sim.ErrInvalidConfig, i, n)
			}
		}
		return controllers.NewProportional(nc.Goal, nc.Indices, nc.Gain, m), nil
	case "lqr":
		if len(nc.K) != m {
			return nil, fmt.Errorf("%w: %w: lqr gain has %d rows, model takes %d inputs",
				sim.ErrInvalidConfig, sim.ErrDimensionMismatch, len(nc.K), m)
		}
		k := mat.NewDense(m, n, nil)
		for i, row := range nc.K {
			if len(row) != n {
				return nil, fmt.Errorf("%w: %w: lqr gain row %d has %d entries, state has %d",
					sim.ErrInvalidConfig, sim.ErrDimensionMismatch, i, len(row), n)
			}
			k.SetRow(i, row)
		}
		target := make(sim.State, n)
		if len(nc.Goal) == n {
			copy(target, nc.Goal)
		}
		return controllers.NewLQR(k, target), nil
	}
	return nil, fmt.Errorf("%w: unknown nominal controller %q", sim.ErrInvalidConfig, nc.Type)
}

func (e *Experiment) sensor(n int, seed uint64) (sim.Sensor, error) {
	switch e.cfg.Sensor.Type {
	case "perfect":
		return sensors.NewPerfect(), nil
	case "gaussian":
		sd := e.cfg.Sensor.Stddevs
		if len(sd) == 0 {
			return sensors.NewIsotropicGaussian(n, e.cfg.Sensor.Stddev, seed)
		}
		if len(sd) != n {
			return nil, fmt.Errorf("%w: %w: sensor has %d stddevs, state has %d",
				sim.ErrInvalidConfig, sim.ErrDimensionMismatch, len(sd), n)
		}
		cov := mat.NewSymDense(n, nil)
		for i, s := range sd {
			cov.SetSym(i, i, s*s)
		}
		return sensors.NewGaussian(cov, seed)
	}
	return nil, fmt.Errorf("%w: unknown sensor %q", sim.ErrInvalidConfig, e.cfg.Sensor.Type)
}

func (e *Experiment) estimator() (sim.Estimator, error) {
	switch e.cfg.Estimator.Type {
	case "naive":
		return estimators.NewNaive(), nil
	case "smoothing":
		return estimators.NewSmoothing(e.cfg.Estimator.Gain)
	}
	return nil, fmt.Errorf("%w: unknown estimator %q", sim.ErrInvalidConfig, e.cfg.Estimator.Type)
}

func (e *Experiment) controller(dyn sim.Dynamics) (*qp.Controller, error) {
	clfs, err := e.lyapunovs(dyn)
	if err != nil {
		return nil, err
	}
	cbfs, err := e.barriers(dyn)
	if err != nil {
		return nil, err
	}

	var clf constraints.Generator
	if r := e.cfg.Risk; r != nil {
		if len(r.Sigma) != dyn.StateDim() {
			return nil, fmt.Errorf("%w: %w: sigma has %d entries, state has %d",
				sim.ErrInvalidConfig, sim.ErrDimensionMismatch, len(r.Sigma), dyn.StateDim())
		}
		clf, err = constraints.NewRiskAwareCLF(dyn, clfs, &constraints.RiskParams{
			TMax:   r.TMax,
			Eta:    r.Eta,
			PBound: r.PBound,
			Sigma:  constraints.DiagonalSigma(r.Sigma),
		})
	} else {
		clf, err = constraints.NewCLF(dyn, clfs)
	}
	if err != nil {
		return nil, err
	}
	cbf, err := constraints.NewCBF(dyn, cbfs)
	if err != nil {
		return nil, err
	}

	nominal, err := e.nominal(dyn)
	if err != nil {
		return nil, err
	}

	var rw *mat.SymDense
	if len(e.cfg.QP.R) > 0 {
		m := dyn.ControlDim()
		if len(e.cfg.QP.R) != m {
			return nil, fmt.Errorf("%w: %w: R has %d entries, model takes %d inputs",
				sim.ErrInvalidConfig, sim.ErrDimensionMismatch, len(e.cfg.QP.R), m)
		}
		rw = mat.NewSymDense(m, nil)
		for i, v := range e.cfg.QP.R {
			rw.SetSym(i, i, v)
		}
	}

	solver := qp.NewActiveSet()
	if e.cfg.QP.MaxIterations > 0 {
		solver.MaxIterations = e.cfg.QP.MaxIterations
	}
	if e.cfg.QP.Tolerance > 0 {
		solver.Tolerance = e.cfg.QP.Tolerance
	}

	return qp.NewController(qp.ControllerConfig{
		Dynamics:          dyn,
		Nominal:           nominal,
		Limits:            qp.Limits{Min: e.cfg.Limits.Min, Max: e.cfg.Limits.Max},
		R:                 rw,
		RelaxationPenalty: e.cfg.QP.RelaxationPenalty,
		RelaxationLimit:   e.cfg.QP.RelaxationLimit,
		Generators:        []constraints.Generator{clf, cbf},
		Solver:            solver,
	})
}
