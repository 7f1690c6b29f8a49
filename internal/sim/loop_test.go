package sim_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/certsim/internal/certificate"
	"github.com/san-kum/certsim/internal/constraints"
	"github.com/san-kum/certsim/internal/controllers"
	"github.com/san-kum/certsim/internal/estimators"
	"github.com/san-kum/certsim/internal/integrators"
	"github.com/san-kum/certsim/internal/models"
	"github.com/san-kum/certsim/internal/qp"
	"github.com/san-kum/certsim/internal/sensors"
	"github.com/san-kum/certsim/internal/sim"
)

const rate = 2.0

var goal = []float64{1, -1}

func goalValue(x sim.State) float64 {
	d0, d1 := x[0]-goal[0], x[1]-goal[1]
	return d0*d0 + d1*d1
}

func newLoop(limit float64, relax bool) *sim.Simulator {
	dyn := models.NewSingleIntegrator(2)
	cert, err := certificate.QuadraticLyapunov(2, []int{0, 1}, goal, 0, rate)
	Expect(err).NotTo(HaveOccurred())
	cert.Relaxable = relax
	coll, err := certificate.NewCollection(certificate.Lyapunov, cert)
	Expect(err).NotTo(HaveOccurred())
	gen, err := constraints.NewCLF(dyn, coll)
	Expect(err).NotTo(HaveOccurred())

	ctrl, err := qp.NewController(qp.ControllerConfig{
		Dynamics:   dyn,
		Nominal:    controllers.NewZero(2),
		Limits:     qp.Limits{Min: []float64{-limit, -limit}, Max: []float64{limit, limit}},
		Generators: []constraints.Generator{gen},
	})
	Expect(err).NotTo(HaveOccurred())

	return sim.New(dyn, sensors.NewPerfect(), estimators.NewNaive(), ctrl, integrators.NewEuler())
}

var _ = Describe("Execute", func() {
	var (
		x0  sim.State
		cfg sim.Config
	)

	BeforeEach(func() {
		x0 = sim.State{3, 2}
		cfg = sim.Config{Dt: 0.01, NumSteps: 50, ControlFromEstimate: true, ValidateState: true}
	})

	Context("with a single quadratic CLF on a single integrator", func() {
		It("returns parallel histories of N+1 states and N of everything else", func() {
			res, err := newLoop(100, false).Execute(context.Background(), x0, nil, cfg)
			Expect(err).NotTo(HaveOccurred())

			Expect(res.States).To(HaveLen(cfg.NumSteps + 1))
			Expect(res.Times).To(HaveLen(cfg.NumSteps + 1))
			Expect(res.Controls).To(HaveLen(cfg.NumSteps))
			Expect(res.Measurements).To(HaveLen(cfg.NumSteps))
			Expect(res.Estimates).To(HaveLen(cfg.NumSteps))
			Expect(res.Covariances).To(HaveLen(cfg.NumSteps))
			Expect(res.Diagnostics).To(HaveLen(cfg.NumSteps))
			Expect(res.States[0]).To(Equal(x0))
			Expect(res.DiagnosticKeys).To(ContainElements("clf_values", "clf_complete", "qp_iterations"))
		})

		It("strictly decreases V every step", func() {
			res, err := newLoop(100, false).Execute(context.Background(), x0, nil, cfg)
			Expect(err).NotTo(HaveOccurred())

			for k := 1; k < len(res.States); k++ {
				Expect(goalValue(res.States[k])).To(BeNumerically("<", goalValue(res.States[k-1])))
			}
		})

		It("applies the minimum-norm input -(c/2)(x - goal)", func() {
			res, err := newLoop(100, false).Execute(context.Background(), x0, nil, cfg)
			Expect(err).NotTo(HaveOccurred())

			u := res.Controls[0]
			Expect(u[0]).To(BeNumerically("~", -(rate/2)*(x0[0]-goal[0]), 1e-8))
			Expect(u[1]).To(BeNumerically("~", -(rate/2)*(x0[1]-goal[1]), 1e-8))
			Expect(res.Diagnostics[0]["clf_values"]).To(Equal([]float64{goalValue(x0)}))
		})

		It("is deterministic across runs", func() {
			a, err := newLoop(100, false).Execute(context.Background(), x0, nil, cfg)
			Expect(err).NotTo(HaveOccurred())
			b, err := newLoop(100, false).Execute(context.Background(), x0, nil, cfg)
			Expect(err).NotTo(HaveOccurred())

			Expect(a.States).To(Equal(b.States))
			Expect(a.Controls).To(Equal(b.Controls))
			Expect(a.Diagnostics).To(Equal(b.Diagnostics))
		})

		It("does not modify the caller's initial state", func() {
			_, err := newLoop(100, false).Execute(context.Background(), x0, nil, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(x0).To(Equal(sim.State{3, 2}))
		})
	})

	Context("when the step count is zero", func() {
		It("rejects the run before stepping", func() {
			cfg.NumSteps = 0
			res, err := newLoop(100, false).Execute(context.Background(), x0, nil, cfg)
			Expect(err).To(MatchError(sim.ErrInvalidConfig))
			Expect(res).To(BeNil())
		})
	})

	Context("when the actuator box excludes every admissible input", func() {
		It("surfaces infeasibility at the failing step", func() {
			res, err := newLoop(0, false).Execute(context.Background(), x0, nil, cfg)
			Expect(err).To(MatchError(sim.ErrInfeasible))

			var stepErr *sim.StepError
			Expect(errors.As(err, &stepErr)).To(BeTrue())
			Expect(stepErr.Step).To(Equal(0))
			Expect(stepErr.Stage).To(Equal(sim.StageController))
			Expect(res.States).To(HaveLen(1))
			Expect(res.Controls).To(BeEmpty())
		})

		It("keeps running when the certificate may relax", func() {
			res, err := newLoop(0, true).Execute(context.Background(), x0, nil, cfg)
			Expect(err).NotTo(HaveOccurred())
			final := res.States[cfg.NumSteps]
			Expect(final[0]).To(BeNumerically("~", x0[0], 1e-6))
			Expect(final[1]).To(BeNumerically("~", x0[1], 1e-6))
			Expect(res.Diagnostics[0]["qp_relaxation"][0]).To(BeNumerically("~", 0, 1e-7))
		})
	})
})
