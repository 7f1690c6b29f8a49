package qp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	solvesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certsim_qp_solves_total",
		Help: "Control QP solves by outcome",
	}, []string{"outcome"})

	solveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "certsim_qp_solve_duration_seconds",
		Help:    "Time to assemble and solve one control QP",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
	})

	solveIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "certsim_qp_iterations",
		Help:    "Active-set iterations per solve",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 500},
	})
)

const (
	outcomeOptimal    = "optimal"
	outcomeInfeasible = "infeasible"
	outcomeNumerical  = "numerical"
)
