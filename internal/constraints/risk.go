package constraints

import (
	"fmt"
	"math"

	"github.com/san-kum/certsim/internal/sim"
	"gonum.org/v1/gonum/mat"
)

// RiskParams describes the stochastic disturbance model used by the
// risk-aware CLF.
type RiskParams struct {
	// TMax is the horizon over which the probabilistic guarantee holds.
	TMax float64
	// Eta scales the diffusion rate of the certificate value.
	Eta float64
	// PBound is the confidence level, strictly inside (0, 1).
	PBound float64
	// Sigma maps a state to its n x q noise-intensity matrix.
	Sigma func(x []float64) *mat.Dense
}

// RiskBuffer returns r = sqrt(2*TMax) * Eta * erfinv(2*PBound - 1).
//
// math.Erfinv is accurate to full double precision, so the confidence
// guarantee is not weakened by the inversion.
func RiskBuffer(p RiskParams) (float64, error) {
	if !(p.PBound > 0 && p.PBound < 1) {
		return 0, fmt.Errorf("%w: %w: got %g", sim.ErrInvalidConfig, ErrConfidenceBound, p.PBound)
	}
	if p.TMax < 0 || p.Eta < 0 {
		return 0, fmt.Errorf("%w: t_max and eta must be non-negative, got t_max=%g eta=%g", sim.ErrInvalidConfig, p.TMax, p.Eta)
	}
	r := math.Sqrt(2*p.TMax) * p.Eta * math.Erfinv(2*p.PBound-1)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, fmt.Errorf("%w: %w: erfinv(%g) is not finite", sim.ErrInvalidConfig, ErrConfidenceBound, 2*p.PBound-1)
	}
	return r, nil
}

// ConstantSigma returns a state-independent noise intensity.
func ConstantSigma(s *mat.Dense) func([]float64) *mat.Dense {
	c := mat.DenseCopyOf(s)
	return func([]float64) *mat.Dense { return mat.DenseCopyOf(c) }
}

// DiagonalSigma returns sigma = diag(scale) for an n-dimensional state.
func DiagonalSigma(scale []float64) func([]float64) *mat.Dense {
	n := len(scale)
	s := mat.NewDense(n, n, nil)
	for i, v := range scale {
		s.Set(i, i, v)
	}
	return ConstantSigma(s)
}
