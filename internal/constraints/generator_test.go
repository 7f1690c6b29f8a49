package constraints

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/certsim/internal/certificate"
	"github.com/san-kum/certsim/internal/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// affine is f(x) = drift, g(x) = gain, independent of x.
type affine struct {
	drift []float64
	gain  *mat.Dense
}

func newIntegrator(n int) *affine {
	g := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		g.Set(i, i, 1)
	}
	return &affine{drift: make([]float64, n), gain: g}
}

func (a *affine) Decompose(sim.State) (*mat.VecDense, *mat.Dense) {
	return mat.NewVecDense(len(a.drift), append([]float64(nil), a.drift...)), mat.DenseCopyOf(a.gain)
}

func (a *affine) StateDim() int {
	r, _ := a.gain.Dims()
	return r
}

func (a *affine) ControlDim() int {
	_, c := a.gain.Dims()
	return c
}

func goalCert(t *testing.T, goal []float64, rate float64) certificate.Certificate {
	t.Helper()
	idx := make([]int, len(goal))
	for i := range idx {
		idx[i] = i
	}
	c, err := certificate.QuadraticLyapunov(len(goal), idx, goal, 0, rate)
	require.NoError(t, err)
	return c
}

func TestGenerateEmptyCollection(t *testing.T) {
	dyn := newIntegrator(2)
	for _, kind := range []certificate.Kind{certificate.Lyapunov, certificate.Barrier} {
		coll, err := certificate.NewCollection(kind)
		require.NoError(t, err)

		var gen Generator
		if kind == certificate.Lyapunov {
			gen, err = NewCLF(dyn, coll)
		} else {
			gen, err = NewCBF(dyn, coll)
		}
		require.NoError(t, err)

		rows, diag, err := gen.Generate(0, sim.State{1, 2})
		require.NoError(t, err)
		assert.Equal(t, 0, rows.Len())
		assert.Nil(t, rows.A)
		assert.Empty(t, diag)
	}
}

func TestCLFRowSingleIntegrator(t *testing.T) {
	const c = 0.5
	goal := []float64{1, -1}
	coll, err := certificate.NewCollection(certificate.Lyapunov, goalCert(t, goal, c))
	require.NoError(t, err)
	gen, err := NewCLF(newIntegrator(2), coll)
	require.NoError(t, err)

	x := sim.State{3, 2}
	rows, diag, err := gen.Generate(0, x)
	require.NoError(t, err)
	require.Equal(t, 1, rows.Len())

	v := 4.0 + 9.0
	assert.InDelta(t, 2*(x[0]-goal[0]), rows.A.At(0, 0), 1e-12)
	assert.InDelta(t, 2*(x[1]-goal[1]), rows.A.At(0, 1), 1e-12)
	assert.InDelta(t, -c*v, rows.B[0], 1e-12)

	assert.Equal(t, []float64{v}, diag["clf_values"])
	assert.False(t, diag.Bool("clf_complete"))
	assert.NotContains(t, diag, "clf_values_nominal")
}

func TestRelaxationColumns(t *testing.T) {
	strict := goalCert(t, []float64{0, 0}, 1)
	soft := goalCert(t, []float64{1, 1}, 2)
	soft.Relaxable = true

	coll, err := certificate.NewCollection(certificate.Lyapunov, strict, soft)
	require.NoError(t, err)
	gen, err := NewCLF(newIntegrator(2), coll)
	require.NoError(t, err)
	require.Equal(t, 1, gen.Relaxations())

	x := sim.State{2, 0}
	rows, _, err := gen.Generate(0, x)
	require.NoError(t, err)

	r, cols := rows.A.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 3, cols)

	// non-relaxable row keeps its bound in b and has a zero relaxation entry
	assert.Equal(t, 0.0, rows.A.At(0, 2))
	assert.InDelta(t, -4.0, rows.B[0], 1e-12)

	// relaxable row moves -bound into its own column and drops it from b
	vSoft := 1.0 + 1.0
	assert.InDelta(t, 2*vSoft, rows.A.At(1, 2), 1e-12)
	assert.InDelta(t, 0.0, rows.B[1], 1e-12)
}

func TestCBFRow(t *testing.T) {
	dyn := newIntegrator(2)
	dyn.drift = []float64{1, 0}
	obs, err := certificate.EllipsoidBarrier(2, []int{0, 1}, []float64{0, 0}, []float64{1, 1}, 3)
	require.NoError(t, err)
	coll, err := certificate.NewCollection(certificate.Barrier, obs)
	require.NoError(t, err)
	gen, err := NewCBF(dyn, coll)
	require.NoError(t, err)

	x := sim.State{2, 0}
	rows, diag, err := gen.Generate(0, x)
	require.NoError(t, err)

	h := 3.0
	// -grad h * g * u <= grad h * f - bound(h)
	assert.InDelta(t, -4.0, rows.A.At(0, 0), 1e-12)
	assert.InDelta(t, 0.0, rows.A.At(0, 1), 1e-12)
	assert.InDelta(t, 4.0+3*h, rows.B[0], 1e-12)
	assert.True(t, diag.Bool("cbf_complete"))
	assert.Equal(t, []float64{h}, diag["cbf_values"])
}

func TestKindMismatch(t *testing.T) {
	coll, err := certificate.NewCollection(certificate.Lyapunov, goalCert(t, []float64{0}, 1))
	require.NoError(t, err)
	_, err = NewCBF(newIntegrator(1), coll)
	assert.ErrorIs(t, err, ErrKindMismatch)
	assert.ErrorIs(t, err, sim.ErrInvalidConfig)
}

func TestRiskBuffer(t *testing.T) {
	base := RiskParams{TMax: 1, Eta: 1, PBound: 0.9}
	r0, err := RiskBuffer(base)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt2*math.Erfinv(0.8), r0, 1e-12)

	t.Run("increasing in t_max", func(t *testing.T) {
		prev := r0
		for _, tm := range []float64{2, 5, 10} {
			p := base
			p.TMax = tm
			r, err := RiskBuffer(p)
			require.NoError(t, err)
			assert.Greater(t, r, prev)
			prev = r
		}
	})

	t.Run("increasing in eta", func(t *testing.T) {
		prev := r0
		for _, eta := range []float64{1.5, 3, 8} {
			p := base
			p.Eta = eta
			r, err := RiskBuffer(p)
			require.NoError(t, err)
			assert.Greater(t, r, prev)
			prev = r
		}
	})

	t.Run("diverges as p_bound approaches one", func(t *testing.T) {
		prev := r0
		for _, pb := range []float64{0.99, 0.9999, 0.999999, 1 - 1e-12} {
			p := base
			p.PBound = pb
			r, err := RiskBuffer(p)
			require.NoError(t, err)
			assert.Greater(t, r, prev)
			prev = r
		}
		assert.Greater(t, prev, 4.0)
	})

	t.Run("rejects bounds outside (0,1)", func(t *testing.T) {
		for _, pb := range []float64{0, -0.5, 1, 1.5, math.NaN()} {
			p := base
			p.PBound = pb
			_, err := RiskBuffer(p)
			assert.ErrorIs(t, err, ErrConfidenceBound, "p_bound=%v", pb)
			assert.ErrorIs(t, err, sim.ErrInvalidConfig)
		}
	})
}

func TestRiskAwareCLF(t *testing.T) {
	coll, err := certificate.NewCollection(certificate.Lyapunov, goalCert(t, []float64{0, 0}, 1))
	require.NoError(t, err)
	dyn := newIntegrator(2)

	_, err = NewRiskAwareCLF(dyn, coll, nil)
	assert.ErrorIs(t, err, ErrMissingRiskParams)
	_, err = NewRiskAwareCLF(dyn, coll, &RiskParams{TMax: 1, Eta: 1, PBound: 0.9})
	assert.ErrorIs(t, err, ErrMissingRiskParams)
	_, err = NewRiskAwareCLF(dyn, coll, &RiskParams{TMax: 1, Eta: 1, PBound: 1, Sigma: DiagonalSigma([]float64{1, 1})})
	assert.ErrorIs(t, err, ErrConfidenceBound)

	const s = 0.3
	params := &RiskParams{TMax: 2, Eta: 0.5, PBound: 0.95, Sigma: DiagonalSigma([]float64{s, s})}
	gen, err := NewRiskAwareCLF(dyn, coll, params)
	require.NoError(t, err)
	plain, err := NewCLF(dyn, coll)
	require.NoError(t, err)

	x := sim.State{1, 1}
	rows, diag, err := gen.Generate(0, x)
	require.NoError(t, err)
	base, _, err := plain.Generate(0, x)
	require.NoError(t, err)

	// hessian of ||x||^2 is 2I, so 0.5*tr(sigma^T H sigma) = 2*s^2
	assert.InDelta(t, base.B[0]-2*s*s, rows.B[0], 1e-12)
	assert.True(t, mat.Equal(base.A, rows.A))

	r, err := RiskBuffer(*params)
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, diag["clf_values"])
	assert.InDelta(t, 2-r, diag["clf_values_nominal"][0], 1e-12)
	assert.InDelta(t, r, diag["clf_buffer"][0], 1e-12)
}

func TestGenerateNumericalFailure(t *testing.T) {
	cert := certificate.Certificate{
		Name:     "sqrt",
		Value:    func(_ float64, x []float64) float64 { return math.Sqrt(x[0]) },
		Gradient: func(_ float64, x []float64) *mat.VecDense { return mat.NewVecDense(1, []float64{0.5 / math.Sqrt(x[0])}) },
		Bound:    certificate.LinearBound(1),
	}
	coll, err := certificate.NewCollection(certificate.Lyapunov, goalCert(t, []float64{0}, 1), cert)
	require.NoError(t, err)
	gen, err := NewCLF(newIntegrator(1), coll)
	require.NoError(t, err)
	assert.Equal(t, 1, gen.ControlDim())

	_, _, err = gen.Generate(0, sim.State{-1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, sim.ErrNumerical))
	assert.True(t, errors.Is(err, certificate.ErrNonFinite))

	var ce *CertificateError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Index)
	assert.Equal(t, "sqrt", ce.Name)
	assert.Equal(t, certificate.Lyapunov, ce.Kind)
}
