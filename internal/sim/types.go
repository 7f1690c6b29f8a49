package sim

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

// Vec returns a gonum view sharing the state's backing array.
func (s State) Vec() *mat.VecDense {
	if len(s) == 0 {
		return &mat.VecDense{}
	}
	return mat.NewVecDense(len(s), s)
}

type Control []float64

func (u Control) Clone() Control {
	c := make(Control, len(u))
	copy(c, u)
	return c
}

// Diagnostics is the per-step side channel emitted by controllers and
// constraint generators. Flags are stored as a single 0/1 entry.
type Diagnostics map[string][]float64

func Flag(b bool) []float64 {
	if b {
		return []float64{1}
	}
	return []float64{0}
}

func (d Diagnostics) Bool(key string) bool {
	v, ok := d[key]
	return ok && len(v) > 0 && v[0] != 0
}

// Merge copies every entry of other into d, overwriting on key collision.
func (d Diagnostics) Merge(other Diagnostics) {
	for k, v := range other {
		d[k] = v
	}
}

func (d Diagnostics) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Dynamics is a control-affine system dx/dt = f(x) + g(x)u.
type Dynamics interface {
	Decompose(x State) (f *mat.VecDense, g *mat.Dense)
	StateDim() int
	ControlDim() int
}

// Derivative evaluates f(x) + g(x)u.
func Derivative(dyn Dynamics, x State, u Control) State {
	f, g := dyn.Decompose(x)
	dx := mat.NewVecDense(f.Len(), nil)
	if len(u) > 0 {
		dx.MulVec(g, mat.NewVecDense(len(u), u))
	}
	dx.AddVec(dx, f)
	return State(dx.RawVector().Data)
}

type Sensor interface {
	Measure(t float64, x State) (State, error)
}

type Estimator interface {
	Estimate(t float64, z State, prior State, cov *mat.SymDense) (State, *mat.SymDense, error)
}

type Integrator interface {
	Step(dyn Dynamics, x State, u Control, dt float64) State
}

type Controller interface {
	Compute(t float64, x State) (Control, Diagnostics, error)
}

type Metric interface {
	Name() string
	Observe(x State, u Control, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(rec StepRecord)
}

type Config struct {
	Dt       float64
	NumSteps int
	// ControlFromEstimate feeds the estimator output to the controller
	// instead of the true state.
	ControlFromEstimate bool
	ValidateState       bool
}

func DefaultConfig() Config {
	return Config{
		Dt:                  0.01,
		NumSteps:            1000,
		ControlFromEstimate: true,
		ValidateState:       true,
	}
}

// StepRecord is everything produced by a single control step.
type StepRecord struct {
	Step        int
	Time        float64
	State       State
	Control     Control
	Measurement State
	Estimate    State
	Covariance  *mat.SymDense
	Diagnostics Diagnostics
}

type Result struct {
	States         []State
	Controls       []Control
	Measurements   []State
	Estimates      []State
	Covariances    []*mat.SymDense
	Diagnostics    []Diagnostics
	DiagnosticKeys []string
	Times          []float64
	Metrics        map[string]float64
	StepsTaken     int
}

// Series extracts element idx of key across all steps. Steps missing the
// key contribute NaN.
func (r *Result) Series(key string, idx int) []float64 {
	out := make([]float64, len(r.Diagnostics))
	for i, d := range r.Diagnostics {
		v, ok := d[key]
		if !ok || idx >= len(v) {
			out[i] = math.NaN()
			continue
		}
		out[i] = v[idx]
	}
	return out
}
