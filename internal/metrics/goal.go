package metrics

import (
	"math"

	"github.com/san-kum/certsim/internal/sim"
)

// GoalDistance is the distance from the selected state coordinates to the
// goal at the last observed step.
type GoalDistance struct {
	indices []int
	goal    []float64
	last    float64
	samples int
}

func NewGoalDistance(indices []int, goal []float64) *GoalDistance {
	return &GoalDistance{
		indices: append([]int(nil), indices...),
		goal:    append([]float64(nil), goal...),
	}
}

func (g *GoalDistance) Name() string { return "goal_distance" }

func (g *GoalDistance) Observe(x sim.State, u sim.Control, t float64) {
	sum := 0.0
	for k, i := range g.indices {
		d := x[i] - g.goal[k]
		sum += d * d
	}
	g.last = math.Sqrt(sum)
	g.samples++
}

func (g *GoalDistance) Value() float64 {
	if g.samples == 0 {
		return math.NaN()
	}
	return g.last
}

func (g *GoalDistance) Reset() {
	g.last = 0
	g.samples = 0
}

// MinValue tracks the smallest value a scalar function of state takes over
// a run. With a barrier function it reports the tightest safety margin.
type MinValue struct {
	name string
	fn   func(t float64, x []float64) float64
	min  float64
}

func NewMinValue(name string, fn func(t float64, x []float64) float64) *MinValue {
	return &MinValue{name: name, fn: fn, min: math.Inf(1)}
}

func (m *MinValue) Name() string { return m.name }

func (m *MinValue) Observe(x sim.State, u sim.Control, t float64) {
	m.min = math.Min(m.min, m.fn(t, x))
}

func (m *MinValue) Value() float64 { return m.min }

func (m *MinValue) Reset() { m.min = math.Inf(1) }
