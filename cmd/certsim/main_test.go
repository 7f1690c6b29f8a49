package main

import (
	"testing"

	"github.com/san-kum/certsim/internal/config"
	"github.com/san-kum/certsim/internal/viz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGrid(t *testing.T) {
	grid, err := parseGrid([]string{"lyapunov.rate=0.5, 1,2", "barrier.alpha=3"})
	require.NoError(t, err)
	require.Len(t, grid, 2)
	assert.Equal(t, "lyapunov.rate", grid[0].Param)
	assert.Equal(t, []float64{0.5, 1, 2}, grid[0].Values)
	assert.Equal(t, []float64{3}, grid[1].Values)

	for _, bad := range []string{"rate", "=1", "rate=", "rate=a,b"} {
		_, err := parseGrid([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestSceneForDropPoint(t *testing.T) {
	cfg := config.GetPreset("fixed_wing", "reach_drop_point")
	require.NotNil(t, cfg)
	states := [][]float64{{0, 0, 100, 20, 0, 0}, {2, 0, 100, 20, 0, 0}}

	s := sceneFor(cfg, states, 0, 1)
	require.Len(t, s.Path, 2)
	require.Len(t, s.Obstacles, 2)
	assert.Equal(t, 300.0, s.Obstacles[0].Center.X)
	assert.Equal(t, 60.0, s.Obstacles[0].RX)
	require.NotNil(t, s.Goal)
	assert.Equal(t, 400.0, s.Goal.Y)

	// heading/flight-path plane carries no certificate geometry
	s = sceneFor(cfg, states, 4, 5)
	assert.Empty(t, s.Obstacles)
	assert.Nil(t, s.Goal)

	cfg.Barriers = []config.BarrierConfig{{Type: "ellipsoid", Indices: []int{0, 1}, Center: []float64{10, 20}, Radii: []float64{1, 2}, Alpha: 1}}
	s = sceneFor(cfg, states, 0, 1)
	require.Len(t, s.Obstacles, 3)
	assert.Equal(t, viz.Ellipse{Center: viz.Point{X: 10, Y: 20}, RX: 1, RY: 2}, s.Obstacles[0])
}

func TestMetricKeys(t *testing.T) {
	assert.Nil(t, metricKeys(nil))
}
