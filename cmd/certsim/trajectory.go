package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/san-kum/certsim/internal/config"
	"github.com/san-kum/certsim/internal/storage"
	"github.com/san-kum/certsim/internal/viz"
	"github.com/spf13/cobra"
)

// project returns the (x, y) entries of values for certificate coordinates
// indices, or false if indices does not cover both state axes.
func project(indices []int, values []float64, x, y int) (float64, float64, bool) {
	i, j := slices.Index(indices, x), slices.Index(indices, y)
	if i < 0 || j < 0 || i >= len(values) || j >= len(values) {
		return 0, 0, false
	}
	return values[i], values[j], true
}

func sceneFor(cfg *config.Config, states [][]float64, x, y int) viz.Scene {
	var s viz.Scene
	for _, st := range states {
		s.Path = append(s.Path, viz.Point{X: st[x], Y: st[y]})
	}
	for _, b := range cfg.Barriers {
		cx, cy, ok := project(b.Indices, b.Center, x, y)
		if !ok {
			continue
		}
		rx, ry, _ := project(b.Indices, b.Radii, x, y)
		s.Obstacles = append(s.Obstacles, viz.Ellipse{Center: viz.Point{X: cx, Y: cy}, RX: rx, RY: ry})
	}
	for i, l := range cfg.Lyapunovs {
		for _, o := range l.Obstacles {
			cx, cy, ok := project(l.Indices, o.Center, x, y)
			if !ok {
				continue
			}
			rx, ry, _ := project(l.Indices, o.Radii, x, y)
			s.Obstacles = append(s.Obstacles, viz.Ellipse{Center: viz.Point{X: cx, Y: cy}, RX: rx, RY: ry})
		}
		if i > 0 {
			continue
		}
		if gx, gy, ok := project(l.Indices, l.Goal, x, y); ok {
			s.Goal = &viz.Point{X: gx, Y: gy}
		}
	}
	return s
}

func drawTrajectory(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	cfg, err := st.LoadConfig(runID)
	if err != nil {
		return err
	}
	states, _, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to draw")
	}
	n := len(states[0])
	if xIndex < 0 || yIndex < 0 || xIndex >= n || yIndex >= n {
		return fmt.Errorf("state indices %d, %d out of range for %d states", xIndex, yIndex, n)
	}

	scene := sceneFor(cfg, states, xIndex, yIndex)
	fmt.Println(titleStyle.Render(fmt.Sprintf("run %s: x%d vs x%d", meta.ID, yIndex, xIndex)))
	fmt.Print(scene.Braille(80, 24))

	if svgPath != "" {
		if err := os.WriteFile(svgPath, []byte(scene.SVG(800, 600)), 0644); err != nil {
			return err
		}
		fmt.Println(labelStyle.Render("wrote " + svgPath))
	}
	return nil
}
