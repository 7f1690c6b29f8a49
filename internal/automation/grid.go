package automation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"

	"github.com/san-kum/certsim/internal/config"
)

var ErrNoCandidate = errors.New("no grid point completed with a finite metric")

type GridResult struct {
	Params map[string]float64
	Value  float64
}

// GridSearch runs every combination of the sweep values and returns the
// point minimizing metric. Points whose run failed, or whose metric is
// missing or non-finite, are skipped.
func (r *Runner) GridSearch(ctx context.Context, grid []Sweep, metric string) (GridResult, error) {
	var points []map[string]float64
	expand(grid, 0, map[string]float64{}, &points)
	if len(points) == 0 {
		return GridResult{}, fmt.Errorf("%w: empty grid", ErrNoCandidate)
	}

	cfgs := make([]*config.Config, len(points))
	for i, p := range points {
		cfgs[i] = r.base.Clone()
		for name, v := range p {
			if err := SetParam(cfgs[i], name, v); err != nil {
				return GridResult{}, err
			}
		}
	}

	values := make([]float64, len(points))
	err := r.forEach(ctx, len(points), func(ctx context.Context, i int) error {
		out, err := r.run(ctx, cfgs[i])
		if err != nil {
			return fmt.Errorf("grid point %v: %w", points[i], err)
		}
		values[i] = math.NaN()
		if v, ok := out.Metrics[metric]; ok && out.Err == nil {
			values[i] = v
		}
		return nil
	})
	if err != nil {
		return GridResult{}, err
	}

	best := GridResult{Value: math.Inf(1)}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v < best.Value {
			best = GridResult{Params: points[i], Value: v}
		}
	}
	if best.Params == nil {
		return GridResult{}, fmt.Errorf("%w: %s", ErrNoCandidate, metric)
	}
	return best, nil
}

func expand(grid []Sweep, depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(grid) {
		if depth > 0 {
			*out = append(*out, maps.Clone(current))
		}
		return
	}
	for _, v := range grid[depth].Values {
		current[grid[depth].Param] = v
		expand(grid, depth+1, current, out)
	}
	delete(current, grid[depth].Param)
}
