package sim

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Factory builds a fully independent simulator for one run. Every
// collaborator it returns must be fresh so no mutable state is shared
// between concurrent runs.
type Factory func(run int, seed int64) (*Simulator, error)

type Ensemble struct {
	factory   Factory
	numRuns   int
	seedStart int64
	limit     int
}

func NewEnsemble(factory Factory, numRuns int, seedStart int64) *Ensemble {
	return &Ensemble{factory: factory, numRuns: numRuns, seedStart: seedStart}
}

// SetLimit bounds the number of runs executing at once; n <= 0 means no limit.
func (e *Ensemble) SetLimit(n int) { e.limit = n }

func (e *Ensemble) Run(ctx context.Context, x0 State, p0 *mat.SymDense, cfg Config) ([]*Result, error) {
	if e.numRuns <= 0 {
		return nil, fmt.Errorf("%w: ensemble needs at least one run, got %d", ErrInvalidConfig, e.numRuns)
	}
	results := make([]*Result, e.numRuns)

	g, ctx := errgroup.WithContext(ctx)
	if e.limit > 0 {
		g.SetLimit(e.limit)
	}
	for i := 0; i < e.numRuns; i++ {
		idx := i
		g.Go(func() error {
			s, err := e.factory(idx, e.seedStart+int64(idx))
			if err != nil {
				return fmt.Errorf("run %d: %w", idx, err)
			}
			var start *mat.SymDense
			if p0 != nil {
				start = mat.NewSymDense(p0.SymmetricDim(), nil)
				start.CopySym(p0)
			}
			res, err := s.Execute(ctx, x0.Clone(), start, cfg)
			if err != nil {
				return fmt.Errorf("run %d: %w", idx, err)
			}
			results[idx] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
