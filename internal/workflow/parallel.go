package workflow

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/deixis/synthkit/internal/report"
)

// Operation is one of the Engine's file operations.
type Operation func(ctx context.Context, p Paths) (*report.Outcome, error)

// ForEach runs op once per entry of paths with at most limit tool
// processes alive at a time. limit <= 0 means GOMAXPROCS. Outcomes are
// returned in the order of paths.
//
// A failed tool run does not stop the others; it is reported in its
// outcome. A returned error (a programmer error such as a missing input)
// cancels the remaining runs.
func (e *Engine) ForEach(ctx context.Context, paths []Paths, limit int, op Operation) ([]*report.Outcome, error) {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	outcomes := make([]*report.Outcome, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, p := range paths {
		g.Go(func() error {
			o, err := op(ctx, p)
			if err != nil {
				return err
			}
			outcomes[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
