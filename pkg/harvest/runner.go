package harvest

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of sources harvested at once by RunAll.
const DefaultConcurrency = 4

// RunAll runs independent harvesters with at most concurrency in parallel
// (DefaultConcurrency when <= 0). A failing source does not stop the
// others. Results are in input order; the error joins every *Error.
func RunAll(ctx context.Context, harvesters []*Harvester, concurrency int) ([]Result, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]Result, len(harvesters))
	errs := make([]error, len(harvesters))

	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	for i, h := range harvesters {
		g.Go(func() error {
			results[i], errs[i] = h.Run(ctx)
			return nil
		})
	}

	// goroutines only report through errs
	_ = g.Wait()

	return results, errors.Join(errs...)
}
