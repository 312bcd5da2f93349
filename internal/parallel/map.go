package parallel

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"
)

type result[D any] struct {
	d D
	e error
}

// Map applies mapFunc to every element of in with at most limit concurrent
// calls and yields the results as they complete. Order is not preserved.
// A canceled context stops the processing, already finished results are
// still yielded.
//
//	for job, err := range parallel.Map(ctx, 8, blocks, submit) {}
func Map[E, D any](parentCtx context.Context, limit int, in []E, mapFunc func(context.Context, E) (D, error)) iter.Seq2[D, error] {
	if limit <= 0 {
		limit = len(in)
	}

	parentCtx, cancelParent := context.WithCancel(parentCtx)
	g, gctx := errgroup.WithContext(parentCtx)
	g.SetLimit(limit)

	mapped := make(chan result[D], limit)

	return func(yield func(D, error) bool) {
		defer cancelParent()

		go func() {
			for _, entry := range in {
				g.Go(func() error {
					d, mapErr := mapFunc(gctx, entry)
					select {
					case <-gctx.Done():
						return gctx.Err()
					case mapped <- result[D]{d: d, e: mapErr}:
					}
					return nil
				})
			}
			_ = g.Wait()
			close(mapped)
		}()

		for {
			select {
			case <-parentCtx.Done():
				return
			case r, ok := <-mapped:
				if !ok {
					return
				}
				if !yield(r.d, r.e) {
					return
				}
			}
		}
	}
}
