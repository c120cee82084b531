package trigger

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit bounds concurrent invocations when the caller passes a
// non-positive limit.
const DefaultLimit = 4

// Dispatch runs fn once per ref with at most limit calls in flight. Calls
// are independent: one failure neither cancels nor skips the others.
// Results are returned in input order; errors are joined.
func Dispatch[T any](ctx context.Context, refs []ObjectRef, limit int, fn func(context.Context, ObjectRef) (T, error)) ([]T, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	results := make([]T, len(refs))
	errs := make([]error, len(refs))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, ref := range refs {
		g.Go(func() error {
			res, err := fn(ctx, ref)
			results[i] = res
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", ref, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}
