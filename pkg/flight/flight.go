package flight

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Group collapses concurrent calls sharing one key into a single
// invocation; every caller receives the first call's result. The entry
// is dropped once that call settles, so a later call with the same key
// always gets a fresh attempt. Used to absorb double-tapped submissions
// before a durable job id exists.
type Group[T any] struct {
	sf singleflight.Group
}

// Do runs fn once per concurrent set of callers sharing key.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	result, err, _ := g.sf.Do(key, func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}
