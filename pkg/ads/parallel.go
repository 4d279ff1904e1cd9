package ads

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds Parallel when limit is not positive.
const DefaultConcurrency = 10

// Task is one unit of work for Parallel.
type Task[T any] func(ctx context.Context) (T, error)

// Outcome is the result of one Task.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Parallel runs tasks with at most limit in flight and returns their outcomes
// in task order. A failing task does not cancel the others.
func Parallel[T any](ctx context.Context, limit int, tasks []Task[T]) []Outcome[T] {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	out := make([]Outcome[T], len(tasks))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, task := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			out[i].Value, out[i].Err = task(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
