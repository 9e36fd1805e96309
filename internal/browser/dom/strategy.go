package dom

import (
	"context"
	"errors"
)

// Strategy is one way of producing a T. Strategies are tried in order until one
// succeeds.
type Strategy[T any] struct {
	Name string
	// Applicable gates the strategy. A nil gate always applies.
	Applicable func() bool
	Run        func(ctx context.Context) (T, error)
}

// Attempt records the outcome of one strategy in a run.
type Attempt struct {
	Name string
	Err  error
}

// ErrNoStrategy is returned when no strategy was applicable.
var ErrNoStrategy = errors.New("no applicable strategy")

// RunStrategies tries each applicable strategy in order and returns the first
// success together with its name. On total failure it returns the last error
// joined with every earlier one. Context cancellation stops the run early.
func RunStrategies[T any](ctx context.Context, strategies []Strategy[T]) (T, string, []Attempt, error) {
	var zero T
	var attempts []Attempt
	var errs []error

	for _, s := range strategies {
		if s.Applicable != nil && !s.Applicable() {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		v, err := s.Run(ctx)
		attempts = append(attempts, Attempt{Name: s.Name, Err: err})
		if err == nil {
			return v, s.Name, attempts, nil
		}
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return zero, "", attempts, ErrNoStrategy
	}
	return zero, "", attempts, errors.Join(errs...)
}
