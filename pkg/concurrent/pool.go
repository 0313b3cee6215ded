package concurrent

import (
	"context"
	"sync"
)

// Pool bounds how many goroutines a fan-out may use at once.
type Pool struct {
	maxWorkers int
	sem        chan struct{}
}

// NewPool creates a pool with maxWorkers slots; non-positive means 10.
func NewPool(maxWorkers int) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &Pool{
		maxWorkers: maxWorkers,
		sem:        make(chan struct{}, maxWorkers),
	}
}

// Size returns the number of worker slots.
func (p *Pool) Size() int { return p.maxWorkers }

// Do runs fn once a slot is free.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
		return fn()
	}
}

// Map applies fn to every index in [0, n) using the pool and returns the
// results in index order, so callers that reduce them sequentially get the
// same answer regardless of scheduling. The first error by index wins.
func Map[R any](ctx context.Context, p *Pool, n int, fn func(i int) (R, error)) ([]R, error) {
	if n <= 0 {
		return nil, nil
	}

	results := make([]R, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = p.Do(ctx, func() error {
				var err error
				results[idx], err = fn(idx)
				return err
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
