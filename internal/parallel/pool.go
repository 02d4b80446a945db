// Package parallel provides the fork-join substrate used by the field
// passes: a fixed set of disjoint partitions is handed to a bounded number
// of workers and the caller blocks until every partition has finished.
package parallel

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pool bounds how many partitions run concurrently. The zero value is not
// usable; construct with NewPool.
type Pool struct {
	workers int
}

// NewPool returns a pool running at most workers partitions at a time.
// workers <= 0 selects runtime.GOMAXPROCS(0).
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{workers: workers}
}

// Workers returns the concurrency limit.
func (p *Pool) Workers() int {
	if p == nil {
		return 1
	}
	return p.workers
}

// ParallelFor calls fn once for every partition index in [0, n), possibly
// concurrently, and returns only after all calls have completed. The first
// non-nil error is returned; remaining partitions still run to completion so
// that no partition is left half-written.
func (p *Pool) ParallelFor(n int, fn func(part int) error) error {
	if n < 0 {
		return fmt.Errorf("parallel: negative partition count %d", n)
	}
	if n == 0 {
		return nil
	}
	if p.Workers() == 1 || n == 1 {
		var first error
		for part := 0; part < n; part++ {
			if err := fn(part); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	var g errgroup.Group
	g.SetLimit(p.Workers())
	for part := 0; part < n; part++ {
		g.Go(func() error {
			return fn(part)
		})
	}
	return g.Wait()
}
