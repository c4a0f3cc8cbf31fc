// Package parallel runs index-addressed work across CPU cores.
package parallel

import (
	"runtime"
	"sync"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// Parallelize divides items into contiguous ranges, one per worker, and runs
// fn on each range concurrently. workers <= 0 means runtime.NumCPU().
func Parallelize(items, workers int, fn func(start, end int)) {
	if items == 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > items {
		workers = items
	}

	chunkSize := (items + workers - 1) / workers

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelizeWithThreshold runs fn sequentially when items <= threshold.
func ParallelizeWithThreshold(items, threshold, workers int, fn func(start, end int)) {
	if items <= threshold || workers == 1 {
		fn(0, items)
		return
	}
	Parallelize(items, workers, fn)
}

// ForEach calls fn(i) for every i in [0, items) across workers and returns
// the error of the lowest failing index. Results should be written by index
// so that output order never depends on scheduling. A panic inside fn is
// returned as an error instead of crashing the process.
func ForEach(items, workers int, fn func(i int) error) error {
	errs := make([]error, items)
	Parallelize(items, workers, func(start, end int) {
		for i := start; i < end; i++ {
			i := i
			errs[i] = errors.SafeExecute("parallel.ForEach", func() error {
				return fn(i)
			})
		}
	})
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
