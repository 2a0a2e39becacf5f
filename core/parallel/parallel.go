// Package parallel splits index ranges across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Chunks splits [0, items) into at most workers contiguous ranges and runs
// fn on each concurrently. workers <= 0 means runtime.NumCPU().
func Chunks(items, workers int, fn func(start, end int)) {
	if items <= 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > items {
		workers = items
	}
	size := (items + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < items; start += size {
		end := start + size
		if end > items {
			end = items
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ChunksAbove runs fn(0, items) inline when items <= threshold and
// falls back to Chunks otherwise.
func ChunksAbove(items, threshold int, fn func(start, end int)) {
	if items <= threshold {
		if items > 0 {
			fn(0, items)
		}
		return
	}
	Chunks(items, 0, fn)
}
