package pointcloud

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minChunk keeps tiny clouds on a single goroutine.
const minChunk = 256

// ForEachChunk splits [0,n) into contiguous ranges and calls fn on each,
// running at most workers ranges at once. workers <= 0 uses GOMAXPROCS.
// fn must only write to per-index output slots so the result does not
// depend on scheduling.
func ForEachChunk(n, workers int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers == 1 || n <= minChunk {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		lo, hi := lo, min(lo+chunk, n)
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}
