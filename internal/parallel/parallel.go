// Package parallel provides the row fan-out used for pairwise matrix builds.
package parallel

import (
	"runtime"
	"sync"
)

// minRowsPerWorker keeps small problems on the calling goroutine.
const minRowsPerWorker = 32

// Workers resolves a configured worker count: values <= 0 mean GOMAXPROCS.
func Workers(configured int) int {
	if configured > 0 {
		return configured
	}
	return runtime.GOMAXPROCS(0)
}

// Rows calls fn once per row in [0, n) using up to workers goroutines.
// Rows are split into contiguous blocks; fn must only write state owned by
// its row so the result does not depend on scheduling.
func Rows(n, workers int, fn func(i int)) {
	if workers > n/minRowsPerWorker {
		workers = n / minRowsPerWorker
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := (n + workers - 1) / workers

	for w := 0; w < workers; w++ {
		chunkStart := w * chunkSize
		chunkEnd := min(chunkStart+chunkSize, n)
		if chunkStart >= chunkEnd {
			break
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				fn(i)
			}
		}(chunkStart, chunkEnd)
	}

	wg.Wait()
}
