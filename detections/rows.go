package detections

import (
	"runtime"
	"sync"
)

// splitRows runs fn over [0, height) in contiguous row bands, one goroutine per
// band. Small inputs run inline.
func splitRows(height int, fn func(start, end int)) {
	workers := runtime.GOMAXPROCS(0)
	if workers <= 1 || height < minParallelRows {
		fn(0, height)
		return
	}
	if workers > height {
		workers = height
	}

	rowsPerWorker := height / workers
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		start := w * rowsPerWorker
		end := start + rowsPerWorker
		if w == workers-1 {
			end = height
		}
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(start, end)
	}
	wg.Wait()
}
