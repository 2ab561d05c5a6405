package pipeline

import (
	"runtime"

	"github.com/sourcegraph/conc"
)

// parallelRows runs fn(y) for y in [0, n) on up to workers goroutines
// (GOMAXPROCS when workers <= 0), striding rows so uneven rows spread evenly.
func parallelRows(workers, n int, fn func(y int)) {
	if n <= 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, n)

	var wg conc.WaitGroup
	for w := range workers {
		wg.Go(func() {
			for y := w; y < n; y += workers {
				fn(y)
			}
		})
	}
	wg.Wait()
}
