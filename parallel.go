package tsne

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// launchRanges splits [0, n) into contiguous per-worker ranges and runs fn on
// each range in its own goroutine, returning once all ranges complete. fn
// receives the worker index and its half-open [start, end) range. The return
// acts as a barrier: every write made by fn happens-before launchRanges
// returns. With workers <= 1 the single range runs on the calling goroutine.
func launchRanges(n, workers int, fn func(worker, start, end int)) {
	if n <= 0 {
		return
	}
	if workers <= 1 || n == 1 {
		fn(0, 0, n)
		return
	}

	perWorker := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * perWorker
		end := start + perWorker
		if end > n {
			end = n
		}
		if start >= n {
			break
		}

		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			fn(w, start, end)
		}(w, start, end)
	}
	wg.Wait()
}

// rangeCount returns how many non-empty ranges launchRanges will produce for
// n items over the given worker count. Used to size per-block scratch regions.
func rangeCount(n, workers int) int {
	if n <= 0 {
		return 0
	}
	if workers <= 1 || n == 1 {
		return 1
	}
	perWorker := (n + workers - 1) / workers
	blocks := (n + perWorker - 1) / perWorker
	return blocks
}

// atomicMaxInt32 raises *p to at least v.
func atomicMaxInt32(p *int32, v int32) {
	for {
		old := atomic.LoadInt32(p)
		if old >= v || atomic.CompareAndSwapInt32(p, old, v) {
			return
		}
	}
}

// spinWait yields the processor between polls of a condition that another
// worker satisfies shortly. spin counts failed polls so far: the first few
// retries stay on-core, after which the goroutine yields to the scheduler.
func spinWait(spin int) int {
	if spin > 16 {
		runtime.Gosched()
	}
	return spin + 1
}
