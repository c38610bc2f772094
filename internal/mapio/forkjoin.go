package mapio

import "sync"

// ForkJoin runs n independent units of work across up to workers goroutines
// and returns only when every unit has completed. fn receives the worker's
// identity (0..workers-1), which callers use to select worker-private state
// such as local decompression caches. Units are unordered within the batch;
// the return is the batch's synchronization barrier.
func ForkJoin(workers, n int, fn func(worker, unit int)) {
	if n == 0 {
		return
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	if workers == 1 {
		for i := 0; i < n; i++ {
			fn(0, i)
		}
		return
	}

	units := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for unit := range units {
				fn(worker, unit)
			}
		}(w)
	}
	for i := 0; i < n; i++ {
		units <- i
	}
	close(units)
	wg.Wait()
}
