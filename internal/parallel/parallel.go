// Package parallel fans independent row kernels out across CPU workers.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how a row loop is split across goroutines.
type Config struct {
	Enabled    bool // Whether parallel execution is enabled.
	NumWorkers int  // Number of worker goroutines to use.
	MinRows    int  // Minimum rows before goroutines pay off.
}

// DefaultConfig returns sensible defaults based on CPU count. Sampling
// batches are short but each row carries vocab-sized work, so the
// sequential-fallback threshold is low.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
		MinRows:    8,
	}
}

// ForRows executes f(i) for every row i in [0, rows). Rows must be
// independent: f may not touch another row's data. Falls back to a
// sequential loop when parallelism is disabled or the batch is small.
func ForRows(rows int, f func(i int), cfg Config) {
	if !cfg.Enabled || rows < cfg.MinRows {
		for i := 0; i < rows; i++ {
			f(i)
		}
		return
	}

	chunk := (rows + cfg.NumWorkers - 1) / cfg.NumWorkers

	var wg sync.WaitGroup
	for start := 0; start < rows; start += chunk {
		end := min(start+chunk, rows)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}
