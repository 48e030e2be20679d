// Package parallel splits row loops across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how Rows splits work.
type Config struct {
	Workers  int // Maximum goroutines; values below 2 run sequentially
	MinChunk int // Minimum rows handed to one goroutine
	MinWork  int // Total work units below which Rows stays sequential
}

// DefaultConfig uses one worker per CPU.
func DefaultConfig() Config {
	return Config{
		Workers:  runtime.NumCPU(),
		MinChunk: 16,
		MinWork:  1 << 16,
	}
}

// Rows calls f(lo, hi) over disjoint [lo, hi) ranges covering [0, n).
//
// work is the caller's estimate of the total cost (e.g., m*k*n for a
// matrix product). Ranges run concurrently only when work reaches
// cfg.MinWork; f must then be safe to call from several goroutines on
// disjoint ranges. Rows returns after every call to f has returned.
func Rows(n, work int, cfg Config, f func(lo, hi int)) {
	if n <= 0 {
		return
	}
	chunk := max((n+cfg.Workers-1)/max(cfg.Workers, 1), cfg.MinChunk, 1)
	if cfg.Workers < 2 || work < cfg.MinWork || chunk >= n {
		f(0, n)
		return
	}

	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(lo, hi)
		}()
	}
	wg.Wait()
}
