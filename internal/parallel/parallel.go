// Package parallel provides the data-parallel launcher used by the optimizer
// kernels.
package parallel

import (
	"runtime"
	"sync"
)

// Launcher invokes kernel(i) exactly once for every i in [0, n) and returns
// only after all invocations completed. Invocations may run concurrently and
// in any order.
type Launcher interface {
	Launch(n int, kernel func(i int))
}

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64, // Typical cache line aware chunk.
	}
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < cfg.MinChunkSize {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
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

// Pool is a Launcher that splits the index range into chunks executed on
// short-lived goroutines.
type Pool struct {
	cfg Config
}

// New creates a Pool with the given configuration.
func New(cfg Config) *Pool {
	return &Pool{cfg: cfg}
}

// Config returns the pool's configuration.
func (p *Pool) Config() Config {
	return p.cfg
}

// Launch implements Launcher.
func (p *Pool) Launch(n int, kernel func(i int)) {
	For(n, kernel, p.cfg)
}

// Sequential is a Launcher that runs every index on the calling goroutine
// in ascending order.
type Sequential struct{}

// Launch implements Launcher.
func (Sequential) Launch(n int, kernel func(i int)) {
	for i := 0; i < n; i++ {
		kernel(i)
	}
}
