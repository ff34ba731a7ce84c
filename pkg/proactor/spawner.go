package proactor

import (
	"golang.org/x/sync/semaphore"
)

// Spawner starts workers. Spawn either arranges for fn to run exactly once
// on its own goroutine and returns nil, or returns an error and never runs fn.
//
// Spawn is called while the dispatcher holds its registration lock, so it
// must return promptly: it must not block waiting for capacity and must not
// run fn on the calling goroutine. Either would stall Shutdown and every
// later Register.
type Spawner interface {
	Spawn(fn func()) error
}

// SpawnerFunc adapts a function to Spawner.
type SpawnerFunc func(fn func()) error

func (f SpawnerFunc) Spawn(fn func()) error { return f(fn) }

// GoSpawner starts one goroutine per call and never fails.
var GoSpawner Spawner = SpawnerFunc(func(fn func()) error {
	go fn()
	return nil
})

// LimitedSpawner caps the number of concurrently running workers. When the
// cap is reached Spawn fails immediately with ErrResourceExhausted; it never
// waits for capacity.
type LimitedSpawner struct {
	sem   *semaphore.Weighted
	limit int64
}

// NewLimitedSpawner returns a spawner allowing at most limit live workers.
// A limit <= 0 is treated as 1.
func NewLimitedSpawner(limit int64) *LimitedSpawner {
	if limit <= 0 {
		limit = 1
	}
	return &LimitedSpawner{
		sem:   semaphore.NewWeighted(limit),
		limit: limit,
	}
}

func (s *LimitedSpawner) Spawn(fn func()) error {
	if !s.sem.TryAcquire(1) {
		return ErrResourceExhausted
	}
	go func() {
		defer s.sem.Release(1)
		fn()
	}()
	return nil
}

// Limit returns the configured worker cap.
func (s *LimitedSpawner) Limit() int64 {
	return s.limit
}
