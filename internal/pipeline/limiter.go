package pipeline

// limiter.go bounds concurrent pipeline runs.
//
// A semaphore caps the number of runs across all data types and a key set
// keeps two runs of the same data type from overlapping, since both would
// write the same stage files. Acquire waits up to maxWait for a slot before
// failing with ErrTooManyRuns; WaitForDrain supports graceful shutdown.

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrTooManyRuns is returned when every run slot stays busy for maxWait.
	ErrTooManyRuns = errors.New("too many runs in progress")
	// ErrRunInProgress is returned when the data type already has a run.
	ErrRunInProgress = errors.New("run already in progress")
)

// DefaultMaxConcurrentRuns is the default limit for parallel runs.
const DefaultMaxConcurrentRuns = 2

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// RunLimiter controls concurrent runs using a semaphore.
type RunLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active map[string]struct{}
}

// NewRunLimiter allows at most maxConcurrent runs at once.
func NewRunLimiter(maxConcurrent int, maxWait time.Duration) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &RunLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
		active:    make(map[string]struct{}),
	}
}

// Acquire reserves a slot for key. The caller must call Release(key) once
// the run finishes.
func (l *RunLimiter) Acquire(ctx context.Context, key string) error {
	if !l.claim(key) {
		return ErrRunInProgress
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		return nil
	case <-waitCtx.Done():
		l.unclaim(key)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyRuns
	}
}

// TryAcquire reserves a slot for key without blocking.
func (l *RunLimiter) TryAcquire(key string) bool {
	if !l.claim(key) {
		return false
	}
	select {
	case l.semaphore <- struct{}{}:
		return true
	default:
		l.unclaim(key)
		return false
	}
}

// Release frees the slot held by key.
func (l *RunLimiter) Release(key string) {
	l.unclaim(key)
	<-l.semaphore
}

func (l *RunLimiter) claim(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.active[key]; busy {
		return false
	}
	l.active[key] = struct{}{}
	return true
}

func (l *RunLimiter) unclaim(key string) {
	l.mu.Lock()
	delete(l.active, key)
	l.mu.Unlock()
}

// Running reports whether key holds or is waiting for a slot.
func (l *RunLimiter) Running(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.active[key]
	return ok
}

// ActiveCount returns the number of runs holding a slot.
func (l *RunLimiter) ActiveCount() int {
	return len(l.semaphore)
}

// MaxConcurrent returns the slot count.
func (l *RunLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// Available returns the number of free slots.
func (l *RunLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until no run holds a slot or ctx is done.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunLimiterStatus is a snapshot of the limiter.
type RunLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *RunLimiter) Status() RunLimiterStatus {
	return RunLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: l.MaxConcurrent(),
	}
}
