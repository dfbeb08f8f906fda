package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunLimiter_AcquireRelease(t *testing.T) {
	limiter := NewRunLimiter(2, time.Second)
	ctx := context.Background()

	if got := limiter.Available(); got != 2 {
		t.Errorf("initial Available = %d, want 2", got)
	}

	if err := limiter.Acquire(ctx, "water_quality"); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	if err := limiter.Acquire(ctx, "habitat"); err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if got := limiter.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount = %d, want 2", got)
	}
	if !limiter.Running("habitat") {
		t.Error("habitat should be running")
	}

	limiter.Release("water_quality")
	if got := limiter.Available(); got != 1 {
		t.Errorf("after Release, Available = %d, want 1", got)
	}
	if limiter.Running("water_quality") {
		t.Error("water_quality should not be running after Release")
	}
	limiter.Release("habitat")

	if got := limiter.Status(); got != (RunLimiterStatus{Active: 0, Available: 2, MaxConcurrent: 2}) {
		t.Errorf("Status = %+v", got)
	}
}

func TestRunLimiter_SameKeyRejected(t *testing.T) {
	limiter := NewRunLimiter(3, time.Second)
	ctx := context.Background()

	if err := limiter.Acquire(ctx, "toxicity"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer limiter.Release("toxicity")

	if err := limiter.Acquire(ctx, "toxicity"); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}
	if limiter.TryAcquire("toxicity") {
		t.Error("TryAcquire should fail for a running key")
	}
	if got := limiter.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount = %d, want 1", got)
	}
}

func TestRunLimiter_BlocksWhenFull(t *testing.T) {
	limiter := NewRunLimiter(1, 100*time.Millisecond)
	ctx := context.Background()

	if err := limiter.Acquire(ctx, "a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	start := time.Now()
	err := limiter.Acquire(ctx, "b")
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTooManyRuns) {
		t.Errorf("expected ErrTooManyRuns, got %v", err)
	}
	if elapsed < 90*time.Millisecond {
		t.Errorf("returned after %v, expected to wait for the timeout", elapsed)
	}
	if limiter.Running("b") {
		t.Error("a rejected key must not stay claimed")
	}

	limiter.Release("a")
	if err := limiter.Acquire(ctx, "b"); err != nil {
		t.Errorf("Acquire after Release failed: %v", err)
	}
	limiter.Release("b")
}

func TestRunLimiter_ContextCancelled(t *testing.T) {
	limiter := NewRunLimiter(1, 5*time.Second)
	if err := limiter.Acquire(context.Background(), "a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer limiter.Release("a")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if err := limiter.Acquire(ctx, "b"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewRunLimiter(3, time.Second)
	var (
		wg      sync.WaitGroup
		current atomic.Int32
		peak    atomic.Int32
	)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			if err := limiter.Acquire(context.Background(), key); err != nil {
				t.Errorf("Acquire(%s) failed: %v", key, err)
				return
			}
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
			limiter.Release(key)
		}(i)
	}
	wg.Wait()

	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", p)
	}
}

func TestRunLimiter_WaitForDrain(t *testing.T) {
	limiter := NewRunLimiter(2, time.Second)
	if err := limiter.Acquire(context.Background(), "a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		limiter.Release("a")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := limiter.WaitForDrain(ctx); err != nil {
		t.Errorf("WaitForDrain failed: %v", err)
	}
}

func TestNewRunLimiter_Defaults(t *testing.T) {
	limiter := NewRunLimiter(0, 0)
	if got := limiter.MaxConcurrent(); got != DefaultMaxConcurrentRuns {
		t.Errorf("MaxConcurrent = %d, want %d", got, DefaultMaxConcurrentRuns)
	}
}
