package pipeline

// scheduler.go triggers full pipeline runs on a cron schedule.
//
// Each tick runs the configured data types one after another, derived types
// last, so the stations list is built from fresh quality files. A failed
// data type is logged and the tick moves on to the next one.

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/JonMunkholm/swamp/internal/process"
)

// ScheduleConfig configures a Scheduler.
type ScheduleConfig struct {
	// Spec is a six-field cron expression with seconds,
	// e.g. "0 0 3 * * MON".
	Spec string
	// DataTypes are run in order on every tick. Empty means all.
	DataTypes []string
}

// Scheduler runs the pipeline on a cron schedule.
type Scheduler struct {
	runner *Runner
	cron   *cron.Cron
	keys   []string
}

// NewScheduler validates cfg and registers the job. Start must be called to
// begin scheduling.
func NewScheduler(runner *Runner, cfg ScheduleConfig) (*Scheduler, error) {
	keys, err := OrderDataTypes(cfg.DataTypes)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		runner: runner,
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		keys:   keys,
	}
	if _, err := s.cron.AddFunc(cfg.Spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// OrderDataTypes resolves keys, drops duplicates and moves derived data
// types to the end. Empty keys means every registered data type.
func OrderDataTypes(keys []string) ([]string, error) {
	if len(keys) == 0 {
		keys = process.Keys()
	}
	var plain, derived []string
	for _, k := range keys {
		dt, err := process.Lookup(k)
		if err != nil {
			return nil, err
		}
		if slices.Contains(plain, k) || slices.Contains(derived, k) {
			continue
		}
		if dt.Derived {
			derived = append(derived, k)
		} else {
			plain = append(plain, k)
		}
	}
	return append(plain, derived...), nil
}

// DataTypes returns the keys run on each tick, in order.
func (s *Scheduler) DataTypes() []string {
	return slices.Clone(s.keys)
}

// Next returns the next scheduled tick, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Start begins scheduling in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("pipeline scheduler started", "data_types", s.keys, "next", s.Next())
}

// Stop halts scheduling and waits for a running tick to finish or ctx to
// be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		slog.Info("pipeline scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs every configured data type once and returns the number of
// runs that failed.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	start := time.Now()
	failed := 0
	for _, key := range s.keys {
		if ctx.Err() != nil {
			break
		}
		rec, err := s.runner.Run(ctx, key)
		if err != nil {
			failed++
			attrs := []any{"data_type", key, "error", err, "code", MapError(err).Code}
			if rec != nil {
				attrs = append(attrs, "run_id", rec.ID)
			}
			slog.Error("scheduled run failed", attrs...)
		}
	}
	slog.Info("scheduled runs complete",
		"data_types", len(s.keys),
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return failed
}
