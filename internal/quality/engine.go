package quality

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/swamp/internal/dataset"
	"github.com/JonMunkholm/swamp/internal/logging"
)

// ErrRuleFault wraps a panic recovered while evaluating one record.
var ErrRuleFault = errors.New("rule evaluation fault")

// DefaultContextCheckInterval is how many rows a worker processes between
// context checks.
const DefaultContextCheckInterval = 1000

// Options configures an Engine. The zero value is usable.
type Options struct {
	// Workers is the number of row partitions evaluated in parallel.
	// Zero means runtime.NumCPU().
	Workers int

	// ContextCheckInterval is the number of rows between context checks.
	ContextCheckInterval int

	// Rules overrides the rule registry. nil means DefaultRules(tables).
	Rules []Rule
}

// Engine classifies records against a fixed set of code tables.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	tables        *CodeTables
	rules         []Rule
	workers       int
	checkInterval int
}

// NewEngine builds an engine over tables.
func NewEngine(tables *CodeTables, opts Options) *Engine {
	e := &Engine{
		tables:        tables,
		rules:         opts.Rules,
		workers:       opts.Workers,
		checkInterval: opts.ContextCheckInterval,
	}
	if e.rules == nil {
		e.rules = DefaultRules(tables)
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}
	if e.checkInterval <= 0 {
		e.checkInterval = DefaultContextCheckInterval
	}
	return e
}

// Tables returns the code tables the engine was built with.
func (e *Engine) Tables() *CodeTables {
	return e.tables
}

// Evaluate runs every rule against an already cleaned record and returns the
// findings in evaluation order.
func (e *Engine) Evaluate(rec *dataset.Record) []Finding {
	var findings []Finding
	for _, r := range e.rules {
		if !rec.Has(r.Column) {
			continue
		}
		findings = append(findings, r.Eval(rec)...)
	}
	return findings
}

// Classify cleans rec, evaluates it and writes DataQuality and
// DataQualityIndicator onto it. A panicking rule does not escape: the record
// gets the fault classification and the returned error wraps ErrRuleFault.
func (e *Engine) Classify(rec *dataset.Record) (c Classification, err error) {
	defer func() {
		if r := recover(); r != nil {
			c = Classification{DataQuality: UnknownDataQuality, Indicator: EvaluationFaultIndicator}
			err = fmt.Errorf("%w: %v", ErrRuleFault, r)
		}
		rec.Set(ColDataQuality, c.DataQuality)
		rec.Set(ColDataQualityIndicator, c.Indicator)
	}()

	Clean(rec)
	return Aggregate(e.Evaluate(rec)), nil
}

// Fault records a per-row evaluation failure. Row is zero-based.
type Fault struct {
	Row int
	Err error
}

// Report summarizes one Process call.
type Report struct {
	Records  int
	Counts   map[string]int
	Faults   []Fault
	Duration time.Duration
}

// Process classifies every record of ds. Records are split into contiguous
// row ranges, one per worker; each worker touches only its own rows.
// The only error returned is context cancellation.
func (e *Engine) Process(ctx context.Context, ds *dataset.Dataset) (Report, error) {
	start := time.Now()
	logger := logging.WithFields(ctx, "records", ds.Len(), "tables_version", e.tables.Version())

	ds.AddColumn(ColDataQuality)
	ds.AddColumn(ColDataQualityIndicator)

	n := ds.Len()
	workers := max(min(e.workers, n), 1)
	size := (n + workers - 1) / workers

	counts := make([]map[string]int, workers)
	faults := make([][]Fault, workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for w := range workers {
		lo := w * size
		hi := min(lo+size, n)
		counts[w] = make(map[string]int)
		if lo >= hi {
			continue
		}

		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if (i-lo)%e.checkInterval == 0 && gctx.Err() != nil {
					return gctx.Err()
				}
				c, err := e.Classify(ds.Records[i])
				if err != nil {
					faults[w] = append(faults[w], Fault{Row: i, Err: err})
				}
				counts[w][c.DataQuality]++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Warn("classification cancelled", "error", err)
		return Report{}, fmt.Errorf("classify: %w", err)
	}

	report := Report{
		Records:  n,
		Counts:   make(map[string]int, len(categories)),
		Duration: time.Since(start),
	}
	for w := range workers {
		for cat, c := range counts[w] {
			report.Counts[cat] += c
		}
		report.Faults = append(report.Faults, faults[w]...)
	}

	for _, f := range report.Faults {
		logger.Error("record evaluation failed", "row", f.Row, "error", f.Err)
	}
	logger.Info("classification complete",
		"faults", len(report.Faults),
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}
