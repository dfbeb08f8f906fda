// Package pipeline runs the per-data-type stages that take records from the
// data mart to the open data portal.
//
// Each stage reads the previous stage's file and writes its own, so stages
// can be re-run independently:
//
//	download  data mart          -> raw/ceden_swamp_<key>.csv
//	quality   raw file           -> quality/swamp_<key>_data_quality.csv
//	process   quality file       -> export/<export name>.csv
//	upload    export file        -> portal resource
//
// The stations data type is derived: its quality stage builds the station
// list from the other data types' quality files.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/swamp/internal/datamart"
	"github.com/JonMunkholm/swamp/internal/dataset"
	"github.com/JonMunkholm/swamp/internal/logging"
	"github.com/JonMunkholm/swamp/internal/metrics"
	"github.com/JonMunkholm/swamp/internal/portal"
	"github.com/JonMunkholm/swamp/internal/process"
	"github.com/JonMunkholm/swamp/internal/quality"
	"github.com/JonMunkholm/swamp/internal/region"
)

// Stage names used in logs and metrics.
const (
	StageDownload = "download"
	StageQuality  = "quality"
	StageProcess  = "process"
	StageUpload   = "upload"
)

// Stage directories under Config.DataDir.
const (
	RawDir     = "raw"
	QualityDir = "quality"
	ExportDir  = "export"
)

var (
	// ErrNoDataMart is returned by Download when no data-mart client is set.
	ErrNoDataMart = errors.New("data mart not configured")
	// ErrRunNotFound is returned for an unknown run id.
	ErrRunNotFound = errors.New("run not found")
)

// Config holds the file locations and switches of a Runner.
type Config struct {
	DataDir string

	// StationsTable is the data-mart view holding station datums.
	StationsTable string
	// DatumFile is a StationCode,Datum CSV used when no data mart is set.
	DatumFile string

	AnalytesFile   string
	RegionsFile    string
	ReferenceFile  string
	BoundariesFile string
	RegionProperty string

	// FilterQuality drops records outside AllowedQuality before processing.
	FilterQuality  bool
	AllowedQuality []string

	// SkipUpload stops Run after the process stage.
	SkipUpload bool
	RunTimeout time.Duration
}

// Deps are the collaborators of a Runner. DataMart and Portal may be nil.
type Deps struct {
	DataMart *datamart.Client
	Portal   *portal.Client
	Engine   *quality.Engine
	Limiter  *RunLimiter
	Metrics  *metrics.Metrics
}

// Runner executes pipeline stages.
type Runner struct {
	cfg      Config
	datamart *datamart.Client
	portal   *portal.Client
	engine   *quality.Engine
	limiter  *RunLimiter
	metrics  *metrics.Metrics

	mu   sync.RWMutex
	runs map[string]*RunRecord
	wg   sync.WaitGroup
}

// NewRunner creates a Runner. A nil Engine uses the embedded code tables and
// a nil Limiter uses NewRunLimiter defaults.
func NewRunner(cfg Config, deps Deps) *Runner {
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	r := &Runner{
		cfg:      cfg,
		datamart: deps.DataMart,
		portal:   deps.Portal,
		engine:   deps.Engine,
		limiter:  deps.Limiter,
		metrics:  deps.Metrics,
		runs:     make(map[string]*RunRecord),
	}
	if r.engine == nil {
		r.engine = quality.NewEngine(quality.MustDefaultCodeTables(), quality.Options{})
	}
	if r.limiter == nil {
		r.limiter = NewRunLimiter(0, 0)
	}
	return r
}

// Limiter returns the run limiter.
func (r *Runner) Limiter() *RunLimiter {
	return r.limiter
}

// Path returns the file a stage writes for dt.
func (r *Runner) Path(stage string, dt process.DataType) string {
	switch stage {
	case StageDownload:
		return filepath.Join(r.cfg.DataDir, RawDir, dt.DataMartName()+".csv")
	case StageQuality:
		return filepath.Join(r.cfg.DataDir, QualityDir, dt.QualityName()+".csv")
	default:
		return filepath.Join(r.cfg.DataDir, ExportDir, dt.ExportName+".csv")
	}
}

func (r *Runner) observe(ctx context.Context, dt process.DataType, stage string, start time.Time) {
	d := time.Since(start)
	r.metrics.ObserveStage(dt.Key, stage, d)
	logging.WithFields(ctx, "data_type", dt.Key, "stage", stage).
		Info("stage complete", "duration_ms", d.Milliseconds())
}

// Download extracts dt from the data mart into the raw directory.
func (r *Runner) Download(ctx context.Context, dt process.DataType) (string, error) {
	if r.datamart == nil {
		return "", ErrNoDataMart
	}
	start := time.Now()

	ds, err := r.datamart.Download(ctx, dt)
	if err != nil {
		return "", err
	}
	path, err := dataset.WriteFile(ds, filepath.Join(r.cfg.DataDir, RawDir), dt.DataMartName())
	if err != nil {
		return "", err
	}
	r.observe(ctx, dt, StageDownload, start)
	return path, nil
}

// Quality classifies the raw records of dt and writes the assessed file.
// Data types without assessment are marked "Not assessed". For the derived
// stations type the station list is built instead.
func (r *Runner) Quality(ctx context.Context, dt process.DataType) (quality.Report, error) {
	start := time.Now()
	if dt.Derived {
		n, err := r.buildStations(ctx, dt)
		if err != nil {
			return quality.Report{}, err
		}
		r.observe(ctx, dt, StageQuality, start)
		return quality.Report{Records: n, Duration: time.Since(start)}, nil
	}

	ds, err := dataset.ReadFile(r.Path(StageDownload, dt), dt.ReadOptions())
	if err != nil {
		return quality.Report{}, err
	}

	if dt.JoinDatum {
		datums, err := r.stationDatums(ctx)
		if err != nil {
			return quality.Report{}, err
		}
		process.JoinDatum(ds, datums)
	}

	var report quality.Report
	if dt.Assess {
		report, err = r.engine.Process(ctx, ds)
		if err != nil {
			return report, err
		}
		r.metrics.ObserveClassification(dt.Key, report.Counts, len(report.Faults))
	} else {
		process.MarkNotAssessed(ds)
		report = quality.Report{
			Records: ds.Len(),
			Counts:  map[string]int{process.NotAssessed: ds.Len()},
		}
		r.metrics.ObserveClassification(dt.Key, report.Counts, 0)
	}

	if _, err := dataset.WriteFile(ds, filepath.Join(r.cfg.DataDir, QualityDir), dt.QualityName()); err != nil {
		return report, err
	}
	report.Duration = time.Since(start)
	r.observe(ctx, dt, StageQuality, start)
	return report, nil
}

// stationDatums reads station datums from the data mart, else DatumFile.
// With neither configured every record gets Datum "NR".
func (r *Runner) stationDatums(ctx context.Context) (map[string]string, error) {
	if r.datamart != nil && r.cfg.StationsTable != "" {
		return r.datamart.StationDatum(ctx, r.cfg.StationsTable)
	}
	if r.cfg.DatumFile != "" {
		ds, err := dataset.ReadFile(r.cfg.DatumFile, dataset.ReadOptions{KeepNullColumns: process.CodeColumns})
		if err != nil {
			return nil, fmt.Errorf("station datum: %w", err)
		}
		return process.StationDatums(ds), nil
	}
	logging.FromContext(ctx).Warn("no station datum source configured; Datum set to NR")
	return map[string]string{}, nil
}

func (r *Runner) buildStations(ctx context.Context, dt process.DataType) (int, error) {
	logger := logging.WithFields(ctx, "data_type", dt.Key)

	var sources []*dataset.Dataset
	for _, src := range process.All() {
		if src.Derived {
			continue
		}
		ds, err := dataset.ReadFile(r.Path(StageQuality, src), src.ReadOptions())
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("quality file missing; stations built without it", "source", src.Key)
			continue
		}
		if err != nil {
			return 0, err
		}
		sources = append(sources, ds)
	}

	st := process.BuildStations(sources...)
	if r.cfg.BoundariesFile != "" {
		f, err := os.Open(r.cfg.BoundariesFile)
		if err != nil {
			return 0, fmt.Errorf("open boundaries: %w", err)
		}
		assigner, err := region.LoadBoundaries(f, r.cfg.RegionProperty)
		f.Close()
		if err != nil {
			return 0, err
		}
		n := assigner.AssignDataset(st)
		logger.Info("regions assigned", "stations", st.Len(), "assigned", n)
	}

	if _, err := dataset.WriteFile(st, filepath.Join(r.cfg.DataDir, QualityDir), dt.QualityName()); err != nil {
		return 0, err
	}
	return st.Len(), nil
}

// Process applies dt's drops and transform to the assessed file and writes
// the export file.
func (r *Runner) Process(ctx context.Context, dt process.DataType) (process.Stats, error) {
	start := time.Now()

	ds, err := dataset.ReadFile(r.Path(StageQuality, dt), dt.ReadOptions())
	if err != nil {
		return process.Stats{}, err
	}
	lk, err := process.LoadLookups(r.cfg.AnalytesFile, r.cfg.RegionsFile, r.cfg.ReferenceFile)
	if err != nil {
		return process.Stats{}, err
	}

	input := ds.Len()
	filtered := 0
	if r.cfg.FilterQuality && ds.HasColumn(quality.ColDataQuality) {
		filtered = process.FilterQuality(ds, r.cfg.AllowedQuality)
	}

	stats, err := process.Apply(dt, ds, lk)
	if err != nil {
		return stats, err
	}
	stats.Input = input
	if filtered > 0 {
		stats.Dropped["DataQuality not allowed"] = filtered
	}

	if _, err := dataset.WriteFile(ds, filepath.Join(r.cfg.DataDir, ExportDir), dt.ExportName); err != nil {
		return stats, err
	}

	logging.WithFields(ctx, "data_type", dt.Key).Info("records processed",
		"input", stats.Input,
		"output", stats.Output,
		"dropped", stats.Dropped,
	)
	r.observe(ctx, dt, StageProcess, start)
	return stats, nil
}

// Upload sends dt's export file to its portal resource.
func (r *Runner) Upload(ctx context.Context, dt process.DataType) (*portal.UploadResult, error) {
	if r.portal == nil {
		return nil, portal.ErrNotConfigured
	}
	start := time.Now()
	res, err := r.portal.UploadFile(ctx, dt.ResourceID, r.Path(StageProcess, dt))
	if err != nil {
		return nil, err
	}
	r.observe(ctx, dt, StageUpload, start)
	return res, nil
}

// RunStatus is the state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunRecord describes one run of every stage for a data type.
type RunRecord struct {
	ID         string            `json:"id"`
	DataType   string            `json:"data_type"`
	Status     RunStatus         `json:"status"`
	Started    time.Time         `json:"started"`
	Finished   time.Time         `json:"finished,omitzero"`
	Records    int               `json:"records"`
	Categories map[string]int    `json:"categories,omitempty"`
	Faults     int               `json:"faults"`
	Exported   int               `json:"exported"`
	Dropped    map[string]int    `json:"dropped,omitempty"`
	Uploaded   bool              `json:"uploaded"`
	Error      *UserMessage      `json:"error,omitempty"`
	Stages     map[string]string `json:"stages,omitempty"`
}

func (r *Runner) newRun(key string) *RunRecord {
	rec := &RunRecord{
		ID:       uuid.NewString(),
		DataType: key,
		Status:   RunRunning,
		Started:  time.Now().UTC(),
		Stages:   map[string]string{},
	}
	r.mu.Lock()
	r.runs[rec.ID] = rec
	r.mu.Unlock()
	return rec
}

// Run executes every stage for key, waiting for a limiter slot.
func (r *Runner) Run(ctx context.Context, key string) (*RunRecord, error) {
	dt, err := process.Lookup(key)
	if err != nil {
		return nil, err
	}
	if err := r.limiter.Acquire(ctx, key); err != nil {
		return nil, err
	}
	defer r.limiter.Release(key)

	rec := r.newRun(key)
	err = r.execute(ctx, dt, rec)
	return r.snapshot(rec), err
}

// Start launches a run in the background and returns its record. It fails
// immediately when key is already running or no slot is free.
func (r *Runner) Start(ctx context.Context, key string) (*RunRecord, error) {
	dt, err := process.Lookup(key)
	if err != nil {
		return nil, err
	}
	if r.limiter.Running(key) {
		return nil, ErrRunInProgress
	}
	if !r.limiter.TryAcquire(key) {
		return nil, ErrTooManyRuns
	}

	rec := r.newRun(key)
	ctx = context.WithoutCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.limiter.Release(key)
		_ = r.execute(ctx, dt, rec)
	}()
	return r.snapshot(rec), nil
}

// Wait blocks until every run started with Start has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) execute(ctx context.Context, dt process.DataType, rec *RunRecord) (err error) {
	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}
	ctx = logging.WithRunID(ctx, rec.ID)
	logger := logging.WithFields(ctx, "data_type", dt.Key)
	logger.Info("run started")

	defer func() {
		r.metrics.RunFinished(dt.Key, err)
		r.mu.Lock()
		rec.Finished = time.Now().UTC()
		if err != nil {
			msg := MapError(err)
			rec.Status = RunFailed
			rec.Error = &msg
		} else {
			rec.Status = RunSucceeded
		}
		r.mu.Unlock()
		if err != nil {
			logger.Error("run failed", "error", err, "code", MapError(err).Code)
			return
		}
		logger.Info("run complete", "duration_ms", rec.Finished.Sub(rec.Started).Milliseconds())
	}()

	mark := func(stage, state string) {
		r.mu.Lock()
		rec.Stages[stage] = state
		r.mu.Unlock()
	}

	if !dt.Derived {
		switch _, err := r.Download(ctx, dt); {
		case errors.Is(err, ErrNoDataMart):
			logger.Warn("data mart not configured; using existing raw file")
			mark(StageDownload, "skipped")
		case err != nil:
			mark(StageDownload, "failed")
			return err
		default:
			mark(StageDownload, "done")
		}
	}

	report, err := r.Quality(ctx, dt)
	if err != nil {
		mark(StageQuality, "failed")
		return err
	}
	mark(StageQuality, "done")
	r.mu.Lock()
	rec.Records = report.Records
	rec.Categories = report.Counts
	rec.Faults = len(report.Faults)
	r.mu.Unlock()

	stats, err := r.Process(ctx, dt)
	if err != nil {
		mark(StageProcess, "failed")
		return err
	}
	mark(StageProcess, "done")
	r.mu.Lock()
	rec.Exported = stats.Output
	rec.Dropped = stats.Dropped
	r.mu.Unlock()

	if r.cfg.SkipUpload {
		mark(StageUpload, "skipped")
		return nil
	}
	if _, err := r.Upload(ctx, dt); err != nil {
		mark(StageUpload, "failed")
		return err
	}
	mark(StageUpload, "done")
	r.mu.Lock()
	rec.Uploaded = true
	r.mu.Unlock()
	return nil
}

func (r *Runner) snapshot(rec *RunRecord) *RunRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := *rec
	cp.Stages = make(map[string]string, len(rec.Stages))
	for k, v := range rec.Stages {
		cp.Stages[k] = v
	}
	return &cp
}

// GetRun returns a copy of the run with id.
func (r *Runner) GetRun(id string) (*RunRecord, bool) {
	r.mu.RLock()
	rec, ok := r.runs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return r.snapshot(rec), true
}

// Runs returns copies of every run, most recent first.
func (r *Runner) Runs() []*RunRecord {
	r.mu.RLock()
	recs := make([]*RunRecord, 0, len(r.runs))
	for _, rec := range r.runs {
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	out := make([]*RunRecord, len(recs))
	for i, rec := range recs {
		out[i] = r.snapshot(rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.After(out[j].Started) })
	return out
}
