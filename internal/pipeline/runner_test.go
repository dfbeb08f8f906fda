package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/swamp/internal/dataset"
	"github.com/JonMunkholm/swamp/internal/logging"
	"github.com/JonMunkholm/swamp/internal/metrics"
	"github.com/JonMunkholm/swamp/internal/portal"
	"github.com/JonMunkholm/swamp/internal/process"
	"github.com/JonMunkholm/swamp/internal/quality"
)

const rawWaterQuality = "StationCode,StationName,MatrixName,Analyte,Result,MDL,ResultQualCode,QACode,BatchVerification,SampleDate,CollectionReplicate,ResultsReplicate,TargetLatitude,TargetLongitude,ParentProject\n" +
	"204SAC001,Sacramento River,samplewater,Copper,1.5,0.1,=,None,VAC,2012-04-01,1,1,38.5,-121.5,SWAMP Stream Pollution Trends\n" +
	"204SAC002,Feather River,samplewater,Copper,2.5,0.1,=,None,VAC,2013-05-01,1,1,38.6,121.6,\n" +
	"LABQA,Lab,samplewater,Copper,1.0,0.1,=,None,VAC,2013-05-01,1,1,,,\n"

const boundaries = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"rb":5},
  "geometry":{"type":"Polygon","coordinates":[[[-125,32],[-115,32],[-115,42],[-125,42],[-125,32]]]}}]}`

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newCKAN(t *testing.T, uploads *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := map[string]any{}
		switch strings.TrimPrefix(r.URL.Path, "/api/action/") {
		case portal.ActionInitiate:
			result["id"] = "upload-1"
		case portal.ActionPatch:
			uploads.Add(1)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "result": result})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRunner(t *testing.T, cfg Config, p *portal.Client) *Runner {
	t.Helper()
	engine := quality.NewEngine(quality.MustDefaultCodeTables(), quality.Options{Workers: 2})
	return NewRunner(cfg, Deps{Portal: p, Engine: engine, Metrics: metrics.New()})
}

func TestRunner_Quality_LogsFaultOnce(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logging.New(&buf, "debug", "json"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	tables := quality.MustDefaultCodeTables()
	rules := append(quality.DefaultRules(tables), quality.Rule{
		Column: quality.ColQACode,
		Eval: func(rec *dataset.Record) []quality.Finding {
			if rec.Get(quality.ColStationCode) == "204SAC002" {
				panic("bad row")
			}
			return nil
		},
	})
	engine := quality.NewEngine(tables, quality.Options{Workers: 1, Rules: rules})
	r := NewRunner(Config{DataDir: t.TempDir()}, Deps{Engine: engine, Metrics: metrics.New()})
	wq, _ := process.Get(process.WaterQuality)
	writeFile(t, r.Path(StageDownload, wq), rawWaterQuality)

	report, err := r.Quality(context.Background(), wq)
	require.NoError(t, err)
	require.Len(t, report.Faults, 1)
	assert.Equal(t, 1, report.Faults[0].Row)

	assert.Equal(t, 1, strings.Count(buf.String(), `"row":1`), buf.String())
}

func TestRunner_Run_WaterQualityThenStations(t *testing.T) {
	dir := t.TempDir()
	var uploads atomic.Int32
	srv := newCKAN(t, &uploads)
	pc, err := portal.New(portal.Options{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	cfg := Config{
		DataDir:        dir,
		DatumFile:      writeFile(t, filepath.Join(dir, "datum.csv"), "StationCode,Datum\n204SAC001,NAD83\n"),
		BoundariesFile: writeFile(t, filepath.Join(dir, "rb.geojson"), boundaries),
		FilterQuality:  true,
	}
	r := newTestRunner(t, cfg, pc)
	wq, _ := process.Get(process.WaterQuality)
	writeFile(t, r.Path(StageDownload, wq), rawWaterQuality)

	ctx := context.Background()
	rec, err := r.Run(ctx, process.WaterQuality)
	require.NoError(t, err)

	assert.Equal(t, RunSucceeded, rec.Status)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 3, rec.Records)
	assert.Equal(t, map[string]int{
		quality.Passed:                 1,
		quality.SpatialAccuracyUnknown: 1,
		quality.MetaData:               1,
	}, rec.Categories)
	assert.Equal(t, 2, rec.Exported)
	assert.Equal(t, 1, rec.Dropped["DataQuality not allowed"])
	assert.True(t, rec.Uploaded)
	assert.Equal(t, "skipped", rec.Stages[StageDownload])
	assert.Equal(t, int32(1), uploads.Load())

	assessed, err := dataset.ReadFile(r.Path(StageQuality, wq), wq.ReadOptions())
	require.NoError(t, err)
	require.Equal(t, 3, assessed.Len())
	assert.Equal(t, "Datum:NR", assessed.Records[1].Get(quality.ColDataQualityIndicator))
	assert.Equal(t, "-121.6", assessed.Records[1].Get(quality.ColTargetLongitude), "positive longitude is negated")

	exported, err := dataset.ReadFile(r.Path(StageProcess, wq), wq.ReadOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, exported.Len())
	assert.Equal(t, "2012-04-01T00:00:00", exported.Records[0].Get("SampleDate"))

	stRec, err := r.Run(ctx, process.Stations)
	require.NoError(t, err)
	assert.Equal(t, RunSucceeded, stRec.Status)
	assert.NotContains(t, stRec.Stages, StageDownload)

	st, _ := process.Get(process.Stations)
	stations, err := dataset.ReadFile(r.Path(StageProcess, st), st.ReadOptions())
	require.NoError(t, err)
	require.Equal(t, 2, stations.Len())
	assert.Equal(t, "204SAC002", stations.Records[0].Get("StationCode"), "most recent sample first")
	for _, s := range stations.Records {
		assert.Equal(t, "5", s.Get("Region"))
	}
	assert.Equal(t, int32(2), uploads.Load())

	assert.Len(t, r.Runs(), 2)
	got, ok := r.GetRun(rec.ID)
	require.True(t, ok)
	assert.Equal(t, process.WaterQuality, got.DataType)
}

func TestRunner_Quality_NotAssessed(t *testing.T) {
	dir := t.TempDir()
	r := newTestRunner(t, Config{DataDir: dir}, nil)
	tox, _ := process.Get(process.Toxicity)
	writeFile(t, r.Path(StageDownload, tox), "StationCode,Mean,QACode\nA,90,NA\nB,85,None\n")

	report, err := r.Quality(context.Background(), tox)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{process.NotAssessed: 2}, report.Counts)

	ds, err := dataset.ReadFile(r.Path(StageQuality, tox), tox.ReadOptions())
	require.NoError(t, err)
	assert.Equal(t, process.NotAssessed, ds.Records[0].Get(quality.ColDataQuality))
	assert.Equal(t, "NA", ds.Records[0].Get(quality.ColQACode), "NA stays a literal code")
}

func TestRunner_Upload_NotConfigured(t *testing.T) {
	r := newTestRunner(t, Config{DataDir: t.TempDir()}, nil)
	wq, _ := process.Get(process.WaterQuality)
	_, err := r.Upload(context.Background(), wq)
	assert.ErrorIs(t, err, portal.ErrNotConfigured)

	_, err = r.Download(context.Background(), wq)
	assert.ErrorIs(t, err, ErrNoDataMart)
}

func TestRunner_StartFailure(t *testing.T) {
	r := newTestRunner(t, Config{DataDir: t.TempDir(), SkipUpload: true}, nil)

	rec, err := r.Start(context.Background(), process.Habitat)
	require.NoError(t, err)
	assert.Equal(t, RunRunning, rec.Status)

	r.Wait()

	got, ok := r.GetRun(rec.ID)
	require.True(t, ok)
	assert.Equal(t, RunFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "CSV004", got.Error.Code)
	assert.Equal(t, "failed", got.Stages[StageQuality])
	assert.False(t, got.Finished.IsZero())
	assert.False(t, r.Limiter().Running(process.Habitat), "slot released")
}

func TestRunner_Start_Rejections(t *testing.T) {
	r := newTestRunner(t, Config{DataDir: t.TempDir()}, nil)
	ctx := context.Background()

	_, err := r.Start(ctx, "fish_counts")
	assert.ErrorIs(t, err, process.ErrUnknownDataType)

	require.NoError(t, r.Limiter().Acquire(ctx, process.Tissue))
	defer r.Limiter().Release(process.Tissue)

	_, err = r.Start(ctx, process.Tissue)
	assert.ErrorIs(t, err, ErrRunInProgress)
}

func TestOrderDataTypes(t *testing.T) {
	keys, err := OrderDataTypes([]string{process.Stations, process.WaterQuality, process.WaterQuality, process.Habitat})
	require.NoError(t, err)
	assert.Equal(t, []string{process.WaterQuality, process.Habitat, process.Stations}, keys)

	all, err := OrderDataTypes(nil)
	require.NoError(t, err)
	assert.Equal(t, process.Stations, all[len(all)-1])

	_, err = OrderDataTypes([]string{"fish_counts"})
	assert.ErrorIs(t, err, process.ErrUnknownDataType)
}

func TestNewScheduler(t *testing.T) {
	r := newTestRunner(t, Config{DataDir: t.TempDir()}, nil)

	_, err := NewScheduler(r, ScheduleConfig{Spec: "every day"})
	assert.Error(t, err)

	s, err := NewScheduler(r, ScheduleConfig{Spec: "0 0 3 * * *", DataTypes: []string{process.Stations, process.Toxicity}})
	require.NoError(t, err)
	assert.Equal(t, []string{process.Toxicity, process.Stations}, s.DataTypes())
}

func TestScheduler_RunOnce(t *testing.T) {
	r := newTestRunner(t, Config{DataDir: t.TempDir(), SkipUpload: true}, nil)
	s, err := NewScheduler(r, ScheduleConfig{Spec: "@daily", DataTypes: []string{process.Stations, process.WaterQuality}})
	require.NoError(t, err)

	failed := s.RunOnce(context.Background())
	assert.Equal(t, 1, failed, "water quality has no raw file; stations builds an empty list")

	runs := r.Runs()
	require.Len(t, runs, 2)
	statuses := map[string]RunStatus{}
	for _, run := range runs {
		statuses[run.DataType] = run.Status
	}
	assert.Equal(t, RunFailed, statuses[process.WaterQuality])
	assert.Equal(t, RunSucceeded, statuses[process.Stations])
}
