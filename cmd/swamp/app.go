package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/swamp/internal/config"
	"github.com/JonMunkholm/swamp/internal/datamart"
	"github.com/JonMunkholm/swamp/internal/metrics"
	"github.com/JonMunkholm/swamp/internal/pipeline"
	"github.com/JonMunkholm/swamp/internal/portal"
	"github.com/JonMunkholm/swamp/internal/quality"
)

// app holds the wired collaborators shared by every command.
type app struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	engine  *quality.Engine
	runner  *pipeline.Runner
	pool    *pgxpool.Pool
}

// newApp wires the pipeline from cfg. The data mart and portal are only
// connected when their URLs are set.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}

	tables, err := loadCodeTables(cfg.Pipeline.CodeTables)
	if err != nil {
		return nil, err
	}
	a.engine = quality.NewEngine(tables, quality.Options{Workers: cfg.Pipeline.Workers})
	slog.Info("code tables loaded", "version", tables.Version(), "columns", len(tables.Columns()))

	var dm *datamart.Client
	if cfg.DataMart.URL != "" {
		a.pool, err = datamart.Connect(ctx, datamart.Options{
			URL:              cfg.DataMart.URL,
			MaxConns:         int32(cfg.DataMart.MaxConns),
			ConnectTimeout:   cfg.DataMart.ConnectTimeout,
			StatementTimeout: cfg.DataMart.StatementTimeout,
		})
		if err != nil {
			return nil, err
		}
		dm = datamart.New(a.pool)
		slog.Info("connected to data mart", "name", databaseName(cfg.DataMart.URL))
	}

	var pc *portal.Client
	if cfg.Portal.URL != "" {
		pc, err = portal.New(portal.Options{
			BaseURL:    cfg.Portal.URL,
			APIKey:     cfg.Portal.APIKey,
			ChunkSize:  cfg.Portal.ChunkSize,
			HTTPClient: &http.Client{Timeout: cfg.Portal.Timeout},
			Metrics:    a.metrics,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.runner = pipeline.NewRunner(pipeline.Config{
		DataDir:        cfg.Pipeline.DataDir,
		StationsTable:  cfg.DataMart.StationsTable,
		DatumFile:      cfg.Pipeline.DatumFile,
		AnalytesFile:   cfg.Pipeline.AnalytesFile,
		RegionsFile:    cfg.Pipeline.RegionsFile,
		ReferenceFile:  cfg.Pipeline.ReferenceFile,
		BoundariesFile: cfg.Pipeline.BoundariesFile,
		RegionProperty: cfg.Pipeline.RegionProperty,
		FilterQuality:  cfg.Pipeline.FilterQuality,
		AllowedQuality: cfg.Pipeline.AllowedQuality,
		SkipUpload:     cfg.Pipeline.SkipUpload,
		RunTimeout:     cfg.Pipeline.RunTimeout,
	}, pipeline.Deps{
		DataMart: dm,
		Portal:   pc,
		Engine:   a.engine,
		Limiter:  pipeline.NewRunLimiter(cfg.Pipeline.MaxConcurrentRuns, cfg.Pipeline.MaxWaitTime),
		Metrics:  a.metrics,
	})
	return a, nil
}

// Close releases the data-mart pool.
func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// loadCodeTables reads path, or the embedded tables when path is empty.
func loadCodeTables(path string) (*quality.CodeTables, error) {
	if path == "" {
		return quality.DefaultCodeTables()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open code tables: %w", err)
	}
	defer f.Close()
	return quality.LoadCodeTables(f)
}

func databaseName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}
