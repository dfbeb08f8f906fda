// Package datamart extracts monitoring records from the data-mart views.
//
// Each data type names a view and one or more filtered SELECTs. Results are
// read generically: every column becomes a string cell and NULL becomes a
// missing cell, so the same code serves all views regardless of schema.
package datamart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/swamp/internal/dataset"
	"github.com/JonMunkholm/swamp/internal/logging"
	"github.com/JonMunkholm/swamp/internal/process"
)

// ErrNoTable is returned for data types that have no data-mart view.
var ErrNoTable = errors.New("data type has no data-mart table")

// Querier is the subset of *pgxpool.Pool used by Client.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Client runs data-mart queries.
type Client struct {
	db Querier
}

// New wraps an existing pool or connection.
func New(db Querier) *Client {
	return &Client{db: db}
}

// Options configures Connect.
type Options struct {
	URL              string
	MaxConns         int32
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, opts Options) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse data mart url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}
	if opts.StatementTimeout > 0 {
		cfg.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(opts.StatementTimeout.Milliseconds())
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to data mart: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping data mart: %w", err)
	}
	return pool, nil
}

// BuildQuery renders the SELECT for one query of a data type.
func BuildQuery(table string, q process.Query) string {
	sql := "SELECT * FROM " + pgx.Identifier{table}.Sanitize()
	if strings.TrimSpace(q.Where) != "" {
		sql += " WHERE " + q.Where
	}
	return sql
}

// Download runs every query of dt and concatenates the rows. StationName is
// trimmed. The header is the union of the queries' columns in first-seen
// order.
func (c *Client) Download(ctx context.Context, dt process.DataType) (*dataset.Dataset, error) {
	if dt.Table == "" || dt.Derived {
		return nil, fmt.Errorf("%w: %s", ErrNoTable, dt.Key)
	}

	queries := dt.Queries
	if len(queries) == 0 {
		queries = []process.Query{{Name: "all"}}
	}

	logger := logging.WithFields(ctx, "data_type", dt.Key, "table", dt.Table)
	start := time.Now()

	var out *dataset.Dataset
	for _, q := range queries {
		ds, err := c.Select(ctx, BuildQuery(dt.Table, q), q.Args...)
		if err != nil {
			return nil, fmt.Errorf("download %s (%s): %w", dt.Key, q.Name, err)
		}
		logger.Info("data mart query complete", "query", q.Name, "rows", ds.Len())
		out = concat(out, ds)
	}

	for _, rec := range out.Records {
		if v, ok := rec.Lookup("StationName"); ok {
			rec.Set("StationName", strings.TrimSpace(v))
		}
	}

	logger.Info("download complete",
		"rows", out.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// StationDatum fetches StationCode and Datum from the stations view.
func (c *Client) StationDatum(ctx context.Context, table string) (map[string]string, error) {
	sql := `SELECT "StationCode", "Datum" FROM ` + pgx.Identifier{table}.Sanitize()
	ds, err := c.Select(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("station datum: %w", err)
	}
	return process.StationDatums(ds), nil
}

// Select runs sql and reads every row into a dataset.
func (c *Client) Select(ctx context.Context, sql string, args ...any) (*dataset.Dataset, error) {
	rows, err := c.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) (*dataset.Dataset, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	ds := dataset.New(cols)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", ds.Len()+1, err)
		}
		rec := dataset.NewRecord()
		for i, col := range cols {
			if i >= len(values) {
				rec.SetMissing(col)
				continue
			}
			if s, ok := formatCell(values[i]); ok {
				rec.Set(col, s)
			} else {
				rec.SetMissing(col)
			}
		}
		ds.Append(rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ds, nil
}

func concat(dst, src *dataset.Dataset) *dataset.Dataset {
	if dst == nil {
		return src
	}
	for _, c := range src.Columns {
		dst.AddColumn(c)
	}
	dst.Append(src.Records...)
	return dst
}
