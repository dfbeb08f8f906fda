package datamart

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/swamp/internal/process"
)

// fakeRows serves fixed rows through the pgx.Rows interface.
type fakeRows struct {
	cols   []string
	rows   [][]any
	pos    int
	err    error
	closed bool
}

func (r *fakeRows) Close()                        { r.closed = true }
func (r *fakeRows) Err() error                    { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.cols))
	for i, c := range r.cols {
		out[i] = pgconn.FieldDescription{Name: c}
	}
	return out
}
func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}
func (r *fakeRows) Scan(...any) error      { return errors.New("not supported") }
func (r *fakeRows) Values() ([]any, error) { return r.rows[r.pos-1], nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

type call struct {
	sql  string
	args []any
}

type fakeQuerier struct {
	results []*fakeRows
	calls   []call
	err     error
}

func (q *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.calls = append(q.calls, call{sql: sql, args: args})
	if q.err != nil {
		return nil, q.err
	}
	r := q.results[0]
	q.results = q.results[1:]
	return r, nil
}

func TestBuildQuery(t *testing.T) {
	got := BuildQuery("WQDMart_MV", process.Query{Where: `"Program" = $1`})
	assert.Equal(t, `SELECT * FROM "WQDMart_MV" WHERE "Program" = $1`, got)

	assert.Equal(t, `SELECT * FROM "a""b"`, BuildQuery(`a"b`, process.Query{}))
}

func TestDownload_ConcatenatesQueries(t *testing.T) {
	sampled := time.Date(2012, 4, 1, 9, 30, 0, 0, time.UTC)
	first := &fakeRows{
		cols: []string{"StationCode", "StationName", "Result", "SampleDate"},
		rows: [][]any{
			{"204SAC001", " Sacramento River ", float64(1.5), sampled},
			{"204SAC002", "Feather", nil, sampled},
		},
	}
	second := &fakeRows{
		cols: []string{"StationCode", "StationName", "Result", "ParentProject"},
		rows: [][]any{
			{"204SAC003", "Spot site", int32(3), "SWAMP Stream Pollution Trends"},
		},
	}
	q := &fakeQuerier{results: []*fakeRows{first, second}}

	dt, err := process.Lookup(process.WaterQuality)
	require.NoError(t, err)

	ds, err := New(q).Download(context.Background(), dt)
	require.NoError(t, err)

	require.Len(t, q.calls, 2)
	assert.Contains(t, q.calls[0].sql, `FROM "WQDMart_MV" WHERE`)
	assert.Equal(t, process.WaterQualityAnalytes, q.calls[0].args[2])
	assert.True(t, first.closed)
	assert.True(t, second.closed)

	assert.Equal(t, []string{"StationCode", "StationName", "Result", "SampleDate", "ParentProject"}, ds.Columns)
	require.Equal(t, 3, ds.Len())
	assert.Equal(t, "Sacramento River", ds.Records[0].Get("StationName"))
	assert.Equal(t, "1.5", ds.Records[0].Get("Result"))
	assert.Equal(t, "2012-04-01 09:30:00", ds.Records[0].Get("SampleDate"))
	assert.True(t, ds.Records[1].Missing("Result"))
	assert.Equal(t, "3", ds.Records[2].Get("Result"))
}

func TestDownload_Errors(t *testing.T) {
	st, _ := process.Get(process.Stations)
	_, err := New(&fakeQuerier{}).Download(context.Background(), st)
	assert.ErrorIs(t, err, ErrNoTable)

	boom := errors.New("connection refused")
	wq, _ := process.Get(process.WaterQuality)
	_, err = New(&fakeQuerier{err: boom}).Download(context.Background(), wq)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "water_quality")
}

func TestStationDatum(t *testing.T) {
	q := &fakeQuerier{results: []*fakeRows{{
		cols: []string{"StationCode", "Datum"},
		rows: [][]any{{"A", "NAD83"}, {"B", nil}},
	}}}

	got, err := New(q).StationDatum(context.Background(), "DM_WQX_Stations_MV")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "NAD83"}, got)
	assert.Equal(t, `SELECT "StationCode", "Datum" FROM "DM_WQX_Stations_MV"`, q.calls[0].sql)
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
		ok   bool
	}{
		{"null", nil, "", false},
		{"string", "abc", "abc", true},
		{"float", 0.1, "0.1", true},
		{"int", int64(-88), "-88", true},
		{"bool", true, "True", true},
		{"time", time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC), "1950-01-01 00:00:00", true},
		{"numeric", pgtype.Numeric{Int: big.NewInt(12500), Exp: -3, Valid: true}, "12.5", true},
		{"numeric integer", pgtype.Numeric{Int: big.NewInt(12), Exp: 2, Valid: true}, "1200", true},
		{"numeric null", pgtype.Numeric{}, "", false},
		{"numeric nan", pgtype.Numeric{NaN: true, Valid: true}, "NaN", true},
		{"text null", pgtype.Text{}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := formatCell(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
