package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultNullValues are the cell spellings treated as null when reading
// data-mart exports.
var DefaultNullValues = []string{
	"", "#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN",
	"-NaN", "-nan", "1.#IND", "1.#QNAN", "<NA>", "N/A", "NA",
	"NULL", "NaN", "nan", "null",
}

// ErrEmptyFile is returned when the input has no header row.
var ErrEmptyFile = errors.New("empty file: no header row")

// ReadOptions controls how CSV input is interpreted.
type ReadOptions struct {
	// NullValues lists cell spellings that mark a cell as missing.
	// nil means DefaultNullValues; an empty non-nil slice disables null detection.
	NullValues []string

	// KeepNullColumns lists columns whose null spellings are kept as literal
	// values. Code columns need this: "NA" and "NR" are real codes there.
	KeepNullColumns []string

	// RequireColumns are header names that must be present.
	RequireColumns []string

	// TotalBytes is the input size if known, used for progress logging.
	TotalBytes int64
}

// ReadCSV parses a CSV stream into a dataset.
func ReadCSV(r io.Reader, opts ReadOptions) (*Dataset, error) {
	counter := wrapInput(r, opts.TotalBytes)

	cr := csv.NewReader(counter)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}
	for i, h := range header {
		header[i] = CleanCell(h)
	}

	if err := ValidateHeaders(header, opts.RequireColumns); err != nil {
		return nil, err
	}

	nulls := opts.NullValues
	if nulls == nil {
		nulls = DefaultNullValues
	}
	nullSet := make(map[string]bool, len(nulls))
	for _, n := range nulls {
		nullSet[n] = true
	}
	literal := make([]bool, len(header))
	for i, h := range header {
		for _, k := range opts.KeepNullColumns {
			if h == k {
				literal[i] = true
			}
		}
	}

	ds := New(header)
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("invalid csv at line %d: %w", line, err)
		}
		if blankRow(row) {
			continue
		}

		rec := NewRecord()
		for i, col := range header {
			if i >= len(row) {
				rec.SetMissing(col)
				continue
			}
			cell := row[i]
			if nullSet[cell] && !(literal[i] && cell != "") {
				rec.SetMissing(col)
				continue
			}
			rec.Set(col, cell)
		}
		ds.Append(rec)
	}

	slog.Debug("csv read",
		"rows", ds.Len(),
		"columns", len(header),
		"bytes", counter.BytesRead,
	)
	return ds, nil
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// WriteCSV writes the dataset header and records as UTF-8 with a byte order
// mark, the encoding the open data portal ingests.
func WriteCSV(w io.Writer, ds *Dataset) error {
	tw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(tw)

	if err := cw.Write(ds.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(ds.Columns))
	for i, rec := range ds.Records {
		for j, col := range ds.Columns {
			row[j] = rec.Get(col)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return tw.Close()
}

// ReadFile opens path and reads it with ReadCSV.
func ReadFile(path string, opts ReadOptions) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && opts.TotalBytes == 0 {
		opts.TotalBytes = info.Size()
	}

	ds, err := ReadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return ds, nil
}

// WriteFile writes the dataset to dir/name.csv, creating dir if needed.
// It returns the path written.
func WriteFile(ds *Dataset, dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	path := filepath.Join(dir, name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}

	if err := WriteCSV(f, ds); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}
