// Package dataset holds the in-memory tabular model shared by every pipeline
// stage, plus CSV reading and writing.
//
// A Dataset is an ordered header plus a slice of Records. Records are keyed
// by column name so that stages working on different data types (water
// quality, habitat, toxicity, tissue) can ask whether a column exists
// instead of assuming a fixed schema.
package dataset

import "sort"

// Record is one row of a dataset.
//
// A column can be in one of three states:
//   - absent: the column is not part of this record's schema (Has is false)
//   - missing: the column exists but the source cell was null
//   - present: the column holds a string value (possibly "")
type Record struct {
	fields  map[string]string
	missing map[string]bool
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{
		fields:  make(map[string]string),
		missing: make(map[string]bool),
	}
}

// RecordOf builds a record from a column→value map. Convenient in tests.
func RecordOf(values map[string]string) *Record {
	r := NewRecord()
	for k, v := range values {
		r.fields[k] = v
	}
	return r
}

// Has reports whether col is part of the record's schema.
func (r *Record) Has(col string) bool {
	_, ok := r.fields[col]
	return ok
}

// Get returns the value of col, or "" when the column is absent or missing.
func (r *Record) Get(col string) string {
	return r.fields[col]
}

// Lookup returns the value of col and whether the column exists.
func (r *Record) Lookup(col string) (string, bool) {
	v, ok := r.fields[col]
	return v, ok
}

// Missing reports whether col exists but holds a null cell.
func (r *Record) Missing(col string) bool {
	return r.missing[col]
}

// Set writes a value, adding the column if needed and clearing any missing marker.
func (r *Record) Set(col, value string) {
	r.fields[col] = value
	delete(r.missing, col)
}

// SetMissing marks col as a null cell.
func (r *Record) SetMissing(col string) {
	r.fields[col] = ""
	r.missing[col] = true
}

// Delete removes col from the record's schema.
func (r *Record) Delete(col string) {
	delete(r.fields, col)
	delete(r.missing, col)
}

// Columns returns the record's column names in sorted order.
func (r *Record) Columns() []string {
	cols := make([]string, 0, len(r.fields))
	for c := range r.fields {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Len returns the number of columns in the record.
func (r *Record) Len() int {
	return len(r.fields)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := &Record{
		fields:  make(map[string]string, len(r.fields)),
		missing: make(map[string]bool, len(r.missing)),
	}
	for k, v := range r.fields {
		c.fields[k] = v
	}
	for k, v := range r.missing {
		c.missing[k] = v
	}
	return c
}
