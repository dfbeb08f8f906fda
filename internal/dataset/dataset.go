package dataset

// Dataset is an ordered collection of records with a shared output header.
// Columns controls the order used when the dataset is written back to CSV;
// records may carry extra columns that are not written.
type Dataset struct {
	Columns []string
	Records []*Record
}

// New creates an empty dataset with the given header.
func New(columns []string) *Dataset {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Dataset{Columns: cols}
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.Records)
}

// Append adds records to the end of the dataset.
func (d *Dataset) Append(recs ...*Record) {
	d.Records = append(d.Records, recs...)
}

// HasColumn reports whether col is part of the header.
func (d *Dataset) HasColumn(col string) bool {
	for _, c := range d.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// AddColumn appends col to the header if it is not already there.
func (d *Dataset) AddColumn(col string) {
	if !d.HasColumn(col) {
		d.Columns = append(d.Columns, col)
	}
}

// DropColumns removes columns from the header and from every record.
func (d *Dataset) DropColumns(cols ...string) {
	drop := make(map[string]bool, len(cols))
	for _, c := range cols {
		drop[c] = true
	}

	kept := d.Columns[:0]
	for _, c := range d.Columns {
		if !drop[c] {
			kept = append(kept, c)
		}
	}
	d.Columns = kept

	for _, rec := range d.Records {
		for c := range drop {
			rec.Delete(c)
		}
	}
}

// Filter keeps only the records for which keep returns true, preserving
// order. It returns the number of records removed.
func (d *Dataset) Filter(keep func(*Record) bool) int {
	kept := d.Records[:0]
	for _, rec := range d.Records {
		if keep(rec) {
			kept = append(kept, rec)
		}
	}
	removed := len(d.Records) - len(kept)

	// Clear the tail so dropped records can be collected.
	for i := len(kept); i < len(d.Records); i++ {
		d.Records[i] = nil
	}
	d.Records = kept
	return removed
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	c := New(d.Columns)
	c.Records = make([]*Record, len(d.Records))
	for i, rec := range d.Records {
		c.Records[i] = rec.Clone()
	}
	return c
}
