package process

import (
	"fmt"

	"github.com/JonMunkholm/swamp/internal/dataset"
)

// Stats summarizes one Apply call.
type Stats struct {
	Input   int
	Dropped map[string]int
	Output  int
}

// Apply runs the data type's drop rules and then its Transform on ds.
// A nil lk behaves like empty lookups.
func Apply(dt DataType, ds *dataset.Dataset, lk *Lookups) (Stats, error) {
	if lk == nil {
		lk = &Lookups{}
	}

	stats := Stats{Input: ds.Len()}
	stats.Dropped = ApplyDrops(ds, dt.Drops)

	if dt.Transform != nil {
		if err := dt.Transform(ds, lk); err != nil {
			return stats, fmt.Errorf("transform %s: %w", dt.Key, err)
		}
	}
	stats.Output = ds.Len()
	return stats, nil
}

// ReadOptions returns the CSV options for reading this data type's files.
// Code columns keep "NA" and "NR" as literal codes.
func (dt DataType) ReadOptions() dataset.ReadOptions {
	return dataset.ReadOptions{
		KeepNullColumns: CodeColumns,
	}
}

// CodeColumns hold codes that share spelling with null markers.
var CodeColumns = []string{
	"QACode",
	"BatchVerification",
	"ResultQualCode",
	"Datum",
	"ComplianceCode",
}
