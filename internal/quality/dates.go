package quality

import (
	"strings"
	"time"
)

// sampleDateLayouts are the SampleDate spellings seen in data-mart exports
// and in files written back by the pipeline.
var sampleDateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05Z07:00",
	"Jan _2 2006 3:04PM",
	"Jan _2 2006  3:04PM",
	"1/2/2006",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
}

// ParseSampleDate parses a SampleDate cell using the known layouts.
func ParseSampleDate(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range sampleDateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// sampleYear returns the year of a SampleDate cell, or false when the date
// cannot be read.
func sampleYear(v string) (int, bool) {
	t, ok := ParseSampleDate(v)
	if !ok {
		return 0, false
	}
	return t.Year(), true
}
