package process

import (
	"slices"
	"strings"
	"time"

	"github.com/JonMunkholm/swamp/internal/dataset"
	"github.com/JonMunkholm/swamp/internal/quality"
)

// StationColumns is the header of the stations dataset before Region is added.
var StationColumns = []string{
	colStationCode,
	colStationName,
	quality.ColTargetLatitude,
	quality.ColTargetLongitude,
	"LastSampleDate",
}

type stationCandidate struct {
	rec    *dataset.Record
	sample time.Time
}

// BuildStations lists every station that has at least one publishable
// record in sources, with the coordinates and name of its most recent
// sample. Stations are ordered by most recent sample first.
func BuildStations(sources ...*dataset.Dataset) *dataset.Dataset {
	var candidates []stationCandidate
	for _, src := range sources {
		for _, rec := range src.Records {
			if !slices.Contains(DefaultAllowedQuality, rec.Get(colDataQuality)) {
				continue
			}
			if rec.Get(colStationCode) == "FIELDQA_SWAMP" {
				continue
			}
			if _, ok := number(rec, quality.ColTargetLatitude); !ok {
				continue
			}
			if _, ok := number(rec, quality.ColTargetLongitude); !ok {
				continue
			}
			t, _ := quality.ParseSampleDate(rec.Get(colSampleDate))
			candidates = append(candidates, stationCandidate{rec: rec, sample: t})
		}
	}

	slices.SortStableFunc(candidates, func(a, b stationCandidate) int {
		return b.sample.Compare(a.sample)
	})

	out := dataset.New(slices.Clone(StationColumns))
	seen := make(map[string]bool)
	for _, c := range candidates {
		code := c.rec.Get(colStationCode)
		if seen[code] {
			continue
		}
		seen[code] = true

		last := ""
		if !c.sample.IsZero() {
			last = c.sample.Format(PortalDateLayout)
		}
		out.Append(dataset.RecordOf(map[string]string{
			colStationCode:             code,
			colStationName:             strings.TrimSpace(c.rec.Get(colStationName)),
			quality.ColTargetLatitude:  c.rec.Get(quality.ColTargetLatitude),
			quality.ColTargetLongitude: c.rec.Get(quality.ColTargetLongitude),
			"LastSampleDate":           last,
		}))
	}
	return out
}
