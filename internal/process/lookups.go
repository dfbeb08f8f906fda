package process

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/swamp/internal/dataset"
)

// Lookups are the reference tables joined onto records during Transform.
// A nil map leaves the joined columns blank.
type Lookups struct {
	// AnalyteGroups maps a data-mart analyte name to its three category levels.
	AnalyteGroups map[string][3]string
	// StationRegions maps StationCode to the regional board number.
	StationRegions map[string]string
	// ReferenceSites maps a lowercased station code to its StationCategory.
	ReferenceSites map[string]string
}

// LoadAnalyteGroups reads the analyte list (CedenAnalyteName,
// AnalyteGroup1, AnalyteGroup2, AnalyteGroup3).
func LoadAnalyteGroups(path string) (map[string][3]string, error) {
	ds, err := dataset.ReadFile(path, dataset.ReadOptions{
		RequireColumns: []string{"CedenAnalyteName", colAnalyteGroup1, colAnalyteGroup2, colAnalyteGroup3},
	})
	if err != nil {
		return nil, fmt.Errorf("load analyte groups: %w", err)
	}

	out := make(map[string][3]string, ds.Len())
	for _, rec := range ds.Records {
		name := rec.Get("CedenAnalyteName")
		if name == "" {
			continue
		}
		if _, dup := out[name]; dup {
			continue
		}
		out[name] = [3]string{rec.Get(colAnalyteGroup1), rec.Get(colAnalyteGroup2), rec.Get(colAnalyteGroup3)}
	}
	return out, nil
}

// LoadStationRegions reads StationCode and Region from a stations file.
func LoadStationRegions(path string) (map[string]string, error) {
	ds, err := dataset.ReadFile(path, dataset.ReadOptions{
		RequireColumns: []string{colStationCode, colRegion},
	})
	if err != nil {
		return nil, fmt.Errorf("load station regions: %w", err)
	}
	return StationRegions(ds), nil
}

// StationRegions indexes a stations dataset by StationCode.
func StationRegions(ds *dataset.Dataset) map[string]string {
	out := make(map[string]string, ds.Len())
	for _, rec := range ds.Records {
		if blank(rec, colRegion) {
			continue
		}
		out[rec.Get(colStationCode)] = normalizeRegion(rec.Get(colRegion))
	}
	return out
}

// LoadReferenceSites reads cedenid and StationCategory.
func LoadReferenceSites(path string) (map[string]string, error) {
	ds, err := dataset.ReadFile(path, dataset.ReadOptions{
		RequireColumns: []string{"cedenid", colStationCategory},
	})
	if err != nil {
		return nil, fmt.Errorf("load reference sites: %w", err)
	}

	out := make(map[string]string, ds.Len())
	for _, rec := range ds.Records {
		id := strings.ToLower(rec.Get("cedenid"))
		if id == "" {
			continue
		}
		out[id] = rec.Get(colStationCategory)
	}
	return out, nil
}

// LoadLookups loads every non-empty path. Empty paths leave the
// corresponding table nil.
func LoadLookups(analytesPath, stationsPath, referencePath string) (*Lookups, error) {
	lk := &Lookups{}
	var err error
	if analytesPath != "" {
		if lk.AnalyteGroups, err = LoadAnalyteGroups(analytesPath); err != nil {
			return nil, err
		}
	}
	if stationsPath != "" {
		if lk.StationRegions, err = LoadStationRegions(stationsPath); err != nil {
			return nil, err
		}
	}
	if referencePath != "" {
		if lk.ReferenceSites, err = LoadReferenceSites(referencePath); err != nil {
			return nil, err
		}
	}
	return lk, nil
}
