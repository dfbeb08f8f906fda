// Package process holds the per-data-type definitions of the pipeline and the
// transformations applied between the quality stage and the portal upload.
//
// Each data type (water quality, habitat, toxicity, tissue, stations) is a
// DataType registered at init time. A DataType says where its records come
// from in the data mart, whether the quality engine assesses it, which
// records are dropped before publishing, and how the remaining records are
// reshaped for the portal.
package process

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/swamp/internal/dataset"
)

// ErrUnknownDataType is returned when a data type key is not registered.
var ErrUnknownDataType = errors.New("unknown data type")

// Query is one SELECT against the data type's data-mart view. Where uses
// positional parameters ($1, $2, ...) bound to Args.
type Query struct {
	Name  string
	Where string
	Args  []any
}

// DataType describes one dataset published to the portal.
type DataType struct {
	Key   string
	Label string

	// Table is the data-mart view queried by Download.
	Table string
	// Queries are run in order and their rows concatenated. Empty means
	// the whole view.
	Queries []Query

	// DateColumns are parsed and rewritten in portal format by Transform.
	DateColumns []string

	// Assess runs the quality engine. When false every record is marked
	// "Not assessed".
	Assess bool
	// JoinDatum adds the station Datum before assessment.
	JoinDatum bool
	// Derived data types are built from the other data types' assessed
	// files instead of being downloaded.
	Derived bool

	// ResourceID is the portal resource replaced on upload.
	ResourceID string
	// ExportName is the base name of the processed CSV file.
	ExportName string

	// Drops are applied in order before Transform.
	Drops []DropRule
	// Transform reshapes the remaining records for the portal. nil means
	// the records are published as they are.
	Transform func(ds *dataset.Dataset, lk *Lookups) error
}

// DataMartName is the base name of the raw download file.
func (dt DataType) DataMartName() string {
	return "ceden_swamp_" + dt.Key
}

// QualityName is the base name of the assessed file.
func (dt DataType) QualityName() string {
	return "swamp_" + dt.Key + "_data_quality"
}

var (
	registry   = make(map[string]DataType)
	registryMu sync.RWMutex
)

// Register adds a data type to the registry.
// Panics if a data type with the same key is already registered.
func Register(dt DataType) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[dt.Key]; exists {
		panic(fmt.Sprintf("data type already registered: %s", dt.Key))
	}
	if dt.ExportName == "" {
		dt.ExportName = "swamp_" + dt.Key + "_data"
	}
	registry[dt.Key] = dt
}

// Get returns a data type by key.
func Get(key string) (DataType, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	dt, ok := registry[key]
	return dt, ok
}

// Lookup is Get with an error wrapping ErrUnknownDataType.
func Lookup(key string) (DataType, error) {
	dt, ok := Get(key)
	if !ok {
		return DataType{}, fmt.Errorf("%w: %q", ErrUnknownDataType, key)
	}
	return dt, nil
}

// All returns every registered data type sorted by key.
func All() []DataType {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DataType, 0, len(registry))
	for _, dt := range registry {
		result = append(result, dt)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	return result
}

// Keys returns the registered data type keys, sorted.
func Keys() []string {
	all := All()
	keys := make([]string, len(all))
	for i, dt := range all {
		keys[i] = dt.Key
	}
	return keys
}
