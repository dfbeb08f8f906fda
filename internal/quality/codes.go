package quality

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Severity scores, lowest to highest.
const (
	ScoreMetaData = iota
	ScorePassed
	ScoreSomeReview
	ScoreSpatialUnknown
	ScoreExtensiveReview
	ScoreUnknown
	ScoreReject

	maxScore = ScoreReject
)

// DataQuality categories.
const (
	MetaData               = "MetaData"
	Passed                 = "Passed"
	SomeReviewNeeded       = "Some review needed"
	SpatialAccuracyUnknown = "Spatial accuracy unknown"
	ExtensiveReviewNeeded  = "Extensive review needed"
	UnknownDataQuality     = "Unknown data quality"
	RejectRecord           = "Reject record"
)

// Indicators that do not come from a finding.
const (
	SpecialRulesIndicator    = "ResultQualCode Special Rules"
	EvaluationFaultIndicator = "Rule evaluation fault"
)

var categories = [...]string{
	ScoreMetaData:        MetaData,
	ScorePassed:          Passed,
	ScoreSomeReview:      SomeReviewNeeded,
	ScoreSpatialUnknown:  SpatialAccuracyUnknown,
	ScoreExtensiveReview: ExtensiveReviewNeeded,
	ScoreUnknown:         UnknownDataQuality,
	ScoreReject:          RejectRecord,
}

// Category returns the DataQuality category for a score.
// Scores outside [0,6] map to UnknownDataQuality.
func Category(score int) string {
	if score < 0 || score > maxScore {
		return UnknownDataQuality
	}
	return categories[score]
}

// Categories returns all seven DataQuality categories in score order.
func Categories() []string {
	out := make([]string, len(categories))
	copy(out, categories[:])
	return out
}

// CodeTable maps observed codes for one column to a severity score.
type CodeTable struct {
	codes   map[string]int
	numeric map[float64]int // populated only for numeric tables
}

// Lookup returns the score for code. For numeric tables a code that parses
// to the same number as a key also matches ("-88.0" matches "-88").
func (t *CodeTable) Lookup(code string) (int, bool) {
	if t == nil {
		return 0, false
	}
	if s, ok := t.codes[code]; ok {
		return s, true
	}
	if t.numeric == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(code, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	s, ok := t.numeric[f]
	return s, ok
}

// Len returns the number of codes in the table.
func (t *CodeTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.codes)
}

// Codes returns a copy of the code→score mapping.
func (t *CodeTable) Codes() map[string]int {
	out := make(map[string]int, len(t.codes))
	for k, v := range t.codes {
		out[k] = v
	}
	return out
}

// CodeTables is the immutable rule configuration: one CodeTable per governed
// column. Build it once and share it between goroutines.
type CodeTables struct {
	version string
	tables  map[string]*CodeTable
}

// Version returns the version label of the loaded tables.
func (c *CodeTables) Version() string {
	return c.version
}

// Table returns the table for column, or nil.
func (c *CodeTables) Table(column string) *CodeTable {
	return c.tables[column]
}

// Lookup returns the score of code in column's table.
// Unknown columns and unknown codes both report ok=false.
func (c *CodeTables) Lookup(column, code string) (int, bool) {
	return c.tables[column].Lookup(code)
}

// Columns returns the governed columns that have a table, sorted.
func (c *CodeTables) Columns() []string {
	cols := make([]string, 0, len(c.tables))
	for col := range c.tables {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

type tablesFile struct {
	Version string `yaml:"version"`
	Tables  map[string]struct {
		Numeric bool           `yaml:"numeric"`
		Codes   map[string]int `yaml:"codes"`
	} `yaml:"tables"`
}

// LoadCodeTables parses a code-table document. Every score must be in [0,6].
func LoadCodeTables(r io.Reader) (*CodeTables, error) {
	var doc tablesFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode code tables: %w", err)
	}
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("decode code tables: no tables defined")
	}

	ct := &CodeTables{
		version: doc.Version,
		tables:  make(map[string]*CodeTable, len(doc.Tables)),
	}
	for col, def := range doc.Tables {
		t := &CodeTable{codes: make(map[string]int, len(def.Codes))}
		if def.Numeric {
			t.numeric = make(map[float64]int)
		}
		for code, score := range def.Codes {
			if score < 0 || score > maxScore {
				return nil, fmt.Errorf("code table %s: code %q has score %d outside 0-%d", col, code, score, maxScore)
			}
			t.codes[code] = score
			if t.numeric != nil {
				if f, err := strconv.ParseFloat(code, 64); err == nil {
					t.numeric[f] = score
				}
			}
		}
		ct.tables[col] = t
	}
	return ct, nil
}

//go:embed codetables.yaml
var defaultTablesDoc []byte

// DefaultCodeTables returns the code tables shipped with the binary.
func DefaultCodeTables() (*CodeTables, error) {
	return LoadCodeTables(bytes.NewReader(defaultTablesDoc))
}

// MustDefaultCodeTables is DefaultCodeTables for callers that cannot recover,
// such as tests and main.
func MustDefaultCodeTables() *CodeTables {
	ct, err := DefaultCodeTables()
	if err != nil {
		panic(err)
	}
	return ct
}
