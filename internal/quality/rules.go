package quality

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/JonMunkholm/swamp/internal/dataset"
)

// Finding is one column-level observation produced while evaluating a record.
type Finding struct {
	Column string
	Code   string
	Score  int
}

func (f Finding) String() string {
	return f.Column + ":" + f.Code
}

// Rule checks one governed column. Eval must not modify the record.
type Rule struct {
	Column string
	Eval   func(rec *dataset.Record) []Finding
}

const (
	nonProjectMarker = "000NONPJ"
	surrogateMarker  = "surrogate"
	dnqCutoffYear    = 2008
	unknownDateYear  = 1950
)

// DefaultRules returns the rule registry in evaluation order. The order is
// also the order in which tied findings appear in the indicator.
func DefaultRules(tables *CodeTables) []Rule {
	return []Rule{
		{ColQACode, qaCodeRule(tables)},
		{ColStationCode, stationCodeRule(tables)},
		{ColAnalyte, analyteRule},
		{ColResultQualCode, resultQualCodeRule(tables)},
		{ColResult, resultRule(tables)},
		{ColBatchVerification, tableRule(tables, ColBatchVerification)},
		{ColTargetLatitude, tableRule(tables, ColTargetLatitude)},
		{ColSampleTypeCode, tableRule(tables, ColSampleTypeCode)},
		{ColSampleDate, sampleDateRule},
		{ColMatrixName, tableRule(tables, ColMatrixName)},
		{ColCollectionReplicate, tableRule(tables, ColCollectionReplicate)},
		{ColResultsReplicate, tableRule(tables, ColResultsReplicate)},
		{ColDatum, tableRule(tables, ColDatum)},
	}
}

// lookup is the general rule: a known code yields one finding.
func lookup(tables *CodeTables, col, code string) []Finding {
	score, ok := tables.Lookup(col, code)
	if !ok {
		return nil
	}
	return []Finding{{Column: col, Code: code, Score: score}}
}

func tableRule(tables *CodeTables, col string) func(*dataset.Record) []Finding {
	return func(rec *dataset.Record) []Finding {
		v, ok := rec.Lookup(col)
		if !ok {
			return nil
		}
		return lookup(tables, col, v)
	}
}

func qaCodeRule(tables *CodeTables) func(*dataset.Record) []Finding {
	return func(rec *dataset.Record) []Finding {
		v, ok := rec.Lookup(ColQACode)
		if !ok {
			return nil
		}
		var out []Finding
		for _, code := range strings.Split(v, ",") {
			out = append(out, lookup(tables, ColQACode, code)...)
		}
		return out
	}
}

func stationCodeRule(tables *CodeTables) func(*dataset.Record) []Finding {
	return func(rec *dataset.Record) []Finding {
		v, ok := rec.Lookup(ColStationCode)
		if !ok {
			return nil
		}
		if strings.Contains(v, nonProjectMarker) {
			return []Finding{{Column: ColStationCode, Code: nonProjectMarker, Score: ScoreMetaData}}
		}
		return lookup(tables, ColStationCode, v)
	}
}

func analyteRule(rec *dataset.Record) []Finding {
	v, ok := rec.Lookup(ColAnalyte)
	if !ok {
		return nil
	}
	if strings.Contains(strings.ToLower(v), surrogateMarker) {
		return []Finding{{Column: ColAnalyte, Code: v, Score: ScoreMetaData}}
	}
	return nil
}

func resultQualCodeRule(tables *CodeTables) func(*dataset.Record) []Finding {
	return func(rec *dataset.Record) []Finding {
		v, ok := rec.Lookup(ColResultQualCode)
		if !ok {
			return nil
		}
		switch v {
		case "DNQ":
			// Pre-2008 DNQ carries the table's DNQ score explicitly; later
			// or unknown years fall through to the general rule.
			if year, known := sampleYear(rec.Get(ColSampleDate)); known && year < dnqCutoffYear {
				if score, found := tables.Lookup(ColResultQualCode, "DNQ"); found {
					return []Finding{{Column: ColResultQualCode, Code: "DNQ", Score: score}}
				}
			}
		case "ND":
			score := ScorePassed
			if positiveResult(rec.Get(ColResult)) {
				score = ScoreReject
			}
			return []Finding{{Column: ColResultQualCode, Code: "ND", Score: score}}
		}
		return lookup(tables, ColResultQualCode, v)
	}
}

// positiveResult reports whether a Result cell is a number greater than zero.
func positiveResult(v string) bool {
	f, err := cast.ToFloat64E(strings.TrimSpace(v))
	if err != nil {
		return false
	}
	return f > 0
}

func resultRule(tables *CodeTables) func(*dataset.Record) []Finding {
	return func(rec *dataset.Record) []Finding {
		v, ok := rec.Lookup(ColResult)
		if !ok {
			return nil
		}
		if v == "" && rec.Get(ColResultQualCode) == "ND" {
			return []Finding{{Column: ColResult, Code: "", Score: ScorePassed}}
		}
		return lookup(tables, ColResult, v)
	}
}

func sampleDateRule(rec *dataset.Record) []Finding {
	v, ok := rec.Lookup(ColSampleDate)
	if !ok {
		return nil
	}
	if year, known := sampleYear(v); known && year == unknownDateYear {
		return []Finding{{Column: ColSampleDate, Code: v, Score: ScoreMetaData}}
	}
	return nil
}
