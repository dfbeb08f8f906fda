package process

import (
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/JonMunkholm/swamp/internal/dataset"
)

// DropRule removes records that cannot be published.
type DropRule struct {
	Name  string
	Match func(rec *dataset.Record) bool
}

// ApplyDrops removes every record matched by a rule, in rule order, and
// returns how many records each rule removed.
func ApplyDrops(ds *dataset.Dataset, rules []DropRule) map[string]int {
	removed := make(map[string]int, len(rules))
	for _, rule := range rules {
		n := ds.Filter(func(rec *dataset.Record) bool { return !rule.Match(rec) })
		removed[rule.Name] += n
	}
	return removed
}

// blank reports a null or empty cell, or an absent column.
func blank(rec *dataset.Record, col string) bool {
	return rec.Missing(col) || strings.TrimSpace(rec.Get(col)) == ""
}

// number parses a cell. Blank and unparsable cells report false.
func number(rec *dataset.Record, col string) (float64, bool) {
	if blank(rec, col) {
		return 0, false
	}
	f, err := cast.ToFloat64E(strings.TrimSpace(rec.Get(col)))
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func dropEquals(col, value string) DropRule {
	return DropRule{
		Name:  col + " is " + value,
		Match: func(rec *dataset.Record) bool { return rec.Get(col) == value },
	}
}

func dropNumberEquals(col string, value float64) DropRule {
	return DropRule{
		Name: col + " is " + cast.ToString(value),
		Match: func(rec *dataset.Record) bool {
			f, ok := number(rec, col)
			return ok && f == value
		},
	}
}

func dropBlank(col string) DropRule {
	return DropRule{
		Name:  col + " is blank",
		Match: func(rec *dataset.Record) bool { return blank(rec, col) },
	}
}

// dropNotOne drops replicates: anything but a numeric 1, blanks included.
func dropNotOne(col string) DropRule {
	return DropRule{
		Name: col + " is not 1",
		Match: func(rec *dataset.Record) bool {
			f, ok := number(rec, col)
			return !ok || f != 1
		},
	}
}

func dropCodeWithoutResult(code string) DropRule {
	return DropRule{
		Name: "ResultQualCode " + code + " without Result",
		Match: func(rec *dataset.Record) bool {
			return rec.Get(colResultQualCode) == code && blank(rec, colResult)
		},
	}
}

var dropBlankMatrix = DropRule{
	Name: "blank matrix",
	Match: func(rec *dataset.Record) bool {
		return strings.Contains(rec.Get(colMatrixName), "blank")
	},
}

var dropNoResultNoCode = DropRule{
	Name: "no Result and no ResultQualCode",
	Match: func(rec *dataset.Record) bool {
		return blank(rec, colResult) && blank(rec, colResultQualCode)
	},
}

// negativeOrBlank reports a blank cell or a value below zero.
func negativeOrBlank(rec *dataset.Record, col string) bool {
	f, ok := number(rec, col)
	return !ok || f < 0
}
