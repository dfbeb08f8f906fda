package quality

import (
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/JonMunkholm/swamp/internal/dataset"
)

// NaN is the sentinel written for missing or unparsable numeric cells.
const NaN = "NaN"

// Column names the cleaner and rules work with.
const (
	ColStationCode          = "StationCode"
	ColQACode               = "QACode"
	ColBatchVerification    = "BatchVerification"
	ColResultQualCode       = "ResultQualCode"
	ColTargetLatitude       = "TargetLatitude"
	ColTargetLongitude      = "TargetLongitude"
	ColResult               = "Result"
	ColMDL                  = "MDL"
	ColSampleTypeCode       = "SampleTypeCode"
	ColSampleDate           = "SampleDate"
	ColMatrixName           = "MatrixName"
	ColCollectionDepth      = "CollectionDepth"
	ColCollectionReplicate  = "CollectionReplicate"
	ColResultsReplicate     = "ResultsReplicate"
	ColDatum                = "Datum"
	ColAnalyte              = "Analyte"
	ColDataQuality          = "DataQuality"
	ColDataQualityIndicator = "DataQualityIndicator"
)

// numericColumns are filled with NaN when the cell is missing.
var numericColumns = []string{
	ColCollectionDepth,
	ColCollectionReplicate,
	ColResultsReplicate,
	ColResult,
}

var controlReplacer = strings.NewReplacer(
	"\t", " ",
	"\r", " ",
	"\n", " ",
	"\f", " ",
	"\v", " ",
	"|", " ",
	`"`, " ",
)

// Clean normalizes one record in place before rule evaluation.
func Clean(rec *dataset.Record) {
	for _, col := range rec.Columns() {
		if rec.Missing(col) {
			continue
		}
		v := rec.Get(col)
		if strings.ContainsAny(v, "\t\r\n\f\v|\"") {
			rec.Set(col, controlReplacer.Replace(v))
		}
	}

	for _, col := range numericColumns {
		if rec.Has(col) && rec.Missing(col) {
			rec.Set(col, NaN)
		}
	}

	if rec.Has(ColTargetLatitude) {
		rec.Set(ColTargetLatitude, cleanCoordinate(rec, ColTargetLatitude, false))
	}
	if rec.Has(ColTargetLongitude) {
		rec.Set(ColTargetLongitude, cleanCoordinate(rec, ColTargetLongitude, true))
	}

	for _, col := range rec.Columns() {
		if rec.Missing(col) {
			rec.Set(col, "")
		}
	}
}

func cleanCoordinate(rec *dataset.Record, col string, longitude bool) string {
	if rec.Missing(col) {
		return NaN
	}
	raw := strings.TrimSpace(rec.Get(col))
	if raw == "" {
		return NaN
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return NaN
	}
	if longitude && v > 0 && v < 10000 {
		v = -v
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
