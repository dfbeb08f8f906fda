package process

import (
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/JonMunkholm/swamp/internal/dataset"
	"github.com/JonMunkholm/swamp/internal/quality"
)

const (
	colStationCode          = quality.ColStationCode
	colResult               = quality.ColResult
	colResultQualCode       = quality.ColResultQualCode
	colMDL                  = quality.ColMDL
	colMatrixName           = quality.ColMatrixName
	colAnalyte              = quality.ColAnalyte
	colSampleDate           = quality.ColSampleDate
	colDatum                = quality.ColDatum
	colDataQuality          = quality.ColDataQuality
	colDataQualityIndicator = quality.ColDataQualityIndicator
	colStationName          = "StationName"
	colParentProject        = "ParentProject"
	colRegion               = "Region"
	colAnalyteDisplay       = "AnalyteDisplay"
	colMatrixDisplay        = "MatrixDisplay"
	colResultDisplay        = "ResultDisplay"
	colDisplayText          = "DisplayText"
	colCensored             = "Censored"
	colAnalyteGroup1        = "AnalyteGroup1"
	colAnalyteGroup2        = "AnalyteGroup2"
	colAnalyteGroup3        = "AnalyteGroup3"
	colStationCategory      = "StationCategory"
)

// PortalDateLayout is the date format the portal API can filter on.
const PortalDateLayout = "2006-01-02T15:04:05"

// NotAssessed is the DataQuality of records the engine does not classify.
const NotAssessed = "Not assessed"

// DefaultAllowedQuality lists the DataQuality values kept for summaries and
// the stations list. MetaData and Reject record are excluded.
var DefaultAllowedQuality = []string{
	quality.Passed,
	quality.SomeReviewNeeded,
	quality.SpatialAccuracyUnknown,
	quality.UnknownDataQuality,
	quality.ExtensiveReviewNeeded,
	NotAssessed,
}

// FilterQuality keeps records whose DataQuality is in allowed and returns the
// number removed. A nil allowed uses DefaultAllowedQuality.
func FilterQuality(ds *dataset.Dataset, allowed []string) int {
	if allowed == nil {
		allowed = DefaultAllowedQuality
	}
	return ds.Filter(func(rec *dataset.Record) bool {
		return slices.Contains(allowed, rec.Get(colDataQuality))
	})
}

// MarkNotAssessed sets DataQuality to NotAssessed on every record.
func MarkNotAssessed(ds *dataset.Dataset) {
	ds.AddColumn(colDataQuality)
	ds.AddColumn(colDataQualityIndicator)
	for _, rec := range ds.Records {
		rec.Set(colDataQuality, NotAssessed)
		rec.Set(colDataQualityIndicator, "")
	}
}

// JoinDatum copies Datum from stations onto ds by StationCode. Records with no
// station, or a station without a datum, get "NR".
func JoinDatum(ds *dataset.Dataset, stations map[string]string) {
	ds.AddColumn(colDatum)
	for _, rec := range ds.Records {
		datum := stations[rec.Get(colStationCode)]
		if strings.TrimSpace(datum) == "" {
			datum = "NR"
		}
		rec.Set(colDatum, datum)
	}
}

// StationDatums indexes a StationCode/Datum dataset.
func StationDatums(ds *dataset.Dataset) map[string]string {
	out := make(map[string]string, ds.Len())
	for _, rec := range ds.Records {
		if blank(rec, colDatum) {
			continue
		}
		out[rec.Get(colStationCode)] = rec.Get(colDatum)
	}
	return out
}

// NonDetect is the display value for one result.
type NonDetect struct {
	Value    string
	Text     string
	Censored bool
}

// NonDetectValues applies the display convention for non-detects: a missing
// or negative ND result is shown as half the MDL, a missing or negative DNQ
// result as the MDL, and anything else as reported.
func NonDetectValues(rec *dataset.Record) NonDetect {
	code := rec.Get(colResultQualCode)
	result, hasResult := number(rec, colResult)
	mdl, hasMDL := number(rec, colMDL)
	reported := rec.Get(colResult)
	if !hasResult {
		reported = ""
	}

	switch code {
	case "ND":
		if !hasResult || (result < 0 && hasMDL && mdl > 0) {
			return NonDetect{Value: halfOf(mdl, hasMDL), Text: "ND result displayed as 1/2 the MDL", Censored: true}
		}
		return NonDetect{Value: reported, Text: "ND result displayed as the reported value", Censored: true}
	case "DNQ":
		if !hasResult || (result < 0 && hasMDL && mdl > 0) {
			return NonDetect{Value: formatIf(mdl, hasMDL), Text: "DNQ result displayed as the MDL"}
		}
		return NonDetect{Value: reported, Text: "DNQ result displayed as the reported value"}
	}
	return NonDetect{Value: reported}
}

func halfOf(v float64, ok bool) string {
	return formatIf(v*0.5, ok)
}

func formatIf(v float64, ok bool) string {
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// AddNonDetectColumns writes ResultDisplay, DisplayText and Censored.
func AddNonDetectColumns(ds *dataset.Dataset) {
	ds.AddColumn(colResultDisplay)
	ds.AddColumn(colDisplayText)
	ds.AddColumn(colCensored)
	for _, rec := range ds.Records {
		nd := NonDetectValues(rec)
		rec.Set(colResultDisplay, nd.Value)
		rec.Set(colDisplayText, nd.Text)
		rec.Set(colCensored, formatBool(nd.Censored))
	}
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// MatrixDisplay collapses matrix variants to the names the dashboard tags.
func MatrixDisplay(matrix string) string {
	switch {
	case strings.Contains(matrix, "samplewater"):
		return "samplewater"
	case strings.Contains(matrix, "sediment"):
		return "sediment"
	}
	return matrix
}

// AddMatrixDisplay writes MatrixDisplay from MatrixName.
func AddMatrixDisplay(ds *dataset.Dataset) {
	ds.AddColumn(colMatrixDisplay)
	for _, rec := range ds.Records {
		rec.Set(colMatrixDisplay, MatrixDisplay(rec.Get(colMatrixName)))
	}
}

// AnalyteDisplay strips single quotes from an analyte name.
func AnalyteDisplay(analyte string) string {
	return strings.ReplaceAll(analyte, "'", "")
}

// AddAnalyteDisplay cleans Analyte in place and copies it to AnalyteDisplay.
func AddAnalyteDisplay(ds *dataset.Dataset) {
	ds.AddColumn(colAnalyteDisplay)
	for _, rec := range ds.Records {
		a := AnalyteDisplay(rec.Get(colAnalyte))
		rec.Set(colAnalyte, a)
		rec.Set(colAnalyteDisplay, a)
	}
}

// AddAnalyteGroups joins the three analyte category columns on Analyte.
func AddAnalyteGroups(ds *dataset.Dataset, groups map[string][3]string) {
	cols := [3]string{colAnalyteGroup1, colAnalyteGroup2, colAnalyteGroup3}
	for _, c := range cols {
		ds.AddColumn(c)
	}
	for _, rec := range ds.Records {
		g := groups[rec.Get(colAnalyte)]
		for i, c := range cols {
			rec.Set(c, g[i])
		}
	}
}

// RegionFor returns the regional board of a station: the joined value when
// known, else the first character of the station code.
func RegionFor(stationCode string, regions map[string]string) string {
	if r, ok := regions[stationCode]; ok && r != "" {
		return r
	}
	if stationCode == "" {
		return ""
	}
	return stationCode[:1]
}

// normalizeRegion renders "3.0" as "3".
func normalizeRegion(v string) string {
	v = strings.TrimSpace(v)
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return cast.ToString(int(f))
	}
	return v
}

// AddRegion writes Region for every record.
func AddRegion(ds *dataset.Dataset, regions map[string]string) {
	ds.AddColumn(colRegion)
	for _, rec := range ds.Records {
		rec.Set(colRegion, RegionFor(rec.Get(colStationCode), regions))
	}
}

// Program membership by ParentProject.
var (
	BioassessmentProjects = []string{
		"SWAMP California Monitoring and Assessment Program",
		"SWAMP Perennial Stream Surveys",
		"SWAMP Reference Condition Management Plan",
		"Statewide Field Repeat Sampling Study",
		"Statewide Low Gradient Methods Comparison",
		"SWAMP Repeat Sampling Field Methods Comparison",
		"Statewide Sediment TMDL Study",
	}
	BioaccumulationProjects = []string{
		"SWAMP Bioaccumulation Monitoring Program",
		"SWAMP Historic Bioaccumulation Data",
		"SWAMP Sportfish Coastal Zones",
		"SWAMP Sportfish Contamination in Lakes and Resrv",
		"SWAMP Sportfish Rivers and Streams",
		"SWAMP Wildlife Contamination in Lakes and Resrv",
	}
	FhabProjects = []string{"SWAMP Freshwater Harmful Algal Blooms(HAB) Program"}
	SpotProjects = []string{"SWAMP Stream Pollution Trends"}
)

var programColumns = []struct {
	column   string
	projects []string
}{
	{"Bioassessment", BioassessmentProjects},
	{"Bioaccumulation", BioaccumulationProjects},
	{"Fhab", FhabProjects},
	{"Spot", SpotProjects},
}

// AddPrograms writes one True/False column per statewide program.
func AddPrograms(ds *dataset.Dataset) {
	for _, p := range programColumns {
		ds.AddColumn(p.column)
	}
	for _, rec := range ds.Records {
		parent := rec.Get(colParentProject)
		for _, p := range programColumns {
			rec.Set(p.column, formatBool(slices.Contains(p.projects, parent)))
		}
	}
}

// AddReferenceSites writes StationCategory, matching station codes without
// regard to case.
func AddReferenceSites(ds *dataset.Dataset, sites map[string]string) {
	ds.AddColumn(colStationCategory)
	for _, rec := range ds.Records {
		rec.Set(colStationCategory, sites[strings.ToLower(rec.Get(colStationCode))])
	}
}

// FormatDates rewrites parsable date cells in PortalDateLayout. Cells that
// do not parse are left blank.
func FormatDates(ds *dataset.Dataset, cols ...string) {
	for _, col := range cols {
		if !ds.HasColumn(col) {
			continue
		}
		for _, rec := range ds.Records {
			if !rec.Has(col) {
				continue
			}
			t, ok := quality.ParseSampleDate(rec.Get(col))
			if !ok {
				rec.Set(col, "")
				continue
			}
			rec.Set(col, t.Format(PortalDateLayout))
		}
	}
}

// TrimColumn trims surrounding whitespace from col.
func TrimColumn(ds *dataset.Dataset, col string) {
	for _, rec := range ds.Records {
		if v, ok := rec.Lookup(col); ok {
			rec.Set(col, strings.TrimSpace(v))
		}
	}
}

// StripControl replaces control characters, pipes and double quotes in every
// cell with a space.
func StripControl(ds *dataset.Dataset) {
	for _, rec := range ds.Records {
		for _, col := range rec.Columns() {
			if rec.Missing(col) {
				continue
			}
			rec.Set(col, controlReplacer.Replace(rec.Get(col)))
		}
	}
}

var controlReplacer = strings.NewReplacer(
	"\t", " ", "\r", " ", "\n", " ", "\f", " ", "\v", " ", "|", " ", `"`, " ",
)

// Dedupe drops records that repeat an earlier record on every header column
// except ignore. It returns the number removed.
func Dedupe(ds *dataset.Dataset, ignore ...string) int {
	var keyCols []string
	for _, c := range ds.Columns {
		if !slices.Contains(ignore, c) {
			keyCols = append(keyCols, c)
		}
	}

	seen := make(map[string]struct{}, ds.Len())
	var b strings.Builder
	return ds.Filter(func(rec *dataset.Record) bool {
		b.Reset()
		for _, c := range keyCols {
			if rec.Missing(c) {
				b.WriteString("\x00N")
			} else {
				b.WriteString(rec.Get(c))
			}
			b.WriteByte(0x1f)
		}
		k := b.String()
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
		return true
	})
}
