package process

import (
	"slices"
	"strconv"
	"strings"

	"github.com/JonMunkholm/swamp/internal/dataset"
	"github.com/JonMunkholm/swamp/internal/quality"
)

func registerTissue() {
	Register(DataType{
		Key:   Tissue,
		Label: "Tissue",
		Table: "TissueDMart_MV",
		Queries: []Query{{
			Name:  "swamp",
			Where: `"ProgramName" = $1`,
			Args:  []any{swampProgram},
		}},
		DateColumns: []string{
			"EarliestDateSampled", "DigestExtractDate", "AnalysisDate", "LatestDateSampled",
			"SampleDate", "CompositeSampleDate", "HomogonizedDate",
		},
		Assess:     true,
		JoinDatum:  true,
		ResourceID: "6f848c25-c1cf-44d0-80a0-5f63b9939a41",
		ExportName: "swamp_tissue_summary_data",
		Drops: []DropRule{
			dropNotOne(quality.ColCollectionReplicate),
			dropNotOne("CompositeReplicate"),
			dropNotOne(quality.ColResultsReplicate),
			{
				Name: "no usable Result and no usable MDL",
				Match: func(rec *dataset.Record) bool {
					return negativeOrBlank(rec, colResult) && negativeOrBlank(rec, colMDL)
				},
			},
			{
				Name: "non-detect without usable MDL",
				Match: func(rec *dataset.Record) bool {
					code := rec.Get(colResultQualCode)
					return (code == "ND" || code == "DNQ") && negativeOrBlank(rec, colMDL)
				},
			},
			dropCodeWithoutResult("="),
			dropCodeWithoutResult("NR"),
			dropNoResultNoCode,
			{
				Name: "metadata or rejected",
				Match: func(rec *dataset.Record) bool {
					dq := rec.Get(colDataQuality)
					return dq == quality.MetaData || dq == quality.RejectRecord
				},
			},
		},
		Transform: transformTissue,
	})
}

// TissueResult is the adjusted result of one tissue record.
//
// A non-detect at or above the MDL is shown as half the MDL. A non-detect
// below the MDL, or without a result, is shown as the MDL.
func TissueResult(rec *dataset.Record) (value, note string) {
	code := rec.Get(colResultQualCode)
	if code != "ND" && code != "DNQ" {
		return rec.Get(colResult), ""
	}

	result, hasResult := number(rec, colResult)
	mdl, hasMDL := number(rec, colMDL)
	if !hasMDL {
		return rec.Get(colResult), ""
	}
	if hasResult && result >= mdl {
		return strconv.FormatFloat(0.5*mdl, 'f', -1, 64), ""
	}
	return strconv.FormatFloat(mdl, 'f', -1, 64), "Note: a conservative estimate"
}

func transformTissue(ds *dataset.Dataset, _ *Lookups) error {
	StripControl(ds)
	for _, rec := range ds.Records {
		for _, col := range rec.Columns() {
			if v := rec.Get(col); strings.Contains(v, ",") {
				rec.Set(col, strings.ReplaceAll(v, ",", ""))
			}
		}
	}

	for _, c := range []string{"SampleYear", "ResultAdjusted", "ResultNote", "CompositeIndividual"} {
		ds.AddColumn(c)
	}
	for _, rec := range ds.Records {
		year := ""
		if t, ok := quality.ParseSampleDate(rec.Get(colSampleDate)); ok {
			year = strconv.Itoa(t.Year())
		}
		rec.Set("SampleYear", year)

		value, note := TissueResult(rec)
		rec.Set("ResultAdjusted", value)
		rec.Set("ResultNote", note)

		kind := ""
		if n, ok := number(rec, "NumberFishperComp"); ok {
			switch {
			case n == 1:
				kind = "Individual"
			case n > 1:
				kind = "Composite"
			}
		}
		rec.Set("CompositeIndividual", kind)
	}
	SummarizeTissue(ds)
	return nil
}

// TissueGroupColumns identify one station, organism, analyte and year in the
// tissue summary.
var TissueGroupColumns = []string{
	colStationCode,
	colStationName,
	"CommonName",
	"FinalID",
	"TissueName",
	"PrepPreservationName",
	"CompositeIndividual",
	"NumberFishperComp",
	colAnalyte,
	"Unit",
	colResultQualCode,
	colMDL,
	"SampleYear",
	"ProgramName",
	"ParentProjectName",
	"ProjectCode",
	"ProjectName",
	"TLAvgLength(mm)",
	quality.ColTargetLatitude,
	quality.ColTargetLongitude,
}

// SummarizeTissue replaces ds with one record per TissueGroupColumns group,
// in first-seen order, carrying the mean ResultAdjusted of the group.
// Non-numeric results are left out of the mean; a group with none is blank.
func SummarizeTissue(ds *dataset.Dataset) {
	type group struct {
		rec   *dataset.Record
		sum   float64
		count int
	}

	var order []*group
	groups := make(map[string]*group)
	for _, rec := range ds.Records {
		key := make([]string, len(TissueGroupColumns))
		for i, col := range TissueGroupColumns {
			key[i] = rec.Get(col)
		}
		k := strings.Join(key, "\x00")

		g, ok := groups[k]
		if !ok {
			out := dataset.NewRecord()
			for i, col := range TissueGroupColumns {
				out.Set(col, key[i])
			}
			g = &group{rec: out}
			groups[k] = g
			order = append(order, g)
		}
		if v, ok := number(rec, "ResultAdjusted"); ok {
			g.sum += v
			g.count++
		}
	}

	ds.Columns = append(slices.Clone(TissueGroupColumns), "ResultAdjusted")
	ds.Records = make([]*dataset.Record, 0, len(order))
	for _, g := range order {
		mean := ""
		if g.count > 0 {
			mean = strconv.FormatFloat(g.sum/float64(g.count), 'f', -1, 64)
		}
		g.rec.Set("ResultAdjusted", mean)
		ds.Records = append(ds.Records, g.rec)
	}
}
