package process

import (
	"strings"

	"github.com/JonMunkholm/swamp/internal/dataset"
	"github.com/JonMunkholm/swamp/internal/quality"
)

const swampProgram = "Surface Water Ambient Monitoring Program"

// WaterQualityAnalytes are the analytes queried from the water quality view
// for SWAMP projects other than SPoT. SPoT records are taken for every analyte.
var WaterQualityAnalytes = []string{
	"Alkalinity as CaCO3, Total",
	"Aluminum, Total",
	"Ammonia as N, Total",
	"Arsenic, Total",
	"Barium, Total",
	"Beryllium, Total",
	"Boron, Dissolved",
	"Cadmium, Total",
	"Chromium, Total",
	"Chloride, Dissolved",
	"Chlorophyll a, Particulate",
	"Copper, Total",
	"Dissolved Organic Carbon, Dissolved",
	"E. coli",
	"Fluoride, Dissolved",
	"Hardness as CaCO3, Total",
	"Lead, Total",
	"Manganese, Total",
	"Mercury, Methyl, Total",
	"Mercury, Total",
	"Moisture, Total",
	"Nickel, Total",
	"Nitrogen, Total, Total",
	"Nitrogen, Total Kjeldahl, Total",
	"Oxygen, Dissolved, Total",
	"Oxygen, Saturation, Total",
	"pH",
	"Phosphorus as P, Total",
	"Selenium, Total",
	"Silver, Total",
	"SpecificConductivity, Total",
	"Sulfate, Dissolved",
	"Temperature",
	"Total Dissolved Solids, Total",
	"Total Organic Carbon, Total",
	"Turbidity, Total",
	"Zinc, Total",
}

// HabitatPrograms are the programs whose CSCI and IPI scores are published.
var HabitatPrograms = []string{
	"EPA National Rivers and Streams Assessment",
	"Southern CA Stormwater Monitoring Coalition",
	"Surface Water Ambient Monitoring Program",
	"SW Mon Coalition Regional Watershed Monitoring",
	"USFS Management Indicator Species",
}

// HabitatAnalytes are the habitat indices published.
var HabitatAnalytes = []string{"CSCI", "IPI"}

// Keys of the built-in data types.
const (
	WaterQuality = "water_quality"
	Habitat      = "habitat"
	Toxicity     = "toxicity"
	Tissue       = "tissue"
	Stations     = "stations"
)

func init() {
	registerWaterQuality()
	registerHabitat()
	registerToxicity()
	registerTissue()
	registerStations()
}

func registerWaterQuality() {
	spot := SpotProjects[0]
	Register(DataType{
		Key:   WaterQuality,
		Label: "Water Quality",
		Table: "WQDMart_MV",
		Queries: []Query{
			{
				Name:  "swamp",
				Where: `"Program" = $1 AND "ParentProject" <> $2 AND "Analyte" = ANY($3)`,
				Args:  []any{swampProgram, spot, WaterQualityAnalytes},
			},
			{
				Name:  "spot",
				Where: `"Program" = $1 AND "ParentProject" = $2`,
				Args:  []any{swampProgram, spot},
			},
		},
		DateColumns: []string{"SampleDate", "CalibrationDate", "PrepPreservationDate", "DigestExtractDate", "AnalysisDate"},
		Assess:      true,
		JoinDatum:   true,
		ResourceID:  "2bfd92aa-7256-4fd9-bfe4-a6eff7a8019e",
		ExportName:  "swamp_water_quality_data",
		Drops: []DropRule{
			dropEquals(colStationCode, "FIELDQA"),
			dropEquals(colStationCode, "FIELDQA_SWAMP"),
			dropNumberEquals(colResult, -88),
			{
				Name: "matrix not samplewater or sediment",
				Match: func(rec *dataset.Record) bool {
					m := strings.ToLower(rec.Get(colMatrixName))
					return !strings.Contains(m, "samplewater") && !strings.Contains(m, "sediment")
				},
			},
			{
				Name: "no Result and no usable MDL",
				Match: func(rec *dataset.Record) bool {
					return blank(rec, colResult) && negativeOrBlank(rec, colMDL)
				},
			},
			dropEquals(quality.ColQACode, "BRK"),
			dropCodeWithoutResult("="),
			dropCodeWithoutResult("NR"),
			dropBlankMatrix,
			dropBlank(colSampleDate),
			dropNotOne(quality.ColCollectionReplicate),
			dropNotOne(quality.ColResultsReplicate),
		},
		Transform: transformWaterQuality,
	})
}

func transformWaterQuality(ds *dataset.Dataset, lk *Lookups) error {
	StripControl(ds)
	FormatDates(ds, colSampleDate)
	AddNonDetectColumns(ds)
	AddAnalyteDisplay(ds)
	AddAnalyteGroups(ds, lk.AnalyteGroups)
	AddMatrixDisplay(ds)
	AddRegion(ds, lk.StationRegions)
	AddPrograms(ds)
	AddReferenceSites(ds, lk.ReferenceSites)
	return nil
}

func registerHabitat() {
	Register(DataType{
		Key:   Habitat,
		Label: "Habitat",
		Table: "HabitatDMart_MV",
		Queries: []Query{{
			Name:  "indices",
			Where: `"Program" = ANY($1) AND "Analyte" = ANY($2)`,
			Args:  []any{HabitatPrograms, HabitatAnalytes},
		}},
		DateColumns: []string{"SampleDate"},
		Assess:      true,
		JoinDatum:   true,
		ResourceID:  "6d9a828a-d539-457e-922c-3cb54a6d4f9b",
		ExportName:  "swamp_habitat_data",
		Drops: []DropRule{
			dropEquals(colStationCode, "FIELDQA"),
			dropEquals(colStationCode, "FIELDQA_SWAMP"),
			dropNoResultNoCode,
			dropCodeWithoutResult("NR"),
			dropEquals(quality.ColQACode, "BRK"),
			dropCodeWithoutResult("="),
			dropBlankMatrix,
			dropBlank(colSampleDate),
			dropNotOne(quality.ColCollectionReplicate),
		},
		Transform: transformHabitat,
	})
}

var habitatAnalyteNames = map[string]string{
	"CSCI": "California Stream Condition Index (CSCI)",
	"IPI":  "Index of Physical Habitat Integrity (IPI)",
}

func transformHabitat(ds *dataset.Dataset, lk *Lookups) error {
	StripControl(ds)
	TrimColumn(ds, colStationName)
	FormatDates(ds, colSampleDate)

	ds.AddColumn(colCensored)
	ds.AddColumn(colResultDisplay)
	ds.AddColumn(colAnalyteDisplay)
	ds.AddColumn(colDisplayText)
	for _, rec := range ds.Records {
		rec.Set(colCensored, formatBool(false))
		rec.Set(colResultDisplay, rec.Get(colResult))

		analyte := rec.Get(colAnalyte)
		display := analyte
		if long, ok := habitatAnalyteNames[analyte]; ok {
			display = long
			rec.Set("Unit", "score")
		}
		rec.Set(colAnalyteDisplay, display)
		rec.Set(colDisplayText, "")
	}

	AddAnalyteGroups(ds, lk.AnalyteGroups)
	AddMatrixDisplay(ds)
	AddRegion(ds, lk.StationRegions)
	AddPrograms(ds)
	AddReferenceSites(ds, lk.ReferenceSites)
	return nil
}

func registerToxicity() {
	Register(DataType{
		Key:   Toxicity,
		Label: "Toxicity",
		Table: "ToxDMart_MV",
		Queries: []Query{{
			Name:  "replicates",
			Where: `"Program" = $1 AND "Mean" IS NOT NULL AND "CollectionReplicate" = 1 AND "LabReplicate" = 1`,
			Args:  []any{swampProgram},
		}},
		DateColumns: []string{"SampleDate", "ToxBatchStartDate"},
		Assess:      false,
		JoinDatum:   true,
		ResourceID:  "a6dafb52-3671-46fa-8d42-13ddfa36fd49",
		ExportName:  "swamp_toxicity_data",
		Drops: []DropRule{
			dropEquals(colStationCode, "FIELDQA_SWAMP"),
			dropEquals(quality.ColSampleTypeCode, "FieldBLDup"),
			dropNumberEquals("Mean", -88),
			dropBlankMatrix,
			{
				Name: "no coordinates",
				Match: func(rec *dataset.Record) bool {
					return blank(rec, quality.ColTargetLatitude) || blank(rec, quality.ColTargetLongitude)
				},
			},
			dropBlank(colSampleDate),
			dropNotOne(quality.ColCollectionReplicate),
			dropNotOne("LabReplicate"),
		},
		Transform: transformToxicity,
	})
}

// toxicityReplicateColumns vary between lab replicates of one test and are
// ignored when removing duplicates.
var toxicityReplicateColumns = []string{
	"ToxID", "LabReplicate", "Result", "ResQualCode",
	"ToxResultComments", "OrganismPerRep", "ToxResultQACode",
}

func transformToxicity(ds *dataset.Dataset, lk *Lookups) error {
	StripControl(ds)
	TrimColumn(ds, colStationName)
	FormatDates(ds, colSampleDate)

	ds.AddColumn("MeanDisplay")
	ds.AddColumn(colCensored)
	for _, rec := range ds.Records {
		rec.Set("MeanDisplay", rec.Get("Mean"))
		code := rec.Get(colResultQualCode)
		rec.Set(colCensored, formatBool(code == "ND" || code == "DNQ"))
	}

	Dedupe(ds, toxicityReplicateColumns...)

	ds.AddColumn(colAnalyteDisplay)
	for _, rec := range ds.Records {
		a := AnalyteDisplay(rec.Get(colAnalyte))
		rec.Set(colAnalyte, a)
		rec.Set(colAnalyteDisplay, a+" ("+rec.Get("OrganismName")+")")
	}

	AddAnalyteGroups(ds, lk.AnalyteGroups)
	AddMatrixDisplay(ds)
	AddRegion(ds, lk.StationRegions)
	AddPrograms(ds)
	AddReferenceSites(ds, lk.ReferenceSites)

	ds.AddColumn(colDisplayText)
	for _, rec := range ds.Records {
		if nonStandardTemperature(rec) {
			rec.Set(colDisplayText, "Test conducted at a non-standard temperature of 15 degrees C.")
		} else if !rec.Has(colDisplayText) {
			rec.Set(colDisplayText, "")
		}
	}
	return nil
}

func nonStandardTemperature(rec *dataset.Record) bool {
	if rec.Get("Treatment") != "Temperature" || rec.Get("UnitTreatment") != "Deg C" {
		return false
	}
	c, ok := number(rec, "TreatmentConcentration")
	return ok && c == 15
}

func registerStations() {
	Register(DataType{
		Key:        Stations,
		Label:      "Stations",
		Table:      "DM_WQX_Stations_MV",
		ResourceID: "df69fdd7-1475-4e57-9385-bb1514f0291e",
		ExportName: "swamp_stations",
		Derived:    true,
	})
}
