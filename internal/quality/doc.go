// Package quality assigns a DataQuality category and a DataQualityIndicator
// to monitoring records.
//
// Each record is cleaned (Clean), checked column by column against the code
// tables (Rule, DefaultRules), and the resulting findings are reduced to one
// verdict (Aggregate). Engine ties the steps together and classifies a whole
// dataset in parallel row partitions.
//
// Severity scores and their categories:
//
//	0  MetaData
//	1  Passed
//	2  Some review needed
//	3  Spatial accuracy unknown
//	4  Extensive review needed
//	5  Unknown data quality
//	6  Reject record
//
// A score-0 finding anywhere marks the whole record as MetaData. Otherwise
// the highest score wins and the indicator lists every finding tied at it.
package quality
