package quality

import "strings"

// Classification is the verdict written onto a record.
type Classification struct {
	DataQuality string `json:"data_quality"`
	Indicator   string `json:"data_quality_indicator"`
}

const indicatorSeparator = "; "

// Aggregate reduces a record's findings to a single classification.
//
// Any metadata finding (score 0) wins outright. Otherwise the highest score
// decides the category and every finding tied at that score is named in the
// indicator, in evaluation order.
func Aggregate(findings []Finding) Classification {
	if len(findings) == 0 {
		return Classification{DataQuality: Passed}
	}

	minScore, maxScore := findings[0].Score, findings[0].Score
	for _, f := range findings[1:] {
		minScore = min(minScore, f.Score)
		maxScore = max(maxScore, f.Score)
	}

	switch {
	case minScore == ScoreMetaData:
		return Classification{DataQuality: MetaData}
	case maxScore == ScorePassed:
		return Classification{DataQuality: Passed}
	}

	var parts []string
	for _, f := range findings {
		if f.Score == maxScore && f.Column != "" {
			parts = append(parts, f.String())
		}
	}
	indicator := strings.Join(parts, indicatorSeparator)

	// Findings without a column are not named. Every built-in rule sets
	// Column, so this only fires for custom rules.
	if maxScore == ScoreReject && indicator == "" {
		indicator = SpecialRulesIndicator
	}

	return Classification{DataQuality: Category(maxScore), Indicator: indicator}
}
