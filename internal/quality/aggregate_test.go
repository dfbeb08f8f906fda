package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		findings []Finding
		want     Classification
	}{
		{
			name: "no findings",
			want: Classification{DataQuality: Passed},
		},
		{
			name:     "metadata wins over reject",
			findings: []Finding{{ColQACode, "BT", 6}, {ColStationCode, "LABQA", 0}},
			want:     Classification{DataQuality: MetaData},
		},
		{
			name:     "all passed",
			findings: []Finding{{ColResultQualCode, "=", 1}, {ColQACode, "C", 1}},
			want:     Classification{DataQuality: Passed},
		},
		{
			name:     "single max",
			findings: []Finding{{ColResultQualCode, "=", 1}, {ColDatum, "NR", 3}},
			want:     Classification{DataQuality: SpatialAccuracyUnknown, Indicator: "Datum:NR"},
		},
		{
			name: "ties keep evaluation order",
			findings: []Finding{
				{ColQACode, "BT", 6},
				{ColResultQualCode, "DNQ", 2},
				{ColResultQualCode, "NA", 6},
			},
			want: Classification{DataQuality: RejectRecord, Indicator: "QACode:BT; ResultQualCode:NA"},
		},
		{
			name:     "empty code still named",
			findings: []Finding{{ColTargetLatitude, "", 6}},
			want:     Classification{DataQuality: RejectRecord, Indicator: "TargetLatitude:"},
		},
		{
			name:     "unnamed reject falls back to special rules label",
			findings: []Finding{{Score: 6}, {ColQACode, "BX", 4}},
			want:     Classification{DataQuality: RejectRecord, Indicator: SpecialRulesIndicator},
		},
		{
			name:     "unnamed non-reject leaves indicator empty",
			findings: []Finding{{Score: 4}, {ColQACode, "AY", 2}},
			want:     Classification{DataQuality: ExtensiveReviewNeeded},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.findings))
		})
	}
}

func TestAggregate_DoesNotMutate(t *testing.T) {
	findings := []Finding{{ColQACode, "BT", 6}, {ColDatum, "NR", 3}}
	before := append([]Finding(nil), findings...)
	Aggregate(findings)
	assert.Equal(t, before, findings)
}
