package region

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/swamp/internal/dataset"
)

const boards = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"rb": 1},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[10,0],[10,10],[0,10],[0,0]]]}},
    {"type": "Feature", "properties": {"rb": 2.0},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[20,0],[30,0],[30,10],[20,10],[20,0]]]]}},
    {"type": "Feature", "properties": {"rb": 9},
     "geometry": {"type": "Point", "coordinates": [50, 50]}}
  ]
}`

func loadBoards(t *testing.T) *Assigner {
	t.Helper()
	a, err := LoadBoundaries(strings.NewReader(boards), "")
	require.NoError(t, err)
	return a
}

func TestAssign(t *testing.T) {
	a := loadBoards(t)

	tests := []struct {
		name     string
		lon, lat float64
		want     string
		ok       bool
	}{
		{"inside polygon", 5, 5, "1", true},
		{"inside multipolygon", 25, 5, "2", true},
		{"nearest to first", 12, 5, "1", true},
		{"nearest to second", 18, 5, "2", true},
		{"non-finite", math.NaN(), 5, "", false},
		{"infinite", 5, math.Inf(1), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := a.Assign(tt.lon, tt.lat)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadBoundaries_Errors(t *testing.T) {
	_, err := LoadBoundaries(strings.NewReader("not json"), "rb")
	assert.Error(t, err)

	_, err = LoadBoundaries(strings.NewReader(boards), "board")
	assert.ErrorContains(t, err, `missing property "board"`)

	_, err = LoadBoundaries(strings.NewReader(`{"type":"FeatureCollection","features":[]}`), "rb")
	assert.ErrorIs(t, err, ErrNoBoundaries)
}

func TestAssignDataset(t *testing.T) {
	a := loadBoards(t)
	ds := dataset.New([]string{"StationCode", "TargetLongitude", "TargetLatitude"})
	ds.Append(
		dataset.RecordOf(map[string]string{"StationCode": "A", "TargetLongitude": "5", "TargetLatitude": "5"}),
		dataset.RecordOf(map[string]string{"StationCode": "B", "TargetLongitude": "NaN", "TargetLatitude": "5"}),
		dataset.RecordOf(map[string]string{"StationCode": "C", "TargetLongitude": "", "TargetLatitude": "5"}),
		dataset.RecordOf(map[string]string{"StationCode": "D", "TargetLongitude": "29", "TargetLatitude": "1"}),
	)

	assert.Equal(t, 2, a.AssignDataset(ds))
	assert.Equal(t, "1", ds.Records[0].Get(Column))
	assert.Equal(t, "", ds.Records[1].Get(Column))
	assert.Equal(t, "", ds.Records[2].Get(Column))
	assert.Equal(t, "2", ds.Records[3].Get(Column))
	assert.Contains(t, ds.Columns, Column)
}

func TestLabel(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{float64(5), "5"},
		{5.5, "5.5"},
		{"3", "3"},
		{"North Coast", "North Coast"},
		{"", ""},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, label(tt.in), "label(%#v)", tt.in)
	}
}
