// Package region assigns Regional Water Quality Control Board numbers to
// stations from a GeoJSON file of board boundaries.
package region

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/spf13/cast"

	"github.com/JonMunkholm/swamp/internal/dataset"
)

// DefaultProperty is the feature property holding the board number.
const DefaultProperty = "rb"

// Column is the dataset column written by AssignDataset.
const Column = "Region"

// ErrNoBoundaries is returned when a file yields no usable polygons.
var ErrNoBoundaries = errors.New("no region boundaries")

type boundary struct {
	region string
	geom   orb.Geometry
	bound  orb.Bound
}

// Assigner finds the region for a coordinate.
type Assigner struct {
	boundaries []boundary
}

// LoadBoundaries reads a GeoJSON FeatureCollection. Each Polygon or
// MultiPolygon feature contributes one boundary labelled by property.
func LoadBoundaries(r io.Reader, property string) (*Assigner, error) {
	if property == "" {
		property = DefaultProperty
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read boundaries: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse boundaries: %w", err)
	}

	a := &Assigner{}
	for i, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			continue
		}
		v, ok := f.Properties[property]
		if !ok {
			return nil, fmt.Errorf("feature %d: missing property %q", i, property)
		}
		a.boundaries = append(a.boundaries, boundary{
			region: label(v),
			geom:   f.Geometry,
			bound:  f.Geometry.Bound(),
		})
	}
	if len(a.boundaries) == 0 {
		return nil, ErrNoBoundaries
	}
	return a, nil
}

// label renders a property value; 5.0 becomes "5".
func label(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return ""
	}
	if f, err := cast.ToFloat64E(v); err == nil && f == math.Trunc(f) {
		return strconv.FormatInt(int64(f), 10)
	}
	return cast.ToString(v)
}

// Assign returns the region containing the point. Points outside every
// polygon get the nearest one, measured in degrees. ok is false only for
// non-finite coordinates.
func (a *Assigner) Assign(lon, lat float64) (string, bool) {
	if !finite(lon) || !finite(lat) {
		return "", false
	}
	p := orb.Point{lon, lat}

	for _, b := range a.boundaries {
		if !b.bound.Contains(p) {
			continue
		}
		if contains(b.geom, p) {
			return b.region, true
		}
	}

	best, dist := "", math.Inf(1)
	for _, b := range a.boundaries {
		if d := planar.DistanceFrom(b.geom, p); d < dist {
			best, dist = b.region, d
		}
	}
	return best, true
}

func contains(g orb.Geometry, p orb.Point) bool {
	switch g := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	}
	return false
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// AssignDataset sets Region on every record with parsable TargetLongitude and
// TargetLatitude. It returns the number of records assigned.
func (a *Assigner) AssignDataset(ds *dataset.Dataset) int {
	ds.AddColumn(Column)
	n := 0
	for _, rec := range ds.Records {
		lon, ok1 := coordinate(rec, "TargetLongitude")
		lat, ok2 := coordinate(rec, "TargetLatitude")
		if !ok1 || !ok2 {
			continue
		}
		if r, ok := a.Assign(lon, lat); ok {
			rec.Set(Column, r)
			n++
		}
	}
	return n
}

func coordinate(rec *dataset.Record, col string) (float64, bool) {
	v := strings.TrimSpace(rec.Get(col))
	if v == "" {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	return f, err == nil
}
