// Package geometry provides the small amount of planar geometry the
// ingestion pipeline needs: shape-family classification, envelope
// accumulation, antimeridian detection and conversion from shapefile
// records to go-geom values.
package geometry

import (
	"github.com/twpayne/go-geom"
)

// Type classifies the shape family of a feature geometry. Multi variants
// classify as their element type, so a MultiPolygon feature counts as a
// Polygon for dataset purposes.
type Type string

const (
	TypePoint      Type = "Point"
	TypeLineString Type = "LineString"
	TypePolygon    Type = "Polygon"
)

// TypeOf returns the Type of a go-geom geometry. ok is false for nil
// geometries, geometry collections and anything outside the three
// families.
func TypeOf(g geom.T) (Type, bool) {
	switch g.(type) {
	case *geom.Point, *geom.MultiPoint:
		return TypePoint, true
	case *geom.LineString, *geom.MultiLineString:
		return TypeLineString, true
	case *geom.Polygon, *geom.MultiPolygon:
		return TypePolygon, true
	default:
		return "", false
	}
}

// Transform applies fn to every coordinate pair of g in place. Only the
// first two ordinates of each coordinate are touched, so Z and M values
// survive untouched. g must not be a GeometryCollection.
func Transform(g geom.T, fn func(x, y float64) (float64, float64)) {
	flat := g.FlatCoords()
	stride := g.Stride()
	if stride < 2 {
		return
	}
	for i := 0; i+1 < len(flat); i += stride {
		flat[i], flat[i+1] = fn(flat[i], flat[i+1])
	}
}
