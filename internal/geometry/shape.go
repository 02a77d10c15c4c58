package geometry

import (
	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// FromShape converts a go-shp record to a go-geom geometry. Null shapes
// and shape types outside the point, polyline and polygon families
// return nil; Z and M point variants degrade to XY.
func FromShape(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})

	case *shp.PointZ:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})

	case *shp.PointM:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})

	case *shp.MultiPoint:
		return multiPointToGeom(s)

	case *shp.PolyLine:
		return polyLineToMultiLineString(s)

	case *shp.Polygon:
		return polygonToMultiPolygon(s)

	default:
		return nil
	}
}

func multiPointToGeom(mp *shp.MultiPoint) geom.T {
	if mp == nil || len(mp.Points) == 0 {
		return nil
	}
	flat := make([]float64, 0, len(mp.Points)*2)
	for _, p := range mp.Points {
		flat = append(flat, p.X, p.Y)
	}
	return geom.NewMultiPointFlat(geom.XY, flat)
}

// polyLineToMultiLineString converts a shapefile PolyLine to a geom.MultiLineString.
func polyLineToMultiLineString(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY)

	for i := int32(0); i < pl.NumParts; i++ {
		start := pl.Parts[i]
		var end int32
		if i+1 < pl.NumParts {
			end = pl.Parts[i+1]
		} else {
			end = int32(len(pl.Points))
		}

		coords := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			coords = append(coords, geom.Coord{pl.Points[j].X, pl.Points[j].Y})
		}

		ls := geom.NewLineStringFlat(geom.XY, flatCoords(coords))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("geometry: skipping malformed linestring part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
// Shapefiles do not distinguish outer shells from holes structurally, so
// every part becomes its own single-ring polygon. That is enough for
// classification and envelope work; containment queries re-group rings
// by winding order separately.
func polygonToMultiPolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		coords := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			coords = append(coords, geom.Coord{p.Points[j].X, p.Points[j].Y})
		}

		ring := geom.NewLinearRingFlat(geom.XY, flatCoords(coords))
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("geometry: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}

		if err := mp.Push(poly); err != nil {
			zap.L().Debug("geometry: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// flatCoords converts a slice of Coord to flat coordinate pairs for go-geom.
func flatCoords(coords []geom.Coord) []float64 {
	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		flat = append(flat, c[0], c[1])
	}
	return flat
}
