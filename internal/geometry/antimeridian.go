package geometry

import "github.com/twpayne/go-geom"

// antimeridianCutoff is the absolute longitude beyond which a geometry
// touching both hemispheres is treated as crossing the 180th meridian.
const antimeridianCutoff = 175.0

// SpansAntimeridian reports whether a single geometry has longitudes in
// both the far east and the far west. The bounding envelope of such a
// geometry wraps nearly the whole globe, so callers reject it instead
// of storing a meaningless extent.
func SpansAntimeridian(g geom.T) bool {
	if g == nil {
		return false
	}
	flat := g.FlatCoords()
	stride := g.Stride()
	if stride < 2 {
		return false
	}
	var east, west bool
	for i := 0; i+1 < len(flat); i += stride {
		switch lng := flat[i]; {
		case lng > antimeridianCutoff:
			east = true
		case lng < -antimeridianCutoff:
			west = true
		}
		if east && west {
			return true
		}
	}
	return false
}
