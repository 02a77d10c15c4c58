// Package projection resolves the coordinate reference systems declared
// by GIS files and converts projected coordinates to WGS84 longitude
// and latitude. Only a closed set of EPSG codes is supported; anything
// else is reported as an error rather than guessed at.
package projection

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// CRS identifies a coordinate reference system by EPSG code.
type CRS struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

// WGS84 is the geographic CRS all ingested coordinates normalize to.
var WGS84 = CRS{Code: 4326, Name: "WGS 84"}

// String returns the conventional EPSG:n form.
func (c CRS) String() string {
	return fmt.Sprintf("EPSG:%d", c.Code)
}

// IsWGS84 reports whether coordinates in this CRS are already WGS84
// longitude and latitude.
func (c CRS) IsWGS84() bool {
	return c.Code == 4326
}

// Transform converts coordinates from a source CRS to WGS84. All
// implemented transforms are total functions, so construction is the
// only fallible step.
type Transform interface {
	// ToWGS84 converts a source coordinate pair to WGS84 longitude and
	// latitude in degrees. Longitudes are normalized to [-180, 180].
	ToWGS84(x, y float64) (lng, lat float64)
}

type entry struct {
	name  string
	build func() Transform
}

// registry holds the fixed-code systems. WGS84 UTM zones are resolved
// arithmetically in lookup instead of being enumerated here.
var registry = map[int]entry{
	4326: {"WGS 84", func() Transform { return identity{} }},
	// NAD83 and NZGD2000 differ from WGS84 by under two meters, far
	// below the envelope resolution this pipeline cares about.
	4269: {"NAD83", func() Transform { return identity{} }},
	4167: {"NZGD2000", func() Transform { return identity{} }},
	3857: {"WGS 84 / Pseudo-Mercator", func() Transform { return webMercator{} }},
	2326: {"Hong Kong 1980 Grid System", func() Transform {
		return newTransverseMercator(intl1924, 1.0, 114.1785555555556, 22.31213333333333, 836694.05, 819069.8,
			&datumShift{tx: -162.619, ty: -276.959, tz: -161.764, rx: 0.067753, ry: -2.243649, rz: -1.158827, ds: -1.094246})
	}},
	2193: {"NZGD2000 / New Zealand Transverse Mercator 2000", func() Transform {
		return newTransverseMercator(grs80, 0.9996, 173.0, 0.0, 1600000.0, 10000000.0, nil)
	}},
	27700: {"OSGB36 / British National Grid", func() Transform {
		return newTransverseMercator(airy1830, 0.9996012717, -2.0, 49.0, 400000.0, -100000.0,
			&datumShift{tx: 446.448, ty: -125.157, tz: 542.06, rx: 0.15, ry: 0.247, rz: 0.842, ds: -20.489})
	}},
}

func lookup(code int) (entry, bool) {
	if code == 900913 {
		code = 3857
	}
	if e, ok := registry[code]; ok {
		return e, true
	}
	if zone, north, ok := utmZone(code); ok {
		return utmEntry(zone, north), true
	}
	return entry{}, false
}

func utmZone(code int) (zone int, north, ok bool) {
	switch {
	case code >= 32601 && code <= 32660:
		return code - 32600, true, true
	case code >= 32701 && code <= 32760:
		return code - 32700, false, true
	default:
		return 0, false, false
	}
}

func utmEntry(zone int, north bool) entry {
	hemi := "N"
	fn := 0.0
	if !north {
		hemi = "S"
		fn = 10000000.0
	}
	lng0 := float64(zone)*6 - 183
	return entry{
		name: fmt.Sprintf("WGS 84 / UTM zone %d%s", zone, hemi),
		build: func() Transform {
			return newTransverseMercator(wgs84Ellipsoid, 0.9996, lng0, 0.0, 500000.0, fn, nil)
		},
	}
}

// FromSRID resolves a numeric EPSG code to a supported CRS.
func FromSRID(code int) (CRS, error) {
	if code == 900913 {
		code = 3857
	}
	e, ok := lookup(code)
	if !ok {
		return CRS{}, eris.Errorf("projection: unsupported srid %d", code)
	}
	return CRS{Code: code, Name: e.name}, nil
}

// Transformer returns the Transform converting coordinates in crs to
// WGS84.
func Transformer(crs CRS) (Transform, error) {
	e, ok := lookup(crs.Code)
	if !ok {
		return nil, eris.Errorf("projection: no transform for %s", crs)
	}
	return e.build(), nil
}
