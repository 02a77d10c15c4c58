package projection

import "math"

type ellipsoid struct {
	a    float64 // semi-major axis in meters
	invF float64 // inverse flattening
}

var (
	wgs84Ellipsoid = ellipsoid{a: 6378137.0, invF: 298.257223563}
	grs80          = ellipsoid{a: 6378137.0, invF: 298.257222101}
	airy1830       = ellipsoid{a: 6377563.396, invF: 299.3249646}
	intl1924       = ellipsoid{a: 6378388.0, invF: 297.0}
)

func (e ellipsoid) f() float64  { return 1 / e.invF }
func (e ellipsoid) e2() float64 { return e.f() * (2 - e.f()) }

// datumShift is a position vector Helmert transformation to WGS84.
// Translations in meters, rotations in arc seconds, scale in parts per
// million, following the EPSG/PROJ towgs84 convention.
type datumShift struct {
	tx, ty, tz float64
	rx, ry, rz float64
	ds         float64
}

// transverseMercator inverts a Transverse Mercator projection using the
// standard series expansion (USGS Professional Paper 1395). The series
// is accurate to well under a millimeter within a zone; points far
// outside the intended zone degrade gracefully rather than erroring.
type transverseMercator struct {
	ell   ellipsoid
	k0    float64
	lng0  float64 // radians
	fe    float64
	fn    float64
	shift *datumShift // nil when the source datum is WGS84-equivalent

	e2, ep2, e1 float64
	m0          float64 // meridional arc at the latitude of origin
	mf          float64 // a * (1 - e2/4 - 3e4/64 - 5e6/256)
}

func newTransverseMercator(ell ellipsoid, k0, lng0Deg, lat0Deg, fe, fn float64, shift *datumShift) *transverseMercator {
	e2 := ell.e2()
	t := &transverseMercator{
		ell:   ell,
		k0:    k0,
		lng0:  lng0Deg * math.Pi / 180,
		fe:    fe,
		fn:    fn,
		shift: shift,
		e2:    e2,
		ep2:   e2 / (1 - e2),
		e1:    (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2)),
		mf:    ell.a * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256),
	}
	t.m0 = t.meridionalArc(lat0Deg * math.Pi / 180)
	return t
}

func (t *transverseMercator) meridionalArc(lat float64) float64 {
	e2 := t.e2
	e4 := e2 * e2
	e6 := e4 * e2
	return t.ell.a * ((1-e2/4-3*e4/64-5*e6/256)*lat -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*lat) +
		(15*e4/256+45*e6/1024)*math.Sin(4*lat) -
		(35*e6/3072)*math.Sin(6*lat))
}

func (t *transverseMercator) ToWGS84(x, y float64) (float64, float64) {
	m := t.m0 + (y-t.fn)/t.k0
	mu := m / t.mf

	e1 := t.e1
	phi1 := mu +
		(3*e1/2-27*e1*e1*e1/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*e1*e1*e1*e1/32)*math.Sin(4*mu) +
		(151*e1*e1*e1/96)*math.Sin(6*mu) +
		(1097*e1*e1*e1*e1/512)*math.Sin(8*mu)

	sin1 := math.Sin(phi1)
	cos1 := math.Cos(phi1)
	tan1 := math.Tan(phi1)

	c1 := t.ep2 * cos1 * cos1
	t1 := tan1 * tan1
	n1 := t.ell.a / math.Sqrt(1-t.e2*sin1*sin1)
	r1 := t.ell.a * (1 - t.e2) / math.Pow(1-t.e2*sin1*sin1, 1.5)
	d := (x - t.fe) / (n1 * t.k0)

	d2 := d * d
	lat := phi1 - (n1*tan1/r1)*(d2/2-
		(5+3*t1+10*c1-4*c1*c1-9*t.ep2)*d2*d2/24+
		(61+90*t1+298*c1+45*t1*t1-252*t.ep2-3*c1*c1)*d2*d2*d2/720)
	lng := t.lng0 + (d-
		(1+2*t1+c1)*d2*d/6+
		(5-2*c1+28*t1-3*c1*c1+8*t.ep2+24*t1*t1)*d2*d2*d/120)/cos1

	lngDeg := lng * 180 / math.Pi
	latDeg := lat * 180 / math.Pi

	if t.shift != nil {
		lngDeg, latDeg = t.shift.apply(t.ell, lngDeg, latDeg)
	}

	return normalizeLng(lngDeg), latDeg
}

// apply converts a geodetic coordinate on the source ellipsoid to WGS84
// via geocentric coordinates.
func (s *datumShift) apply(src ellipsoid, lngDeg, latDeg float64) (float64, float64) {
	x, y, z := geodeticToXYZ(src, lngDeg, latDeg)

	scale := 1 + s.ds*1e-6
	rx := s.rx / 3600 * math.Pi / 180
	ry := s.ry / 3600 * math.Pi / 180
	rz := s.rz / 3600 * math.Pi / 180

	x2 := s.tx + scale*(x-rz*y+ry*z)
	y2 := s.ty + scale*(rz*x+y-rx*z)
	z2 := s.tz + scale*(-ry*x+rx*y+z)

	return xyzToGeodetic(wgs84Ellipsoid, x2, y2, z2)
}

func geodeticToXYZ(ell ellipsoid, lngDeg, latDeg float64) (x, y, z float64) {
	lng := lngDeg * math.Pi / 180
	lat := latDeg * math.Pi / 180
	e2 := ell.e2()
	n := ell.a / math.Sqrt(1-e2*math.Sin(lat)*math.Sin(lat))
	x = n * math.Cos(lat) * math.Cos(lng)
	y = n * math.Cos(lat) * math.Sin(lng)
	z = n * (1 - e2) * math.Sin(lat)
	return x, y, z
}

func xyzToGeodetic(ell ellipsoid, x, y, z float64) (lngDeg, latDeg float64) {
	e2 := ell.e2()
	b := ell.a * (1 - ell.f())
	ep2 := (ell.a*ell.a - b*b) / (b * b)

	p := math.Hypot(x, y)
	th := math.Atan2(z*ell.a, p*b)
	lng := math.Atan2(y, x)
	lat := math.Atan2(z+ep2*b*math.Pow(math.Sin(th), 3), p-e2*ell.a*math.Pow(math.Cos(th), 3))

	// A few fixed-point passes tighten Bowring's first approximation to
	// sub-millimeter for near-surface points.
	for i := 0; i < 3; i++ {
		sin := math.Sin(lat)
		n := ell.a / math.Sqrt(1-e2*sin*sin)
		h := p/math.Cos(lat) - n
		lat = math.Atan2(z, p*(1-e2*n/(n+h)))
	}

	return lng * 180 / math.Pi, lat * 180 / math.Pi
}

func normalizeLng(lng float64) float64 {
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return lng
}

type identity struct{}

func (identity) ToWGS84(x, y float64) (float64, float64) {
	return x, y
}

// webMercator inverts the spherical Pseudo-Mercator projection used by
// web map tiles.
type webMercator struct{}

const webMercatorRadius = 6378137.0

func (webMercator) ToWGS84(x, y float64) (float64, float64) {
	lng := x / webMercatorRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/webMercatorRadius)) - math.Pi/2) * 180 / math.Pi
	return normalizeLng(lng), lat
}
