package geometry

import (
	"math"

	"github.com/twpayne/go-geom"
)

// Envelope is an axis-aligned bounding box in WGS84 degrees.
type Envelope struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// EmptyEnvelope returns an envelope containing nothing. Extending it
// with any point yields exactly that point.
func EmptyEnvelope() Envelope {
	return Envelope{
		MinLng: math.Inf(1),
		MinLat: math.Inf(1),
		MaxLng: math.Inf(-1),
		MaxLat: math.Inf(-1),
	}
}

// EnvelopeOf returns the bounding envelope of a single geometry.
func EnvelopeOf(g geom.T) Envelope {
	e := EmptyEnvelope()
	e.Extend(g)
	return e
}

// IsEmpty reports whether the envelope contains no points.
func (e Envelope) IsEmpty() bool {
	return e.MinLng > e.MaxLng || e.MinLat > e.MaxLat
}

// ExtendXY grows the envelope to include the point (lng, lat).
func (e *Envelope) ExtendXY(lng, lat float64) {
	if lng < e.MinLng {
		e.MinLng = lng
	}
	if lng > e.MaxLng {
		e.MaxLng = lng
	}
	if lat < e.MinLat {
		e.MinLat = lat
	}
	if lat > e.MaxLat {
		e.MaxLat = lat
	}
}

// Extend grows the envelope to include every coordinate of g.
func (e *Envelope) Extend(g geom.T) {
	if g == nil {
		return
	}
	flat := g.FlatCoords()
	stride := g.Stride()
	if stride < 2 {
		return
	}
	for i := 0; i+1 < len(flat); i += stride {
		e.ExtendXY(flat[i], flat[i+1])
	}
}

// Union grows the envelope to include other.
func (e *Envelope) Union(other Envelope) {
	if other.IsEmpty() {
		return
	}
	e.ExtendXY(other.MinLng, other.MinLat)
	e.ExtendXY(other.MaxLng, other.MaxLat)
}

// Contains reports whether (lng, lat) lies inside or on the boundary.
func (e Envelope) Contains(lng, lat float64) bool {
	return lng >= e.MinLng && lng <= e.MaxLng && lat >= e.MinLat && lat <= e.MaxLat
}

// Center returns the midpoint of the envelope.
func (e Envelope) Center() (lng, lat float64) {
	return (e.MinLng + e.MaxLng) / 2, (e.MinLat + e.MaxLat) / 2
}
