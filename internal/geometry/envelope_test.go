package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/twpayne/go-geom"
)

func TestEmptyEnvelope(t *testing.T) {
	e := EmptyEnvelope()

	assert.True(t, e.IsEmpty())
	assert.False(t, e.Contains(0, 0))
}

func TestEnvelope_ExtendXY(t *testing.T) {
	e := EmptyEnvelope()
	e.ExtendXY(114.2, 22.3)

	assert.False(t, e.IsEmpty())
	assert.Equal(t, 114.2, e.MinLng)
	assert.Equal(t, 114.2, e.MaxLng)
	assert.Equal(t, 22.3, e.MinLat)
	assert.Equal(t, 22.3, e.MaxLat)

	e.ExtendXY(114.0, 22.5)
	assert.Equal(t, 114.0, e.MinLng)
	assert.Equal(t, 114.2, e.MaxLng)
	assert.Equal(t, 22.5, e.MaxLat)
}

func TestEnvelope_ExtendGeometry(t *testing.T) {
	e := EmptyEnvelope()
	ls := geom.NewLineStringFlat(geom.XY, []float64{114.1, 22.2, 114.3, 22.4})
	e.Extend(ls)

	assert.Equal(t, 114.1, e.MinLng)
	assert.Equal(t, 114.3, e.MaxLng)
	assert.Equal(t, 22.2, e.MinLat)
	assert.Equal(t, 22.4, e.MaxLat)
}

func TestEnvelope_Union(t *testing.T) {
	a := EmptyEnvelope()
	a.ExtendXY(0, 0)
	a.ExtendXY(1, 1)

	b := EmptyEnvelope()
	b.ExtendXY(2, -1)

	a.Union(b)
	assert.Equal(t, 0.0, a.MinLng)
	assert.Equal(t, 2.0, a.MaxLng)
	assert.Equal(t, -1.0, a.MinLat)
	assert.Equal(t, 1.0, a.MaxLat)

	// Unioning an empty envelope changes nothing.
	a.Union(EmptyEnvelope())
	assert.Equal(t, 2.0, a.MaxLng)
}

func TestEnvelope_Contains(t *testing.T) {
	e := EmptyEnvelope()
	e.ExtendXY(114.0, 22.0)
	e.ExtendXY(115.0, 23.0)

	assert.True(t, e.Contains(114.5, 22.5))
	assert.True(t, e.Contains(114.0, 22.0)) // boundary
	assert.False(t, e.Contains(113.9, 22.5))
	assert.False(t, e.Contains(114.5, 23.1))
}

func TestEnvelope_Center(t *testing.T) {
	e := EmptyEnvelope()
	e.ExtendXY(114.0, 22.0)
	e.ExtendXY(115.0, 23.0)

	lng, lat := e.Center()
	assert.InDelta(t, 114.5, lng, 1e-12)
	assert.InDelta(t, 22.5, lat, 1e-12)
}
