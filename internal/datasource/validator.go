package datasource

import (
	"github.com/twpayne/go-geom"

	"github.com/urbanatlas/spatial-cli/internal/geometry"
)

// geometryValidator accumulates the uniform geometry type and the
// WGS84 envelope across a feature stream. Geometries must already be
// in WGS84 when they reach it.
type geometryValidator struct {
	typ    geometry.Type
	bounds geometry.Envelope
}

func newGeometryValidator() *geometryValidator {
	return &geometryValidator{bounds: geometry.EmptyEnvelope()}
}

// validate folds one geometry into the accumulator. The first geometry
// fixes the dataset type; every later geometry must match it and must
// not straddle the antimeridian. index is the zero-based position of
// the feature in the file, used only for messages.
func (v *geometryValidator) validate(index int, g geom.T) error {
	typ, ok := geometry.TypeOf(g)
	if !ok {
		return formatErrorf("feature %d has unsupported geometry %T", index, g)
	}

	if v.typ == "" {
		v.typ = typ
	} else if typ != v.typ {
		return formatErrorf("feature %d is a %s but earlier features are %s, geometry must be uniform", index, typ, v.typ)
	}

	if geometry.SpansAntimeridian(g) {
		return geometryErrorf("feature %d crosses the 180 degree meridian, its envelope would wrap the globe", index)
	}

	v.bounds.Extend(g)
	return nil
}
