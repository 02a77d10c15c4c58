package datasource

import (
	"github.com/twpayne/go-geom"

	"github.com/urbanatlas/spatial-cli/internal/projection"
)

// Property is one attribute value of a feature, keyed by column name.
type Property struct {
	Key   string
	Value any
}

// Feature is one record streamed out of a GIS file: a geometry in the
// file's coordinate system plus attribute values in column order. A
// nil Geometry means the record carried none.
type Feature struct {
	Geometry   geom.T
	Properties []Property
}

// FeatureReader streams the features of one GIS file in file order.
// Readers are single-pass: once Next returns io.EOF the file must be
// reopened to read it again.
type FeatureReader interface {
	// CRS returns the coordinate system the file declares, or the
	// format default when the format fixes one.
	CRS() projection.CRS
	// Schema returns the declared columns, geometry column included,
	// or nil when the format declares no schema.
	Schema() []SpatialAttribute
	// Count returns the number of features when the format can say
	// cheaply, or -1.
	Count() int
	// Issues returns non-fatal anomalies found while opening, such as
	// an unreadable charset declaration.
	Issues() []string
	// Next returns the next feature, or io.EOF when exhausted.
	Next() (*Feature, error)
	// Close releases the underlying file handles.
	Close() error
}

// OpenReader opens path as the given format. Malformed files, missing
// sidecars and unusable coordinate declarations fail here with a
// KindFormat error.
func OpenReader(format Format, path string) (FeatureReader, error) {
	switch format {
	case FormatShapefile:
		return openShapefile(path)
	case FormatGeoJSON:
		return openGeoJSON(path)
	case FormatGeoPackage:
		return openGeoPackage(path)
	default:
		return nil, &UnsupportedFormatError{Format: format}
	}
}
