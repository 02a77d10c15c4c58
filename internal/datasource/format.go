// Package datasource converts user-supplied GIS files into a
// normalized, validated description of a spatial dataset. One ingester
// handles one file in a single pass: it resolves the coordinate
// system, streams features through geometry validation and attribute
// schema inference, and produces a SpatialDataSource carrying the
// uniform geometry type, feature count, attribute schema, WGS84
// envelope and any non-fatal issues found along the way.
package datasource

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies a supported GIS file format.
type Format string

const (
	FormatShapefile  Format = "shapefile"
	FormatGeoJSON    Format = "geojson"
	FormatGeoPackage Format = "geopackage"
)

// Formats lists every supported format in display order.
func Formats() []Format {
	return []Format{FormatShapefile, FormatGeoJSON, FormatGeoPackage}
}

// UnsupportedFormatError reports a format outside the closed set the
// ingester dispatches over.
type UnsupportedFormatError struct {
	Format Format
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("datasource: unsupported format %q", string(e.Format))
}

// ParseFormat maps user-facing format names to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shapefile", "shp":
		return FormatShapefile, nil
	case "geojson", "json":
		return FormatGeoJSON, nil
	case "geopackage", "gpkg":
		return FormatGeoPackage, nil
	default:
		return "", &UnsupportedFormatError{Format: Format(s)}
	}
}

// FormatForPath infers the format from the file extension of path.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return FormatShapefile, nil
	case ".geojson", ".json":
		return FormatGeoJSON, nil
	case ".gpkg":
		return FormatGeoPackage, nil
	default:
		return "", &UnsupportedFormatError{Format: Format(strings.TrimPrefix(filepath.Ext(path), "."))}
	}
}
