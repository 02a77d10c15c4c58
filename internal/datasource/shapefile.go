package datasource

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/urbanatlas/spatial-cli/internal/geometry"
	"github.com/urbanatlas/spatial-cli/internal/projection"
)

// shapefileReader streams a .shp file together with its .dbf attribute
// table and .prj coordinate system sidecars. Both sidecars are
// required; guessing either one silently is exactly the defect class
// this pipeline exists to catch.
type shapefileReader struct {
	reader  *shp.Reader
	crs     projection.CRS
	schema  []SpatialAttribute
	fields  []shp.Field
	names   []string
	decoder *encoding.Decoder // nil without a usable .cpg
	issues  []string
}

func openShapefile(path string) (FeatureReader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, wrapFormatError(err, "shapefile: cannot read %s", path)
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))

	if _, err := os.Stat(base + ".dbf"); err != nil {
		return nil, formatErrorf("shapefile: %s has no .dbf sidecar, the attribute table is required", filepath.Base(path))
	}

	prj, err := os.ReadFile(base + ".prj")
	if err != nil {
		return nil, formatErrorf("shapefile: %s has no .prj sidecar, the coordinate system must be declared", filepath.Base(path))
	}
	crs, err := projection.FromWKT(string(prj))
	if err != nil {
		return nil, wrapFormatError(err, "shapefile: %s declares an unusable coordinate system", filepath.Base(base)+".prj")
	}

	r := &shapefileReader{crs: crs}
	r.loadCharset(base + ".cpg")

	reader, err := shp.Open(path)
	if err != nil {
		return nil, wrapFormatError(err, "shapefile: open %s", path)
	}
	r.reader = reader

	r.fields = reader.Fields()
	r.names = make([]string, len(r.fields))
	r.schema = make([]SpatialAttribute, 0, len(r.fields)+1)
	r.schema = append(r.schema, SpatialAttribute{Name: "geometry", Type: AttributeGeometry})
	for i, f := range r.fields {
		name := strings.TrimRight(f.String(), "\x00")
		r.names[i] = name
		r.schema = append(r.schema, SpatialAttribute{Name: name, Type: dbfFieldType(f.Fieldtype)})
	}

	return r, nil
}

func dbfFieldType(fieldType byte) AttributeType {
	switch fieldType {
	case 'N', 'F':
		return AttributeNumber
	case 'C', 'D':
		return AttributeText
	default:
		return AttributeOther
	}
}

// loadCharset reads the optional .cpg sidecar naming the attribute
// table charset. An unknown label degrades to UTF-8 with an issue
// instead of failing the ingest.
func (r *shapefileReader) loadCharset(path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	label := strings.TrimSpace(string(raw))
	if label == "" {
		return
	}
	enc, err := htmlindex.Get(cpgLabel(label))
	if err != nil {
		r.issues = append(r.issues, fmt.Sprintf("unsupported .cpg charset %q, reading attributes as utf-8", label))
		return
	}
	r.decoder = enc.NewDecoder()
}

// cpgLabel translates the charset spellings seen in .cpg files to
// WHATWG labels htmlindex understands.
func cpgLabel(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	l = strings.ReplaceAll(l, " ", "-")
	switch l {
	case "utf8":
		return "utf-8"
	case "cp932":
		return "shift_jis"
	case "cp936":
		return "gbk"
	case "cp950":
		return "big5"
	}
	if n := strings.TrimPrefix(l, "cp"); n != l {
		return "windows-" + n
	}
	if _, err := strconv.Atoi(l); err == nil {
		return "windows-" + l
	}
	return l
}

func (r *shapefileReader) CRS() projection.CRS        { return r.crs }
func (r *shapefileReader) Schema() []SpatialAttribute { return r.schema }
func (r *shapefileReader) Count() int                 { return -1 }
func (r *shapefileReader) Issues() []string           { return r.issues }
func (r *shapefileReader) Close() error               { return r.reader.Close() }

func (r *shapefileReader) Next() (*Feature, error) {
	if !r.reader.Next() {
		return nil, io.EOF
	}
	_, shape := r.reader.Shape()

	props := make([]Property, 0, len(r.fields))
	for i, f := range r.fields {
		raw := strings.TrimRight(r.reader.Attribute(i), "\x00")
		props = append(props, Property{Key: r.names[i], Value: r.fieldValue(f.Fieldtype, raw)})
	}

	return &Feature{Geometry: geometry.FromShape(shape), Properties: props}, nil
}

// fieldValue converts a raw DBF string to a typed value following the
// field's declared type. Blank values become nil; numerics that do not
// parse stay strings so the schema inference records the defect.
func (r *shapefileReader) fieldValue(fieldType byte, raw string) any {
	val := strings.TrimSpace(raw)
	if val == "" {
		return nil
	}

	switch fieldType {
	case 'N', 'F':
		n, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return r.decodeText(val)
		}
		return n
	case 'L':
		switch val {
		case "T", "t", "Y", "y":
			return true
		case "F", "f", "N", "n":
			return false
		default:
			return nil
		}
	default:
		return r.decodeText(val)
	}
}

func (r *shapefileReader) decodeText(s string) string {
	if r.decoder == nil {
		return s
	}
	out, err := r.decoder.String(s)
	if err != nil {
		return s
	}
	return out
}
