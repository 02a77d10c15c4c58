package datasource

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/urbanatlas/spatial-cli/internal/projection"
)

// geopackageReader streams the single feature table of a GeoPackage.
// The container is opened read only; geometry arrives as GeoPackage
// binary blobs wrapping standard WKB.
type geopackageReader struct {
	db       *sql.DB
	rows     *sql.Rows
	crs      projection.CRS
	schema   []SpatialAttribute
	columns  []string
	geomCol  string
	count    int
	index    int
	scanBuf  []any
	scanPtrs []any
}

func openGeoPackage(path string) (FeatureReader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, wrapFormatError(err, "geopackage: cannot read %s", path)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, wrapFormatError(err, "geopackage: open %s", path)
	}

	r := &geopackageReader{db: db}
	if err := r.load(filepath.Base(path)); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// load resolves the feature table, its coordinate system and its
// column schema from the GeoPackage metadata tables.
func (r *geopackageReader) load(name string) error {
	rows, err := r.db.Query(`SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY table_name`)
	if err != nil {
		return wrapFormatError(err, "geopackage: %s has no gpkg_contents table, not a geopackage", name)
	}
	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			_ = rows.Close()
			return wrapFormatError(err, "geopackage: read gpkg_contents")
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return wrapFormatError(err, "geopackage: read gpkg_contents")
	}
	_ = rows.Close()

	switch len(tables) {
	case 0:
		return formatErrorf("geopackage: %s declares no feature table", name)
	case 1:
	default:
		return formatErrorf("geopackage: %s declares %d feature tables, expected exactly one", name, len(tables))
	}
	table := tables[0]

	var srsID int
	if err := r.db.QueryRow(
		`SELECT column_name, srs_id FROM gpkg_geometry_columns WHERE table_name = ?`, table,
	).Scan(&r.geomCol, &srsID); err != nil {
		return wrapFormatError(err, "geopackage: table %q has no geometry column entry", table)
	}

	crs, err := r.resolveCRS(srsID)
	if err != nil {
		return err
	}
	r.crs = crs

	if err := r.loadSchema(table); err != nil {
		return err
	}

	if err := r.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(table))).Scan(&r.count); err != nil {
		return wrapFormatError(err, "geopackage: count features in %q", table)
	}

	cols := make([]string, len(r.columns))
	for i, c := range r.columns {
		cols[i] = quoteIdent(c)
	}
	r.rows, err = r.db.Query(fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(cols, ", "), quoteIdent(table)))
	if err != nil {
		return wrapFormatError(err, "geopackage: read features from %q", table)
	}

	r.scanBuf = make([]any, len(r.columns))
	r.scanPtrs = make([]any, len(r.columns))
	for i := range r.scanBuf {
		r.scanPtrs[i] = &r.scanBuf[i]
	}
	return nil
}

// resolveCRS maps a gpkg_spatial_ref_sys row to a supported CRS,
// preferring the organization code over the WKT definition.
func (r *geopackageReader) resolveCRS(srsID int) (projection.CRS, error) {
	if srsID == 0 || srsID == -1 {
		// The reserved undefined systems of the GeoPackage spec.
		return projection.CRS{}, formatErrorf("geopackage: feature table has srs_id %d, its coordinate system is undefined", srsID)
	}

	var org string
	var orgID int
	var definition string
	err := r.db.QueryRow(
		`SELECT organization, organization_coordsys_id, COALESCE(definition, '') FROM gpkg_spatial_ref_sys WHERE srs_id = ?`, srsID,
	).Scan(&org, &orgID, &definition)
	if err != nil {
		// Fall back to the srs_id itself; many writers use the EPSG
		// code directly without filling the registry table.
		crs, serr := projection.FromSRID(srsID)
		if serr != nil {
			return projection.CRS{}, wrapFormatError(serr, "geopackage: srs %d is not in gpkg_spatial_ref_sys", srsID)
		}
		return crs, nil
	}

	if strings.EqualFold(org, "epsg") {
		if crs, err := projection.FromSRID(orgID); err == nil {
			return crs, nil
		}
	}
	if crs, err := projection.FromWKT(definition); err == nil {
		return crs, nil
	}

	return projection.CRS{}, formatErrorf("geopackage: unsupported coordinate system %s:%d", org, orgID)
}

// loadSchema reads the feature table columns in declaration order,
// skipping the integer primary key, which is the feature id rather
// than an attribute.
func (r *geopackageReader) loadSchema(table string) error {
	rows, err := r.db.Query(`SELECT name, type, pk FROM pragma_table_info(?)`, table)
	if err != nil {
		return wrapFormatError(err, "geopackage: describe table %q", table)
	}
	defer rows.Close()

	for rows.Next() {
		var colName, declared string
		var pk int
		if err := rows.Scan(&colName, &declared, &pk); err != nil {
			return wrapFormatError(err, "geopackage: describe table %q", table)
		}
		if pk != 0 {
			continue
		}
		typ := sqliteDeclaredType(declared)
		if colName == r.geomCol {
			typ = AttributeGeometry
		}
		r.columns = append(r.columns, colName)
		r.schema = append(r.schema, SpatialAttribute{Name: colName, Type: typ})
	}
	if err := rows.Err(); err != nil {
		return wrapFormatError(err, "geopackage: describe table %q", table)
	}
	if len(r.columns) == 0 {
		return formatErrorf("geopackage: table %q has no readable columns", table)
	}
	return nil
}

// sqliteDeclaredType maps SQLite declared column types to attribute
// types using the affinity keywords.
func sqliteDeclaredType(declared string) AttributeType {
	d := strings.ToUpper(declared)
	switch {
	case strings.Contains(d, "INT"), strings.Contains(d, "REAL"),
		strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"),
		strings.Contains(d, "NUM"), strings.Contains(d, "DEC"):
		return AttributeNumber
	case strings.Contains(d, "CHAR"), strings.Contains(d, "TEXT"),
		strings.Contains(d, "CLOB"), strings.Contains(d, "DATE"):
		return AttributeText
	default:
		return AttributeOther
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (r *geopackageReader) CRS() projection.CRS        { return r.crs }
func (r *geopackageReader) Schema() []SpatialAttribute { return r.schema }
func (r *geopackageReader) Count() int                 { return r.count }
func (r *geopackageReader) Issues() []string           { return nil }

func (r *geopackageReader) Close() error {
	if r.rows != nil {
		_ = r.rows.Close()
	}
	return r.db.Close()
}

func (r *geopackageReader) Next() (*Feature, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, wrapFormatError(err, "geopackage: read feature %d", r.index)
		}
		return nil, io.EOF
	}
	idx := r.index
	r.index++

	if err := r.rows.Scan(r.scanPtrs...); err != nil {
		return nil, wrapFormatError(err, "geopackage: read feature %d", idx)
	}

	feat := &Feature{}
	for i, col := range r.columns {
		val := r.scanBuf[i]
		if col == r.geomCol {
			blob, _ := val.([]byte)
			g, err := decodeGeoPackageBinary(blob)
			if err != nil {
				return nil, wrapFormatError(err, "geopackage: feature %d has a malformed geometry blob", idx)
			}
			feat.Geometry = g
			continue
		}
		feat.Properties = append(feat.Properties, Property{Key: col, Value: sqliteValue(val)})
	}

	return feat, nil
}

// sqliteValue narrows driver values to the kinds schema inference
// understands.
func sqliteValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case int64:
		return float64(t)
	case float64:
		return t
	case string:
		return t
	case []byte:
		return append([]byte(nil), t...)
	case bool:
		return t
	default:
		return t
	}
}

// GeoPackage binary header flag bits.
const (
	gpkgFlagEmpty    = 1 << 4
	gpkgFlagExtended = 1 << 5
)

// decodeGeoPackageBinary unwraps a GeoPackageBinary blob: the "GP"
// magic, version, flags, srs_id and optional envelope, followed by
// standard WKB. A nil geometry is returned for blobs with the empty
// flag set.
func decodeGeoPackageBinary(blob []byte) (geom.T, error) {
	if blob == nil {
		return nil, nil
	}
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, fmt.Errorf("missing GP magic")
	}
	if version := blob[2]; version != 0 {
		return nil, fmt.Errorf("unsupported geopackage binary version %d", version)
	}

	flags := blob[3]
	if flags&gpkgFlagExtended != 0 {
		return nil, fmt.Errorf("extended geopackage geometry is not supported")
	}

	envelopeSize, err := gpkgEnvelopeSize(flags)
	if err != nil {
		return nil, err
	}
	headerLen := 8 + envelopeSize
	if len(blob) < headerLen {
		return nil, fmt.Errorf("truncated header, %d bytes", len(blob))
	}

	if flags&gpkgFlagEmpty != 0 {
		return nil, nil
	}

	g, err := wkb.Unmarshal(blob[headerLen:])
	if err != nil {
		return nil, err
	}
	return g, nil
}

func gpkgEnvelopeSize(flags byte) (int, error) {
	switch indicator := (flags >> 1) & 0x7; indicator {
	case 0:
		return 0, nil
	case 1:
		return 32, nil
	case 2, 3:
		return 48, nil
	case 4:
		return 64, nil
	default:
		return 0, fmt.Errorf("invalid envelope indicator %d", indicator)
	}
}
