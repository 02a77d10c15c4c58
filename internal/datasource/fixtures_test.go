package datasource

import (
	"database/sql"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// The clean three-feature dataset every format fixture encodes: simple
// polygons over Hong Kong with a text Name and a numeric Count column.
type fixtureFeature struct {
	ring  [][]float64
	name  string
	count int
}

var hkFeaturesWGS84 = []fixtureFeature{
	{
		ring: [][]float64{
			{114.15, 22.28}, {114.20, 22.28}, {114.20, 22.31}, {114.15, 22.31}, {114.15, 22.28},
		},
		name: "Central", count: 11,
	},
	{
		ring: [][]float64{
			{114.22, 22.25}, {114.27, 22.25}, {114.27, 22.29}, {114.22, 22.29}, {114.22, 22.25},
		},
		name: "Island East", count: 7,
	},
	{
		ring: [][]float64{
			{114.12, 22.32}, {114.17, 22.32}, {114.17, 22.335}, {114.12, 22.335}, {114.12, 22.32},
		},
		name: "Kowloon West", count: 23,
	},
}

// The same polygons expressed in the Hong Kong 1980 Grid System
// (EPSG:2326), meters of easting and northing.
var hkFeaturesGrid = []fixtureFeature{
	{
		ring: [][]float64{
			{833498.376, 815681.299}, {838651.290, 815681.236}, {838650.780, 819003.267},
			{833498.966, 819003.329}, {833498.376, 815681.299},
		},
		name: "Central", count: 11,
	},
	{
		ring: [][]float64{
			{840713.404, 812359.670}, {845867.419, 812361.992}, {845864.690, 816791.357},
			{840712.139, 816789.031}, {840713.404, 812359.670},
		},
		name: "Island East", count: 7,
	},
	{
		ring: [][]float64{
			{830408.294, 820111.533}, {835559.742, 820110.446}, {835559.817, 821771.468},
			{830408.920, 821772.555}, {830408.294, 820111.533},
		},
		name: "Kowloon West", count: 23,
	},
}

// A well-formed New Zealand polygon followed by one reaching across
// the 180th meridian to the Chatham Islands.
var nzFeatures = []fixtureFeature{
	{
		ring: [][]float64{
			{172.0, -43.0}, {173.0, -43.0}, {173.0, -42.0}, {172.0, -42.0}, {172.0, -43.0},
		},
		name: "Canterbury", count: 5,
	},
	{
		ring: [][]float64{
			{175.0, -41.0}, {179.9, -43.5}, {-176.2, -44.0}, {-176.5, -43.8}, {175.0, -41.0},
		},
		name: "Chatham Reach", count: 2,
	},
}

const wgs84PrjWKT = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

const hongKongPrjWKT = `PROJCS["Hong_Kong_1980_Grid",GEOGCS["GCS_Hong_Kong_1980",DATUM["D_Hong_Kong_1980",SPHEROID["International_1924",6378388.0,297.0]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["False_Easting",836694.05],PARAMETER["False_Northing",819069.8],PARAMETER["Central_Meridian",114.1785555555556],PARAMETER["Scale_Factor",1.0],PARAMETER["Latitude_Of_Origin",22.31213333333333],UNIT["Meter",1.0]]`

// writeShapefile authors a .shp with its .dbf and .prj sidecars.
// Shapefile outer rings run clockwise, so rings are reversed on the
// way in.
func writeShapefile(t *testing.T, path, prjWKT string, features []fixtureFeature) string {
	t.Helper()

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	w.SetFields([]shp.Field{
		shp.StringField("Name", 30),
		shp.NumberField("Count", 10),
	})

	for row, f := range features {
		points := make([]shp.Point, len(f.ring))
		for i := range f.ring {
			rev := f.ring[len(f.ring)-1-i]
			points[i] = shp.Point{X: rev[0], Y: rev[1]}
		}
		poly := (*shp.Polygon)(shp.NewPolyLine([][]shp.Point{points}))
		w.Write(poly)
		w.WriteAttribute(row, 0, f.name)
		w.WriteAttribute(row, 1, f.count)
	}
	w.Close()

	base := path[:len(path)-len(filepath.Ext(path))]
	require.NoError(t, os.WriteFile(base+".prj", []byte(prjWKT), 0o644))
	return path
}

func writeHKShapefileWGS84(t *testing.T, dir string) string {
	t.Helper()
	return writeShapefile(t, filepath.Join(dir, "hk-districts.shp"), wgs84PrjWKT, hkFeaturesWGS84)
}

func writeHKShapefileGrid(t *testing.T, dir string) string {
	t.Helper()
	return writeShapefile(t, filepath.Join(dir, "hk-districts-grid.shp"), hongKongPrjWKT, hkFeaturesGrid)
}

func writeAntimeridianShapefile(t *testing.T, dir string) string {
	t.Helper()
	return writeShapefile(t, filepath.Join(dir, "nz-chatham.shp"), wgs84PrjWKT, nzFeatures)
}

const hkGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature",
     "geometry": {"type": "Polygon", "coordinates": [[[114.15,22.28],[114.20,22.28],[114.20,22.31],[114.15,22.31],[114.15,22.28]]]},
     "properties": {"Name": "Central", "Count": 11}},
    {"type": "Feature",
     "geometry": {"type": "Polygon", "coordinates": [[[114.22,22.25],[114.27,22.25],[114.27,22.29],[114.22,22.29],[114.22,22.25]]]},
     "properties": {"Name": "Island East", "Count": 7}},
    {"type": "Feature",
     "geometry": {"type": "Polygon", "coordinates": [[[114.12,22.32],[114.17,22.32],[114.17,22.335],[114.12,22.335],[114.12,22.32]]]},
     "properties": {"Name": "Kowloon West", "Count": 23}}
  ]
}`

// The legacy crs member declaring a projected system, which GeoJSON
// forbids. Coordinates are Hong Kong 1980 grid meters.
const hkGeoJSONProjected = `{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::2326"}},
  "features": [
    {"type": "Feature",
     "geometry": {"type": "Polygon", "coordinates": [[[833498.376,815681.299],[838651.290,815681.236],[838650.780,819003.267],[833498.966,819003.329],[833498.376,815681.299]]]},
     "properties": {"Name": "Central", "Count": 11}}
  ]
}`

const nzGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature",
     "geometry": {"type": "Polygon", "coordinates": [[[172.0,-43.0],[173.0,-43.0],[173.0,-42.0],[172.0,-42.0],[172.0,-43.0]]]},
     "properties": {"Name": "Canterbury", "Count": 5}},
    {"type": "Feature",
     "geometry": {"type": "Polygon", "coordinates": [[[175.0,-41.0],[179.9,-43.5],[-176.2,-44.0],[-176.5,-43.8],[175.0,-41.0]]]},
     "properties": {"Name": "Chatham Reach", "Count": 2}}
  ]
}`

func writeGeoJSON(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeHKGeoJSON(t *testing.T, dir string) string {
	t.Helper()
	return writeGeoJSON(t, dir, "hk-districts.geojson", hkGeoJSON)
}

// writeGeoPackage authors a minimal GeoPackage: the three mandatory
// metadata tables plus one feature table.
func writeGeoPackage(t *testing.T, path string, srsID int, features []fixtureFeature) string {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, ddl := range []string{
		`CREATE TABLE gpkg_spatial_ref_sys (
			srs_name TEXT NOT NULL,
			srs_id INTEGER PRIMARY KEY,
			organization TEXT NOT NULL,
			organization_coordsys_id INTEGER NOT NULL,
			definition TEXT NOT NULL,
			description TEXT
		)`,
		`CREATE TABLE gpkg_contents (
			table_name TEXT PRIMARY KEY,
			data_type TEXT NOT NULL,
			identifier TEXT,
			description TEXT,
			last_change DATETIME,
			min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
			srs_id INTEGER
		)`,
		`CREATE TABLE gpkg_geometry_columns (
			table_name TEXT NOT NULL,
			column_name TEXT NOT NULL,
			geometry_type_name TEXT NOT NULL,
			srs_id INTEGER NOT NULL,
			z TINYINT NOT NULL,
			m TINYINT NOT NULL
		)`,
		`CREATE TABLE districts (
			fid INTEGER PRIMARY KEY AUTOINCREMENT,
			geometry BLOB,
			"Name" TEXT,
			"Count" INTEGER
		)`,
	} {
		_, err := db.Exec(ddl)
		require.NoError(t, err)
	}

	_, err = db.Exec(
		`INSERT INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition) VALUES (?, ?, 'EPSG', ?, '')`,
		"srs", srsID, srsID,
	)
	require.NoError(t, err)
	_, err = db.Exec(
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, srs_id) VALUES ('districts', 'features', 'districts', ?)`,
		srsID,
	)
	require.NoError(t, err)
	_, err = db.Exec(
		`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m) VALUES ('districts', 'geometry', 'POLYGON', ?, 0, 0)`,
		srsID,
	)
	require.NoError(t, err)

	for _, f := range features {
		flat := make([]float64, 0, len(f.ring)*2)
		for _, c := range f.ring {
			flat = append(flat, c[0], c[1])
		}
		poly := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
		_, err = db.Exec(
			`INSERT INTO districts (geometry, "Name", "Count") VALUES (?, ?, ?)`,
			gpkgBlob(t, poly, srsID), f.name, f.count,
		)
		require.NoError(t, err)
	}

	return path
}

// openFixtureDB reopens a written GeoPackage so a test can tamper
// with it.
func openFixtureDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	return db
}

// gpkgBlob wraps WKB in a GeoPackageBinary header with no envelope.
func gpkgBlob(t *testing.T, g geom.T, srsID int) []byte {
	t.Helper()

	payload, err := wkb.Marshal(g, wkb.NDR)
	require.NoError(t, err)

	header := make([]byte, 8)
	header[0], header[1] = 'G', 'P'
	header[2] = 0    // version
	header[3] = 0x01 // little endian, no envelope
	binary.LittleEndian.PutUint32(header[4:], uint32(srsID))
	return append(header, payload...)
}

func writeHKGeoPackageWGS84(t *testing.T, dir string) string {
	t.Helper()
	return writeGeoPackage(t, filepath.Join(dir, "hk-districts.gpkg"), 4326, hkFeaturesWGS84)
}

func writeHKGeoPackageGrid(t *testing.T, dir string) string {
	t.Helper()
	return writeGeoPackage(t, filepath.Join(dir, "hk-districts-grid.gpkg"), 2326, hkFeaturesGrid)
}

func writeAntimeridianGeoPackage(t *testing.T, dir string) string {
	t.Helper()
	return writeGeoPackage(t, filepath.Join(dir, "nz-chatham.gpkg"), 4326, nzFeatures)
}
