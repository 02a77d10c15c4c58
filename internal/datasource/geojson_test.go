package datasource

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestOpenGeoJSON_FeatureDocument(t *testing.T) {
	doc := `{"type": "Feature",
	  "geometry": {"type": "Point", "coordinates": [114.17, 22.30]},
	  "properties": {"Name": "pier"}}`
	path := writeGeoJSON(t, t.TempDir(), "pier.geojson", doc)

	r, err := openGeoJSON(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 1, r.Count())

	f, err := r.Next()
	require.NoError(t, err)
	require.IsType(t, &geom.Point{}, f.Geometry)
	require.Len(t, f.Properties, 1)
	assert.Equal(t, "Name", f.Properties[0].Key)
	assert.Equal(t, "pier", f.Properties[0].Value)

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestOpenGeoJSON_BareGeometry(t *testing.T) {
	doc := `{"type": "Polygon", "coordinates": [[[114.15,22.28],[114.20,22.28],[114.20,22.31],[114.15,22.31],[114.15,22.28]]]}`
	path := writeGeoJSON(t, t.TempDir(), "bare.geojson", doc)

	r, err := openGeoJSON(path)
	require.NoError(t, err)
	defer r.Close()

	f, err := r.Next()
	require.NoError(t, err)
	require.IsType(t, &geom.Polygon{}, f.Geometry)
	assert.Empty(t, f.Properties)
}

func TestOpenGeoJSON_BadDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"not json", `{"type": "FeatureCollection"`, "not valid json"},
		{"no type", `{"features": []}`, "no type member"},
		{"unknown type", `{"type": "Topology"}`, "unknown type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeGeoJSON(t, t.TempDir(), "bad.geojson", tt.doc)
			_, err := openGeoJSON(path)
			require.Error(t, err)
			assert.True(t, IsFormatError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCheckGeoJSONCRS(t *testing.T) {
	named := func(name string) *geojsonCRS {
		crs := &geojsonCRS{Type: "name"}
		crs.Properties.Name = name
		return crs
	}

	assert.NoError(t, checkGeoJSONCRS(nil))
	assert.NoError(t, checkGeoJSONCRS(named("")))
	assert.NoError(t, checkGeoJSONCRS(named("EPSG:4326")))
	assert.NoError(t, checkGeoJSONCRS(named("urn:ogc:def:crs:OGC:1.3:CRS84")))
	assert.NoError(t, checkGeoJSONCRS(named("http://www.opengis.net/def/crs/EPSG/0/4326")))

	err := checkGeoJSONCRS(named("urn:ogc:def:crs:EPSG::2326"))
	require.Error(t, err)
	assert.True(t, IsFormatError(err))
	assert.Contains(t, err.Error(), "value")

	err = checkGeoJSONCRS(&geojsonCRS{Type: "link"})
	require.Error(t, err)
	assert.True(t, IsFormatError(err))
	assert.Contains(t, err.Error(), "link")
}

func TestDecodeGeoJSONProperties_PreservesOrder(t *testing.T) {
	raw := json.RawMessage(`{"zulu": 1, "alpha": "a", "mike": null, "golf": {"nested": true}}`)

	props, err := decodeGeoJSONProperties(raw)
	require.NoError(t, err)
	require.Len(t, props, 4)
	assert.Equal(t, "zulu", props[0].Key)
	assert.Equal(t, 1.0, props[0].Value)
	assert.Equal(t, "alpha", props[1].Key)
	assert.Equal(t, "mike", props[2].Key)
	assert.Nil(t, props[2].Value)
	assert.Equal(t, "golf", props[3].Key)
}

func TestDecodeGeoJSONProperties_RejectsNonObjects(t *testing.T) {
	_, err := decodeGeoJSONProperties(json.RawMessage(`[1, 2]`))
	require.Error(t, err)
}

func TestDecodeGeoJSONGeometry_Null(t *testing.T) {
	g, err := decodeGeoJSONGeometry(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Nil(t, g)

	g, err = decodeGeoJSONGeometry(nil)
	require.NoError(t, err)
	assert.Nil(t, g)
}
