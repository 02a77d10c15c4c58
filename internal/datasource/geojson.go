package datasource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/urbanatlas/spatial-cli/internal/projection"
)

// geojsonReader iterates a GeoJSON document parsed up front. The
// format accepts FeatureCollection, Feature and bare geometry
// documents. GeoJSON mandates WGS84, so a crs member naming any other
// system fails the open instead of being silently ignored.
type geojsonReader struct {
	features []json.RawMessage
	index    int
}

type geojsonCRS struct {
	Type       string `json:"type"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

type geojsonDocument struct {
	Type     string            `json:"type"`
	CRS      *geojsonCRS       `json:"crs"`
	Features []json.RawMessage `json:"features"`
}

type geojsonFeature struct {
	Geometry   json.RawMessage `json:"geometry"`
	Properties json.RawMessage `json:"properties"`
}

func openGeoJSON(path string) (FeatureReader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapFormatError(err, "geojson: cannot read %s", path)
	}

	var doc geojsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, wrapFormatError(err, "geojson: %s is not valid json", filepath.Base(path))
	}

	if err := checkGeoJSONCRS(doc.CRS); err != nil {
		return nil, err
	}

	r := &geojsonReader{}
	switch doc.Type {
	case "FeatureCollection":
		r.features = doc.Features
	case "Feature":
		r.features = []json.RawMessage{data}
	case "Point", "MultiPoint", "LineString", "MultiLineString", "Polygon", "MultiPolygon", "GeometryCollection":
		// A bare geometry document is one feature without properties.
		wrapped, err := json.Marshal(geojsonFeature{Geometry: data})
		if err != nil {
			return nil, wrapFormatError(err, "geojson: %s", filepath.Base(path))
		}
		r.features = []json.RawMessage{wrapped}
	case "":
		return nil, formatErrorf("geojson: %s has no type member", filepath.Base(path))
	default:
		return nil, formatErrorf("geojson: %s has unknown type %q", filepath.Base(path), doc.Type)
	}

	return r, nil
}

// checkGeoJSONCRS enforces the WGS84 mandate. The legacy crs member is
// only acceptable when it names WGS84 or its CRS84 alias; anything
// else is a hard failure so projected coordinates cannot masquerade as
// longitude and latitude.
func checkGeoJSONCRS(crs *geojsonCRS) error {
	if crs == nil {
		return nil
	}
	if crs.Type == "link" {
		return formatErrorf("geojson: crs member uses a link value, coordinates must be declared WGS 84")
	}
	if crs.Properties.Name == "" {
		return nil
	}
	resolved, err := projection.FromURN(crs.Properties.Name)
	if err != nil || !resolved.IsWGS84() {
		return formatErrorf("geojson: crs member has unsupported value %q, coordinates must be WGS 84 longitude and latitude", crs.Properties.Name)
	}
	return nil
}

func (r *geojsonReader) CRS() projection.CRS { return projection.WGS84 }

func (r *geojsonReader) Schema() []SpatialAttribute {
	// GeoJSON declares no attribute schema, but every feature carries
	// a geometry member.
	return []SpatialAttribute{{Name: "geometry", Type: AttributeGeometry}}
}

func (r *geojsonReader) Count() int       { return len(r.features) }
func (r *geojsonReader) Issues() []string { return nil }
func (r *geojsonReader) Close() error     { return nil }

func (r *geojsonReader) Next() (*Feature, error) {
	if r.index >= len(r.features) {
		return nil, io.EOF
	}
	raw := r.features[r.index]
	idx := r.index
	r.index++

	var feat geojsonFeature
	if err := json.Unmarshal(raw, &feat); err != nil {
		return nil, wrapFormatError(err, "geojson: feature %d is malformed", idx)
	}

	g, err := decodeGeoJSONGeometry(feat.Geometry)
	if err != nil {
		return nil, wrapFormatError(err, "geojson: feature %d has malformed geometry", idx)
	}

	props, err := decodeGeoJSONProperties(feat.Properties)
	if err != nil {
		return nil, wrapFormatError(err, "geojson: feature %d has malformed properties", idx)
	}

	return &Feature{Geometry: g, Properties: props}, nil
}

func decodeGeoJSONGeometry(raw json.RawMessage) (geom.T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var g geom.T
	if err := geojson.Unmarshal(trimmed, &g); err != nil {
		return nil, err
	}
	return g, nil
}

// decodeGeoJSONProperties walks the properties object token by token
// so the column order of the file is preserved; decoding into a plain
// map would shuffle it.
func decodeGeoJSONProperties(raw json.RawMessage) ([]Property, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("properties is %v, expected an object", tok)
	}

	var props []Property
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v in properties", keyTok)
		}
		var val any
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		props = append(props, Property{Key: key, Value: val})
	}

	return props, nil
}
