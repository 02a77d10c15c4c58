package projection

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// FromURN resolves the CRS name forms found in GeoJSON crs members and
// GeoPackage metadata: "EPSG:4326", "urn:ogc:def:crs:EPSG::2326",
// "urn:ogc:def:crs:OGC:1.3:CRS84" and the OGC http URI form.
func FromURN(name string) (CRS, error) {
	t := strings.TrimSpace(name)
	if t == "" {
		return CRS{}, eris.New("projection: empty crs name")
	}

	upper := strings.ToUpper(t)
	if strings.Contains(upper, "CRS84") || strings.Contains(upper, "CRS:84") {
		return WGS84, nil
	}

	fields := strings.FieldsFunc(upper, func(r rune) bool {
		return r == ':' || r == '/' || r == ','
	})
	for i := len(fields) - 1; i >= 0; i-- {
		if code, err := strconv.Atoi(fields[i]); err == nil {
			return FromSRID(code)
		}
	}

	return CRS{}, eris.Errorf("projection: cannot parse crs name %q", name)
}

var (
	wktAuthorityRe = regexp.MustCompile(`(?i)AUTHORITY\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)
	wktQuotedRe    = regexp.MustCompile(`"([^"]*)"`)
	wktUTMRe       = regexp.MustCompile(`UTMZONE(\d{1,2})([NS])`)
	wktNonAlnumRe  = regexp.MustCompile(`[^A-Z0-9]+`)
)

// wktNames maps normalized coordinate system names to EPSG codes for
// the common case of .prj files written without AUTHORITY nodes. Both
// the EPSG and the ESRI spellings of each supported system appear.
var wktNames = map[string]int{
	"WGS84":                4326,
	"WGS1984":              4326,
	"GCSWGS1984":           4326,
	"NAD83":                4269,
	"NAD1983":              4269,
	"GCSNORTHAMERICAN1983": 4269,
	"NZGD2000":             4167,
	"GCSNZGD2000":          4167,

	"WGS84PSEUDOMERCATOR":               3857,
	"WGS1984WEBMERCATORAUXILIARYSPHERE": 3857,

	"HONGKONG1980GRID":       2326,
	"HONGKONG1980GRIDSYSTEM": 2326,

	"NZGD2000NEWZEALANDTRANSVERSEMERCATOR2000": 2193,
	"NZGD2000NEWZEALANDTRANSVERSEMERCATOR":     2193,

	"BRITISHNATIONALGRID":         27700,
	"OSGB36BRITISHNATIONALGRID":   27700,
	"OSGB1936BRITISHNATIONALGRID": 27700,
}

// FromWKT resolves the WKT found in shapefile .prj sidecars. The
// outermost AUTHORITY node wins when present; otherwise the coordinate
// system name is matched against the supported systems.
func FromWKT(wkt string) (CRS, error) {
	t := strings.TrimSpace(wkt)
	if t == "" {
		return CRS{}, eris.New("projection: empty wkt")
	}

	// The authority of the outermost PROJCS or GEOGCS node is the last
	// one in document order; nested datum and unit authorities come
	// before it.
	if ms := wktAuthorityRe.FindAllStringSubmatch(t, -1); len(ms) > 0 {
		code, err := strconv.Atoi(ms[len(ms)-1][1])
		if err == nil {
			return FromSRID(code)
		}
	}

	name := ""
	if m := wktQuotedRe.FindStringSubmatch(t); m != nil {
		name = m[1]
	}
	normalized := wktNonAlnumRe.ReplaceAllString(strings.ToUpper(name), "")

	if code, ok := wktNames[normalized]; ok {
		return FromSRID(code)
	}
	if m := wktUTMRe.FindStringSubmatch(normalized); m != nil {
		zone, err := strconv.Atoi(m[1])
		if err == nil && zone >= 1 && zone <= 60 {
			base := 32600
			if m[2] == "S" {
				base = 32700
			}
			return FromSRID(base + zone)
		}
	}

	return CRS{}, eris.Errorf("projection: unrecognized coordinate system %q", name)
}
