// Package polygonindex answers point-in-polygon wait time queries over
// a polygon layer, for modelling pickup delays that vary spatially. A
// layer assigns each polygon a wait time in minutes; where polygons
// overlap the highest priority wins, and a negative wait time means
// the area is not served at all.
package polygonindex

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/urbanatlas/spatial-cli/internal/datasource"
	"github.com/urbanatlas/spatial-cli/internal/geometry"
)

// Options names the attributes a polygon layer carries its wait times
// in. Empty attribute names fall back to the conventional ones.
type Options struct {
	// WaitTimeAttribute is the numeric attribute holding the wait time
	// in minutes. Negative values mean the polygon is not served.
	WaitTimeAttribute string
	// PriorityAttribute is the numeric attribute deciding which polygon
	// wins where several overlap. Missing values rank as zero.
	PriorityAttribute string
	// NameAttribute is the text attribute naming the polygon, used for
	// logging and query results.
	NameAttribute string
	// DefaultWait is returned when no polygon contains the query point.
	DefaultWait float64
}

func (o *Options) applyDefaults() {
	if o.WaitTimeAttribute == "" {
		o.WaitTimeAttribute = "wait"
	}
	if o.PriorityAttribute == "" {
		o.PriorityAttribute = "priority"
	}
	if o.NameAttribute == "" {
		o.NameAttribute = "name"
	}
}

// Unserved reports whether a wait time means the location has no
// service at all.
func Unserved(minutes float64) bool {
	return minutes < 0
}

// Resolver maps a polygon layer reference to a local file path.
// Callers inject one so layers can live behind ids as well as paths.
type Resolver func(ref string) (string, error)

// PathResolver resolves references that are already local file paths.
func PathResolver(ref string) (string, error) {
	if _, err := os.Stat(ref); err != nil {
		return "", eris.Wrapf(err, "polygonindex: resolve %s", ref)
	}
	return ref, nil
}

// gridCells is the resolution of the spatial index along each axis.
const gridCells = 64

type zone struct {
	geom     geom.T
	bounds   geometry.Envelope
	wait     float64
	priority float64
	name     string
}

// Collection is an indexed set of wait time polygons. It is immutable
// after Load and safe for concurrent queries.
type Collection struct {
	opts  Options
	zones []zone
	env   geometry.Envelope
	cells [][]int
	errs  []string
}

// Load reads the polygon layer at path and indexes it for point
// queries. The layer must already be in WGS84. Features that cannot be
// indexed are skipped and reported through Errors rather than failing
// the load.
func Load(ctx context.Context, format datasource.Format, path string, opts Options) (*Collection, error) {
	opts.applyDefaults()

	reader, err := datasource.OpenReader(format, path)
	if err != nil {
		return nil, eris.Wrapf(err, "polygonindex: open %s", path)
	}
	defer reader.Close()

	crs := reader.CRS()
	if !crs.IsWGS84() {
		return nil, eris.Errorf("polygonindex: layer is in %s, reproject it to WGS 84 before indexing", crs)
	}

	c := &Collection{
		opts: opts,
		env:  geometry.EmptyEnvelope(),
		errs: reader.Issues(),
	}

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "polygonindex: load canceled")
		}

		f, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "polygonindex: read feature %d", i)
		}

		c.addFeature(i, f)
	}

	c.buildGrid()

	zap.L().With(zap.String("component", "polygonindex")).Info("polygon layer indexed",
		zap.String("path", path),
		zap.Int("polygons", len(c.zones)),
		zap.Int("errors", len(c.errs)),
	)
	return c, nil
}

// addFeature validates one feature and appends it as a zone, recording
// an error and skipping the feature when it cannot be indexed.
func (c *Collection) addFeature(index int, f *datasource.Feature) {
	if f.Geometry == nil {
		c.errs = append(c.errs, fmt.Sprintf("feature %d has no geometry, skipped", index))
		return
	}
	switch f.Geometry.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
	default:
		c.errs = append(c.errs, fmt.Sprintf("feature %d is not a polygon, skipped", index))
		return
	}

	wait, ok := numericProperty(f, c.opts.WaitTimeAttribute)
	if !ok {
		c.errs = append(c.errs, fmt.Sprintf("feature %d has no numeric %q attribute, skipped", index, c.opts.WaitTimeAttribute))
		return
	}

	priority := 0.0
	if v, present := property(f, c.opts.PriorityAttribute); present && v != nil {
		p, ok := numeric(v)
		if !ok {
			c.errs = append(c.errs, fmt.Sprintf("feature %d has a non-numeric %q attribute, priority treated as 0", index, c.opts.PriorityAttribute))
		}
		priority = p
	}

	name := ""
	if v, present := property(f, c.opts.NameAttribute); present {
		if s, ok := v.(string); ok {
			name = s
		}
	}

	z := zone{
		geom:     f.Geometry,
		bounds:   geometry.EnvelopeOf(f.Geometry),
		wait:     wait,
		priority: priority,
		name:     name,
	}
	c.zones = append(c.zones, z)
	c.env.Union(z.bounds)
}

// buildGrid buckets zone indices by the grid cells their envelopes
// cover. Lookup then only tests the zones sharing a cell with the
// query point.
func (c *Collection) buildGrid() {
	c.cells = make([][]int, gridCells*gridCells)
	if c.env.IsEmpty() {
		return
	}
	for i := range c.zones {
		x0, y0 := c.cellOf(c.zones[i].bounds.MinLng, c.zones[i].bounds.MinLat)
		x1, y1 := c.cellOf(c.zones[i].bounds.MaxLng, c.zones[i].bounds.MaxLat)
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				cell := y*gridCells + x
				c.cells[cell] = append(c.cells[cell], i)
			}
		}
	}
}

// cellOf maps a point to grid coordinates, clamped to the edge cells.
func (c *Collection) cellOf(lon, lat float64) (int, int) {
	x, y := 0, 0
	if w := c.env.MaxLng - c.env.MinLng; w > 0 {
		x = int(float64(gridCells) * (lon - c.env.MinLng) / w)
	}
	if h := c.env.MaxLat - c.env.MinLat; h > 0 {
		y = int(float64(gridCells) * (lat - c.env.MinLat) / h)
	}
	if x < 0 {
		x = 0
	}
	if x >= gridCells {
		x = gridCells - 1
	}
	if y < 0 {
		y = 0
	}
	if y >= gridCells {
		y = gridCells - 1
	}
	return x, y
}

// WaitTime returns the wait time in minutes at (lon, lat) and the name
// of the polygon that supplied it. Where polygons overlap the highest
// priority wins, ties going to the later feature. When no polygon
// contains the point the default wait applies with an empty name.
func (c *Collection) WaitTime(lon, lat float64) (float64, string) {
	if c.env.IsEmpty() || !c.env.Contains(lon, lat) {
		return c.opts.DefaultWait, ""
	}

	x, y := c.cellOf(lon, lat)
	best := -1
	for _, i := range c.cells[y*gridCells+x] {
		z := &c.zones[i]
		if !z.bounds.Contains(lon, lat) {
			continue
		}
		if !containsPoint(z.geom, lon, lat) {
			continue
		}
		if best < 0 || z.priority >= c.zones[best].priority {
			best = i
		}
	}
	if best < 0 {
		return c.opts.DefaultWait, ""
	}
	return c.zones[best].wait, c.zones[best].name
}

// Count returns the number of indexed polygons.
func (c *Collection) Count() int {
	return len(c.zones)
}

// Envelope returns the bounding box of every indexed polygon.
func (c *Collection) Envelope() geometry.Envelope {
	return c.env
}

// Errors returns the problems found while loading, one message per
// skipped or degraded feature.
func (c *Collection) Errors() []string {
	return c.errs
}

// containsPoint tests polygon membership with holes honored. Points on
// a ring boundary count as inside the ring.
func containsPoint(g geom.T, lon, lat float64) bool {
	p := geom.Coord{lon, lat}
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, p)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), p) {
				return true
			}
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, c geom.Coord) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	if !xy.IsPointInRing(p.Layout(), c, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.IsPointInRing(p.Layout(), c, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

func property(f *datasource.Feature, key string) (any, bool) {
	for _, p := range f.Properties {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

func numericProperty(f *datasource.Feature, key string) (float64, bool) {
	v, ok := property(f, key)
	if !ok {
		return 0, false
	}
	return numeric(v)
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
