package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/urbanatlas/spatial-cli/internal/geometry"
	"github.com/urbanatlas/spatial-cli/internal/projection"
)

// Ingester converts one GIS file into a SpatialDataSource. Use a fresh
// ingester per file; independent ingesters share no state and are safe
// to run concurrently.
type Ingester struct {
	format Format
	source *SpatialDataSource
	log    *zap.Logger
}

// ForFormat returns an ingester for one of the supported formats.
// Unrecognized formats fail with an UnsupportedFormatError.
func ForFormat(format Format) (*Ingester, error) {
	switch format {
	case FormatShapefile, FormatGeoJSON, FormatGeoPackage:
	default:
		return nil, &UnsupportedFormatError{Format: format}
	}
	return &Ingester{
		format: format,
		log: zap.L().With(
			zap.String("component", "datasource.ingester"),
			zap.String("format", string(format)),
		),
	}, nil
}

// InitializeDataSource records identity and ownership metadata on the
// not yet populated result. Call it exactly once, before Ingest.
func (i *Ingester) InitializeDataSource(name, description, regionID string, owner UserPermissions) {
	i.source = &SpatialDataSource{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		RegionID:    regionID,
		Owner:       owner,
		Format:      i.format,
		CreatedAt:   time.Now().UTC(),
	}
}

// DataSource returns the ingestion result. The value is only
// meaningful after Ingest has returned nil; before that it carries the
// identity metadata alone.
func (i *Ingester) DataSource() *SpatialDataSource {
	return i.source
}

// Ingest reads, validates and summarizes the file at path in a single
// pass. On failure the data source stays unpopulated and the error
// carries one of the two fatal kinds. The listener's End is called on
// every path, success or failure.
func (i *Ingester) Ingest(ctx context.Context, path string, listener ProgressListener) error {
	if i.source == nil {
		return eris.New("datasource: InitializeDataSource must be called before Ingest")
	}
	if listener == nil {
		listener = NoopProgressListener{}
	}
	defer listener.End()

	reader, err := OpenReader(i.format, path)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	crs := reader.CRS()
	var transform projection.Transform
	if !crs.IsWGS84() {
		transform, err = projection.Transformer(crs)
		if err != nil {
			return wrapFormatError(err, "%s: cannot reproject %s to WGS 84", i.format, crs)
		}
	}

	listener.Begin(reader.Count())

	schema := newSchemaAccumulator()
	schema.Declare(reader.Schema())
	validator := newGeometryValidator()
	issues := append([]string(nil), reader.Issues()...)

	index := 0
	ingested := 0
	for {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "datasource: ingest canceled")
		}

		feat, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		if feat.Geometry == nil {
			issues = append(issues, fmt.Sprintf("feature %d has no geometry, skipped", index))
			index++
			continue
		}

		if transform != nil {
			geometry.Transform(feat.Geometry, transform.ToWGS84)
		}
		if err := validator.validate(index, feat.Geometry); err != nil {
			return err
		}
		schema.Observe(feat.Properties)

		index++
		ingested++
		listener.Progress(ingested)
	}

	if ingested == 0 {
		return formatErrorf("%s: %s contains no usable features", i.format, path)
	}

	attrs, coercions := schema.Finalize()
	issues = append(issues, coercions...)

	src := i.source
	src.GeometryType = validator.typ
	src.FeatureCount = ingested
	src.Attributes = attrs
	src.WGSBounds = validator.bounds
	src.Issues = issues

	i.log.Info("datasource: ingest complete",
		zap.String("name", src.Name),
		zap.Int("features", ingested),
		zap.Int("attributes", len(attrs)),
		zap.Int("issues", len(issues)),
	)
	return nil
}
