package datasource

import (
	"time"

	"github.com/urbanatlas/spatial-cli/internal/geometry"
)

// AttributeType classifies the values of one attribute column.
type AttributeType string

const (
	AttributeText     AttributeType = "TEXT"
	AttributeNumber   AttributeType = "NUMBER"
	AttributeGeometry AttributeType = "GEOMETRY"
	AttributeOther    AttributeType = "OTHER"
)

// SpatialAttribute describes one column of a spatial dataset: the
// geometry column plus every attribute column, in first-seen order.
type SpatialAttribute struct {
	Name string        `json:"name"`
	Type AttributeType `json:"type"`
}

// UserPermissions carries the ownership context a data source is
// created under.
type UserPermissions struct {
	Email       string `json:"email"`
	Admin       bool   `json:"admin"`
	AccessGroup string `json:"access_group"`
}

// SpatialDataSource is the normalized description of one ingested GIS
// file. It is built up during Ingest and must be treated as immutable
// once Ingest returns.
type SpatialDataSource struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	RegionID    string          `json:"region_id"`
	Owner       UserPermissions `json:"owner"`
	Format      Format          `json:"format"`

	GeometryType geometry.Type      `json:"geometry_type"`
	FeatureCount int                `json:"feature_count"`
	Attributes   []SpatialAttribute `json:"attributes"`
	WGSBounds    geometry.Envelope  `json:"wgs_bounds"`
	Issues       []string           `json:"issues,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Attribute returns the attribute named name, if present.
func (s *SpatialDataSource) Attribute(name string) (SpatialAttribute, bool) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return SpatialAttribute{}, false
}
