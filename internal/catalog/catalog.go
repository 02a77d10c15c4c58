// Package catalog persists ingested data source records so they can be
// listed, fetched and deleted after the ingest process exits. Two
// drivers are provided: SQLite for single-machine use and PostgreSQL
// for shared deployments.
package catalog

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/urbanatlas/spatial-cli/internal/config"
	"github.com/urbanatlas/spatial-cli/internal/datasource"
)

// ErrNotFound is returned by Get and Delete when no stored data source
// matches the requested ID.
var ErrNotFound = eris.New("catalog: data source not found")

// Filter specifies criteria for listing data sources. Zero values
// match everything.
type Filter struct {
	Format   datasource.Format `json:"format,omitempty"`
	RegionID string            `json:"region_id,omitempty"`
	Limit    int               `json:"limit,omitempty"`
	Offset   int               `json:"offset,omitempty"`
}

// Store defines the persistence interface for data source records.
type Store interface {
	// Save inserts the data source, replacing any stored record with
	// the same ID. A missing ID or CreatedAt is filled in.
	Save(ctx context.Context, ds *datasource.SpatialDataSource) error
	Get(ctx context.Context, id string) (*datasource.SpatialDataSource, error)
	List(ctx context.Context, filter Filter) ([]datasource.SpatialDataSource, error)
	Delete(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New opens the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.CatalogConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("catalog: unsupported driver %q", cfg.Driver)
	}
}
