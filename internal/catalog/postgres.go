package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/urbanatlas/spatial-cli/internal/datasource"
)

// Pool is the subset of pgxpool.Pool the catalog uses. pgxmock
// satisfies it for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS data_sources (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	region_id     TEXT NOT NULL,
	owner         JSONB NOT NULL,
	format        TEXT NOT NULL,
	geometry_type TEXT NOT NULL,
	feature_count INTEGER NOT NULL,
	attributes    JSONB NOT NULL,
	min_lng       DOUBLE PRECISION NOT NULL,
	min_lat       DOUBLE PRECISION NOT NULL,
	max_lng       DOUBLE PRECISION NOT NULL,
	max_lat       DOUBLE PRECISION NOT NULL,
	issues        JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_data_sources_region ON data_sources(region_id);
CREATE INDEX IF NOT EXISTS idx_data_sources_format ON data_sources(format);
CREATE INDEX IF NOT EXISTS idx_data_sources_created ON data_sources(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, ds *datasource.SpatialDataSource) error {
	if ds.ID == "" {
		ds.ID = uuid.New().String()
	}
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = time.Now().UTC()
	}

	ownerJSON, err := json.Marshal(ds.Owner)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal owner")
	}
	attrsJSON, err := json.Marshal(ds.Attributes)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal attributes")
	}
	var issuesJSON []byte
	if len(ds.Issues) > 0 {
		issuesJSON, err = json.Marshal(ds.Issues)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal issues")
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO data_sources
		 (id, name, description, region_id, owner, format, geometry_type, feature_count,
		  attributes, min_lng, min_lat, max_lng, max_lat, issues, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (id) DO UPDATE SET
		  name = EXCLUDED.name, description = EXCLUDED.description,
		  region_id = EXCLUDED.region_id, owner = EXCLUDED.owner,
		  format = EXCLUDED.format, geometry_type = EXCLUDED.geometry_type,
		  feature_count = EXCLUDED.feature_count, attributes = EXCLUDED.attributes,
		  min_lng = EXCLUDED.min_lng, min_lat = EXCLUDED.min_lat,
		  max_lng = EXCLUDED.max_lng, max_lat = EXCLUDED.max_lat,
		  issues = EXCLUDED.issues`,
		ds.ID, ds.Name, ds.Description, ds.RegionID, ownerJSON,
		string(ds.Format), string(ds.GeometryType), ds.FeatureCount, attrsJSON,
		ds.WGSBounds.MinLng, ds.WGSBounds.MinLat, ds.WGSBounds.MaxLng, ds.WGSBounds.MaxLat,
		issuesJSON, ds.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: save data source %s", ds.ID)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*datasource.SpatialDataSource, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, description, region_id, owner, format, geometry_type, feature_count,
		        attributes, min_lng, min_lat, max_lng, max_lat, issues, created_at
		 FROM data_sources WHERE id = $1`,
		id,
	)
	ds, err := scanPostgresDataSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get data source %s", id)
	}
	return ds, nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]datasource.SpatialDataSource, error) {
	query := `SELECT id, name, description, region_id, owner, format, geometry_type, feature_count,
	                 attributes, min_lng, min_lat, max_lng, max_lat, issues, created_at
	          FROM data_sources WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Format != "" {
		query += fmt.Sprintf(` AND format = $%d`, argIdx)
		args = append(args, string(filter.Format))
		argIdx++
	}
	if filter.RegionID != "" {
		query += fmt.Sprintf(` AND region_id = $%d`, argIdx)
		args = append(args, filter.RegionID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list data sources")
	}
	defer rows.Close()

	sources := []datasource.SpatialDataSource{}
	for rows.Next() {
		ds, err := scanPostgresDataSource(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan data source")
		}
		sources = append(sources, *ds)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: list data sources iterate")
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM data_sources WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete data source %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPostgresDataSource(row pgx.Row) (*datasource.SpatialDataSource, error) {
	var ds datasource.SpatialDataSource
	var ownerJSON, attrsJSON, issuesJSON []byte

	err := row.Scan(&ds.ID, &ds.Name, &ds.Description, &ds.RegionID, &ownerJSON,
		&ds.Format, &ds.GeometryType, &ds.FeatureCount, &attrsJSON,
		&ds.WGSBounds.MinLng, &ds.WGSBounds.MinLat, &ds.WGSBounds.MaxLng, &ds.WGSBounds.MaxLat,
		&issuesJSON, &ds.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(ownerJSON, &ds.Owner); err != nil {
		return nil, eris.Wrap(err, "unmarshal owner")
	}
	if err := json.Unmarshal(attrsJSON, &ds.Attributes); err != nil {
		return nil, eris.Wrap(err, "unmarshal attributes")
	}
	if len(issuesJSON) > 0 {
		if err := json.Unmarshal(issuesJSON, &ds.Issues); err != nil {
			return nil, eris.Wrap(err, "unmarshal issues")
		}
	}
	return &ds, nil
}
