package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/urbanatlas/spatial-cli/internal/datasource"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS data_sources (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	region_id     TEXT NOT NULL,
	owner         TEXT NOT NULL,
	format        TEXT NOT NULL,
	geometry_type TEXT NOT NULL,
	feature_count INTEGER NOT NULL,
	attributes    TEXT NOT NULL,
	min_lng       REAL NOT NULL,
	min_lat       REAL NOT NULL,
	max_lng       REAL NOT NULL,
	max_lat       REAL NOT NULL,
	issues        TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_data_sources_region ON data_sources(region_id);
CREATE INDEX IF NOT EXISTS idx_data_sources_format ON data_sources(format);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, ds *datasource.SpatialDataSource) error {
	if ds.ID == "" {
		ds.ID = uuid.New().String()
	}
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = time.Now().UTC()
	}

	ownerJSON, err := json.Marshal(ds.Owner)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal owner")
	}
	attrsJSON, err := json.Marshal(ds.Attributes)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal attributes")
	}
	var issuesJSON any
	if len(ds.Issues) > 0 {
		b, err := json.Marshal(ds.Issues)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal issues")
		}
		issuesJSON = string(b)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO data_sources
		 (id, name, description, region_id, owner, format, geometry_type, feature_count,
		  attributes, min_lng, min_lat, max_lng, max_lat, issues, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		  name = excluded.name, description = excluded.description,
		  region_id = excluded.region_id, owner = excluded.owner,
		  format = excluded.format, geometry_type = excluded.geometry_type,
		  feature_count = excluded.feature_count, attributes = excluded.attributes,
		  min_lng = excluded.min_lng, min_lat = excluded.min_lat,
		  max_lng = excluded.max_lng, max_lat = excluded.max_lat,
		  issues = excluded.issues`,
		ds.ID, ds.Name, ds.Description, ds.RegionID, string(ownerJSON),
		string(ds.Format), string(ds.GeometryType), ds.FeatureCount, string(attrsJSON),
		ds.WGSBounds.MinLng, ds.WGSBounds.MinLat, ds.WGSBounds.MaxLng, ds.WGSBounds.MaxLat,
		issuesJSON, ds.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: save data source %s", ds.ID)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*datasource.SpatialDataSource, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, region_id, owner, format, geometry_type, feature_count,
		        attributes, min_lng, min_lat, max_lng, max_lat, issues, created_at
		 FROM data_sources WHERE id = ?`,
		id,
	)
	return scanDataSource(row)
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]datasource.SpatialDataSource, error) {
	query := `SELECT id, name, description, region_id, owner, format, geometry_type, feature_count,
	                 attributes, min_lng, min_lat, max_lng, max_lat, issues, created_at
	          FROM data_sources WHERE 1=1`
	var args []any

	if filter.Format != "" {
		query += ` AND format = ?`
		args = append(args, string(filter.Format))
	}
	if filter.RegionID != "" {
		query += ` AND region_id = ?`
		args = append(args, filter.RegionID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list data sources")
	}
	defer rows.Close()

	sources := []datasource.SpatialDataSource{}
	for rows.Next() {
		ds, err := scanDataSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *ds)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: list data sources iterate")
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM data_sources WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete data source %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanDataSource(row scannable) (*datasource.SpatialDataSource, error) {
	var ds datasource.SpatialDataSource
	var ownerJSON, attrsJSON string
	var issuesJSON sql.NullString

	err := row.Scan(&ds.ID, &ds.Name, &ds.Description, &ds.RegionID, &ownerJSON,
		&ds.Format, &ds.GeometryType, &ds.FeatureCount, &attrsJSON,
		&ds.WGSBounds.MinLng, &ds.WGSBounds.MinLat, &ds.WGSBounds.MaxLng, &ds.WGSBounds.MaxLat,
		&issuesJSON, &ds.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan data source")
	}

	if err := json.Unmarshal([]byte(ownerJSON), &ds.Owner); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal owner")
	}
	if err := json.Unmarshal([]byte(attrsJSON), &ds.Attributes); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal attributes")
	}
	if issuesJSON.Valid {
		if err := json.Unmarshal([]byte(issuesJSON.String), &ds.Issues); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal issues")
		}
	}
	return &ds, nil
}
