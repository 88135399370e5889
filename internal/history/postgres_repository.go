package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS route_history (
		id              TEXT PRIMARY KEY,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		provider        TEXT NOT NULL,
		locations       TEXT[] NOT NULL,
		route_count     INTEGER NOT NULL,
		waypoint_count  INTEGER NOT NULL,
		poi_count       INTEGER NOT NULL,
		road_count      INTEGER NOT NULL,
		distance_m      DOUBLE PRECISION NOT NULL,
		summary         TEXT[] NOT NULL
	);
	CREATE INDEX IF NOT EXISTS route_history_created_at_idx ON route_history (created_at DESC);
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL history repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the route_history table if needed.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create route_history: %w", err)
	}
	return nil
}

// Append inserts a record and reads back the server-assigned timestamp.
func (r *PostgresRepository) Append(ctx context.Context, rec *Record) error {
	prepare(rec)

	query := `
		INSERT INTO route_history (
			id, provider, locations,
			route_count, waypoint_count, poi_count, road_count,
			distance_m, summary
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := r.pool.QueryRow(ctx, query,
		rec.ID,
		rec.Provider,
		rec.Locations,
		rec.RouteCount,
		rec.WaypointCount,
		rec.POICount,
		rec.RoadCount,
		rec.DistanceMeters,
		rec.Summary,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert route_history: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]*Record, error) {
	query := `
		SELECT
			id, created_at, provider, locations,
			route_count, waypoint_count, poi_count, road_count,
			distance_m, summary
		FROM route_history
		ORDER BY created_at DESC, id
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query route_history: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID,
			&rec.CreatedAt,
			&rec.Provider,
			&rec.Locations,
			&rec.RouteCount,
			&rec.WaypointCount,
			&rec.POICount,
			&rec.RoadCount,
			&rec.DistanceMeters,
			&rec.Summary,
		); err != nil {
			return nil, fmt.Errorf("scan route_history: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate route_history: %w", err)
	}

	return records, nil
}

var _ Repository = (*PostgresRepository)(nil)
