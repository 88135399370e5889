package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS route_history (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		id              TEXT NOT NULL UNIQUE,
		created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
		provider        TEXT NOT NULL,
		locations       TEXT NOT NULL,
		route_count     INTEGER NOT NULL,
		waypoint_count  INTEGER NOT NULL,
		poi_count       INTEGER NOT NULL,
		road_count      INTEGER NOT NULL,
		distance_m      REAL NOT NULL,
		summary         TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS route_history_created_at_idx ON route_history (created_at DESC);
`

// sqliteTimeLayout matches the strftime default on created_at.
const sqliteTimeLayout = "2006-01-02T15:04:05.000Z"

// SQLiteRepository is a SQLite implementation of Repository. List columns
// are stored as JSON arrays.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// EnsureSchema creates the route_history table if needed.
func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create route_history: %w", err)
	}
	return nil
}

// Append inserts a record and reads back the server-assigned timestamp.
func (r *SQLiteRepository) Append(ctx context.Context, rec *Record) error {
	prepare(rec)

	locations, err := json.Marshal(rec.Locations)
	if err != nil {
		return fmt.Errorf("encode locations: %w", err)
	}
	summary, err := json.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	query := `
		INSERT INTO route_history (
			id, provider, locations,
			route_count, waypoint_count, poi_count, road_count,
			distance_m, summary
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING created_at
	`

	var created string
	err = r.db.QueryRowContext(ctx, query,
		rec.ID,
		rec.Provider,
		string(locations),
		rec.RouteCount,
		rec.WaypointCount,
		rec.POICount,
		rec.RoadCount,
		rec.DistanceMeters,
		string(summary),
	).Scan(&created)
	if err != nil {
		return fmt.Errorf("insert route_history: %w", err)
	}

	rec.CreatedAt, err = time.Parse(sqliteTimeLayout, created)
	if err != nil {
		return fmt.Errorf("parse created_at %q: %w", created, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]*Record, error) {
	query := `
		SELECT
			id, created_at, provider, locations,
			route_count, waypoint_count, poi_count, road_count,
			distance_m, summary
		FROM route_history
		ORDER BY created_at DESC, seq DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query route_history: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var (
			rec                Record
			created            string
			locations, summary string
		)
		if err := rows.Scan(
			&rec.ID,
			&created,
			&rec.Provider,
			&locations,
			&rec.RouteCount,
			&rec.WaypointCount,
			&rec.POICount,
			&rec.RoadCount,
			&rec.DistanceMeters,
			&summary,
		); err != nil {
			return nil, fmt.Errorf("scan route_history: %w", err)
		}

		if rec.CreatedAt, err = time.Parse(sqliteTimeLayout, created); err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", created, err)
		}
		if err := json.Unmarshal([]byte(locations), &rec.Locations); err != nil {
			return nil, fmt.Errorf("decode locations of %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(summary), &rec.Summary); err != nil {
			return nil, fmt.Errorf("decode summary of %s: %w", rec.ID, err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate route_history: %w", err)
	}

	return records, nil
}

var _ Repository = (*SQLiteRepository)(nil)
