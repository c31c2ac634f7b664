// Package store persists occupancy records received from counters in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// Record is one occupancy update. Direction is empty for periodic updates
// that do not correspond to a crossing.
type Record struct {
	ID           string
	Timestamp    time.Time
	CurrentCount int
	Direction    string
	CreatedAt    time.Time
}

// Store is a SQLite-backed record store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
}

// Open opens or creates the database at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// A single connection keeps writes serialized and makes :memory: usable.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	s := &Store{db: db, now: time.Now}
	if err := s.MigrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores rec, assigning an ID and creation time when unset.
func (s *Store) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if rec.CurrentCount < 0 {
		return Record{}, fmt.Errorf("current_count cannot be negative: %d", rec.CurrentCount)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO occupancy (id, ts_ms, current_count, direction, created_ms) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UnixMilli(), rec.CurrentCount, nullable(rec.Direction), rec.CreatedAt.UnixMilli())
	if err != nil {
		return Record{}, fmt.Errorf("insert record: %w", err)
	}
	rec.Timestamp = time.UnixMilli(rec.Timestamp.UnixMilli()).UTC()
	rec.CreatedAt = time.UnixMilli(rec.CreatedAt.UnixMilli()).UTC()
	return rec, nil
}

// Latest returns the record with the newest timestamp.
func (s *Store) Latest(ctx context.Context) (Record, error) {
	recs, err := s.query(ctx, `SELECT id, ts_ms, current_count, direction, created_ms
		FROM occupancy ORDER BY ts_ms DESC, created_ms DESC LIMIT 1`)
	if err != nil {
		return Record{}, err
	}
	if len(recs) == 0 {
		return Record{}, ErrNotFound
	}
	return recs[0], nil
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	return s.query(ctx, `SELECT id, ts_ms, current_count, direction, created_ms
		FROM occupancy ORDER BY ts_ms DESC, created_ms DESC LIMIT ?`, limit)
}

// Between returns records with from <= timestamp < to, oldest first.
func (s *Store) Between(ctx context.Context, from, to time.Time) ([]Record, error) {
	return s.query(ctx, `SELECT id, ts_ms, current_count, direction, created_ms
		FROM occupancy WHERE ts_ms >= ? AND ts_ms < ? ORDER BY ts_ms ASC, created_ms ASC`,
		from.UnixMilli(), to.UnixMilli())
}

// RecentCrossings returns up to limit records that carry a direction,
// newest first.
func (s *Store) RecentCrossings(ctx context.Context, limit int) ([]Record, error) {
	return s.query(ctx, `SELECT id, ts_ms, current_count, direction, created_ms
		FROM occupancy WHERE direction IS NOT NULL ORDER BY ts_ms DESC, created_ms DESC LIMIT ?`, limit)
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM occupancy`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			ts, cr    int64
			direction sql.NullString
		)
		if err := rows.Scan(&rec.ID, &ts, &rec.CurrentCount, &direction, &cr); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Timestamp = time.UnixMilli(ts).UTC()
		rec.CreatedAt = time.UnixMilli(cr).UTC()
		rec.Direction = direction.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
