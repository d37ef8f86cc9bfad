package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
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
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Times are stored as unix milliseconds so ordering and expiry compare as integers.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS neighborhood_views (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	viewed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	cached_at  INTEGER NOT NULL,
	expires_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_neighborhood_views_viewed_at ON neighborhood_views(viewed_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_expires_at ON snapshots(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordView(ctx context.Context, name string) (*View, error) {
	v := View{ID: uuid.New().String(), Name: name, ViewedAt: s.now().UTC().Truncate(time.Millisecond)}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO neighborhood_views (id, name, viewed_at) VALUES (?, ?, ?)`,
		v.ID, v.Name, v.ViewedAt.UnixMilli(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert view")
	}
	return &v, nil
}

func (s *SQLiteStore) LastViewed(ctx context.Context) (*View, error) {
	views, err := s.RecentViews(ctx, 1)
	if err != nil || len(views) == 0 {
		return nil, err
	}
	return &views[0], nil
}

func (s *SQLiteStore) RecentViews(ctx context.Context, limit int) ([]View, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, viewed_at FROM neighborhood_views ORDER BY viewed_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list views")
	}
	defer rows.Close() //nolint:errcheck

	var out []View
	for rows.Next() {
		var (
			v  View
			ms int64
		)
		if err := rows.Scan(&v.ID, &v.Name, &ms); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan view")
		}
		v.ViewedAt = time.UnixMilli(ms).UTC()
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate views")
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, s.now().UnixMilli(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get snapshot %s", key)
	}
	return data, nil
}

func (s *SQLiteStore) SetSnapshot(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := s.now()
	var expiresAt *int64
	if exp := expiry(now, ttl); exp != nil {
		ms := exp.UnixMilli()
		expiresAt = &ms
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (key, data, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, data, now.UnixMilli(), expiresAt,
	)
	return eris.Wrapf(err, "sqlite: set snapshot %s", key)
}

func (s *SQLiteStore) DeleteExpiredSnapshots(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		s.now().UnixMilli(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired snapshots")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}
