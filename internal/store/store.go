// Package store persists the last-viewed neighborhood and cached backend
// payloads so the app can restore state and serve the last good data when
// the backend is down.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// View is one recorded visit to a neighborhood.
type View struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	ViewedAt time.Time `json:"viewed_at"`
}

// Store defines the persistence interface.
type Store interface {
	// Views
	RecordView(ctx context.Context, name string) (*View, error)
	LastViewed(ctx context.Context) (*View, error)
	RecentViews(ctx context.Context, limit int) ([]View, error)

	// Snapshot cache
	GetSnapshot(ctx context.Context, key string) ([]byte, error)
	SetSnapshot(ctx context.Context, key string, data []byte, ttl time.Duration) error
	DeleteExpiredSnapshots(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the store for driver: "sqlite", "postgres" or "memory".
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case "sqlite":
		s, err = NewSQLite(dsn)
	case "postgres":
		s, err = NewPostgres(ctx, dsn, nil)
	case "memory", "":
		s = NewMemory()
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// expiry converts a ttl into an absolute deadline; zero ttl never expires.
func expiry(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := now.Add(ttl)
	return &t
}
