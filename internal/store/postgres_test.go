package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock, now: time.Now}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS neighborhood_views`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordView(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO neighborhood_views \(id, name, viewed_at\) VALUES \(\$1, \$2, \$3\)`).
		WithArgs(pgxmock.AnyArg(), "Sants", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	v, err := s.RecordView(context.Background(), "Sants")
	require.NoError(t, err)
	assert.Equal(t, "Sants", v.Name)
	assert.Len(t, v.ID, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LastViewed(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, name, viewed_at FROM neighborhood_views ORDER BY viewed_at DESC LIMIT 1`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "viewed_at"}).AddRow("v1", "Gràcia", at))

	v, err := s.LastViewed(context.Background())
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "Gràcia", v.Name)
	assert.Equal(t, at, v.ViewedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LastViewed_None(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, viewed_at FROM neighborhood_views`).
		WillReturnError(pgx.ErrNoRows)

	v, err := s.LastViewed(context.Background())
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecentViews(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, name, viewed_at FROM neighborhood_views ORDER BY viewed_at DESC LIMIT \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "viewed_at"}).
			AddRow("v2", "Sants", at).
			AddRow("v1", "Gràcia", at.Add(-time.Minute)))

	views, err := s.RecentViews(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "Sants", views[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSnapshot_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM snapshots`).
		WithArgs("neighborhoods").
		WillReturnError(pgx.ErrNoRows)

	data, err := s.GetSnapshot(context.Background(), "neighborhoods")
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetSnapshot_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(key\) DO UPDATE`).
		WithArgs("neighborhoods", []byte(`[]`), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SetSnapshot(context.Background(), "neighborhoods", []byte(`[]`), time.Hour))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpiredSnapshots(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM snapshots WHERE expires_at IS NOT NULL`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.DeleteExpiredSnapshots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	closed := false
	s := &PostgresStore{closeFn: func() { closed = true }}
	require.NoError(t, s.Close())
	assert.True(t, closed)
}
