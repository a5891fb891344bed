package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/distcache/store"
)

func setup(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	st, err := New(Config{DB: sqlx.NewDb(db, "postgres"), Table: "cache_entries"})
	require.NoError(t, err)
	return st, mock
}

func TestNewRequiresDB(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNilDB)
}

func TestQueriesQuoteTable(t *testing.T) {
	q := buildQueries(`we"ird`)
	assert.Contains(t, q.get, `"we""ird"`)
	assert.Contains(t, q.insert, `WHERE "we""ird".expires_at IS NOT NULL`)
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	st, mock := setup(t)

	mock.ExpectQuery(`SELECT value FROM "cache_entries" WHERE key = \$1`).
		WithArgs("k").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("v")))
	v, ok, err := st.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	mock.ExpectQuery(`SELECT value FROM "cache_entries"`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	v, ok, err = st.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestInsert(t *testing.T) {
	ctx := context.Background()
	st, mock := setup(t)

	mock.ExpectExec(`INSERT INTO "cache_entries" .* ON CONFLICT \(key\) DO UPDATE .* WHERE "cache_entries"\.expires_at IS NOT NULL`).
		WithArgs("k", []byte("v"), int64(30000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, st.Insert(ctx, "k", []byte("v"), 30*time.Second))

	// conflict on a live row updates nothing
	mock.ExpectExec(`INSERT INTO "cache_entries"`).
		WithArgs("k", []byte("v2"), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, st.Insert(ctx, "k", []byte("v2"), 0), store.ErrKeyExists)
}

func TestUpsertTTLConversion(t *testing.T) {
	ctx := context.Background()
	st, mock := setup(t)

	cases := []struct {
		ttl  time.Duration
		want int64
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Microsecond, 1},
		{10 * time.Minute, 600000},
	}
	for _, tc := range cases {
		mock.ExpectExec(`INSERT INTO "cache_entries" .* ON CONFLICT`).
			WithArgs("k", []byte("v"), tc.want).
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, st.Upsert(ctx, "k", []byte("v"), tc.ttl))
	}
}

func TestTouch(t *testing.T) {
	ctx := context.Background()
	st, mock := setup(t)

	mock.ExpectExec(`UPDATE "cache_entries" SET expires_at`).
		WithArgs("k", int64(60000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, st.Touch(ctx, "k", time.Minute))

	mock.ExpectExec(`UPDATE "cache_entries" SET expires_at`).
		WithArgs("gone", int64(60000)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, st.Touch(ctx, "gone", time.Minute), store.ErrKeyNotFound)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	st, mock := setup(t)

	mock.ExpectQuery(`DELETE FROM "cache_entries" WHERE key = \$1 RETURNING`).
		WithArgs("k").
		WillReturnRows(sqlmock.NewRows([]string{"live"}).AddRow(true))
	require.NoError(t, st.Remove(ctx, "k"))

	mock.ExpectQuery(`DELETE FROM "cache_entries"`).
		WithArgs("expired").
		WillReturnRows(sqlmock.NewRows([]string{"live"}).AddRow(false))
	assert.ErrorIs(t, st.Remove(ctx, "expired"), store.ErrKeyNotFound)

	mock.ExpectQuery(`DELETE FROM "cache_entries"`).
		WithArgs("never").
		WillReturnRows(sqlmock.NewRows([]string{"live"}))
	assert.ErrorIs(t, st.Remove(ctx, "never"), store.ErrKeyNotFound)
}

func TestMigrateAndPurge(t *testing.T) {
	ctx := context.Background()
	st, mock := setup(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "cache_entries"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, st.Migrate(ctx))

	mock.ExpectExec(`DELETE FROM "cache_entries" WHERE expires_at IS NOT NULL`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := st.Purge(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestConnectionErrorsAreUnavailable(t *testing.T) {
	ctx := context.Background()
	st, mock := setup(t)

	mock.ExpectExec(`INSERT INTO "cache_entries"`).
		WillReturnError(&pq.Error{Code: "08006", Message: "connection failure"})
	err := st.Upsert(ctx, "k", []byte("v"), 0)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Equal(t, store.StatusUnavailable, store.StatusOf(err))

	boom := errors.New("syntax error")
	mock.ExpectQuery(`SELECT value`).WillReturnError(boom)
	_, _, err = st.Get(ctx, "k")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, store.StatusFailure, store.StatusOf(err))
}
