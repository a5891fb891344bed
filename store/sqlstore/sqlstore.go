// Package sqlstore implements store.Store on a PostgreSQL table through sqlx.
//
// Expiry is kept in an expires_at column computed by the database clock, so
// nodes with skewed clocks agree on liveness. Insert-if-absent is a single
// INSERT .. ON CONFLICT that only replaces an expired row.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/unkn0wn-root/distcache/store"
)

const DefaultTable = "distcache_entries"

var ErrNilDB = errors.New("sql store: nil db")

type Store struct {
	db      *sqlx.DB
	closeDB bool
	q       queries
}

var _ store.Store = (*Store)(nil)

type Config struct {
	DB      *sqlx.DB
	CloseDB bool   // set true only if this store exclusively owns the pool
	Table   string // defaults to DefaultTable
}

type queries struct {
	migrate, get, insert, upsert, touch, remove, purge string
}

// deadline expression for a ttl given in milliseconds; NULL means never.
func expiresExpr(param string) string {
	return fmt.Sprintf("CASE WHEN %[1]s::bigint > 0 THEN now() + (%[1]s::bigint * interval '1 millisecond') END", param)
}

const live = "(expires_at IS NULL OR expires_at > now())"

func buildQueries(table string) queries {
	t := pq.QuoteIdentifier(table)
	idx := pq.QuoteIdentifier(table + "_expires_at_idx")
	return queries{
		migrate: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	expires_at TIMESTAMPTZ NULL
);
CREATE INDEX IF NOT EXISTS %s ON %s (expires_at) WHERE expires_at IS NOT NULL`, t, idx, t),
		get: fmt.Sprintf(`SELECT value FROM %s WHERE key = $1 AND %s`, t, live),
		insert: fmt.Sprintf(`INSERT INTO %[1]s (key, value, expires_at) VALUES ($1, $2, %[2]s)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
WHERE %[1]s.expires_at IS NOT NULL AND %[1]s.expires_at <= now()`, t, expiresExpr("$3")),
		upsert: fmt.Sprintf(`INSERT INTO %s (key, value, expires_at) VALUES ($1, $2, %s)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`, t, expiresExpr("$3")),
		touch:  fmt.Sprintf(`UPDATE %s SET expires_at = %s WHERE key = $1 AND %s`, t, expiresExpr("$2"), live),
		remove: fmt.Sprintf(`DELETE FROM %s WHERE key = $1 RETURNING %s`, t, live),
		purge:  fmt.Sprintf(`DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= now()`, t),
	}
}

func New(cfg Config) (*Store, error) {
	if cfg.DB == nil {
		return nil, ErrNilDB
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	return &Store{db: cfg.DB, closeDB: cfg.CloseDB, q: buildQueries(table)}, nil
}

// Migrate creates the table and its expiry index when missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.q.migrate)
	return mapErr(err)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.db.GetContext(ctx, &v, s.q.get, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapErr(err)
	}
	return v, true, nil
}

func (s *Store) Insert(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	n, err := s.exec(ctx, s.q.insert, key, value, millis(ttl))
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrKeyExists
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.exec(ctx, s.q.upsert, key, value, millis(ttl))
	return err
}

func (s *Store) Touch(ctx context.Context, key string, ttl time.Duration) error {
	n, err := s.exec(ctx, s.q.touch, key, millis(ttl))
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrKeyNotFound
	}
	return nil
}

// Remove deletes key; an expired row is deleted too but reported as missing.
func (s *Store) Remove(ctx context.Context, key string) error {
	var wasLive bool
	err := s.db.QueryRowxContext(ctx, s.q.remove, key).Scan(&wasLive)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrKeyNotFound
	}
	if err != nil {
		return mapErr(err)
	}
	if !wasLive {
		return store.ErrKeyNotFound
	}
	return nil
}

// Purge deletes expired rows and returns how many were removed.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	return s.exec(ctx, s.q.purge)
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return mapErr(s.db.PingContext(ctx))
}

func (s *Store) Close(context.Context) error {
	if s.closeDB {
		return s.db.Close()
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

func millis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	ms := ttl.Milliseconds()
	if ms == 0 {
		ms = 1
	}
	return ms
}

// mapErr marks connection-level failures as store.ErrUnavailable.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "08" {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return err
}
