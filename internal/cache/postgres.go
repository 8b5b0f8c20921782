package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/phrazzld/match-gateway/internal/config"
)

// PostgresStore is a Store on two Postgres tables created by Migrate:
// cache_entries for values and cache_set_members for sets. A NULL
// expires_at never expires.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore opens a pgx-backed *sql.DB and pings it.
func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %v", ErrUnavailable, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	store := NewPostgresStoreFromDB(db)
	if err := store.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreFromDB wraps an open database.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// DB exposes the underlying database for migrations.
func (s *PostgresStore) DB() *sql.DB { return s.db }

func pgErr(op string, err error) error {
	return fmt.Errorf("%w: postgres %s: %v", ErrUnavailable, op, err)
}

// nullableExpiry maps a zero expiry to NULL.
func nullableExpiry(exp time.Time) sql.NullTime {
	return sql.NullTime{Time: exp, Valid: !exp.IsZero()}
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) (Value, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM cache_entries
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		key, s.now()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Value{}, false, nil
	}
	if err != nil {
		return Value{}, false, pgErr("get", err)
	}
	v, err := DecodeValue(raw)
	if err != nil {
		return Value{}, false, err
	}
	return v, true, nil
}

// Set implements Store.
func (s *PostgresStore) Set(ctx context.Context, key string, v Value, ttl time.Duration) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, v.Encode(), nullableExpiry(expiry(now, ttl)))
	if err != nil {
		return pgErr("set", err)
	}
	return nil
}

// SetIfAbsent implements Store. An expired row is overwritten in place.
func (s *PostgresStore) SetIfAbsent(ctx context.Context, key string, v Value, ttl time.Duration) (bool, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
		WHERE cache_entries.expires_at IS NOT NULL AND cache_entries.expires_at <= $4`,
		key, v.Encode(), nullableExpiry(expiry(now, ttl)), now)
	if err != nil {
		return false, pgErr("set if absent", err)
	}
	return affectedOne(res)
}

// CompareAndSwap implements Store.
func (s *PostgresStore) CompareAndSwap(ctx context.Context, key string, old, next Value, ttl time.Duration) (bool, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE cache_entries SET value = $3, expires_at = $4
		WHERE key = $1 AND value = $2 AND (expires_at IS NULL OR expires_at > $5)`,
		key, old.Encode(), next.Encode(), nullableExpiry(expiry(now, ttl)), now)
	if err != nil {
		return false, pgErr("compare and swap", err)
	}
	return affectedOne(res)
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, pgErr("rows affected", err)
	}
	return n == 1, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	return runInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
			return pgErr("delete", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cache_set_members WHERE key = $1`, key); err != nil {
			return pgErr("delete set", err)
		}
		return nil
	})
}

// SetAdd implements Store. Expired members are purged first so they are not
// counted or revived, and every member of the set shares the new expiry.
func (s *PostgresStore) SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}
	now := s.now()
	exp := nullableExpiry(expiry(now, ttl))
	added := 0

	err := runInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM cache_set_members
			WHERE key = $1 AND expires_at IS NOT NULL AND expires_at <= $2`, key, now); err != nil {
			return pgErr("purge set", err)
		}
		for _, m := range members {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO cache_set_members (key, member, expires_at) VALUES ($1, $2, $3)
				ON CONFLICT (key, member) DO NOTHING`, key, m, exp)
			if err != nil {
				return pgErr("set add", err)
			}
			if n, _ := res.RowsAffected(); n == 1 {
				added++
			}
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE cache_set_members SET expires_at = $2 WHERE key = $1`, key, exp); err != nil {
			return pgErr("refresh set ttl", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// SetRemove implements Store.
func (s *PostgresStore) SetRemove(ctx context.Context, key string, members ...string) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}
	now := s.now()
	removed := 0

	err := runInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		for _, m := range members {
			res, err := tx.ExecContext(ctx, `
				DELETE FROM cache_set_members
				WHERE key = $1 AND member = $2 AND (expires_at IS NULL OR expires_at > $3)`,
				key, m, now)
			if err != nil {
				return pgErr("set remove", err)
			}
			if n, _ := res.RowsAffected(); n == 1 {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// SetMembers implements Store.
func (s *PostgresStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT member FROM cache_set_members
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY member`, key, s.now())
	if err != nil {
		return nil, pgErr("set members", err)
	}
	defer func() { _ = rows.Close() }()

	members := []string{}
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, pgErr("scan member", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, pgErr("iterate members", err)
	}
	return members, nil
}

// Purge deletes expired rows from both tables and returns how many went.
func (s *PostgresStore) Purge(ctx context.Context) (int64, error) {
	now := s.now()
	var total int64
	for _, q := range []string{
		`DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= $1`,
		`DELETE FROM cache_set_members WHERE expires_at IS NOT NULL AND expires_at <= $1`,
	} {
		res, err := s.db.ExecContext(ctx, q, now)
		if err != nil {
			return total, pgErr("purge", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return pgErr("ping", err)
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
