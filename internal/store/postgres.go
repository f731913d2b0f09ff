package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"neuroswarm/internal/errs"
)

// PostgresConfig holds connection settings for the Postgres-backed store.
type PostgresConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	MaxConns    int32
	MaxIdleTime time.Duration
	HealthCheck time.Duration
	SSLMode     string
}

// Validate checks the configuration.
func (c *PostgresConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("invalid max connections: %d", c.MaxConns)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS kv_records (
	key     TEXT PRIMARY KEY,
	value   BYTEA NOT NULL,
	version BIGINT NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS kv_set_members (
	set_name TEXT NOT NULL,
	member   TEXT NOT NULL,
	PRIMARY KEY (set_name, member)
);
CREATE TABLE IF NOT EXISTS kv_list_entries (
	id        BIGSERIAL PRIMARY KEY,
	list_name TEXT NOT NULL,
	value     BYTEA NOT NULL
);
CREATE INDEX IF NOT EXISTS kv_list_entries_name ON kv_list_entries (list_name, id);
`

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
	log  *logrus.Entry
}

// NewPostgres connects to Postgres and ensures the schema exists.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MaxConnIdleTime = cfg.MaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &PostgresStore{
		pool: pool,
		cfg:  cfg,
		log:  logrus.WithField("component", "store"),
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}

	if cfg.HealthCheck > 0 {
		go s.startHealthCheck()
	}

	return s, nil
}

func (s *PostgresStore) startHealthCheck() {
	ticker := time.NewTicker(s.cfg.HealthCheck)
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.pool.Ping(ctx); err != nil {
			s.log.WithError(err).Warn("store health check failed")
		}
		cancel()
	}
}

// WithTx executes fn inside a transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rolling back transaction: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (Record, error) {
	var rec Record
	err := s.pool.QueryRow(ctx,
		`SELECT value, version FROM kv_records WHERE key = $1`, key,
	).Scan(&rec.Value, &rec.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, errs.NotFound("key %q", key)
	}
	if err != nil {
		return Record{}, fmt.Errorf("reading %q: %w", key, err)
	}
	return rec, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, value []byte) (int64, error) {
	var version int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO kv_records (key, value, version) VALUES ($1, $2, 1)
		 ON CONFLICT (key) DO UPDATE
		 SET value = EXCLUDED.value, version = kv_records.version + 1
		 RETURNING version`,
		key, value,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("writing %q: %w", key, err)
	}
	return version, nil
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, key string, value []byte, expect int64) (int64, error) {
	var version int64
	err := s.pool.QueryRow(ctx,
		`UPDATE kv_records SET value = $2, version = version + 1
		 WHERE key = $1 AND version = $3
		 RETURNING version`,
		key, value, expect,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a missing record from a version mismatch.
		if _, getErr := s.Get(ctx, key); getErr != nil {
			return 0, getErr
		}
		return 0, errs.Conflict("key %q changed since version %d", key, expect)
	}
	if err != nil {
		return 0, fmt.Errorf("swapping %q: %w", key, err)
	}
	return version, nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv_records WHERE key = $1`, key); err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key FROM kv_records WHERE key LIKE $1 || '%' ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) SetAdd(ctx context.Context, set, member string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv_set_members (set_name, member) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, set, member)
	if err != nil {
		return fmt.Errorf("adding to set %q: %w", set, err)
	}
	return nil
}

func (s *PostgresStore) SetRemove(ctx context.Context, set, member string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM kv_set_members WHERE set_name = $1 AND member = $2`, set, member)
	if err != nil {
		return fmt.Errorf("removing from set %q: %w", set, err)
	}
	return nil
}

func (s *PostgresStore) SetMembers(ctx context.Context, set string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT member FROM kv_set_members WHERE set_name = $1 ORDER BY member`, set)
	if err != nil {
		return nil, fmt.Errorf("listing set %q: %w", set, err)
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

func (s *PostgresStore) ListAppend(ctx context.Context, list string, value []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv_list_entries (list_name, value) VALUES ($1, $2)`, list, value)
	if err != nil {
		return fmt.Errorf("appending to list %q: %w", list, err)
	}
	return nil
}

func (s *PostgresStore) ListRange(ctx context.Context, list string) ([][]byte, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT value FROM kv_list_entries WHERE list_name = $1 ORDER BY id`, list)
	if err != nil {
		return nil, fmt.Errorf("reading list %q: %w", list, err)
	}
	defer rows.Close()

	var values [][]byte
	for rows.Next() {
		var value []byte
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
