package msgstore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// PostgresStore keeps records in a single table keyed by id.
// The primary key rejects duplicates and DELETE's row count tells each
// caller whether it was the one that removed the row.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresStore wraps an existing pool and creates the table if needed.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, table string) (*PostgresStore, error) {
	if table == "" {
		table = defaultName
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("msgstore: invalid table name %q", table)
	}
	s := &PostgresStore{pool: pool, table: table}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromConfig creates a connection pool, verifies connectivity
// and prepares the table.
func NewPostgresStoreFromConfig(ctx context.Context, cfg Config) (*PostgresStore, error) {
	pool, err := newPool(ctx, cfg.DSN, cfg.PoolMin, cfg.PoolMax, cfg.timeout())
	if err != nil {
		return nil, err
	}
	s, err := NewPostgresStore(ctx, pool, cfg.name())
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func newPool(ctx context.Context, dsn string, minConns, maxConns int32, connectTimeout time.Duration) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("msgstore: parse database URL: %w", err)
	}

	if minConns > 0 {
		config.MinConns = minConns
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("msgstore: create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("msgstore: ping database: %w", err)
	}
	return pool, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id         TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table))
	if err != nil {
		return fmt.Errorf("msgstore: create table %s: %w", s.table, err)
	}
	return nil
}

// Put inserts a row; a conflicting id yields ErrExists.
func (s *PostgresStore) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, data) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, s.table),
		key, data)
	if err != nil {
		return fmt.Errorf("msgstore: postgres insert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExists
	}
	return nil
}

// Keys returns all ids, oldest first.
func (s *PostgresStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT id FROM %s ORDER BY created_at, id`, s.table))
	if err != nil {
		return nil, fmt.Errorf("msgstore: postgres list: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("msgstore: postgres scan: %w", err)
		}
		keys = append(keys, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgstore: postgres rows: %w", err)
	}
	return keys, nil
}

// Get selects one row by id.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE id = $1`, s.table), key)
	if err != nil {
		return nil, fmt.Errorf("msgstore: postgres get: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("msgstore: postgres get: %w", err)
		}
		return nil, ErrNotFound
	}
	var data []byte
	if err := rows.Scan(&data); err != nil {
		return nil, fmt.Errorf("msgstore: postgres scan: %w", err)
	}
	return data, nil
}

// Delete removes the row and reports whether this statement removed it.
func (s *PostgresStore) Delete(ctx context.Context, key string) (bool, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), key)
	if err != nil {
		return false, fmt.Errorf("msgstore: postgres delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// HealthCheck pings the database.
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("msgstore: postgres ping: %w", err)
	}
	return nil
}

// Close closes all connections in the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
