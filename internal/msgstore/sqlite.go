package msgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is an embedded key/value table. SQLite serializes writers on
// the database file, so DELETE's affected-row count is exact even when
// several processes share the file.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(ctx context.Context, path, table string) (*SQLiteStore, error) {
	if path == "" {
		path = "./data/queue.db"
	}
	if table == "" {
		table = defaultName
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("msgstore: invalid table name %q", table)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("msgstore: create sqlite directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("msgstore: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, table: table}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id         TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	created_at INTEGER NOT NULL
)`, s.table))
	if err != nil {
		return fmt.Errorf("msgstore: create table %s: %w", s.table, err)
	}
	return nil
}

// Put inserts a row; a conflicting id yields ErrExists.
func (s *SQLiteStore) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, data, created_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`, s.table),
		key, data, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("msgstore: sqlite insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("msgstore: sqlite rows affected: %w", err)
	}
	if n == 0 {
		return ErrExists
	}
	return nil
}

// Keys returns all ids in insertion order.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id FROM %s ORDER BY created_at, rowid`, s.table))
	if err != nil {
		return nil, fmt.Errorf("msgstore: sqlite list: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("msgstore: sqlite scan: %w", err)
		}
		keys = append(keys, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgstore: sqlite rows: %w", err)
	}
	return keys, nil
}

// Get selects one row by id.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE id = ?`, s.table), key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("msgstore: sqlite get: %w", err)
	}
	return data, nil
}

// Delete removes the row and reports whether this statement removed it.
func (s *SQLiteStore) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table), key)
	if err != nil {
		return false, fmt.Errorf("msgstore: sqlite delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("msgstore: sqlite rows affected: %w", err)
	}
	return n > 0, nil
}

// HealthCheck pings the database.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("msgstore: sqlite ping: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
