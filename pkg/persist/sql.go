package persist

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// SQLBackend stores keys in a relational table. It works with any
// database/sql driver (PostgreSQL, MySQL, SQLite). Requires a table
// with schema:
//
//	CREATE TABLE tether_state (
//	    id VARCHAR(255) PRIMARY KEY,
//	    data BYTEA NOT NULL,
//	    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
//	);
//
// CreateTable issues the dialect-appropriate equivalent.
type SQLBackend struct {
	db      *sql.DB
	table   string
	dialect SQLDialect

	mu     sync.Mutex
	closed bool
}

// SQLDialect selects the placeholder and upsert syntax.
type SQLDialect int

const (
	// DialectPostgreSQL uses $1, $2 placeholders and ON CONFLICT.
	DialectPostgreSQL SQLDialect = iota
	// DialectMySQL uses ? placeholders and ON DUPLICATE KEY.
	DialectMySQL
	// DialectSQLite uses ? placeholders and INSERT OR REPLACE.
	DialectSQLite
)

// SQLOption configures SQLBackend behavior.
type SQLOption func(*sqlConfig)

type sqlConfig struct {
	table   string
	dialect SQLDialect
}

// WithSQLTable sets the table name. Default: "tether_state".
func WithSQLTable(name string) SQLOption {
	return func(c *sqlConfig) {
		c.table = name
	}
}

// WithSQLDialect sets the dialect. Default: DialectPostgreSQL.
func WithSQLDialect(d SQLDialect) SQLOption {
	return func(c *sqlConfig) {
		c.dialect = d
	}
}

// NewSQLBackend creates a SQL-backed store around an existing *sql.DB.
// The backend never closes the DB; it may be shared.
func NewSQLBackend(db *sql.DB, opts ...SQLOption) *SQLBackend {
	cfg := &sqlConfig{
		table:   "tether_state",
		dialect: DialectPostgreSQL,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &SQLBackend{
		db:      db,
		table:   cfg.table,
		dialect: cfg.dialect,
	}
}

func (s *SQLBackend) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// placeholder returns the placeholder syntax for the dialect.
func (s *SQLBackend) placeholder(n int) string {
	if s.dialect == DialectPostgreSQL {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Read returns the value for key, or ErrNotFound.
func (s *SQLBackend) Read(ctx context.Context, key string) ([]byte, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = %s`, s.table, s.placeholder(1))

	var data []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Write upserts the value for key using the dialect's native syntax.
func (s *SQLBackend) Write(ctx context.Context, key string, data []byte) error {
	if s.isClosed() {
		return ErrClosed
	}

	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`
			INSERT INTO %s (id, data, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (id) DO UPDATE SET
				data = EXCLUDED.data,
				updated_at = NOW()
		`, s.table)
	case DialectMySQL:
		query = fmt.Sprintf(`
			INSERT INTO %s (id, data, updated_at)
			VALUES (?, ?, NOW())
			ON DUPLICATE KEY UPDATE
				data = VALUES(data),
				updated_at = NOW()
		`, s.table)
	case DialectSQLite:
		query = fmt.Sprintf(`
			INSERT OR REPLACE INTO %s (id, data, updated_at)
			VALUES (?, ?, datetime('now'))
		`, s.table)
	}

	_, err := s.db.ExecContext(ctx, query, key, data)
	return err
}

// Delete removes key.
func (s *SQLBackend) Delete(ctx context.Context, key string) error {
	if s.isClosed() {
		return ErrClosed
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = %s`, s.table, s.placeholder(1))
	_, err := s.db.ExecContext(ctx, query, key)
	return err
}

// Keys lists all stored keys.
func (s *SQLBackend) Keys(ctx context.Context) ([]string, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	query := fmt.Sprintf(`SELECT id FROM %s ORDER BY id`, s.table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close marks the backend closed. The DB handle is left open for its
// other users.
func (s *SQLBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// CreateTable creates the state table if it doesn't exist. Convenience
// for development and tooling.
func (s *SQLBackend) CreateTable(ctx context.Context) error {
	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id VARCHAR(255) PRIMARY KEY,
				data BYTEA NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)
		`, s.table)
	case DialectMySQL:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id VARCHAR(255) PRIMARY KEY,
				data BLOB NOT NULL,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
			)
		`, s.table)
	case DialectSQLite:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				data BLOB NOT NULL,
				updated_at TEXT DEFAULT (datetime('now'))
			)
		`, s.table)
	}

	_, err := s.db.ExecContext(ctx, query)
	return err
}
