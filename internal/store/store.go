// Package store provides the embedded SQLite database holding the
// device-local working copy of all business records.
//
// The database runs in embedded mode using WAL for concurrency support.
// It holds five record collections: products, sales, layaways, owners,
// settings. The store is the canonical data path for the application --
// every local write succeeds or fails independently of remote state,
// and the sync engine reconciles it with the shared tree afterwards.
//
// Records carry an auto-assigned local id (monotonic per collection)
// and an optional remote_key column linking them to the remote tree.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection with collection-level CRUD.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent
// reads. If the database doesn't exist, it is created; call InitSchema
// afterwards to create the tables.
//
// The caller MUST call Close() when done to ensure proper cleanup.
func Open(path string) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn: conn,
		path: path,
	}

	// Enable WAL mode for concurrent reads
	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := s.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return s, nil
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// Idempotent - safe to call multiple times.
func (s *Store) InitSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_key TEXT,
		name TEXT NOT NULL,
		category TEXT,
		sku TEXT,
		price REAL NOT NULL DEFAULT 0,
		stock INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_key TEXT,
		ticket_number TEXT NOT NULL UNIQUE,
		items TEXT NOT NULL,  -- JSON array
		total REAL NOT NULL DEFAULT 0,
		payment_method TEXT,
		date TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS layaways (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_key TEXT,
		customer_name TEXT NOT NULL,
		customer_phone TEXT,
		items TEXT NOT NULL,  -- JSON array
		total REAL NOT NULL DEFAULT 0,
		total_paid REAL NOT NULL DEFAULT 0,
		pending_amount REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		date TEXT NOT NULL,
		payments TEXT NOT NULL,  -- JSON array
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS owners (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_key TEXT,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT,  -- JSON value
		updated_at TEXT NOT NULL
	);

	-- Indexes for common queries
	CREATE INDEX IF NOT EXISTS idx_products_name ON products(name);
	CREATE INDEX IF NOT EXISTS idx_products_sku ON products(sku);
	CREATE INDEX IF NOT EXISTS idx_products_remote_key ON products(remote_key);
	CREATE INDEX IF NOT EXISTS idx_sales_date ON sales(date);
	CREATE INDEX IF NOT EXISTS idx_sales_remote_key ON sales(remote_key);
	CREATE INDEX IF NOT EXISTS idx_layaways_status ON layaways(status);
	CREATE INDEX IF NOT EXISTS idx_layaways_remote_key ON layaways(remote_key);
	CREATE INDEX IF NOT EXISTS idx_owners_name ON owners(name);
	`

	if _, err := s.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// CountRecords returns the number of rows in the given collection.
func (s *Store) CountRecords(ctx context.Context, collection string) (int, error) {
	table, ok := map[string]string{
		"products": "products",
		"sales":    "sales",
		"layaways": "layaways",
		"owners":   "owners",
		"settings": "settings",
	}[collection]
	if !ok {
		return 0, fmt.Errorf("unknown collection %q", collection)
	}

	var count int
	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return count, nil
}

// timeToNullString converts a time to a nullable string for SQL,
// treating the zero time as NULL.
func timeToNullString(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time,
// returning the zero time for NULL or unparseable values.
func nullStringToTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
