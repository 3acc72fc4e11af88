package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// FileName is the database file created inside the data directory
const FileName = "waterworks.db"

// DB is the sqlite-backed store shared by the job cache and the upload ledger
type DB struct {
	conn *sql.DB
	lock *Lock
	path string
}

// Open creates the data directory, takes the single-writer lock, opens the
// database and runs migrations.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock, err := AcquireLock(dataDir)
	if err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dataDir, FileName)
	db, err := OpenPath(dbPath)
	if err != nil {
		lock.Release()
		return nil, err
	}
	db.lock = lock
	return db, nil
}

// OpenPath opens a database file without taking the directory lock
func OpenPath(dbPath string) (*DB, error) {
	// Open with DSN options for SQLite pragmas
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", dbPath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if err := RunMigrations(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: failed to run migrations: %v", ErrCorrupt, err)
	}

	if err := checkIntegrity(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Path returns the database file location
func (db *DB) Path() string {
	return db.path
}

// Close closes the connection and releases the lock
func (db *DB) Close() error {
	var err error
	if db.conn != nil {
		err = db.conn.Close()
	}
	if db.lock != nil {
		if lerr := db.lock.Release(); lerr != nil && err == nil {
			err = lerr
		}
	}
	return err
}

// RunMigrations creates all necessary tables
func RunMigrations(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bucket TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(bucket, key)
	);

	CREATE INDEX IF NOT EXISTS idx_kv_bucket ON kv(bucket);
	`

	_, err := db.Exec(schema)
	return err
}

func checkIntegrity(db *sql.DB) error {
	var result string
	if err := db.QueryRowContext(context.Background(), "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: integrity check reported %q", ErrCorrupt, result)
	}
	return nil
}

// Sentinel errors for the persisted stores
var (
	ErrNotFound = errors.New("not found")
	ErrCorrupt  = errors.New("persisted store is corrupt")
	ErrLocked   = errors.New("data directory is locked by another run")
)
