package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Writers are the metrics collector, the activity logger, the backup
// manager and console history; the API only reads. WAL lets those reads run
// next to the one sqlite writer, so a small pool is enough.
const (
	maxOpenConns = 4
	maxIdleConns = 2
	connIdleTime = 5 * time.Minute
	pingTimeout  = 5 * time.Second
)

// Applied on every new connection.
var pragmas = []string{
	"foreign_keys(ON)",
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// DB is the supervisor's sqlite store for one server instance.
type DB struct {
	*sql.DB
	path string
}

// NewDB opens the database at dbPath, creating its directory if needed.
func NewDB(dbPath string) (*DB, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", sqliteDSN(absPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxIdleTime(connIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", absPath, err)
	}

	return &DB{DB: sqlDB, path: absPath}, nil
}

// Path returns the absolute location of the database file.
func (db *DB) Path() string {
	return db.path
}

// sqliteDSN builds a file URI; timestamps are stored in sqlite's own text
// format so DATETIME columns compare correctly against datetime('now').
func sqliteDSN(absPath string) string {
	params := make([]string, 0, len(pragmas)+1)
	for _, p := range pragmas {
		params = append(params, "_pragma="+p)
	}
	params = append(params, "_time_format=sqlite")
	return "file:" + filepath.ToSlash(absPath) + "?" + strings.Join(params, "&")
}

// Migrate applies pending migrations in order, each in its own transaction.
func (db *DB) Migrate() error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	versions, err := db.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := db.apply(m); err != nil {
			return err
		}
		log.Printf("[Database] Applied migration %s to %s", m.Version, db.path)
	}
	return nil
}

func (db *DB) apply(m Migration) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration %s: %w", m.Version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(m.Up); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
	}
	if _, err = tx.Exec("INSERT INTO migrations (version, applied_at) VALUES (?, datetime('now'))", m.Version); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
	}
	return nil
}

func (db *DB) appliedVersions() ([]string, error) {
	rows, err := db.Query("SELECT version FROM migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}
