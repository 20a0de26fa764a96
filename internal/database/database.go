// Package database persists local accounts, per-platform credentials and
// the JSON artifacts a fetch or analysis produces.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/TobiSchelling/friendscout/internal/logging"
)

// DB is the SQLite Store. It holds the users, platform_credentials and
// artifacts tables; artifacts are keyed by (local user, kind).
type DB struct {
	conn   *sql.DB
	path   string
	logger *zap.Logger
}

// Open creates or opens the friendscout database at dbPath and applies
// pending migrations. The web server and the Telegram bot may hold the
// file open at the same time, so writers wait on a busy lock.
func Open(dbPath string, logger *zap.Logger) (*DB, error) {
	logger = logging.OrNop(logger)

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Per-connection pragmas go in the DSN so every pooled connection gets them.
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if err := migrate(conn, logger); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath, logger: logger}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}
