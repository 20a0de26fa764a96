package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/TobiSchelling/friendscout/internal/config"
	"github.com/TobiSchelling/friendscout/internal/logging"
	"github.com/TobiSchelling/friendscout/internal/social"
)

// PgxPool is the subset of *pgxpool.Pool used by PGStore.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// pgSchema is applied statement by statement; every statement is idempotent.
var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    username TEXT PRIMARY KEY,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS platform_credentials (
    user_name TEXT NOT NULL,
    platform TEXT NOT NULL CHECK (platform IN ('bluesky', 'reddit')),
    username TEXT NOT NULL,
    password TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_name, platform)
)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
    user_name TEXT NOT NULL,
    kind TEXT NOT NULL,
    data TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_name, kind)
)`,
}

// PGStore is a PostgreSQL-backed Store.
type PGStore struct {
	pool   PgxPool
	logger *zap.Logger
}

// NewPGStore wraps an existing pool.
func NewPGStore(pool PgxPool, logger *zap.Logger) *PGStore {
	return &PGStore{pool: pool, logger: logging.OrNop(logger)}
}

// OpenPostgres connects to dsn, pings it and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.MaxConns = 5
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	s := NewPGStore(pool, logger)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables if they do not exist.
func (s *PGStore) Migrate(ctx context.Context) error {
	for i, stmt := range pgSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres schema step %d: %w", i+1, err)
		}
	}
	s.logger.Debug("Postgres schema ready", zap.Int("statements", len(pgSchema)))
	return nil
}

// Close releases the pool.
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

// RegisterUser creates a local account.
func (s *PGStore) RegisterUser(ctx context.Context, username, password string) error {
	if !validAccount(username, password) {
		return ErrInvalidAccount
	}
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2) ON CONFLICT (username) DO NOTHING`,
		username, hash,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserExists
	}
	return nil
}

// VerifyUser reports whether the password matches the stored hash.
func (s *PGStore) VerifyUser(ctx context.Context, username, password string) (bool, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE username = $1`, username).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return checkPassword(hash, password), nil
}

// GetCredentials returns the stored platform login, or nil.
func (s *PGStore) GetCredentials(ctx context.Context, user string, platform social.Platform) (*social.Credentials, error) {
	var c social.Credentials
	err := s.pool.QueryRow(ctx,
		`SELECT username, password FROM platform_credentials WHERE user_name = $1 AND platform = $2`,
		user, string(platform),
	).Scan(&c.Username, &c.Password)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// PutCredentials upserts the platform login.
func (s *PGStore) PutCredentials(ctx context.Context, user string, platform social.Platform, creds social.Credentials) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO platform_credentials (user_name, platform, username, password, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_name, platform) DO UPDATE
		SET username = EXCLUDED.username, password = EXCLUDED.password, updated_at = now()`,
		user, string(platform), creds.Username, creds.Password,
	)
	return err
}

// GetArtifact returns the raw JSON stored under (user, kind), or nil.
func (s *PGStore) GetArtifact(ctx context.Context, user, kind string) ([]byte, error) {
	var data string
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM artifacts WHERE user_name = $1 AND kind = $2`, user, kind,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

// PutArtifact overwrites the record stored under (user, kind).
func (s *PGStore) PutArtifact(ctx context.Context, user, kind string, data []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO artifacts (user_name, kind, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_name, kind) DO UPDATE
		SET data = EXCLUDED.data, updated_at = now()`,
		user, kind, string(data),
	)
	return err
}

// GetStats returns aggregate database statistics.
func (s *PGStore) GetStats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	var last *time.Time
	err := s.pool.QueryRow(ctx, `SELECT
    (SELECT COUNT(*) FROM users),
    (SELECT COUNT(*) FROM platform_credentials),
    (SELECT COUNT(*) FROM artifacts),
    (SELECT MAX(updated_at) FROM artifacts)`,
	).Scan(&st.Users, &st.Credentials, &st.Artifacts, &last)
	if err != nil {
		return nil, err
	}
	if last != nil {
		st.LastUpdate = last.UTC().Format("2006-01-02 15:04:05")
	}
	return st, nil
}

// OpenStore opens PostgreSQL when the configured DSN variable is set,
// otherwise the SQLite database in the data directory.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	if dsn := config.Env(cfg.Storage.DatabaseURLEnv); dsn != "" {
		logging.OrNop(logger).Info("Using PostgreSQL store")
		return OpenPostgres(ctx, dsn, logger)
	}
	return Open(filepath.Join(cfg.GetDataDir(), "friendscout.db"), logger)
}
