package database

import (
	"context"
	"database/sql"

	"github.com/TobiSchelling/friendscout/internal/social"
)

// GetCredentials returns the stored platform login for a local user.
// Returns nil if none is stored.
func (db *DB) GetCredentials(ctx context.Context, user string, platform social.Platform) (*social.Credentials, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT username, password FROM platform_credentials WHERE user_name = ? AND platform = ?`,
		user, string(platform),
	)
	var c social.Credentials
	if err := row.Scan(&c.Username, &c.Password); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// PutCredentials inserts or replaces the platform login for a local user.
func (db *DB) PutCredentials(ctx context.Context, user string, platform social.Platform, creds social.Credentials) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO platform_credentials (user_name, platform, username, password, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))`,
		user, string(platform), creds.Username, creds.Password,
	)
	return err
}
