package database

import (
	"context"
	"database/sql"
)

// GetArtifact returns the raw JSON stored under (user, kind).
// Returns nil if nothing is stored.
func (db *DB) GetArtifact(ctx context.Context, user, kind string) ([]byte, error) {
	var data string
	err := db.conn.QueryRowContext(ctx,
		`SELECT data FROM artifacts WHERE user_name = ? AND kind = ?`, user, kind,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

// PutArtifact overwrites the record stored under (user, kind).
func (db *DB) PutArtifact(ctx context.Context, user, kind string, data []byte) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO artifacts (user_name, kind, data, updated_at)
		VALUES (?, ?, ?, datetime('now'))`,
		user, kind, string(data),
	)
	return err
}

// ListArtifacts returns all records for a user, newest first.
func (db *DB) ListArtifacts(ctx context.Context, user string) ([]Artifact, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_name, kind, data, updated_at FROM artifacts WHERE user_name = ? ORDER BY updated_at DESC, kind`,
		user,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		var data string
		if err := rows.Scan(&a.User, &a.Kind, &data, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Data = []byte(data)
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM users", &s.Users},
		{"SELECT COUNT(*) FROM platform_credentials", &s.Credentials},
		{"SELECT COUNT(*) FROM artifacts", &s.Artifacts},
	}

	for _, q := range queries {
		if err := db.conn.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	var last sql.NullString
	if err := db.conn.QueryRowContext(ctx, "SELECT MAX(updated_at) FROM artifacts").Scan(&last); err != nil {
		return nil, err
	}
	s.LastUpdate = last.String

	return s, nil
}
