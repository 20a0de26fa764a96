package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is lowered in tests.
var bcryptCost = bcrypt.DefaultCost

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func validAccount(username, password string) bool {
	return strings.TrimSpace(username) != "" && password != ""
}

// RegisterUser creates a local account.
func (db *DB) RegisterUser(ctx context.Context, username, password string) error {
	if !validAccount(username, password) {
		return ErrInvalidAccount
	}
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}

	result, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (username, password_hash) VALUES (?, ?)`,
		username, hash,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserExists
	}
	return nil
}

// VerifyUser reports whether the password matches the stored hash.
// Unknown users verify as false without error.
func (db *DB) VerifyUser(ctx context.Context, username, password string) (bool, error) {
	var hash string
	err := db.conn.QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE username = ?`, username,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return checkPassword(hash, password), nil
}
