package database

import (
	"context"
	"errors"

	"github.com/TobiSchelling/friendscout/internal/social"
)

var (
	// ErrUserExists is returned when registering a taken username.
	ErrUserExists = errors.New("username already exists")
	// ErrInvalidAccount is returned for empty usernames or passwords.
	ErrInvalidAccount = errors.New("username and password are required")
)

// Store is the persistence boundary of the application: local accounts,
// per-platform credentials, and opaque artifact records keyed by (user, kind).
// Writes are last-write-wins.
type Store interface {
	RegisterUser(ctx context.Context, username, password string) error
	VerifyUser(ctx context.Context, username, password string) (bool, error)

	GetCredentials(ctx context.Context, user string, platform social.Platform) (*social.Credentials, error)
	PutCredentials(ctx context.Context, user string, platform social.Platform, creds social.Credentials) error

	GetArtifact(ctx context.Context, user, kind string) ([]byte, error)
	PutArtifact(ctx context.Context, user, kind string, data []byte) error

	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}

// Stats contains aggregate database statistics.
type Stats struct {
	Users       int
	Credentials int
	Artifacts   int
	LastUpdate  string
}

// Artifact is a stored record with its last write time.
type Artifact struct {
	User      string
	Kind      string
	Data      []byte
	UpdatedAt string
}
