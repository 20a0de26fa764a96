// Package session holds per-browser-session state between requests.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/TobiSchelling/friendscout/internal/config"
	"github.com/TobiSchelling/friendscout/internal/logging"
	"github.com/TobiSchelling/friendscout/internal/social"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// Store keeps SessionContexts by id. Save is last-write-wins.
type Store interface {
	Create(ctx context.Context, localUser string) (*social.SessionContext, error)
	Get(ctx context.Context, id string) (*social.SessionContext, error)
	Save(ctx context.Context, s *social.SessionContext) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// New returns the backend selected in cfg.
func New(cfg config.Session, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(cfg.MaxSessions)
	case "redis":
		url := config.Env(cfg.RedisURLEnv)
		if url == "" {
			return nil, fmt.Errorf("session backend redis needs %s to be set", cfg.RedisURLEnv)
		}
		return NewRedisWithURL(url, cfg.TTL, logger)
	}
	return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
}

func newID() string { return uuid.NewString() }

func encode(s *social.SessionContext) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*social.SessionContext, error) {
	var s social.SessionContext
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	s.Normalize()
	return &s, nil
}

// Memory is an in-process Store that evicts the least recently used
// sessions beyond its capacity. Sessions are held encoded, so every Get
// returns a private copy and callers never share a SessionContext.
type Memory struct {
	cache *lru.Cache[string, []byte]
}

// NewMemory creates a memory store holding at most size sessions.
func NewMemory(size int) (*Memory, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("creating session cache: %w", err)
	}
	return &Memory{cache: cache}, nil
}

func (m *Memory) Create(ctx context.Context, localUser string) (*social.SessionContext, error) {
	s := social.NewSessionContext(newID(), localUser)
	if err := m.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Memory) Get(_ context.Context, id string) (*social.SessionContext, error) {
	data, ok := m.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return decode(data)
}

func (m *Memory) Save(_ context.Context, s *social.SessionContext) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	m.cache.Add(s.ID, data)
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.cache.Remove(id)
	return nil
}

// Len returns the number of live sessions.
func (m *Memory) Len() int { return m.cache.Len() }

func (m *Memory) Close() error {
	m.cache.Purge()
	return nil
}

const keyPrefix = "friendscout:session:"

// Redis stores sessions as JSON values that expire after ttl of inactivity.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	return &Redis{client: client, ttl: ttl, logger: logging.OrNop(logger)}
}

// NewRedisWithURL connects to a redis:// URL.
func NewRedisWithURL(url string, ttl time.Duration, logger *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opts), ttl, logger), nil
}

func (r *Redis) Create(ctx context.Context, localUser string) (*social.SessionContext, error) {
	s := social.NewSessionContext(newID(), localUser)
	if err := r.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Redis) Get(ctx context.Context, id string) (*social.SessionContext, error) {
	data, err := r.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	s, err := decode(data)
	if err != nil {
		r.logger.Warn("Dropping unreadable session", zap.String("id", id), zap.Error(err))
		return nil, ErrNotFound
	}

	if r.ttl > 0 {
		if err := r.client.Expire(ctx, keyPrefix+id, r.ttl).Err(); err != nil {
			r.logger.Warn("Refreshing session ttl failed", zap.String("id", id), zap.Error(err))
		}
	}
	return s, nil
}

func (r *Redis) Save(ctx context.Context, s *social.SessionContext) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, keyPrefix+s.ID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
