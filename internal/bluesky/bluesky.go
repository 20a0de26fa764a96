// Package bluesky reads the social graph and recent posts of a Bluesky account.
package bluesky

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/friendscout/internal/apperr"
	"github.com/TobiSchelling/friendscout/internal/logging"
	"github.com/TobiSchelling/friendscout/internal/metrics"
	"github.com/TobiSchelling/friendscout/internal/social"
)

const (
	pageSize     = 100
	maxFollowing = 1000
)

// ErrNotLoggedIn is returned when a read is attempted before Login.
var ErrNotLoggedIn = errors.New("bluesky: not logged in")

// Profile is an actor as returned by the graph endpoints.
type Profile struct {
	DID         string
	Handle      string
	DisplayName string
}

// Session identifies the logged-in actor.
type Session struct {
	DID    string
	Handle string
}

// API is the subset of the AT Protocol used by the connector.
// Posts whose record carries no text are returned with an empty string.
type API interface {
	CreateSession(ctx context.Context, identifier, password string) (*Session, error)
	GetFollows(ctx context.Context, actor, cursor string, limit int64) ([]Profile, string, error)
	GetFollowers(ctx context.Context, actor, cursor string, limit int64) ([]Profile, string, error)
	GetAuthorFeed(ctx context.Context, actor string, limit int64) ([]string, error)
}

// Connector is a session-scoped, read-only view of one Bluesky account.
type Connector struct {
	api     API
	limiter *rate.Limiter
	logger  *zap.Logger
	session *Session
}

// New creates a connector. requestsPerSecond <= 0 disables throttling.
func New(api API, requestsPerSecond float64, logger *zap.Logger) *Connector {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Connector{
		api:     api,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logging.OrNop(logger).With(zap.String("platform", string(social.Bluesky))),
	}
}

// Login opens a session with a handle or email and an app password.
func (c *Connector) Login(ctx context.Context, identifier, password string) error {
	if identifier == "" || password == "" {
		return apperr.Auth("bluesky.login", fmt.Errorf("identifier and password are required"))
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	s, err := c.api.CreateSession(ctx, identifier, password)
	c.observe("login", err)
	if err != nil {
		return err
	}
	c.session = s
	c.logger.Info("Logged in", zap.String("handle", s.Handle))
	return nil
}

// Identity returns the logged-in account's DID, or "" before Login.
func (c *Connector) Identity() string {
	if c.session == nil {
		return ""
	}
	return c.session.DID
}

// Handle returns the logged-in account's handle.
func (c *Connector) Handle() string {
	if c.session == nil {
		return ""
	}
	return c.session.Handle
}

// ListFollowedAccounts returns the accounts identity follows, in API order.
func (c *Connector) ListFollowedAccounts(ctx context.Context, identity string) ([]social.Account, error) {
	if c.session == nil {
		return nil, apperr.Auth("bluesky.follows", ErrNotLoggedIn)
	}

	var out []social.Account
	cursor := ""
	for len(out) < maxFollowing {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		page, next, err := c.api.GetFollows(ctx, identity, cursor, pageSize)
		c.observe("follows", err)
		if err != nil {
			return nil, err
		}
		for _, p := range page {
			out = append(out, toAccount(p))
		}
		if next == "" || len(page) == 0 {
			break
		}
		cursor = next
	}
	if len(out) > maxFollowing {
		out = out[:maxFollowing]
	}
	return out, nil
}

// ListFollowers returns up to limit followers of accountID.
func (c *Connector) ListFollowers(ctx context.Context, accountID string, limit int) ([]social.Account, error) {
	if c.session == nil {
		return nil, apperr.Auth("bluesky.followers", ErrNotLoggedIn)
	}
	if limit <= 0 {
		return []social.Account{}, nil
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	page, _, err := c.api.GetFollowers(ctx, accountID, "", int64(limit))
	c.observe("followers", err)
	if err != nil {
		return nil, err
	}

	out := make([]social.Account, 0, len(page))
	for _, p := range page {
		if len(out) >= limit {
			break
		}
		out = append(out, toAccount(p))
	}
	return out, nil
}

// ListRecentPosts returns up to limit recent posts by accountID, skipping
// posts without text.
func (c *Connector) ListRecentPosts(ctx context.Context, accountID string, limit int) ([]social.PostSample, error) {
	if c.session == nil {
		return nil, apperr.Auth("bluesky.feed", ErrNotLoggedIn)
	}
	if limit <= 0 {
		return []social.PostSample{}, nil
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	texts, err := c.api.GetAuthorFeed(ctx, accountID, int64(limit))
	c.observe("feed", err)
	if err != nil {
		return nil, err
	}

	out := make([]social.PostSample, 0, len(texts))
	for _, text := range texts {
		if len(out) >= limit {
			break
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, social.PostSample{AccountID: accountID, Text: text, Platform: social.Bluesky})
	}
	return out, nil
}

func (c *Connector) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperr.Transient("bluesky.ratelimit", err)
	}
	return nil
}

func (c *Connector) observe(op string, err error) {
	metrics.ConnectorCalls.WithLabelValues(string(social.Bluesky), op, metrics.Outcome(err)).Inc()
	if err != nil {
		c.logger.Debug("API call failed", zap.String("op", op), zap.Error(err))
	}
}

func toAccount(p Profile) social.Account {
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		name = social.NoDisplayName
	}
	return social.Account{
		ID:          p.DID,
		Handle:      p.Handle,
		DisplayName: name,
		Platform:    social.Bluesky,
	}
}
