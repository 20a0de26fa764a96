// Package reddit reads friends, subscriptions and posts of a Reddit account.
package reddit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/friendscout/internal/apperr"
	"github.com/TobiSchelling/friendscout/internal/logging"
	"github.com/TobiSchelling/friendscout/internal/metrics"
	"github.com/TobiSchelling/friendscout/internal/social"
)

const descriptionLimit = 100

// ErrNotLoggedIn is returned when a read is attempted before Login.
var ErrNotLoggedIn = errors.New("reddit: not logged in")

// Subreddit is a subscribed community as returned by the API.
type Subreddit struct {
	Name        string
	Description string
	Subscribers int
}

// Post is a submission by a user.
type Post struct {
	Title  string
	Body   string
	URL    string
	IsSelf bool
}

// API is the subset of the Reddit API used by the connector.
// An API value is bound to one logged-in user.
type API interface {
	Me(ctx context.Context) (string, error)
	Friends(ctx context.Context) ([]string, error)
	Subscribed(ctx context.Context, limit int) ([]Subreddit, error)
	PostsOf(ctx context.Context, username string, limit int) ([]Post, error)
}

// Dialer builds an API for a user login.
type Dialer func(ctx context.Context, creds social.Credentials) (API, error)

// Expander resolves a linked page to readable text.
type Expander interface {
	Expand(ctx context.Context, url string) (string, error)
}

// Options tune a Connector.
type Options struct {
	RequestsPerSecond float64
	CommunityLimit    int
}

// Connector is a session-scoped, read-only view of one Reddit account.
type Connector struct {
	dial     Dialer
	api      API
	feeds    *FeedReader
	expander Expander
	limiter  *rate.Limiter
	logger   *zap.Logger
	opts     Options
	username string
}

// New creates a connector. feeds may be nil, which disables community posts.
func New(dial Dialer, feeds *FeedReader, opts Options, logger *zap.Logger) *Connector {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if opts.CommunityLimit <= 0 {
		opts.CommunityLimit = 100
	}
	return &Connector{
		dial:    dial,
		feeds:   feeds,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logging.OrNop(logger).With(zap.String("platform", string(social.Reddit))),
		opts:    opts,
	}
}

// SetExpander enables text expansion of link posts.
func (c *Connector) SetExpander(e Expander) {
	c.expander = e
}

// Login authenticates with the user's Reddit username and password.
func (c *Connector) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return apperr.Auth("reddit.login", fmt.Errorf("username and password are required"))
	}
	api, err := c.dial(ctx, social.Credentials{Username: username, Password: password})
	if err != nil {
		c.observe("login", err)
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	me, err := api.Me(ctx)
	c.observe("login", err)
	if err != nil {
		return err
	}
	c.api = api
	c.username = me
	c.logger.Info("Logged in", zap.String("username", me))
	return nil
}

// Identity returns the logged-in username, or "" before Login.
func (c *Connector) Identity() string {
	return c.username
}

// ListFollowedAccounts returns the logged-in user's friends.
// Reddit only exposes the friend list of the authenticated user.
func (c *Connector) ListFollowedAccounts(ctx context.Context, identity string) ([]social.Account, error) {
	if c.api == nil {
		return nil, apperr.Auth("reddit.friends", ErrNotLoggedIn)
	}
	if identity != "" && !strings.EqualFold(identity, c.username) {
		return nil, apperr.Auth("reddit.friends", fmt.Errorf("cannot list friends of %s", identity))
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	names, err := c.api.Friends(ctx)
	c.observe("friends", err)
	if err != nil {
		return nil, err
	}

	out := make([]social.Account, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		out = append(out, social.UsernameAccount(social.Reddit, n))
	}
	return out, nil
}

// ListRecentPosts returns up to limit recent submissions by accountID.
func (c *Connector) ListRecentPosts(ctx context.Context, accountID string, limit int) ([]social.PostSample, error) {
	if c.api == nil {
		return nil, apperr.Auth("reddit.posts", ErrNotLoggedIn)
	}
	if limit <= 0 {
		return []social.PostSample{}, nil
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	posts, err := c.api.PostsOf(ctx, accountID, limit)
	c.observe("posts", err)
	if err != nil {
		return nil, err
	}

	out := make([]social.PostSample, 0, len(posts))
	for _, p := range posts {
		if len(out) >= limit {
			break
		}
		text := c.postText(ctx, p)
		if text == "" {
			continue
		}
		out = append(out, social.PostSample{AccountID: accountID, Text: text, Platform: social.Reddit})
	}
	return out, nil
}

func (c *Connector) postText(ctx context.Context, p Post) string {
	parts := make([]string, 0, 3)
	if t := strings.TrimSpace(p.Title); t != "" {
		parts = append(parts, t)
	}
	if b := strings.TrimSpace(p.Body); b != "" {
		parts = append(parts, b)
	} else if !p.IsSelf && p.URL != "" && c.expander != nil {
		expanded, err := c.expander.Expand(ctx, p.URL)
		if err != nil {
			c.logger.Debug("Link expansion failed", zap.String("url", p.URL), zap.Error(err))
		} else if expanded != "" {
			parts = append(parts, expanded)
		}
	}
	return strings.Join(parts, "\n")
}

// ListSubscribedCommunities returns the communities identity subscribes to.
// Descriptions longer than 100 characters are truncated with "...".
func (c *Connector) ListSubscribedCommunities(ctx context.Context, identity string) ([]social.Community, error) {
	if c.api == nil {
		return nil, apperr.Auth("reddit.subscriptions", ErrNotLoggedIn)
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	subs, err := c.api.Subscribed(ctx, c.opts.CommunityLimit)
	c.observe("subscriptions", err)
	if err != nil {
		return nil, err
	}

	out := make([]social.Community, 0, len(subs))
	for _, s := range subs {
		if s.Name == "" {
			continue
		}
		out = append(out, social.Community{
			Name:        s.Name,
			URL:         "https://www.reddit.com/r/" + s.Name,
			Subscribers: s.Subscribers,
			Description: truncateDescription(s.Description),
		})
	}
	return out, nil
}

// ListCommunityPosts returns up to limit recent posts from a community feed.
// AccountID of each sample is the author's username.
func (c *Connector) ListCommunityPosts(ctx context.Context, community string, limit int) ([]social.PostSample, error) {
	if c.feeds == nil || limit <= 0 {
		return []social.PostSample{}, nil
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	entries, err := c.feeds.Community(ctx, community, limit)
	c.observe("community_feed", err)
	if err != nil {
		return nil, err
	}

	out := make([]social.PostSample, 0, len(entries))
	for _, e := range entries {
		text := strings.TrimSpace(strings.Join([]string{e.Title, e.Text}, "\n"))
		if e.Author == "" || text == "" {
			continue
		}
		out = append(out, social.PostSample{AccountID: e.Author, Text: text, Platform: social.Reddit})
	}
	return out, nil
}

func truncateDescription(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return social.NoDescription
	}
	if utf8.RuneCountInString(s) > descriptionLimit {
		return string([]rune(s)[:descriptionLimit]) + "..."
	}
	return s
}

func (c *Connector) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperr.Transient("reddit.ratelimit", err)
	}
	return nil
}

func (c *Connector) observe(op string, err error) {
	metrics.ConnectorCalls.WithLabelValues(string(social.Reddit), op, metrics.Outcome(err)).Inc()
	if err != nil {
		c.logger.Debug("API call failed", zap.String("op", op), zap.Error(err))
	}
}
