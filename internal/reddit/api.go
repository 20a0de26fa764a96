package reddit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goreddit "github.com/vartanbeno/go-reddit/v2/reddit"

	"github.com/TobiSchelling/friendscout/internal/apperr"
	"github.com/TobiSchelling/friendscout/internal/social"
)

// App holds the registered script application used for password logins.
type App struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
}

// Dial returns a Dialer that logs in through the official API.
func (a App) Dial() Dialer {
	return func(_ context.Context, creds social.Credentials) (API, error) {
		if a.ClientID == "" || a.ClientSecret == "" {
			return nil, apperr.Auth("reddit.login", fmt.Errorf("reddit client id and secret are not configured"))
		}
		client, err := goreddit.NewClient(goreddit.Credentials{
			ID:       a.ClientID,
			Secret:   a.ClientSecret,
			Username: creds.Username,
			Password: creds.Password,
		}, goreddit.WithUserAgent(a.UserAgent))
		if err != nil {
			return nil, apperr.Auth("reddit.login", err)
		}
		return &apiClient{c: client}, nil
	}
}

type apiClient struct {
	c *goreddit.Client
}

func (r *apiClient) Me(ctx context.Context) (string, error) {
	user, _, err := r.c.Account.Info(ctx)
	if err != nil {
		return "", classify("reddit.me", err)
	}
	return user.Name, nil
}

func (r *apiClient) Friends(ctx context.Context) ([]string, error) {
	friends, _, err := r.c.Account.Friends(ctx)
	if err != nil {
		return nil, classify("reddit.friends", err)
	}
	names := make([]string, 0, len(friends))
	for _, f := range friends {
		names = append(names, f.User)
	}
	return names, nil
}

func (r *apiClient) Subscribed(ctx context.Context, limit int) ([]Subreddit, error) {
	subs, _, err := r.c.Subreddit.Subscribed(ctx, &goreddit.ListSubredditOptions{
		ListOptions: goreddit.ListOptions{Limit: limit},
	})
	if err != nil {
		return nil, classify("reddit.subscriptions", err)
	}
	out := make([]Subreddit, 0, len(subs))
	for _, s := range subs {
		out = append(out, Subreddit{Name: s.Name, Description: s.Description, Subscribers: s.Subscribers})
	}
	return out, nil
}

func (r *apiClient) PostsOf(ctx context.Context, username string, limit int) ([]Post, error) {
	posts, _, err := r.c.User.PostsOf(ctx, username, &goreddit.ListUserOverviewOptions{
		ListOptions: goreddit.ListOptions{Limit: limit},
	})
	if err != nil {
		return nil, classify("reddit.posts", err)
	}
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		out = append(out, Post{Title: p.Title, Body: p.Body, URL: p.URL, IsSelf: p.IsSelfPost})
	}
	return out, nil
}

// classify maps go-reddit errors onto the apperr taxonomy.
func classify(op string, err error) error {
	var er *goreddit.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return apperr.FromStatus(op, er.Response.StatusCode, err)
	}
	// Token fetch failures surface from the oauth2 transport.
	if strings.Contains(err.Error(), "oauth2") {
		return apperr.Auth(op, err)
	}
	return apperr.Transient(op, err)
}
