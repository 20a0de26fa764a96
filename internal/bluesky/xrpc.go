package bluesky

import (
	"context"
	"errors"
	"net/http"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	appbsky "github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/xrpc"

	"github.com/TobiSchelling/friendscout/internal/apperr"
)

// XRPC implements API against a PDS with the indigo client.
type XRPC struct {
	client *xrpc.Client
}

// NewXRPC creates an API client for host (e.g. https://bsky.social).
func NewXRPC(host string) *XRPC {
	return &XRPC{client: &xrpc.Client{
		Client: &http.Client{Timeout: 30 * time.Second},
		Host:   host,
	}}
}

func (x *XRPC) CreateSession(ctx context.Context, identifier, password string) (*Session, error) {
	out, err := comatproto.ServerCreateSession(ctx, x.client, &comatproto.ServerCreateSession_Input{
		Identifier: identifier,
		Password:   password,
	})
	if err != nil {
		return nil, classify("bluesky.login", err)
	}
	x.client.Auth = &xrpc.AuthInfo{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Handle:     out.Handle,
		Did:        out.Did,
	}
	return &Session{DID: out.Did, Handle: out.Handle}, nil
}

func (x *XRPC) GetFollows(ctx context.Context, actor, cursor string, limit int64) ([]Profile, string, error) {
	out, err := appbsky.GraphGetFollows(ctx, x.client, actor, cursor, limit)
	if err != nil {
		return nil, "", classify("bluesky.follows", err)
	}
	profiles := make([]Profile, 0, len(out.Follows))
	for _, f := range out.Follows {
		if f == nil {
			continue
		}
		profiles = append(profiles, profileOf(f))
	}
	return profiles, deref(out.Cursor), nil
}

func (x *XRPC) GetFollowers(ctx context.Context, actor, cursor string, limit int64) ([]Profile, string, error) {
	out, err := appbsky.GraphGetFollowers(ctx, x.client, actor, cursor, limit)
	if err != nil {
		return nil, "", classify("bluesky.followers", err)
	}
	profiles := make([]Profile, 0, len(out.Followers))
	for _, f := range out.Followers {
		if f == nil {
			continue
		}
		profiles = append(profiles, profileOf(f))
	}
	return profiles, deref(out.Cursor), nil
}

func (x *XRPC) GetAuthorFeed(ctx context.Context, actor string, limit int64) ([]string, error) {
	out, err := appbsky.FeedGetAuthorFeed(ctx, x.client, actor, "", "", limit)
	if err != nil {
		return nil, classify("bluesky.feed", err)
	}
	texts := make([]string, 0, len(out.Feed))
	for _, item := range out.Feed {
		texts = append(texts, postText(item))
	}
	return texts, nil
}

func postText(item *appbsky.FeedDefs_FeedViewPost) string {
	if item == nil || item.Post == nil || item.Post.Record == nil {
		return ""
	}
	post, ok := item.Post.Record.Val.(*appbsky.FeedPost)
	if !ok {
		return ""
	}
	return post.Text
}

func profileOf(p *appbsky.ActorDefs_ProfileView) Profile {
	return Profile{DID: p.Did, Handle: p.Handle, DisplayName: deref(p.DisplayName)}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// classify maps indigo errors onto the apperr taxonomy.
func classify(op string, err error) error {
	var xe *xrpc.Error
	if errors.As(err, &xe) {
		return apperr.FromStatus(op, xe.StatusCode, err)
	}
	// Anything without a status never reached the server.
	return apperr.Transient(op, err)
}
