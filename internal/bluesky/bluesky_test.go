package bluesky

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/friendscout/internal/apperr"
	"github.com/TobiSchelling/friendscout/internal/social"
)

type fakeAPI struct {
	follows   map[string][]Profile
	followers map[string][]Profile
	feeds     map[string][]string
	pages     int
	loginErr  error
	feedErr   error
}

func (f *fakeAPI) CreateSession(_ context.Context, identifier, _ string) (*Session, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &Session{DID: "did:plc:me", Handle: identifier}, nil
}

// GetFollows pages through follows two at a time, ignoring limit.
func (f *fakeAPI) GetFollows(_ context.Context, actor, cursor string, _ int64) ([]Profile, string, error) {
	f.pages++
	all := f.follows[actor]
	start := 0
	if cursor != "" {
		fmt.Sscanf(cursor, "%d", &start)
	}
	end := min(start+2, len(all))
	next := ""
	if end < len(all) {
		next = fmt.Sprintf("%d", end)
	}
	return all[start:end], next, nil
}

func (f *fakeAPI) GetFollowers(_ context.Context, actor, _ string, _ int64) ([]Profile, string, error) {
	return f.followers[actor], "", nil
}

func (f *fakeAPI) GetAuthorFeed(_ context.Context, actor string, _ int64) ([]string, error) {
	if f.feedErr != nil {
		return nil, f.feedErr
	}
	return f.feeds[actor], nil
}

func loggedIn(t *testing.T, api *fakeAPI) *Connector {
	t.Helper()
	c := New(api, 0, nil)
	require.NoError(t, c.Login(context.Background(), "me.bsky.social", "app-password"))
	return c
}

func TestLoginSetsIdentity(t *testing.T) {
	c := loggedIn(t, &fakeAPI{})
	assert.Equal(t, "did:plc:me", c.Identity())
	assert.Equal(t, "me.bsky.social", c.Handle())
}

func TestLoginFailure(t *testing.T) {
	c := New(&fakeAPI{loginErr: apperr.Auth("bluesky.login", errors.New("bad password"))}, 0, nil)
	err := c.Login(context.Background(), "me", "x")
	assert.ErrorIs(t, err, apperr.ErrAuth)
	assert.Empty(t, c.Identity())

	err = c.Login(context.Background(), "", "")
	assert.ErrorIs(t, err, apperr.ErrAuth)
}

func TestReadsRequireLogin(t *testing.T) {
	c := New(&fakeAPI{}, 0, nil)
	_, err := c.ListFollowedAccounts(context.Background(), "did:plc:me")
	assert.ErrorIs(t, err, apperr.ErrAuth)
	_, err = c.ListFollowers(context.Background(), "did:plc:a", 5)
	assert.ErrorIs(t, err, apperr.ErrAuth)
}

func TestListFollowedAccountsPaginatesAndNormalizes(t *testing.T) {
	api := &fakeAPI{follows: map[string][]Profile{
		"did:plc:me": {
			{DID: "did:plc:a", Handle: "a.bsky.social", DisplayName: "Ann"},
			{DID: "did:plc:b", Handle: "b.bsky.social"},
			{DID: "did:plc:c", Handle: "c.bsky.social", DisplayName: "  "},
		},
	}}
	c := loggedIn(t, api)

	got, err := c.ListFollowedAccounts(context.Background(), "did:plc:me")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 2, api.pages)

	assert.Equal(t, "Ann", got[0].DisplayName)
	assert.Equal(t, social.NoDisplayName, got[1].DisplayName)
	assert.Equal(t, social.NoDisplayName, got[2].DisplayName)
	for _, a := range got {
		assert.Equal(t, social.Bluesky, a.Platform)
	}
}

func TestListFollowedAccountsEmpty(t *testing.T) {
	c := loggedIn(t, &fakeAPI{})
	got, err := c.ListFollowedAccounts(context.Background(), "did:plc:me")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListFollowersHonorsLimit(t *testing.T) {
	api := &fakeAPI{followers: map[string][]Profile{
		"did:plc:a": {{DID: "1"}, {DID: "2"}, {DID: "3"}},
	}}
	c := loggedIn(t, api)

	got, err := c.ListFollowers(context.Background(), "did:plc:a", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = c.ListFollowers(context.Background(), "did:plc:a", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListRecentPostsSkipsEmptyText(t *testing.T) {
	api := &fakeAPI{feeds: map[string][]string{
		"did:plc:a": {"first", "", "   ", "second", "third"},
	}}
	c := loggedIn(t, api)

	got, err := c.ListRecentPosts(context.Background(), "did:plc:a", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "second", got[1].Text)
	assert.Equal(t, "did:plc:a", got[1].AccountID)
}

func TestListRecentPostsPropagatesTypedError(t *testing.T) {
	api := &fakeAPI{feedErr: apperr.Transient("bluesky.feed", errors.New("connection reset"))}
	c := loggedIn(t, api)

	_, err := c.ListRecentPosts(context.Background(), "did:plc:a", 3)
	assert.ErrorIs(t, err, apperr.ErrTransient)
}
