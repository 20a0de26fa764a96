package reddit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/friendscout/internal/apperr"
	"github.com/TobiSchelling/friendscout/internal/social"
)

type fakeAPI struct {
	me      string
	friends []string
	subs    []Subreddit
	posts   map[string][]Post
	err     error
}

func (f *fakeAPI) Me(context.Context) (string, error) { return f.me, f.err }

func (f *fakeAPI) Friends(context.Context) ([]string, error) { return f.friends, f.err }

func (f *fakeAPI) Subscribed(_ context.Context, limit int) ([]Subreddit, error) {
	if len(f.subs) > limit {
		return f.subs[:limit], f.err
	}
	return f.subs, f.err
}

func (f *fakeAPI) PostsOf(_ context.Context, username string, _ int) ([]Post, error) {
	return f.posts[username], f.err
}

func dialer(api API) Dialer {
	return func(context.Context, social.Credentials) (API, error) { return api, nil }
}

func loggedIn(t *testing.T, api *fakeAPI, feeds *FeedReader) *Connector {
	t.Helper()
	c := New(dialer(api), feeds, Options{}, nil)
	require.NoError(t, c.Login(context.Background(), "me", "pw"))
	return c
}

type stubExpander struct{ calls int }

func (s *stubExpander) Expand(context.Context, string) (string, error) {
	s.calls++
	return "expanded article text", nil
}

func TestLogin(t *testing.T) {
	c := loggedIn(t, &fakeAPI{me: "Me_Canonical"}, nil)
	assert.Equal(t, "Me_Canonical", c.Identity())

	failing := New(func(context.Context, social.Credentials) (API, error) {
		return nil, apperr.Auth("reddit.login", errors.New("invalid_grant"))
	}, nil, Options{}, nil)
	err := failing.Login(context.Background(), "me", "bad")
	assert.ErrorIs(t, err, apperr.ErrAuth)
	assert.Empty(t, failing.Identity())
}

func TestListFollowedAccounts(t *testing.T) {
	c := loggedIn(t, &fakeAPI{me: "me", friends: []string{"alice", "", "bob"}}, nil)

	got, err := c.ListFollowedAccounts(context.Background(), "me")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].ID)
	assert.Equal(t, social.NoDisplayName, got[0].DisplayName)
	assert.Equal(t, social.Reddit, got[1].Platform)

	_, err = c.ListFollowedAccounts(context.Background(), "someone_else")
	assert.ErrorIs(t, err, apperr.ErrAuth)
}

func TestListSubscribedCommunitiesNormalizes(t *testing.T) {
	long := strings.Repeat("x", 150)
	api := &fakeAPI{me: "me", subs: []Subreddit{
		{Name: "golang", Description: "The Go programming language", Subscribers: 250000},
		{Name: "rust", Description: long, Subscribers: 300000},
		{Name: "quiet", Subscribers: 10},
	}}
	c := loggedIn(t, api, nil)

	got, err := c.ListSubscribedCommunities(context.Background(), "me")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "https://www.reddit.com/r/golang", got[0].URL)
	assert.Equal(t, 250000, got[0].Subscribers)
	assert.Equal(t, strings.Repeat("x", 100)+"...", got[1].Description)
	assert.Equal(t, social.NoDescription, got[2].Description)
}

func TestListRecentPosts(t *testing.T) {
	api := &fakeAPI{me: "me", posts: map[string][]Post{
		"alice": {
			{Title: "Show: my Go CLI", Body: "Built with cobra", IsSelf: true},
			{Title: "", Body: "", IsSelf: true},
			{Title: "Interesting read", URL: "https://example.com/a"},
			{Title: "Third"},
		},
	}}
	c := loggedIn(t, api, nil)
	exp := &stubExpander{}
	c.SetExpander(exp)

	got, err := c.ListRecentPosts(context.Background(), "alice", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Show: my Go CLI\nBuilt with cobra", got[0].Text)
	assert.Equal(t, "Interesting read\nexpanded article text", got[1].Text)
	assert.Equal(t, 1, exp.calls)
}

func TestListRecentPostsWithoutExpander(t *testing.T) {
	api := &fakeAPI{me: "me", posts: map[string][]Post{
		"alice": {{Title: "Link only", URL: "https://example.com/a"}},
	}}
	c := loggedIn(t, api, nil)

	got, err := c.ListRecentPosts(context.Background(), "alice", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Link only", got[0].Text)
}

func TestReadsRequireLogin(t *testing.T) {
	c := New(dialer(&fakeAPI{}), nil, Options{}, nil)
	_, err := c.ListSubscribedCommunities(context.Background(), "me")
	assert.ErrorIs(t, err, apperr.ErrAuth)
	_, err = c.ListRecentPosts(context.Background(), "a", 3)
	assert.ErrorIs(t, err, apperr.ErrAuth)
}

const atomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>golang</title>
  <entry>
    <author><name>/u/gopher_one</name><uri>https://www.reddit.com/user/gopher_one</uri></author>
    <title>Generics in practice</title>
    <link href="https://www.reddit.com/r/golang/comments/1/generics/"/>
    <content type="html">&lt;div&gt;&lt;p&gt;Some thoughts on &lt;b&gt;generics&lt;/b&gt;.&lt;/p&gt;&lt;/div&gt; submitted by &lt;a href="https://www.reddit.com/user/gopher_one"&gt; /u/gopher_one &lt;/a&gt; &lt;a href="x"&gt;[link]&lt;/a&gt; &lt;a href="y"&gt;[comments]&lt;/a&gt;</content>
  </entry>
  <entry>
    <author><name>/u/[deleted]</name></author>
    <title>Removed</title>
    <content type="html">gone</content>
  </entry>
  <entry>
    <author><name>/u/gopher_two</name></author>
    <title>Error handling</title>
    <content type="html">&lt;p&gt;wrap with %w&lt;/p&gt;</content>
  </entry>
</feed>`

func TestCommunityFeed(t *testing.T) {
	var gotPath, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(atomFeed))
	}))
	defer srv.Close()

	fr := NewFeedReader(srv.URL+"/", "go:friendscout:test")
	entries, err := fr.Community(context.Background(), "golang", 10)
	require.NoError(t, err)

	assert.Equal(t, "/r/golang/.rss", gotPath)
	assert.Equal(t, "go:friendscout:test", gotUA)
	require.Len(t, entries, 2)
	assert.Equal(t, "gopher_one", entries[0].Author)
	assert.Equal(t, "Some thoughts on generics.", entries[0].Text)
	assert.Equal(t, "gopher_two", entries[1].Author)
}

func TestListCommunityPosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(atomFeed))
	}))
	defer srv.Close()

	c := loggedIn(t, &fakeAPI{me: "me"}, NewFeedReader(srv.URL, "ua"))
	got, err := c.ListCommunityPosts(context.Background(), "golang", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "gopher_one", got[0].AccountID)
	assert.Equal(t, "Generics in practice\nSome thoughts on generics.", got[0].Text)
}

func TestCommunityFeedStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewFeedReader(srv.URL, "ua").Community(context.Background(), "golang", 5)
	assert.ErrorIs(t, err, apperr.ErrTransient)
}
