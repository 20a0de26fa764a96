package collect

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/friendscout/internal/apperr"
	"github.com/TobiSchelling/friendscout/internal/social"
)

// fakeGraph is a deterministic connector: every account has the same
// followers and posts unless overridden.
type fakeGraph struct {
	followers    map[string][]social.Account
	posts        map[string][]string
	failFollower map[string]bool
	failPosts    map[string]bool
	calls        int
}

func (f *fakeGraph) ListFollowers(_ context.Context, accountID string, limit int) ([]social.Account, error) {
	f.calls++
	if f.failFollower[accountID] {
		return nil, apperr.Transient("followers", errors.New("timeout"))
	}
	// Ignore limit on purpose: the collector must bound results itself.
	_ = limit
	return f.followers[accountID], nil
}

func (f *fakeGraph) ListRecentPosts(_ context.Context, accountID string, _ int) ([]social.PostSample, error) {
	f.calls++
	if f.failPosts[accountID] {
		return nil, apperr.Transient("posts", errors.New("timeout"))
	}
	var out []social.PostSample
	for _, t := range f.posts[accountID] {
		out = append(out, social.PostSample{AccountID: accountID, Text: t, Platform: social.Bluesky})
	}
	return out, nil
}

func bsky(id string) social.Account {
	return social.Account{ID: id, Handle: id + ".bsky.social", DisplayName: social.NoDisplayName, Platform: social.Bluesky}
}

func seeds(ids ...string) []social.Account {
	var out []social.Account
	for _, id := range ids {
		out = append(out, bsky(id))
	}
	return out
}

func TestCollectCandidatesExcludesSelf(t *testing.T) {
	g := &fakeGraph{
		followers: map[string][]social.Account{"a": {bsky("me"), bsky("b")}},
		posts:     map[string][]string{"b": {"hello"}},
	}

	got, r := NewCollector(nil).CollectCandidates(context.Background(), g, "me", seeds("a"), 3, 10, 3)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Account.ID)
	assert.Equal(t, social.Bluesky, got[0].Platform)
	assert.Equal(t, 2, r.AccountsSeen)
	assert.Equal(t, 1, r.Candidates)
}

func TestCollectCandidatesRespectsBounds(t *testing.T) {
	many := func(prefix string, n int) []social.Account {
		var out []social.Account
		for i := range n {
			out = append(out, bsky(fmt.Sprintf("%s%d", prefix, i)))
		}
		return out
	}
	g := &fakeGraph{followers: map[string][]social.Account{}, posts: map[string][]string{}}
	for _, s := range []string{"s0", "s1", "s2", "s3", "s4"} {
		g.followers[s] = many(s+"-f", 15)
		for _, f := range g.followers[s] {
			g.posts[f.ID] = []string{"1", "2", "3", "4", "5"}
		}
	}

	const seedLimit, followerLimit, postLimit = 3, 10, 3
	got, r := NewCollector(nil).CollectCandidates(context.Background(), g, "me",
		seeds("s0", "s1", "s2", "s3", "s4"), seedLimit, followerLimit, postLimit)

	assert.LessOrEqual(t, len(got), seedLimit*followerLimit)
	assert.Len(t, got, 30)
	assert.Equal(t, 3, r.SeedsVisited)
	for _, c := range got {
		assert.LessOrEqual(t, len(c.Posts), postLimit)
	}
	assert.Equal(t, "s0-f0", got[0].Account.ID)
	assert.Equal(t, "s2-f9", got[len(got)-1].Account.ID)
}

func TestCollectCandidatesKeepsDuplicatesAndEmptyPosts(t *testing.T) {
	shared := bsky("shared")
	g := &fakeGraph{
		followers: map[string][]social.Account{"a": {shared}, "b": {shared, bsky("quiet")}},
		posts:     map[string][]string{"shared": {"post"}},
	}

	got, _ := NewCollector(nil).CollectCandidates(context.Background(), g, "me", seeds("a", "b"), 5, 5, 5)
	require.Len(t, got, 3)
	assert.Equal(t, "shared", got[0].Account.ID)
	assert.Equal(t, "shared", got[1].Account.ID)

	quiet := got[2]
	assert.Equal(t, "quiet", quiet.Account.ID)
	assert.NotNil(t, quiet.Posts)
	assert.Empty(t, quiet.Posts)
}

func TestCollectCandidatesIsIdempotent(t *testing.T) {
	g := &fakeGraph{
		followers: map[string][]social.Account{"a": {bsky("x"), bsky("y")}, "b": {bsky("z")}},
		posts:     map[string][]string{"x": {"one", "two"}, "z": {"three"}},
	}
	c := NewCollector(nil)

	first, _ := c.CollectCandidates(context.Background(), g, "me", seeds("a", "b"), 2, 2, 2)
	second, _ := c.CollectCandidates(context.Background(), g, "me", seeds("a", "b"), 2, 2, 2)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("collection not deterministic (-first +second):\n%s", diff)
	}
}

func TestCollectCandidatesDegradesOnErrors(t *testing.T) {
	g := &fakeGraph{
		followers:    map[string][]social.Account{"b": {bsky("x"), bsky("y")}},
		posts:        map[string][]string{"y": {"fine"}},
		failFollower: map[string]bool{"a": true},
		failPosts:    map[string]bool{"x": true},
	}

	got, r := NewCollector(nil).CollectCandidates(context.Background(), g, "me", seeds("a", "b"), 2, 5, 5)
	require.Len(t, got, 2)
	assert.Empty(t, got[0].Posts)
	assert.Equal(t, []string{"fine"}, got[1].PostTexts())
	assert.Equal(t, 2, r.Errors)
}

func TestCollectCandidatesZeroLimits(t *testing.T) {
	g := &fakeGraph{followers: map[string][]social.Account{"a": {bsky("x")}}}
	got, r := NewCollector(nil).CollectCandidates(context.Background(), g, "me", seeds("a"), 0, 5, 5)
	assert.Empty(t, got)
	assert.Equal(t, 0, g.calls)
	assert.Equal(t, 0, r.SeedsVisited)
}

type fakeCommunities struct {
	fakeGraph
	feeds map[string][]string // community -> authors
}

func (f *fakeCommunities) ListCommunityPosts(_ context.Context, community string, _ int) ([]social.PostSample, error) {
	var out []social.PostSample
	for _, a := range f.feeds[community] {
		out = append(out, social.PostSample{AccountID: a, Text: "post in " + community, Platform: social.Reddit})
	}
	return out, nil
}

func TestCollectCommunityCandidates(t *testing.T) {
	src := &fakeCommunities{
		fakeGraph: fakeGraph{posts: map[string][]string{"gopher": {"a", "b", "c", "d"}}},
		feeds: map[string][]string{
			"golang": {"gopher", "[deleted]", "Me", "rustacean", "gopher"},
			"rust":   {"ferris"},
			"skip":   {"never"},
		},
	}
	communities := []social.Community{{Name: "golang"}, {Name: "rust"}, {Name: "skip"}}

	got, r := NewCollector(nil).CollectCommunityCandidates(context.Background(), src, "me", communities, 2, 4, 3)

	var ids []string
	for _, c := range got {
		ids = append(ids, c.Account.ID)
		assert.Equal(t, social.Reddit, c.Platform)
		assert.Equal(t, social.NoDisplayName, c.Account.DisplayName)
	}
	assert.Equal(t, []string{"gopher", "rustacean", "ferris"}, ids)
	assert.Len(t, got[0].Posts, 3)
	assert.LessOrEqual(t, len(got), 2*4)
	assert.Equal(t, 2, r.SeedsVisited)
}

func TestSeedCorpus(t *testing.T) {
	g := &fakeGraph{
		posts:     map[string][]string{"a": {"go is fun", "so is rust", "third"}, "b": {"hiking"}},
		failPosts: map[string]bool{"c": true},
	}
	corpus := NewCollector(nil).SeedCorpus(context.Background(), g, seeds("a", "c", "b"), 5, 2)

	assert.Equal(t, []string{
		"a.bsky.social: go is fun",
		"a.bsky.social: so is rust",
		"b.bsky.social: hiking",
	}, corpus)
}

func TestSeedCorpusEmpty(t *testing.T) {
	corpus := NewCollector(nil).SeedCorpus(context.Background(), &fakeGraph{}, nil, 5, 5)
	assert.NotNil(t, corpus)
	assert.Empty(t, corpus)
}
