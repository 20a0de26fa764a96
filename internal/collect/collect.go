// Package collect assembles candidate pools and seed corpora from platform connectors.
package collect

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/friendscout/internal/logging"
	"github.com/TobiSchelling/friendscout/internal/metrics"
	"github.com/TobiSchelling/friendscout/internal/social"
)

const deletedAuthor = "[deleted]"

// PostSource returns recent posts of an account.
type PostSource interface {
	ListRecentPosts(ctx context.Context, accountID string, limit int) ([]social.PostSample, error)
}

// GraphSource is a platform whose accounts expose their followers.
type GraphSource interface {
	PostSource
	ListFollowers(ctx context.Context, accountID string, limit int) ([]social.Account, error)
}

// CommunitySource is a platform whose communities expose recent posts.
type CommunitySource interface {
	PostSource
	ListCommunityPosts(ctx context.Context, community string, limit int) ([]social.PostSample, error)
}

// Result holds the counters of a collection run.
type Result struct {
	SeedsVisited int
	AccountsSeen int
	Candidates   int
	Posts        int
	Errors       int
}

func (r *Result) String() string {
	return fmt.Sprintf("%d seeds, %d accounts seen, %d candidates, %d posts, %d errors",
		r.SeedsVisited, r.AccountsSeen, r.Candidates, r.Posts, r.Errors)
}

// Collector walks seeds through a connector. Connector failures are
// logged and counted; they never abort a run.
type Collector struct {
	logger *zap.Logger
}

// NewCollector creates a new collector.
func NewCollector(logger *zap.Logger) *Collector {
	return &Collector{logger: logging.OrNop(logger)}
}

// CollectCandidates visits the first seedLimit seeds in order, takes up to
// followerLimit followers of each and samples up to postLimit posts per
// follower. The caller's own identity is skipped. Accounts reached through
// several seeds appear once per seed.
func (c *Collector) CollectCandidates(ctx context.Context, src GraphSource, identity string, seeds []social.Account, seedLimit, followerLimit, postLimit int) ([]social.Candidate, *Result) {
	r := &Result{}
	candidates := []social.Candidate{}

	for _, seed := range head(seeds, seedLimit) {
		r.SeedsVisited++

		followers, err := src.ListFollowers(ctx, seed.ID, followerLimit)
		if err != nil {
			r.Errors++
			c.logger.Warn("Listing followers failed", zap.String("seed", seed.Handle), zap.Error(err))
			continue
		}

		for _, f := range head(followers, followerLimit) {
			r.AccountsSeen++
			if f.ID == identity {
				continue
			}
			cand := c.candidate(ctx, src, f, postLimit, r)
			candidates = append(candidates, cand)
		}
	}

	r.Candidates = len(candidates)
	observe(seeds, candidates)
	c.logger.Info("Candidate collection complete", zap.Stringer("result", r))
	return candidates, r
}

// CollectCommunityCandidates visits the first seedLimit communities, reads up
// to followerLimit recent posts of each and turns their authors into
// candidates with up to postLimit recent posts. The caller and deleted
// authors are skipped.
func (c *Collector) CollectCommunityCandidates(ctx context.Context, src CommunitySource, identity string, communities []social.Community, seedLimit, followerLimit, postLimit int) ([]social.Candidate, *Result) {
	r := &Result{}
	candidates := []social.Candidate{}

	for _, community := range head(communities, seedLimit) {
		r.SeedsVisited++

		entries, err := src.ListCommunityPosts(ctx, community.Name, followerLimit)
		if err != nil {
			r.Errors++
			c.logger.Warn("Reading community feed failed", zap.String("community", community.Name), zap.Error(err))
			continue
		}

		for _, e := range head(entries, followerLimit) {
			r.AccountsSeen++
			author := e.AccountID
			if author == "" || author == deletedAuthor || strings.EqualFold(author, identity) {
				continue
			}
			account := social.UsernameAccount(social.Reddit, author)
			candidates = append(candidates, c.candidate(ctx, src, account, postLimit, r))
		}
	}

	r.Candidates = len(candidates)
	metrics.CandidatesCollected.WithLabelValues(string(social.Reddit)).Observe(float64(len(candidates)))
	c.logger.Info("Community candidate collection complete", zap.Stringer("result", r))
	return candidates, r
}

// SeedCorpus samples up to postLimit posts from each of the first seedLimit
// seeds and formats them as "<handle>: <text>" lines.
func (c *Collector) SeedCorpus(ctx context.Context, src PostSource, seeds []social.Account, seedLimit, postLimit int) []string {
	corpus := []string{}
	for _, seed := range head(seeds, seedLimit) {
		posts, err := src.ListRecentPosts(ctx, seed.ID, postLimit)
		if err != nil {
			c.logger.Warn("Listing seed posts failed", zap.String("seed", seed.Handle), zap.Error(err))
			continue
		}
		for _, p := range head(posts, postLimit) {
			corpus = append(corpus, fmt.Sprintf("%s: %s", seed.Handle, p.Text))
		}
	}
	return corpus
}

func (c *Collector) candidate(ctx context.Context, src PostSource, account social.Account, postLimit int, r *Result) social.Candidate {
	posts, err := src.ListRecentPosts(ctx, account.ID, postLimit)
	if err != nil {
		r.Errors++
		c.logger.Warn("Listing candidate posts failed", zap.String("account", account.Handle), zap.Error(err))
		posts = nil
	}
	posts = head(posts, postLimit)
	if posts == nil {
		posts = []social.PostSample{}
	}
	r.Posts += len(posts)
	return social.Candidate{Account: account, Posts: posts, Platform: account.Platform}
}

func observe(seeds []social.Account, candidates []social.Candidate) {
	platform := social.Bluesky
	if len(seeds) > 0 && seeds[0].Platform != "" {
		platform = seeds[0].Platform
	}
	metrics.CandidatesCollected.WithLabelValues(string(platform)).Observe(float64(len(candidates)))
}

// head returns at most n leading elements of s.
func head[T any](s []T, n int) []T {
	if n < 0 {
		n = 0
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}
