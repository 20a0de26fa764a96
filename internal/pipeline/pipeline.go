// Package pipeline orchestrates fetching, analysis and persistence for one session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/friendscout/internal/apperr"
	"github.com/TobiSchelling/friendscout/internal/bluesky"
	"github.com/TobiSchelling/friendscout/internal/chat"
	"github.com/TobiSchelling/friendscout/internal/collect"
	"github.com/TobiSchelling/friendscout/internal/config"
	"github.com/TobiSchelling/friendscout/internal/database"
	"github.com/TobiSchelling/friendscout/internal/fetch"
	"github.com/TobiSchelling/friendscout/internal/interests"
	"github.com/TobiSchelling/friendscout/internal/llm"
	"github.com/TobiSchelling/friendscout/internal/logging"
	"github.com/TobiSchelling/friendscout/internal/reddit"
	"github.com/TobiSchelling/friendscout/internal/social"
	"github.com/TobiSchelling/friendscout/internal/synthesize"
)

// ErrNoCredentials marks a platform skipped because nothing is stored for it.
var ErrNoCredentials = errors.New("no credentials stored")

// BlueskyConnector is the subset of *bluesky.Connector the pipeline drives.
type BlueskyConnector interface {
	collect.GraphSource
	Login(ctx context.Context, identifier, password string) error
	Identity() string
	ListFollowedAccounts(ctx context.Context, identity string) ([]social.Account, error)
}

// RedditConnector is the subset of *reddit.Connector the pipeline drives.
type RedditConnector interface {
	collect.CommunitySource
	Login(ctx context.Context, username, password string) error
	Identity() string
	ListFollowedAccounts(ctx context.Context, identity string) ([]social.Account, error)
	ListSubscribedCommunities(ctx context.Context, identity string) ([]social.Community, error)
}

// Connectors builds a fresh, logged-out connector per fetch.
type Connectors struct {
	Bluesky func() BlueskyConnector
	Reddit  func() RedditConnector
}

// NewConnectors wires the real platform clients from configuration.
func NewConnectors(cfg *config.Config, logger *zap.Logger) Connectors {
	var expander reddit.Expander
	if cfg.Collection.ExpandLinks {
		expander = fetch.NewLinkExpander(15*time.Second, cfg.Reddit.UserAgent, logger)
	}
	app := reddit.App{
		ClientID:     config.Env(cfg.Reddit.ClientIDEnv),
		ClientSecret: config.Env(cfg.Reddit.ClientSecretEnv),
		UserAgent:    cfg.Reddit.UserAgent,
	}

	return Connectors{
		Bluesky: func() BlueskyConnector {
			return bluesky.New(bluesky.NewXRPC(cfg.Bluesky.Host), cfg.Bluesky.RequestsPerSecond, logger)
		},
		Reddit: func() RedditConnector {
			c := reddit.New(app.Dial(), reddit.NewFeedReader(cfg.Reddit.FeedBaseURL, cfg.Reddit.UserAgent), reddit.Options{
				RequestsPerSecond: cfg.Reddit.RequestsPerSecond,
				CommunityLimit:    cfg.Reddit.CommunityLimit,
			}, logger)
			if expander != nil {
				c.SetExpander(expander)
			}
			return c
		},
	}
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a pipeline run.
type Result struct {
	User  string
	Steps []StepResult
}

// Failed reports whether any step ended in an error.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Banner returns a one-line description of the first failed step, or "".
func (r *Result) Banner() string {
	for _, s := range r.Steps {
		if s.Err != nil {
			return fmt.Sprintf("%s failed: %s", s.Name, describe(s.Err))
		}
	}
	return ""
}

func describe(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindAuth:
		return "login rejected, check your stored credentials"
	case apperr.KindTransient:
		return "the platform is unreachable, try again later"
	case apperr.KindDataShape:
		return "the platform returned unexpected data"
	}
	return err.Error()
}

// Pipeline runs the fetch and analysis steps against the artifact store.
type Pipeline struct {
	cfg         *config.Config
	store       database.Store
	conns       Connectors
	collector   *collect.Collector
	extractor   *interests.Extractor
	synthesizer *synthesize.Synthesizer
	logger      *zap.Logger
}

// New creates a new pipeline. provider may be nil, in which case analysis
// degrades to the fixed fallbacks.
func New(cfg *config.Config, store database.Store, provider llm.Provider, conns Connectors, logger *zap.Logger) *Pipeline {
	logger = logging.OrNop(logger)
	return &Pipeline{
		cfg:         cfg,
		store:       store,
		conns:       conns,
		collector:   collect.NewCollector(logger),
		extractor:   interests.NewExtractor(provider, logger),
		synthesizer: synthesize.NewSynthesizer(provider, logger),
		logger:      logger,
	}
}

// Fetch logs into every platform with stored credentials, refreshes the
// following lists, subscriptions, seed corpora and candidate pools, and
// persists them. A platform that fails keeps its previous data.
func (p *Pipeline) Fetch(ctx context.Context, session *social.SessionContext) *Result {
	session.Normalize()
	r := &Result{User: session.LocalUser}

	r.Steps = append(r.Steps, p.fetchBluesky(ctx, session))
	r.Steps = append(r.Steps, p.fetchReddit(ctx, session))

	step := StepResult{Name: "Save"}
	if err := p.save(ctx, session, social.KindFollowingList, social.KindCommunitySubscriptions, social.KindCandidatePool, social.KindSeedCorpus); err != nil {
		step.Err = err
	} else {
		step.Summary = fmt.Sprintf("Stored %d candidates", session.CandidateCount())
	}
	r.Steps = append(r.Steps, step)
	return r
}

func (p *Pipeline) fetchBluesky(ctx context.Context, session *social.SessionContext) StepResult {
	step := StepResult{Name: social.Bluesky.Title()}
	creds, err := p.credentials(ctx, session.LocalUser, social.Bluesky)
	if err != nil {
		return skipped(step, err)
	}

	conn := p.conns.Bluesky()
	if err := conn.Login(ctx, creds.Username, creds.Password); err != nil {
		step.Err = err
		return step
	}
	identity := conn.Identity()

	following, err := conn.ListFollowedAccounts(ctx, identity)
	if err != nil {
		step.Err = err
		return step
	}

	c := p.cfg.Collection
	session.Following[social.Bluesky] = following
	session.Corpus[social.Bluesky] = p.collector.SeedCorpus(ctx, conn, following, c.InterestSeeds, c.InterestPosts)
	candidates, res := p.collector.CollectCandidates(ctx, conn, identity, following, c.CandidateSeeds, c.FollowersPerSeed, c.PostsPerCandidate)
	session.Candidates[social.Bluesky] = candidates

	step.Summary = fmt.Sprintf("Following %d accounts; %s", len(following), res)
	p.logger.Info("Fetched Bluesky data", zap.String("user", session.LocalUser), zap.Int("following", len(following)), zap.Int("candidates", len(candidates)))
	return step
}

func (p *Pipeline) fetchReddit(ctx context.Context, session *social.SessionContext) StepResult {
	step := StepResult{Name: social.Reddit.Title()}
	creds, err := p.credentials(ctx, session.LocalUser, social.Reddit)
	if err != nil {
		return skipped(step, err)
	}

	conn := p.conns.Reddit()
	if err := conn.Login(ctx, creds.Username, creds.Password); err != nil {
		step.Err = err
		return step
	}
	identity := conn.Identity()

	communities, err := conn.ListSubscribedCommunities(ctx, identity)
	if err != nil {
		step.Err = err
		return step
	}
	friends, err := conn.ListFollowedAccounts(ctx, identity)
	if err != nil {
		p.logger.Warn("Listing Reddit friends failed", zap.Error(err))
		friends = nil
	}

	c := p.cfg.Collection
	session.Communities = communities
	session.Following[social.Reddit] = friends
	session.Corpus[social.Reddit] = append(
		p.collector.SeedCorpus(ctx, conn, friends, c.InterestSeeds, c.InterestPosts),
		communityCorpus(communities, c.InterestSeeds)...,
	)
	candidates, res := p.collector.CollectCommunityCandidates(ctx, conn, identity, communities, c.CandidateSeeds, c.FollowersPerSeed, c.PostsPerCandidate)
	session.Candidates[social.Reddit] = candidates

	step.Summary = fmt.Sprintf("%d communities, %d friends; %s", len(communities), len(friends), res)
	p.logger.Info("Fetched Reddit data", zap.String("user", session.LocalUser), zap.Int("communities", len(communities)), zap.Int("candidates", len(candidates)))
	return step
}

// communityCorpus describes the first n subscriptions as corpus lines.
func communityCorpus(communities []social.Community, n int) []string {
	var lines []string
	for i, c := range communities {
		if i >= n {
			break
		}
		lines = append(lines, fmt.Sprintf("r/%s: %s", c.Name, c.Description))
	}
	return lines
}

func (p *Pipeline) credentials(ctx context.Context, user string, platform social.Platform) (*social.Credentials, error) {
	creds, err := p.store.GetCredentials(ctx, user, platform)
	if err != nil {
		return nil, fmt.Errorf("loading %s credentials: %w", platform, err)
	}
	if creds == nil {
		return nil, ErrNoCredentials
	}
	return creds, nil
}

func skipped(step StepResult, err error) StepResult {
	if errors.Is(err, ErrNoCredentials) {
		step.Summary = "Skipped: no credentials stored"
		return step
	}
	step.Err = err
	return step
}

// Analyze derives an interest summary and suggestions for every platform
// with data, then opens the chat with a greeting. It never fails on model
// errors; those degrade to the fixed fallback texts.
func (p *Pipeline) Analyze(ctx context.Context, session *social.SessionContext) *Result {
	session.Normalize()
	r := &Result{User: session.LocalUser}

	for _, platform := range social.Platforms {
		corpus := session.Corpus[platform]
		candidates := session.Candidates[platform]
		if len(corpus) == 0 && len(candidates) == 0 {
			r.Steps = append(r.Steps, StepResult{Name: platform.Title(), Summary: "Skipped: nothing fetched yet"})
			continue
		}

		summary := p.extractor.Extract(ctx, corpus)
		session.Interests[platform] = summary
		session.Recommendations[platform] = p.synthesizer.Synthesize(ctx, summary, candidates)

		r.Steps = append(r.Steps, StepResult{
			Name:    platform.Title(),
			Summary: fmt.Sprintf("Analyzed %d corpus lines and %d candidates", len(corpus), len(candidates)),
		})
	}

	session.ClearTranscript()
	session.Analyzed = true
	chat.Greeting(session)

	step := StepResult{Name: "Save"}
	if err := p.save(ctx, session, social.KindInterestSummaries, social.KindRecommendations); err != nil {
		step.Err = err
	} else {
		step.Summary = "Stored interests and recommendations"
	}
	r.Steps = append(r.Steps, step)
	return r
}

// Load hydrates session from the artifact store. Missing artifacts leave
// the corresponding fields empty; undecodable ones are skipped and reported.
func (p *Pipeline) Load(ctx context.Context, session *social.SessionContext) error {
	session.Normalize()
	var errs []error

	for _, kind := range []string{
		social.KindFollowingList,
		social.KindCommunitySubscriptions,
		social.KindCandidatePool,
		social.KindSeedCorpus,
		social.KindInterestSummaries,
		social.KindRecommendations,
	} {
		data, err := p.store.GetArtifact(ctx, session.LocalUser, kind)
		if err != nil {
			return fmt.Errorf("loading %s: %w", kind, err)
		}
		if data == nil {
			continue
		}
		if err := apply(session, kind, data); err != nil {
			p.logger.Warn("Skipping unreadable artifact", zap.String("kind", kind), zap.Error(err))
			errs = append(errs, apperr.DataShape("load "+kind, err))
		}
	}

	session.Analyzed = len(session.Interests) > 0
	return errors.Join(errs...)
}

func apply(session *social.SessionContext, kind string, data []byte) error {
	switch kind {
	case social.KindFollowingList:
		accounts, err := social.DecodeAccounts(data)
		if err != nil {
			return err
		}
		session.Following = social.GroupAccounts(accounts)
	case social.KindCommunitySubscriptions:
		communities, err := social.DecodeCommunities(data)
		if err != nil {
			return err
		}
		session.Communities = communities
	case social.KindCandidatePool:
		candidates, err := social.DecodeCandidates(data)
		if err != nil {
			return err
		}
		session.Candidates = social.GroupCandidates(candidates)
	case social.KindSeedCorpus:
		corpus, err := social.DecodeCorpus(data)
		if err != nil {
			return err
		}
		session.Corpus = corpus
	case social.KindInterestSummaries:
		m, err := social.DecodeTexts[social.InterestSummary](data)
		if err != nil {
			return err
		}
		session.Interests = m
	case social.KindRecommendations:
		m, err := social.DecodeTexts[social.Recommendation](data)
		if err != nil {
			return err
		}
		session.Recommendations = m
	}
	return nil
}

func (p *Pipeline) save(ctx context.Context, session *social.SessionContext, kinds ...string) error {
	for _, kind := range kinds {
		var (
			data []byte
			err  error
		)
		switch kind {
		case social.KindFollowingList:
			data, err = social.EncodeAccounts(social.Flatten(session.Following))
		case social.KindCommunitySubscriptions:
			data, err = social.EncodeCommunities(session.Communities)
		case social.KindCandidatePool:
			data, err = social.EncodeCandidates(social.Flatten(session.Candidates))
		case social.KindSeedCorpus:
			data, err = social.EncodeCorpus(session.Corpus)
		case social.KindInterestSummaries:
			data, err = social.EncodeTexts(session.Interests)
		case social.KindRecommendations:
			data, err = social.EncodeTexts(session.Recommendations)
		default:
			return fmt.Errorf("unknown artifact kind %q", kind)
		}
		if err != nil {
			return fmt.Errorf("encoding %s: %w", kind, err)
		}
		if err := p.store.PutArtifact(ctx, session.LocalUser, kind, data); err != nil {
			return fmt.Errorf("storing %s: %w", kind, err)
		}
	}
	return nil
}

// DryRun reports what is stored for the session's user without contacting
// any platform or the model.
func (p *Pipeline) DryRun(ctx context.Context, session *social.SessionContext) *Result {
	r := &Result{User: session.LocalUser}

	for _, platform := range social.Platforms {
		step := StepResult{Name: platform.Title()}
		creds, err := p.store.GetCredentials(ctx, session.LocalUser, platform)
		switch {
		case err != nil:
			step.Err = err
		case creds == nil:
			step.Summary = "[dry-run] No credentials stored; would skip"
		default:
			step.Summary = fmt.Sprintf("[dry-run] Would log in as %s", creds.Username)
		}
		r.Steps = append(r.Steps, step)
	}

	probe := social.NewSessionContext(session.ID, session.LocalUser)
	if err := p.Load(ctx, probe); err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Cache", Err: err})
		return r
	}
	summary := fmt.Sprintf("[dry-run] %d followed accounts, %d communities, %d candidates cached; analyzed: %t",
		len(social.Flatten(probe.Following)), len(probe.Communities), probe.CandidateCount(), probe.Analyzed)
	r.Steps = append(r.Steps, StepResult{Name: "Cache", Summary: summary})
	return r
}
