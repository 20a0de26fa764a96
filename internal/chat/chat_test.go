package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/TobiSchelling/friendscout/internal/apperr"
	"github.com/TobiSchelling/friendscout/internal/interests"
	"github.com/TobiSchelling/friendscout/internal/social"
	"github.com/TobiSchelling/friendscout/internal/synthesize"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// promptCapture records every prompt and answers with a fixed reply.
type promptCapture struct {
	prompts []string
	reply   string
	err     error
}

func (p *promptCapture) Generate(_ context.Context, prompt string) (string, error) {
	p.prompts = append(p.prompts, prompt)
	return p.reply, p.err
}

func (p *promptCapture) IsConfigured() bool { return true }

func candidate(p social.Platform, handle, name, post string) social.Candidate {
	return social.Candidate{
		Account:  social.Account{ID: handle, Handle: handle, DisplayName: name, Platform: p},
		Posts:    []social.PostSample{{AccountID: handle, Text: post, Platform: p}},
		Platform: p,
	}
}

func populated() *social.SessionContext {
	s := social.NewSessionContext("sess", "alice")
	s.Candidates[social.Bluesky] = []social.Candidate{candidate(social.Bluesky, "carol.bsky.social", "Carol", "shipping a rust crate")}
	s.Candidates[social.Reddit] = []social.Candidate{candidate(social.Reddit, "gopher_one", social.NoDisplayName, "Generics in practice")}
	s.Interests[social.Bluesky] = "1. 🦀 Rust"
	s.Communities = []social.Community{{Name: "golang"}, {Name: "rust"}}
	return s
}

func TestBuildPromptIncludesBothPlatformBlocks(t *testing.T) {
	prompt := BuildPrompt("find me people into systems programming", populated())

	assert.Contains(t, prompt, `USER QUERY: "find me people into systems programming"`)
	assert.Contains(t, prompt, "BLUESKY CONNECTIONS:")
	assert.Contains(t, prompt, "REDDIT CONNECTIONS:")
	assert.Contains(t, prompt, "User: carol.bsky.social (Carol)\nPosts:\nshipping a rust crate\n\n")
	assert.Contains(t, prompt, "User: gopher_one (No display name)\nPosts:\nGenerics in practice\n\n")
	assert.Contains(t, prompt, "1. 🦀 Rust")
	assert.Contains(t, prompt, "Subscribed communities: r/golang, r/rust")
	assert.Contains(t, prompt, Redirect)
	assert.Contains(t, prompt, "under 150 words")
	assert.Contains(t, prompt, "Do not mention being an AI")

	assert.Less(t, strings.Index(prompt, "BLUESKY CONNECTIONS:"), strings.Index(prompt, "REDDIT CONNECTIONS:"))
}

func TestBuildPromptOmitsEmptyPlatform(t *testing.T) {
	s := populated()
	s.Candidates[social.Reddit] = nil

	prompt := BuildPrompt("anyone?", s)
	assert.Contains(t, prompt, "BLUESKY CONNECTIONS:")
	assert.NotContains(t, prompt, "REDDIT CONNECTIONS:")
	assert.NotContains(t, prompt, "Subscribed communities")

	empty := BuildPrompt("anyone?", social.NewSessionContext("s", "u"))
	assert.Contains(t, empty, "None collected yet.")
}

func TestHandleQueryAppendsExactlyOneAssistantTurn(t *testing.T) {
	model := &promptCapture{reply: "Try carol.bsky.social, she writes about Rust."}
	s := populated()
	s.Transcript.Append(social.RoleAssistant, "greeting")

	reply := NewRouter(model, nil).HandleQuery(context.Background(), "what's the weather?", s)

	require.Len(t, model.prompts, 1)
	require.Equal(t, 3, s.Transcript.Len())
	assert.Equal(t, social.Turn{Role: social.RoleUser, Text: "what's the weather?"}, s.Transcript.Turns[1])
	assert.Equal(t, social.Turn{Role: social.RoleAssistant, Text: reply}, s.Transcript.Turns[2])
	assert.Equal(t, social.AwaitingQuery, s.ChatState)
}

func TestHandleQueryIgnoresBlankInput(t *testing.T) {
	model := &promptCapture{reply: "x"}
	s := populated()

	assert.Empty(t, NewRouter(model, nil).HandleQuery(context.Background(), "   ", s))
	assert.Empty(t, model.prompts)
	assert.Equal(t, 0, s.Transcript.Len())
}

func TestModelAlwaysFails(t *testing.T) {
	model := &promptCapture{err: apperr.Model("test", errors.New("503"))}
	ctx := context.Background()

	summary := interests.NewExtractor(model, nil).Extract(ctx, []string{"carol: rust"})
	assert.Equal(t, interests.Fallback, summary)

	rec := synthesize.NewSynthesizer(model, nil).Synthesize(ctx, summary, populated().Candidates[social.Bluesky])
	assert.Equal(t, synthesize.Failure, rec)

	s := populated()
	reply := NewRouter(model, nil).HandleQuery(ctx, "hi", s)
	assert.Equal(t, Fallback, reply)
	last, ok := s.Transcript.Last()
	require.True(t, ok)
	assert.Equal(t, social.Turn{Role: social.RoleAssistant, Text: Fallback}, last)
	assert.Equal(t, 2, s.Transcript.Len())
	assert.Equal(t, social.AwaitingQuery, s.ChatState)
}

func TestHandleQueryWithoutProvider(t *testing.T) {
	s := populated()
	reply := NewRouter(nil, nil).HandleQuery(context.Background(), "hi", s)
	assert.Equal(t, Fallback, reply)
	assert.Equal(t, 2, s.Transcript.Len())
}

func TestGreeting(t *testing.T) {
	s := populated()
	s.Interests[social.Reddit] = interests.InsufficientData

	text := Greeting(s)
	assert.True(t, strings.HasPrefix(text, "👋 Hi there! I'm your Friend Assistant."))
	assert.Contains(t, text, "Bluesky:\n1. 🦀 Rust")
	assert.NotContains(t, text, "Reddit:")
	assert.Equal(t, 1, s.Transcript.Len())

	bare := social.NewSessionContext("s", "u")
	assert.Equal(t, greetingDegraded, Greeting(bare))
}
