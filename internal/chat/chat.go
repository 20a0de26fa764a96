// Package chat routes free-text questions about new connections to the language model.
package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/friendscout/internal/interests"
	"github.com/TobiSchelling/friendscout/internal/llm"
	"github.com/TobiSchelling/friendscout/internal/logging"
	"github.com/TobiSchelling/friendscout/internal/metrics"
	"github.com/TobiSchelling/friendscout/internal/social"
	"github.com/TobiSchelling/friendscout/internal/synthesize"
)

// Fallback is appended when the model cannot answer.
const Fallback = "I'm having trouble processing that request. Could you try asking about specific interests you'd like to explore?"

// Redirect is the reply the model is instructed to give to off-topic queries.
const Redirect = "I focus on helping you find friends on Bluesky and Reddit. How about telling me what interests you'd like to explore?"

const (
	greetingAnalyzed = `👋 Hi there! I'm your Friend Assistant.

I've analyzed your network and found these key interests:
%s

What kind of friends would you like to connect with?`

	greetingDegraded = "👋 Hi there! I'm your Friend Assistant. What kind of friends are you looking to connect with?"
)

const routerPrompt = `You are a friend recommendation expert for the Bluesky and Reddit social networks.

USER QUERY: "%s"

%s
INSTRUCTIONS:
- Only help with finding new people to connect with on Bluesky and Reddit
- If the query mentions Bluesky or Reddit, recommend 2-3 relevant connections from that platform
- If the query mentions neither, recommend 2-3 relevant connections from each platform listed above
- Include handle, name, and brief reason for each recommendation
- If the query is unrelated to friend recommendations, respond with:
  "%s"
- Keep responses under 150 words
- Do not mention being an AI
`

// Router answers queries against a session's collected candidates.
type Router struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewRouter creates a new conversational router. provider may be nil.
func NewRouter(provider llm.Provider, logger *zap.Logger) *Router {
	return &Router{provider: provider, logger: logging.OrNop(logger)}
}

// HandleQuery appends the query and exactly one assistant reply to the
// session transcript and returns the reply. The session always ends in
// AwaitingQuery. Blank queries are ignored.
func (r *Router) HandleQuery(ctx context.Context, query string, session *social.SessionContext) string {
	session.Normalize()
	if strings.TrimSpace(query) == "" {
		return ""
	}

	session.ChatState = social.Processing
	defer func() { session.ChatState = social.AwaitingQuery }()

	session.Transcript.Append(social.RoleUser, query)

	reply := r.generate(ctx, BuildPrompt(query, session))
	session.Transcript.Append(social.RoleAssistant, reply)
	return reply
}

func (r *Router) generate(ctx context.Context, prompt string) string {
	if r.provider == nil {
		r.logger.Warn("No LLM provider available for chat")
		metrics.Fallbacks.WithLabelValues("chat").Inc()
		return Fallback
	}

	text, err := r.provider.Generate(ctx, prompt)
	metrics.ModelCalls.WithLabelValues("chat", metrics.Outcome(err)).Inc()
	if err != nil || strings.TrimSpace(text) == "" {
		r.logger.Warn("Chat reply failed, using fallback", zap.Error(err))
		metrics.Fallbacks.WithLabelValues("chat").Inc()
		return Fallback
	}
	return text
}

// BuildPrompt grounds the query in one block per platform that has
// candidates. Platforms without candidates are omitted.
func BuildPrompt(query string, session *social.SessionContext) string {
	var blocks strings.Builder
	for _, p := range social.Platforms {
		if !session.HasCandidates(p) {
			continue
		}
		fmt.Fprintf(&blocks, "%s CONNECTIONS:\n", strings.ToUpper(p.Title()))
		if summary := session.Interests[p]; summary != "" {
			fmt.Fprintf(&blocks, "User interests on %s:\n%s\n\n", p.Title(), summary)
		}
		if p == social.Reddit && len(session.Communities) > 0 {
			names := make([]string, 0, len(session.Communities))
			for _, c := range session.Communities {
				names = append(names, "r/"+c.Name)
			}
			fmt.Fprintf(&blocks, "Subscribed communities: %s\n\n", strings.Join(names, ", "))
		}
		blocks.WriteString(synthesize.FormatCandidates(session.Candidates[p]))
	}
	if blocks.Len() == 0 {
		blocks.WriteString("AVAILABLE CONNECTIONS:\nNone collected yet.\n\n")
	}

	return fmt.Sprintf(routerPrompt, query, blocks.String(), Redirect)
}

// Greeting appends the welcome turn that opens a chat after analysis and
// returns it. Without usable interests the short greeting is used.
func Greeting(session *social.SessionContext) string {
	session.Normalize()

	var sections []string
	for _, p := range social.Platforms {
		summary := session.Interests[p]
		if summary == "" || summary == interests.InsufficientData {
			continue
		}
		sections = append(sections, fmt.Sprintf("%s:\n%s", p.Title(), summary))
	}

	text := greetingDegraded
	if len(sections) > 0 {
		text = fmt.Sprintf(greetingAnalyzed, strings.Join(sections, "\n\n"))
	}
	session.Transcript.Append(social.RoleAssistant, text)
	return text
}
