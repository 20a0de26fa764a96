// Package synthesize asks the language model for connection suggestions.
package synthesize

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/friendscout/internal/llm"
	"github.com/TobiSchelling/friendscout/internal/logging"
	"github.com/TobiSchelling/friendscout/internal/metrics"
	"github.com/TobiSchelling/friendscout/internal/social"
)

// Failure is returned whenever the model cannot produce suggestions.
const Failure social.Recommendation = "Could not generate suggestions at this time."

const synthesisPrompt = `
Based on the following interests:
%s

And these potential connections:
%s

Suggest 5 people who would be good connections based on shared interests or complementary topics.
For each suggestion, explain why they would be a good connection.
`

// Synthesizer turns interests and a candidate pool into suggestions.
type Synthesizer struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewSynthesizer creates a new recommendation synthesizer. provider may be nil.
func NewSynthesizer(provider llm.Provider, logger *zap.Logger) *Synthesizer {
	return &Synthesizer{provider: provider, logger: logging.OrNop(logger)}
}

// Synthesize returns the model's suggestions verbatim, or Failure.
func (s *Synthesizer) Synthesize(ctx context.Context, interests social.InterestSummary, candidates []social.Candidate) social.Recommendation {
	if s.provider == nil {
		s.logger.Warn("No LLM provider available for synthesis")
		metrics.Fallbacks.WithLabelValues("synthesize").Inc()
		return Failure
	}

	text, err := s.provider.Generate(ctx, BuildPrompt(interests, candidates))
	metrics.ModelCalls.WithLabelValues("synthesize", metrics.Outcome(err)).Inc()
	if err != nil || strings.TrimSpace(text) == "" {
		s.logger.Warn("Synthesis failed, using fallback", zap.Error(err), zap.Int("candidates", len(candidates)))
		metrics.Fallbacks.WithLabelValues("synthesize").Inc()
		return Failure
	}

	s.logger.Info("Synthesized suggestions", zap.Int("candidates", len(candidates)))
	return social.Recommendation(text)
}

// BuildPrompt interpolates interests and the formatted candidates.
func BuildPrompt(interests social.InterestSummary, candidates []social.Candidate) string {
	return fmt.Sprintf(synthesisPrompt, interests, FormatCandidates(candidates))
}

// FormatCandidates renders candidates as consecutive blocks of the form
// "User: <handle> (<name>)\nPosts:\n<post texts joined by \n>\n\n".
func FormatCandidates(candidates []social.Candidate) string {
	var b strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&b, "User: %s (%s)\n", c.Account.Handle, c.Account.DisplayName)
		b.WriteString("Posts:\n")
		b.WriteString(strings.Join(c.PostTexts(), "\n"))
		b.WriteString("\n\n")
	}
	return b.String()
}
