// Package interests distills a short interest list from a seed corpus of posts.
package interests

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

// InsufficientData is returned for an empty corpus without calling the model.
const InsufficientData social.InterestSummary = "insufficient data"

// Fallback is returned when the model fails or replies with nothing.
const Fallback social.InterestSummary = "1. 📱 Technology\n2. 💻 Programming\n3. 🤖 AI and Machine Learning"

const extractPrompt = `Extract TOP 3-5 main interests from these posts.
Format as numbered list with emoji prefixes. Max 10 words per interest.

Posts:
%s

Respond ONLY with the formatted list, nothing else.`

// Extractor turns post text into an interest summary.
type Extractor struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewExtractor creates a new interest extractor. provider may be nil.
func NewExtractor(provider llm.Provider, logger *zap.Logger) *Extractor {
	return &Extractor{provider: provider, logger: logging.OrNop(logger)}
}

// Extract returns the model's interest list for corpus verbatim.
// It never fails: an empty corpus yields InsufficientData and any model
// failure yields Fallback.
func (e *Extractor) Extract(ctx context.Context, corpus []string) social.InterestSummary {
	if len(corpus) == 0 {
		return InsufficientData
	}
	if e.provider == nil {
		e.logger.Warn("No LLM provider available for interest extraction")
		metrics.Fallbacks.WithLabelValues("interests").Inc()
		return Fallback
	}

	text, err := e.provider.Generate(ctx, BuildPrompt(corpus))
	metrics.ModelCalls.WithLabelValues("interests", metrics.Outcome(err)).Inc()
	if err != nil || strings.TrimSpace(text) == "" {
		e.logger.Warn("Interest extraction failed, using fallback", zap.Error(err))
		metrics.Fallbacks.WithLabelValues("interests").Inc()
		return Fallback
	}

	e.logger.Debug("Extracted interests", zap.Int("corpus_lines", len(corpus)))
	return social.InterestSummary(text)
}

// BuildPrompt embeds the corpus, one line per post, in the extraction prompt.
func BuildPrompt(corpus []string) string {
	return fmt.Sprintf(extractPrompt, strings.Join(corpus, "\n"))
}
