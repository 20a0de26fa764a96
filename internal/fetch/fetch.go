// Package fetch expands links shared in posts into readable article text.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/TobiSchelling/friendscout/internal/logging"
)

const (
	minTextLength = 100
	maxTextRunes  = 1200
	maxBodyBytes  = 2 << 20
	cacheSize     = 512
)

// Result holds counters for a LinkExpander's lifetime.
type Result struct {
	Fetched int
	Cached  int
	Failed  int
}

// LinkExpander fetches pages via HTTP and extracts their main text with readability.
// A domain that answers with an HTTP error is skipped for the rest of the run.
type LinkExpander struct {
	client    *http.Client
	userAgent string
	cache     *lru.Cache[string, string]
	logger    *zap.Logger

	mu            sync.Mutex
	failedDomains map[string]struct{}
	result        Result
}

// NewLinkExpander creates a new link expander.
func NewLinkExpander(timeout time.Duration, userAgent string, logger *zap.Logger) *LinkExpander {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	cache, _ := lru.New[string, string](cacheSize)
	return &LinkExpander{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent:     userAgent,
		cache:         cache,
		logger:        logging.OrNop(logger),
		failedDomains: make(map[string]struct{}),
	}
}

// Expand returns the main text of the page at link, truncated for prompt use.
// Pages with too little extractable text yield "" and no error.
func (f *LinkExpander) Expand(ctx context.Context, link string) (string, error) {
	if text, ok := f.cache.Get(link); ok {
		f.count(func(r *Result) { r.Cached++ })
		return text, nil
	}

	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("unsupported link %q", link)
	}
	domain := strings.ToLower(u.Host)

	f.mu.Lock()
	_, failed := f.failedDomains[domain]
	f.mu.Unlock()
	if failed {
		f.count(func(r *Result) { r.Failed++ })
		return "", fmt.Errorf("skipping %s: earlier HTTP error", domain)
	}

	text, err := f.fetchArticleContent(ctx, u)
	if err != nil {
		if _, ok := err.(*httpError); ok {
			f.mu.Lock()
			f.failedDomains[domain] = struct{}{}
			f.mu.Unlock()
			f.logger.Debug("HTTP error, skipping domain", zap.String("url", link), zap.String("domain", domain))
		}
		f.count(func(r *Result) { r.Failed++ })
		return "", err
	}

	f.cache.Add(link, text)
	f.count(func(r *Result) { r.Fetched++ })
	return text, nil
}

// Stats returns a snapshot of the counters.
func (f *LinkExpander) Stats() Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}

func (f *LinkExpander) count(update func(*Result)) {
	f.mu.Lock()
	update(&f.result)
	f.mu.Unlock()
}

func (f *LinkExpander) fetchArticleContent(ctx context.Context, u *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), u)
	if err != nil {
		return "", nil
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len(text) <= minTextLength {
		return "", nil
	}
	if r := []rune(text); len(r) > maxTextRunes {
		text = string(r[:maxTextRunes]) + "..."
	}
	return text, nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}
