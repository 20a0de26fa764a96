// Package social holds the platform-neutral records the recommendation pipeline works on.
package social

import "fmt"

// Platform identifies the network an account or candidate belongs to.
type Platform string

const (
	Bluesky Platform = "bluesky"
	Reddit  Platform = "reddit"
)

// Platforms lists every supported platform in display order.
var Platforms = []Platform{Bluesky, Reddit}

// Title returns the human-facing platform name.
func (p Platform) Title() string {
	switch p {
	case Bluesky:
		return "Bluesky"
	case Reddit:
		return "Reddit"
	}
	return string(p)
}

// ParsePlatform converts a user-supplied name into a Platform.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case Bluesky, Reddit:
		return Platform(s), nil
	}
	return "", fmt.Errorf("unknown platform %q: must be 'bluesky' or 'reddit'", s)
}

// Placeholders substituted at the connector boundary for missing optional fields.
const (
	NoDisplayName = "No display name"
	NoDescription = "No description"
)

// Account is a remote account as fetched from a platform.
type Account struct {
	ID          string   `json:"id"`
	Handle      string   `json:"handle"`
	DisplayName string   `json:"displayName"`
	Platform    Platform `json:"platform"`
}

// UsernameAccount builds the account for a platform that identifies users
// by username alone and exposes no display name.
func UsernameAccount(p Platform, username string) Account {
	return Account{ID: username, Handle: username, DisplayName: NoDisplayName, Platform: p}
}

// PostSample is one short text written by an account.
type PostSample struct {
	AccountID string   `json:"accountId"`
	Text      string   `json:"text"`
	Platform  Platform `json:"platform"`
}

// Community is a Reddit subreddit the user subscribes to.
type Community struct {
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	Subscribers int    `json:"subscribers"`
	Description string `json:"description"`
}

// Candidate is a prospective new connection with a small text sample.
type Candidate struct {
	Account  Account      `json:"account"`
	Posts    []PostSample `json:"posts"`
	Platform Platform     `json:"platform"`
}

// PostTexts returns the raw texts of the candidate's posts in order.
func (c Candidate) PostTexts() []string {
	texts := make([]string, 0, len(c.Posts))
	for _, p := range c.Posts {
		texts = append(texts, p.Text)
	}
	return texts
}

// InterestSummary is a short model-written digest of a user's interests.
// It is opaque text and is never parsed.
type InterestSummary string

// Recommendation is a model-written list of suggested connections.
type Recommendation string

// Credentials is an opaque username/password pair for one platform.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
