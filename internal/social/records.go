package social

import (
	"encoding/json"
	"fmt"
)

// Artifact kinds persisted per local user.
const (
	KindFollowingList          = "followingList"
	KindCandidatePool          = "candidatePool"
	KindCommunitySubscriptions = "communitySubscriptions"
	KindInterestSummaries      = "interestSummaries"
	KindRecommendations        = "recommendations"
	KindSeedCorpus             = "seedCorpus"
)

// accountRecord is the stored shape of an Account.
type accountRecord struct {
	ID          string   `json:"id"`
	Handle      string   `json:"handle"`
	DisplayName string   `json:"displayName"`
	Platform    Platform `json:"platform"`
}

// candidateRecord is the stored shape of a Candidate. Posts are kept as plain text.
type candidateRecord struct {
	ID          string   `json:"id"`
	Handle      string   `json:"handle"`
	DisplayName string   `json:"displayName"`
	Posts       []string `json:"posts"`
	Platform    Platform `json:"platform"`
}

// communityRecord is the stored shape of a Community.
type communityRecord struct {
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	Subscribers int    `json:"subscribers"`
	Description string `json:"description"`
}

// EncodeAccounts serializes accounts for the artifact store.
func EncodeAccounts(accounts []Account) ([]byte, error) {
	recs := make([]accountRecord, 0, len(accounts))
	for _, a := range accounts {
		recs = append(recs, accountRecord(a))
	}
	return json.Marshal(recs)
}

// DecodeAccounts parses accounts written by EncodeAccounts. Empty input yields no accounts.
func DecodeAccounts(data []byte) ([]Account, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var recs []accountRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decoding accounts: %w", err)
	}
	accounts := make([]Account, 0, len(recs))
	for _, r := range recs {
		accounts = append(accounts, Account(r))
	}
	return accounts, nil
}

// EncodeCandidates serializes candidates for the artifact store, preserving order.
func EncodeCandidates(candidates []Candidate) ([]byte, error) {
	recs := make([]candidateRecord, 0, len(candidates))
	for _, c := range candidates {
		recs = append(recs, candidateRecord{
			ID:          c.Account.ID,
			Handle:      c.Account.Handle,
			DisplayName: c.Account.DisplayName,
			Posts:       c.PostTexts(),
			Platform:    c.Platform,
		})
	}
	return json.Marshal(recs)
}

// DecodeCandidates parses candidates written by EncodeCandidates.
func DecodeCandidates(data []byte) ([]Candidate, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var recs []candidateRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decoding candidates: %w", err)
	}
	candidates := make([]Candidate, 0, len(recs))
	for _, r := range recs {
		posts := make([]PostSample, 0, len(r.Posts))
		for _, text := range r.Posts {
			posts = append(posts, PostSample{AccountID: r.ID, Text: text, Platform: r.Platform})
		}
		candidates = append(candidates, Candidate{
			Account: Account{
				ID:          r.ID,
				Handle:      r.Handle,
				DisplayName: r.DisplayName,
				Platform:    r.Platform,
			},
			Posts:    posts,
			Platform: r.Platform,
		})
	}
	return candidates, nil
}

// EncodeCommunities serializes communities for the artifact store.
func EncodeCommunities(communities []Community) ([]byte, error) {
	recs := make([]communityRecord, 0, len(communities))
	for _, c := range communities {
		recs = append(recs, communityRecord(c))
	}
	return json.Marshal(recs)
}

// DecodeCommunities parses communities written by EncodeCommunities.
func DecodeCommunities(data []byte) ([]Community, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var recs []communityRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decoding communities: %w", err)
	}
	communities := make([]Community, 0, len(recs))
	for _, r := range recs {
		communities = append(communities, Community(r))
	}
	return communities, nil
}

// EncodeTexts serializes a platform -> text map (interest summaries, recommendations).
func EncodeTexts[T ~string](m map[Platform]T) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeTexts parses a map written by EncodeTexts.
func DecodeTexts[T ~string](data []byte) (map[Platform]T, error) {
	m := make(map[Platform]T)
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding texts: %w", err)
	}
	return m, nil
}

// EncodeCorpus serializes the per-platform seed corpora.
func EncodeCorpus(m map[Platform][]string) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeCorpus parses corpora written by EncodeCorpus.
func DecodeCorpus(data []byte) (map[Platform][]string, error) {
	m := make(map[Platform][]string)
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding corpus: %w", err)
	}
	return m, nil
}

// GroupCandidates splits a flat candidate pool by platform, preserving order.
func GroupCandidates(candidates []Candidate) map[Platform][]Candidate {
	out := make(map[Platform][]Candidate)
	for _, c := range candidates {
		out[c.Platform] = append(out[c.Platform], c)
	}
	return out
}

// GroupAccounts splits a flat account list by platform, preserving order.
func GroupAccounts(accounts []Account) map[Platform][]Account {
	out := make(map[Platform][]Account)
	for _, a := range accounts {
		out[a.Platform] = append(out[a.Platform], a)
	}
	return out
}

// Flatten concatenates per-platform slices in Platforms order.
func Flatten[T any](m map[Platform][]T) []T {
	var out []T
	for _, p := range Platforms {
		out = append(out, m[p]...)
	}
	return out
}
