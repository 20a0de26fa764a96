package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/friendscout/internal/apperr"
)

const deletedAuthor = "[deleted]"

// FeedEntry is a community post read from the public Atom feed.
type FeedEntry struct {
	Author string
	Title  string
	Text   string
	Link   string
}

// FeedReader reads public community feeds at <baseURL>/r/<name>/.rss.
type FeedReader struct {
	baseURL string
	parser  *gofeed.Parser
}

// NewFeedReader creates a FeedReader.
func NewFeedReader(baseURL, userAgent string) *FeedReader {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = &http.Client{Timeout: 30 * time.Second}
	return &FeedReader{baseURL: strings.TrimRight(baseURL, "/"), parser: parser}
}

// Community returns up to limit entries of a community feed in feed order.
// Entries without a usable author are dropped.
func (fr *FeedReader) Community(ctx context.Context, name string, limit int) ([]FeedEntry, error) {
	feedURL := fmt.Sprintf("%s/r/%s/.rss", fr.baseURL, url.PathEscape(name))
	feed, err := fr.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, classifyFeed("reddit.community_feed", err)
	}

	var entries []FeedEntry
	for _, item := range feed.Items {
		if len(entries) >= limit {
			break
		}
		entry := parseItem(item)
		if entry == nil {
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

func parseItem(item *gofeed.Item) *FeedEntry {
	author := itemAuthor(item)
	if author == "" || author == deletedAuthor {
		return nil
	}

	var content string
	if item.Content != "" {
		content = htmlText(item.Content)
	} else if item.Description != "" {
		content = htmlText(item.Description)
	}

	return &FeedEntry{
		Author: author,
		Title:  strings.TrimSpace(item.Title),
		Text:   content,
		Link:   item.Link,
	}
}

// itemAuthor extracts the username from an author name like "/u/alice".
func itemAuthor(item *gofeed.Item) string {
	var name string
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		name = item.Authors[0].Name
	}
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "/u/")
	name = strings.TrimPrefix(name, "u/")
	return name
}

// htmlText reduces an HTML fragment to whitespace-normalized text.
// Reddit appends "submitted by ... [link] [comments]" footers, which are dropped.
func htmlText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	doc.Find("script, style").Remove()
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		t := strings.TrimSpace(s.Text())
		if t == "[link]" || t == "[comments]" {
			s.Remove()
		}
	})

	text := strings.Join(strings.Fields(doc.Text()), " ")
	if i := strings.Index(text, "submitted by"); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	return text
}

func classifyFeed(op string, err error) error {
	var herr gofeed.HTTPError
	if errors.As(err, &herr) {
		return apperr.FromStatus(op, herr.StatusCode, err)
	}
	return apperr.Transient(op, err)
}
