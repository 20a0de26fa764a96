package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Why we rewrote our build in Go</title></head>
<body>
<nav>Home | About</nav>
<article>
<h1>Why we rewrote our build in Go</h1>
<p>%s</p>
<p>%s</p>
</article>
</body></html>`

func page() string {
	para := strings.Repeat("Our build system grew slowly over the years until it became hard to reason about. ", 4)
	return strings.Replace(strings.Replace(articleHTML, "%s", para, 1), "%s", para, 1)
}

func TestExpandExtractsAndCaches(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if ua := r.Header.Get("User-Agent"); ua != "friendscout-test" {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page()))
	}))
	defer srv.Close()

	f := NewLinkExpander(0, "friendscout-test", nil)
	text, err := f.Expand(context.Background(), srv.URL+"/post")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !strings.Contains(text, "build system") {
		t.Errorf("expected article text, got %q", text)
	}

	_, _ = f.Expand(context.Background(), srv.URL+"/post")
	if hits != 1 {
		t.Errorf("expected 1 HTTP hit with cache, got %d", hits)
	}
	stats := f.Stats()
	if stats.Fetched != 1 || stats.Cached != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestExpandSkipsFailedDomain(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewLinkExpander(0, "ua", nil)
	if _, err := f.Expand(context.Background(), srv.URL+"/a"); err == nil {
		t.Fatal("expected error on 403")
	}
	if _, err := f.Expand(context.Background(), srv.URL+"/b"); err == nil {
		t.Fatal("expected error for skipped domain")
	}
	if hits != 1 {
		t.Errorf("expected domain to be skipped after first failure, got %d hits", hits)
	}
	if f.Stats().Failed != 2 {
		t.Errorf("expected 2 failures, got %+v", f.Stats())
	}
}

func TestExpandShortPageYieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>tiny</p></body></html>`))
	}))
	defer srv.Close()

	text, err := NewLinkExpander(0, "ua", nil).Expand(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if text != "" {
		t.Errorf("expected empty text, got %q", text)
	}
}

func TestExpandRejectsNonHTTP(t *testing.T) {
	if _, err := NewLinkExpander(0, "ua", nil).Expand(context.Background(), "ftp://example.com/x"); err == nil {
		t.Error("expected error for non-http link")
	}
}
