package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aakash-priyadarshi/news-duplication-system/internal/config"
	"github.com/aakash-priyadarshi/news-duplication-system/internal/storage"
)

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func fastSettings() config.FetchSettings {
	return config.FetchSettings{
		RefreshIntervalMinutes: 5,
		TimeoutSeconds:         5,
		RetryAttempts:          3,
		RetryDelayMs:           10,
	}
}

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <item>
      <guid>item-1</guid>
      <title>First Article</title>
      <link>https://example.com/1</link>
      <description>Hello world</description>
      <pubDate>Mon, 03 Aug 2026 10:00:00 GMT</pubDate>
    </item>
    <item>
      <guid>item-2</guid>
      <title>Second Article</title>
      <link>https://example.com/2</link>
      <description>Second body</description>
    </item>
  </channel>
</rss>`

func TestFetchFeedParsesItemsInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, testRSS)
	}))
	defer srv.Close()

	fetcher := NewFetcher(newTestStore(t), fastSettings(), 10, nil)
	result, err := fetcher.FetchFeed(context.Background(), storage.Feed{URL: srv.URL})
	if err != nil {
		t.Fatalf("FetchFeed: %v", err)
	}
	if result.NotModified {
		t.Fatal("expected fresh content")
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(result.Items))
	}
	if result.Items[0].Title != "First Article" || result.Items[1].Title != "Second Article" {
		t.Errorf("items out of feed order: %+v", result.Items)
	}
	if result.Items[0].Published == nil {
		t.Error("pubDate should be parsed")
	}
	if result.Items[0].GUID != "item-1" {
		t.Errorf("guid = %q", result.Items[0].GUID)
	}
}

func TestFetchFeedConditional304(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"abc123"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		t.Error("expected If-None-Match header")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fetcher := NewFetcher(newTestStore(t), fastSettings(), 10, nil)
	result, err := fetcher.FetchFeed(context.Background(), storage.Feed{URL: srv.URL, ETag: `"abc123"`})
	if err != nil {
		t.Fatalf("FetchFeed: %v", err)
	}
	if !result.NotModified {
		t.Error("expected NotModified=true")
	}
	if result.Items != nil {
		t.Error("expected no items on 304")
	}
}

func TestFetchFeedCapturesCacheHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"new-etag"`)
		w.Header().Set("Last-Modified", "Mon, 03 Aug 2026 12:00:00 GMT")
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, testRSS)
	}))
	defer srv.Close()

	fetcher := NewFetcher(newTestStore(t), fastSettings(), 10, nil)
	result, err := fetcher.FetchFeed(context.Background(), storage.Feed{URL: srv.URL})
	if err != nil {
		t.Fatalf("FetchFeed: %v", err)
	}
	if result.ETag != `"new-etag"` {
		t.Errorf("etag = %q", result.ETag)
	}
	if result.LastModified != "Mon, 03 Aug 2026 12:00:00 GMT" {
		t.Errorf("last-modified = %q", result.LastModified)
	}
}

func TestFetchFeedRetriesOn5xx(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, testRSS)
	}))
	defer srv.Close()

	fetcher := NewFetcher(newTestStore(t), fastSettings(), 10, nil)
	result, err := fetcher.FetchFeed(context.Background(), storage.Feed{URL: srv.URL})
	if err != nil {
		t.Fatalf("FetchFeed should succeed after retries: %v", err)
	}
	if len(result.Items) != 2 {
		t.Errorf("items = %d", len(result.Items))
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestFetchFeedDoesNotRetry4xx(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	fetcher := NewFetcher(newTestStore(t), fastSettings(), 10, nil)
	_, err := fetcher.FetchFeed(context.Background(), storage.Feed{URL: srv.URL})
	if err == nil {
		t.Fatal("expected error for 404")
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		t.Error("4xx must not be transient")
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", attempts.Load())
	}
}

func TestFetchFeedExhaustedRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	fetcher := NewFetcher(newTestStore(t), fastSettings(), 10, nil)
	_, err := fetcher.FetchFeed(context.Background(), storage.Feed{URL: srv.URL})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Errorf("expected TransientError, got %T", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestFetchFeedMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not a feed")
	}))
	defer srv.Close()

	fetcher := NewFetcher(newTestStore(t), fastSettings(), 10, nil)
	_, err := fetcher.FetchFeed(context.Background(), storage.Feed{URL: srv.URL})
	var malformed *MalformedFeedError
	if !errors.As(err, &malformed) {
		t.Errorf("expected MalformedFeedError, got %v", err)
	}
}

func TestFetchAllPartialFailure(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, testRSS)
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	store := newTestStore(t)
	goodID, _ := store.UpsertFeed(&storage.Feed{FeedKey: "good", Name: "Good", URL: good.URL, Enabled: true})
	badID, _ := store.UpsertFeed(&storage.Feed{FeedKey: "bad", Name: "Bad", URL: bad.URL, Enabled: true})

	fetcher := NewFetcher(store, fastSettings(), 10, nil)
	handled := 0
	stats, err := fetcher.FetchAll(context.Background(), func(_ context.Context, _ storage.Feed, items []Item) (int, error) {
		handled += len(items)
		return len(items), nil
	})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	if stats.FeedsTotal != 2 || stats.FeedsDownloaded != 1 || stats.FeedsErrored != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.NewArticles != 2 || handled != 2 {
		t.Errorf("new articles = %d, handled = %d, want 2", stats.NewArticles, handled)
	}

	goodFeed, _ := store.GetFeed(goodID)
	if goodFeed.ErrorCount != 0 || goodFeed.LastFetched == nil {
		t.Errorf("good feed state: %+v", goodFeed)
	}
	badFeed, _ := store.GetFeed(badID)
	if badFeed.ErrorCount == 0 || badFeed.LastError == nil {
		t.Errorf("bad feed should be error-counted: %+v", badFeed)
	}
}

func TestFetchAllConcurrencyBound(t *testing.T) {
	var current, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, testRSS)
	}))
	defer srv.Close()

	store := newTestStore(t)
	for i := 0; i < 8; i++ {
		store.UpsertFeed(&storage.Feed{
			FeedKey: fmt.Sprintf("f%d", i), Name: fmt.Sprintf("F%d", i),
			URL: fmt.Sprintf("%s/?feed=%d", srv.URL, i), Enabled: true,
		})
	}

	fetcher := NewFetcher(store, fastSettings(), 2, nil)
	var mu sync.Mutex
	stats, err := fetcher.FetchAll(context.Background(), func(_ context.Context, _ storage.Feed, items []Item) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return len(items), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if stats.FeedsDownloaded != 8 {
		t.Errorf("downloaded = %d, want 8", stats.FeedsDownloaded)
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestItemsSkipLinklessEntries(t *testing.T) {
	rss := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>T</title>
  <item><title>No link no guid</title><description>skipped</description></item>
  <item><guid>only-guid</guid><title>GUID only</title></item>
</channel></rss>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, rss)
	}))
	defer srv.Close()

	fetcher := NewFetcher(newTestStore(t), fastSettings(), 10, nil)
	result, err := fetcher.FetchFeed(context.Background(), storage.Feed{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(result.Items))
	}
	// GUID stands in for a missing link
	if result.Items[0].Link != "only-guid" {
		t.Errorf("link = %q", result.Items[0].Link)
	}
}

func TestEnrichItemsFailureKeepsFeedContent(t *testing.T) {
	// The item page always errors: extraction must not lose feed content
	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/page" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, testRSSWithLink(r.Host))
	}))
	defer feedSrv.Close()

	store := newTestStore(t)
	store.UpsertFeed(&storage.Feed{FeedKey: "f", Name: "F", URL: feedSrv.URL, Enabled: true})

	fetcher := NewFetcher(store, fastSettings(), 10, NewExtractor(nil))
	var captured []Item
	_, err := fetcher.FetchAll(context.Background(), func(_ context.Context, _ storage.Feed, items []Item) (int, error) {
		captured = items
		return len(items), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(captured) == 0 {
		t.Fatal("expected items")
	}
	if captured[0].Description != "Hello world" {
		t.Errorf("feed-provided summary lost: %+v", captured[0])
	}
}

func testRSSWithLink(host string) string {
	return fmt.Sprintf(`<?xml version="1.0"?>
<rss version="2.0"><channel><title>T</title>
  <item><guid>g1</guid><title>A</title><link>http://%s/page</link><description>Hello world</description></item>
</channel></rss>`, host)
}
