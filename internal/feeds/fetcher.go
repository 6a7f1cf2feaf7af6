package feeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/aakash-priyadarshi/news-duplication-system/internal/config"
	"github.com/aakash-priyadarshi/news-duplication-system/internal/storage"
)

const (
	userAgent    = "NewsDedup/1.0"
	maxRedirects = 3
)

// TransientError marks a fetch failure worth retrying: transport errors,
// DNS failures, 5xx responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// MalformedFeedError marks a feed body that fetched fine but did not parse.
// Not retried.
type MalformedFeedError struct {
	Err error
}

func (e *MalformedFeedError) Error() string { return e.Err.Error() }
func (e *MalformedFeedError) Unwrap() error { return e.Err }

// Item is one raw feed entry, in feed order.
type Item struct {
	Title        string
	Link         string
	GUID         string
	Description  string
	Content      string
	Author       string
	ImageURL     string
	Published    *time.Time
	PublishedRaw string
	Categories   []string
}

// FetchResult holds the outcome of a conditional feed fetch.
type FetchResult struct {
	Items        []Item
	ETag         string // ETag from response (empty if absent)
	LastModified string // Last-Modified from response (empty if absent)
	NotModified  bool   // true when server returned 304
}

// CycleStats summarizes one fetch cycle across all feeds.
type CycleStats struct {
	FeedsTotal       int
	FeedsDownloaded  int
	FeedsNotModified int
	FeedsErrored     int
	NewArticles      int
	Duration         time.Duration
}

// ItemHandler consumes the items of one successfully fetched feed and
// returns the number of new articles it produced.
type ItemHandler func(ctx context.Context, feed storage.Feed, items []Item) (int, error)

// Fetcher downloads and parses feeds with retries, conditional requests,
// and a bounded number of parallel fetches per cycle.
type Fetcher struct {
	parser    *gofeed.Parser
	client    *http.Client
	store     storage.Store
	extractor *Extractor // nil when full-page extraction is disabled
	settings  config.FetchSettings

	maxConcurrent int
}

// NewFetcher creates a feed fetcher. extractor may be nil.
func NewFetcher(store storage.Store, settings config.FetchSettings, maxConcurrent int, extractor *Extractor) *Fetcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &Fetcher{
		parser:        parser,
		client:        client,
		store:         store,
		extractor:     extractor,
		settings:      settings,
		maxConcurrent: maxConcurrent,
	}
}

// FetchFeed fetches and parses a single feed using conditional HTTP
// requests. Stored ETag / Last-Modified values are sent as If-None-Match /
// If-Modified-Since; a 304 skips parsing entirely. Transport errors and 5xx
// responses are retried with linear backoff; 4xx is returned immediately.
func (f *Fetcher) FetchFeed(ctx context.Context, feed storage.Feed) (*FetchResult, error) {
	attempts := f.settings.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := time.Duration(f.settings.RetryDelayMs) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := f.fetchOnce(ctx, feed)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var transient *TransientError
		if !errors.As(err, &transient) {
			return nil, err
		}
		if attempt < attempts {
			select {
			case <-time.After(delay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, feed storage.Feed) (*FetchResult, error) {
	timeout := time.Duration(f.settings.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", feed.URL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	if feed.ETag != "" {
		req.Header.Set("If-None-Match", feed.ETag)
	}
	if feed.LastModified != "" {
		req.Header.Set("If-Modified-Since", feed.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to fetch feed %s: %w", feed.URL, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &FetchResult{NotModified: true}, nil
	}
	if resp.StatusCode >= 500 {
		return nil, &TransientError{Err: fmt.Errorf("feed %s returned status %d", feed.URL, resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned status %d", feed.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to read feed %s: %w", feed.URL, err)}
	}

	parsed, err := f.parser.ParseString(string(body))
	if err != nil {
		return nil, &MalformedFeedError{Err: fmt.Errorf("failed to parse feed %s: %w", feed.URL, err)}
	}

	return &FetchResult{
		Items:        itemsFromFeed(parsed),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

// itemsFromFeed converts parsed entries, preserving feed order. Items
// without both a link and a GUID are skipped.
func itemsFromFeed(feed *gofeed.Feed) []Item {
	items := make([]Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry.Link == "" && entry.GUID == "" {
			continue
		}
		item := Item{
			Title:        entry.Title,
			Link:         entry.Link,
			GUID:         entry.GUID,
			Description:  entry.Description,
			Content:      entry.Content,
			PublishedRaw: entry.Published,
			Categories:   entry.Categories,
		}
		if entry.Link == "" {
			item.Link = entry.GUID
		}
		if entry.Author != nil {
			item.Author = entry.Author.Name
		}
		if entry.Image != nil {
			item.ImageURL = entry.Image.URL
		}
		if entry.PublishedParsed != nil {
			item.Published = entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			item.Published = entry.UpdatedParsed
		}
		// content:encoded and media extensions, read opportunistically
		if item.Content == "" {
			if encoded, ok := entry.Extensions["content"]["encoded"]; ok && len(encoded) > 0 {
				item.Content = encoded[0].Value
			}
		}
		if item.ImageURL == "" {
			if media, ok := entry.Extensions["media"]["content"]; ok && len(media) > 0 {
				item.ImageURL = media[0].Attrs["url"]
			}
		}
		items = append(items, item)
	}
	return items
}

// FetchAll runs one fetch cycle over every enabled feed, at most
// maxConcurrent in flight at a time, and hands each feed's items to the
// handler in feed order. Per-feed failures are recorded and do not stop
// the cycle.
func (f *Fetcher) FetchAll(ctx context.Context, handle ItemHandler) (*CycleStats, error) {
	feeds, err := f.store.GetEnabledFeeds()
	if err != nil {
		return nil, fmt.Errorf("failed to get feeds: %w", err)
	}

	start := time.Now()
	stats := &CycleStats{FeedsTotal: len(feeds)}

	var mu sync.Mutex
	sem := make(chan struct{}, f.maxConcurrent)
	var wg sync.WaitGroup

	for _, feed := range feeds {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(feed storage.Feed) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := f.fetchAndHandle(ctx, feed, handle)

			mu.Lock()
			switch outcome.kind {
			case cycleDownloaded:
				stats.FeedsDownloaded++
				stats.NewArticles += outcome.newArticles
			case cycleNotModified:
				stats.FeedsNotModified++
			case cycleErrored:
				stats.FeedsErrored++
			}
			mu.Unlock()
		}(feed)
	}
	wg.Wait()

	stats.Duration = time.Since(start)
	return stats, nil
}

type cycleKind int

const (
	cycleDownloaded cycleKind = iota
	cycleNotModified
	cycleErrored
)

type feedOutcome struct {
	kind        cycleKind
	newArticles int
}

func (f *Fetcher) fetchAndHandle(ctx context.Context, feed storage.Feed, handle ItemHandler) feedOutcome {
	result, err := f.FetchFeed(ctx, feed)
	if err != nil {
		log.Printf("feeds: fetch %s: %v", feed.URL, err)
		f.store.RecordFeedError(feed.ID, err.Error())
		return feedOutcome{kind: cycleErrored}
	}

	if result.NotModified {
		f.store.RecordFeedSuccess(feed.ID, 0)
		return feedOutcome{kind: cycleNotModified}
	}

	if f.extractor != nil {
		f.enrichItems(ctx, result.Items)
	}

	stored, err := handle(ctx, feed, result.Items)
	if err != nil {
		log.Printf("feeds: handle items from %s: %v", feed.URL, err)
		f.store.RecordFeedError(feed.ID, err.Error())
		return feedOutcome{kind: cycleErrored}
	}

	if result.ETag != "" || result.LastModified != "" {
		f.store.UpdateFeedCacheHeaders(feed.ID, result.ETag, result.LastModified)
	}
	f.store.RecordFeedSuccess(feed.ID, stored)
	return feedOutcome{kind: cycleDownloaded, newArticles: stored}
}

// enrichItems fetches each item's page and swaps in the extracted article
// text. Extraction failures are non-fatal; the item keeps its feed-provided
// content.
func (f *Fetcher) enrichItems(ctx context.Context, items []Item) {
	for i := range items {
		if items[i].Link == "" {
			continue
		}
		text, err := f.extractor.ExtractContent(ctx, items[i].Link)
		if err != nil {
			log.Printf("feeds: extract %s: %v", items[i].Link, err)
			continue
		}
		if text != "" {
			items[i].Content = text
		}
	}
}
