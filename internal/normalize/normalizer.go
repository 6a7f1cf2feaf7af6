package normalize

import (
	"fmt"
	"sync"
	"time"

	"github.com/aakash-priyadarshi/news-duplication-system/internal/storage"
)

// RawItem is one feed item before normalization.
type RawItem struct {
	Title        string
	URL          string
	GUID         string
	Summary      string
	Content      string
	Author       string
	ImageURL     string
	PublishedRaw string
	Published    *time.Time
}

// Result is the outcome of normalizing one raw item.
type Result struct {
	Article *storage.Article
	// Emit is true when the article is new and must be dedup-checked.
	// False means the item was dropped (seen URL) or short-circuited as
	// an exact duplicate.
	Emit bool
	// ExactDuplicate is true when the content hash matched an existing
	// article and the item was persisted as a duplicate directly.
	ExactDuplicate bool
}

// Normalizer turns raw feed items into persisted articles, short-circuiting
// exact duplicates by URL and content hash before they reach the scoring
// engine. Processing is serialized so concurrent feed fetches cannot race
// the lookup-then-insert of the short-circuit checks.
type Normalizer struct {
	mu          sync.Mutex
	store       storage.Store
	hashAlgo    string
	maxEntities int
}

// NewNormalizer creates a normalizer using the given content-hash algorithm
// (sha256, md5, or sha1).
func NewNormalizer(store storage.Store, hashAlgo string, maxEntities int) *Normalizer {
	if maxEntities <= 0 {
		maxEntities = 20
	}
	return &Normalizer{store: store, hashAlgo: hashAlgo, maxEntities: maxEntities}
}

// Process cleans, fingerprints, and persists a raw item from a feed.
// Already-seen URLs are dropped without writing to the store. Content-hash
// matches are persisted as duplicates with a content_hash link and never
// emitted downstream.
func (n *Normalizer) Process(item RawItem, feed storage.Feed) (*Result, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if item.URL == "" {
		return nil, fmt.Errorf("item %q has no URL", item.Title)
	}

	title := CleanText(item.Title)
	summary := CleanText(item.Summary)
	content := CleanText(item.Content)
	if content == "" {
		content = summary
	}

	fetchedAt := time.Now()
	publishedAt := ParsePublishedAt(item.Published, item.PublishedRaw, fetchedAt)

	hash, err := ContentHash(title, content, n.hashAlgo)
	if err != nil {
		return nil, fmt.Errorf("fingerprint item: %w", err)
	}

	// Seen URL: the exact item was ingested before, nothing to do.
	existing, err := n.store.GetArticleByURL(item.URL)
	if err != nil {
		return nil, fmt.Errorf("lookup by url: %w", err)
	}
	if existing != nil {
		return &Result{Article: existing, Emit: false}, nil
	}

	article := &storage.Article{
		URL:         item.URL,
		ContentHash: hash,
		Title:       title,
		Summary:     summary,
		Content:     content,
		Source:      feed.Name,
		SourceID:    item.GUID,
		Category:    feed.Category,
		Tags:        feed.Tags,
		Priority:    feed.Priority,
		PublishedAt: publishedAt,
		FetchedAt:   fetchedAt,
		Author:      item.Author,
		ImageURL:    item.ImageURL,
		Entities:    ExtractEntities(title+" "+content, n.maxEntities),
	}

	// Same normalized content under a different URL: persist as an exact
	// duplicate of the earliest article with this hash and stop here.
	// When the new article predates the stored match it goes through the
	// scoring engine instead, whose election will make it the original.
	match, err := n.store.GetArticleByHash(hash)
	if err != nil {
		return nil, fmt.Errorf("lookup by hash: %w", err)
	}
	if match != nil && !match.PublishedAt.After(article.PublishedAt) {
		article.DuplicateChecked = true
		article.IsDuplicate = true
		article.OriginalArticleID = &match.ID
		if _, err := n.store.AddArticle(article); err != nil {
			return nil, fmt.Errorf("persist exact duplicate: %w", err)
		}
		link := &storage.DuplicateLink{
			OriginalArticleID:  match.ID,
			DuplicateArticleID: article.ID,
			SimilarityScore:    1.0,
			DetectionMethod:    "content_hash",
			Breakdown:          map[string]float64{"content_hash": 1.0},
			OriginalTitle:      match.Title,
			DuplicateTitle:     article.Title,
			OriginalSource:     match.Source,
			DuplicateSource:    article.Source,
			TimeDiffSeconds:    int64(article.PublishedAt.Sub(match.PublishedAt).Seconds()),
		}
		if err := n.store.AddDuplicateLink(link); err != nil {
			return nil, fmt.Errorf("link exact duplicate: %w", err)
		}
		return &Result{Article: article, Emit: false, ExactDuplicate: true}, nil
	}

	if _, err := n.store.AddArticle(article); err != nil {
		return nil, fmt.Errorf("persist article: %w", err)
	}
	return &Result{Article: article, Emit: true}, nil
}
