package normalize

import (
	"path/filepath"
	"testing"
	"time"

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

func testFeed() storage.Feed {
	return storage.Feed{
		Name:     "Test Wire",
		Category: "business",
		Priority: "medium",
		Tags:     []string{"markets"},
	}
}

func TestProcessNewArticle(t *testing.T) {
	store := newTestStore(t)
	n := NewNormalizer(store, "sha256", 20)

	published := time.Now().Add(-time.Hour)
	result, err := n.Process(RawItem{
		Title:     "Acme acquires Beta for $2 billion",
		URL:       "https://example.com/acme",
		GUID:      "guid-1",
		Summary:   "A big deal",
		Content:   "<p>Acme Corp announced it will acquire Beta Holdings for $2 billion.</p>",
		Published: &published,
	}, testFeed())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !result.Emit {
		t.Error("new article should be emitted")
	}
	if result.Article.ID == 0 {
		t.Error("article should be persisted")
	}
	if result.Article.ContentHash == "" {
		t.Error("content_hash should be set")
	}
	if result.Article.DuplicateChecked {
		t.Error("new article should await dedup")
	}
	if result.Article.Content != "Acme Corp announced it will acquire Beta Holdings for $2 billion." {
		t.Errorf("content should be cleaned, got %q", result.Article.Content)
	}
	if len(result.Article.Entities) == 0 {
		t.Error("entities should be extracted")
	}
	if result.Article.Source != "Test Wire" || result.Article.Category != "business" {
		t.Errorf("feed metadata not carried: %+v", result.Article)
	}
}

func TestProcessSeenURLIsNoOp(t *testing.T) {
	store := newTestStore(t)
	n := NewNormalizer(store, "sha256", 20)

	item := RawItem{
		Title:   "Same story",
		URL:     "https://example.com/same",
		Content: "Body text",
	}
	first, err := n.Process(item, testFeed())
	if err != nil {
		t.Fatalf("first Process failed: %v", err)
	}

	second, err := n.Process(item, testFeed())
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}
	if second.Emit {
		t.Error("re-presented URL should not be emitted")
	}
	if second.Article.ID != first.Article.ID {
		t.Error("re-presented URL should resolve to the stored article")
	}

	// No new article, no new link
	count, _ := store.CountDuplicates()
	if count != 0 {
		t.Errorf("expected 0 duplicate links, got %d", count)
	}
}

func TestProcessExactDuplicateShortCircuit(t *testing.T) {
	store := newTestStore(t)
	n := NewNormalizer(store, "sha256", 20)

	earlier := time.Now().Add(-time.Hour)
	later := time.Now()

	first, err := n.Process(RawItem{
		Title:     "Acme acquires Beta for $2B",
		URL:       "https://source-a.example.com/story",
		Content:   "Full identical story body.",
		Published: &earlier,
	}, testFeed())
	if err != nil {
		t.Fatalf("first Process failed: %v", err)
	}

	// Byte-identical story from a different source and URL
	otherFeed := testFeed()
	otherFeed.Name = "Other Wire"
	second, err := n.Process(RawItem{
		Title:     "Acme acquires Beta for $2B",
		URL:       "https://source-b.example.com/story",
		Content:   "Full identical story body.",
		Published: &later,
	}, otherFeed)
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}

	if second.Emit {
		t.Error("exact duplicate should not be emitted")
	}
	if !second.ExactDuplicate {
		t.Error("expected exact-duplicate short circuit")
	}
	if !second.Article.IsDuplicate {
		t.Error("later article should be flagged is_duplicate")
	}
	if second.Article.OriginalArticleID == nil || *second.Article.OriginalArticleID != first.Article.ID {
		t.Errorf("original_article_id = %v, want %d", second.Article.OriginalArticleID, first.Article.ID)
	}

	links, _ := store.ListDuplicates(10, 0)
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	if links[0].DetectionMethod != "content_hash" {
		t.Errorf("method = %q, want content_hash", links[0].DetectionMethod)
	}
	if links[0].SimilarityScore != 1.0 {
		t.Errorf("score = %v, want 1.0", links[0].SimilarityScore)
	}
	if links[0].OriginalArticleID != first.Article.ID {
		t.Errorf("link original = %d, want %d", links[0].OriginalArticleID, first.Article.ID)
	}
}

func TestProcessMissingURL(t *testing.T) {
	store := newTestStore(t)
	n := NewNormalizer(store, "sha256", 20)

	if _, err := n.Process(RawItem{Title: "No link"}, testFeed()); err == nil {
		t.Fatal("expected error for item without URL")
	}
}

func TestProcessFallsBackToSummary(t *testing.T) {
	store := newTestStore(t)
	n := NewNormalizer(store, "sha256", 20)

	result, err := n.Process(RawItem{
		Title:   "Summary only",
		URL:     "https://example.com/summary-only",
		Summary: "Only a summary was provided",
	}, testFeed())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.Article.Content != "Only a summary was provided" {
		t.Errorf("content should fall back to summary, got %q", result.Article.Content)
	}
}
