package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/aakash-priyadarshi/news-duplication-system/internal/storage"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<p>Hello <b>world</b></p>", "Hello world"},
		{"AT&amp;T  announces   deal", "AT&T announces deal"},
		{"  spaced\n\nout\ttext  ", "spaced out text"},
		{"<script>alert(1)</script>plain", "plain"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanText(tt.in); got != tt.want {
			t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeForHash(t *testing.T) {
	// Inputs differing only in case, punctuation, and whitespace must
	// normalize identically.
	a := NormalizeForHash("Acme acquires Beta for $2B!")
	b := NormalizeForHash("acme   ACQUIRES beta, for 2b")
	if a != b {
		t.Errorf("normalizations differ: %q vs %q", a, b)
	}
}

func TestNormalizeForHashIdempotent(t *testing.T) {
	inputs := []string{
		"Acme acquires Beta for $2B!",
		"Ünïcödé — テキスト, with punctuation…",
		"   ",
		"",
	}
	for _, in := range inputs {
		once := NormalizeForHash(in)
		twice := NormalizeForHash(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestNormalizeForHashUnicode(t *testing.T) {
	got := NormalizeForHash("Müller çüruk テスト 123")
	if !strings.Contains(got, "müller") || !strings.Contains(got, "テスト") {
		t.Errorf("unicode letters should survive normalization, got %q", got)
	}
	if strings.ContainsAny(got, ".,!?") {
		t.Errorf("punctuation should be stripped, got %q", got)
	}
}

func TestContentHash(t *testing.T) {
	h1, err := ContentHash("Title", "Content here.", "sha256")
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	h2, _ := ContentHash("TITLE", "content, here", "sha256")
	if h1 != h2 {
		t.Error("hashes should match for case/punctuation variants")
	}
	if len(h1) != 64 {
		t.Errorf("sha256 hex length = %d, want 64", len(h1))
	}

	h3, _ := ContentHash("Different title", "Content here.", "sha256")
	if h1 == h3 {
		t.Error("different titles should hash differently")
	}

	hMD5, _ := ContentHash("Title", "Content here.", "md5")
	if len(hMD5) != 32 {
		t.Errorf("md5 hex length = %d, want 32", len(hMD5))
	}
	hSHA1, _ := ContentHash("Title", "Content here.", "sha1")
	if len(hSHA1) != 40 {
		t.Errorf("sha1 hex length = %d, want 40", len(hSHA1))
	}

	if _, err := ContentHash("t", "c", "crc32"); err == nil {
		t.Error("expected error for unsupported algorithm")
	}
}

func TestParsePublishedAt(t *testing.T) {
	fetched := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	parsed := time.Date(2026, 7, 31, 9, 30, 0, 0, time.UTC)
	if got := ParsePublishedAt(&parsed, "", fetched); !got.Equal(parsed) {
		t.Errorf("pre-parsed time should win, got %v", got)
	}

	got := ParsePublishedAt(nil, "2026-07-30T08:00:00Z", fetched)
	if got.Year() != 2026 || got.Month() != 7 || got.Day() != 30 {
		t.Errorf("raw string parse failed, got %v", got)
	}

	if got := ParsePublishedAt(nil, "not a date at all", fetched); !got.Equal(fetched) {
		t.Errorf("unparseable date should fall back to fetch time, got %v", got)
	}

	if got := ParsePublishedAt(nil, "", fetched); !got.Equal(fetched) {
		t.Errorf("empty date should fall back to fetch time, got %v", got)
	}
}

func TestExtractEntitiesMoney(t *testing.T) {
	entities := ExtractEntities("The deal is valued at $2.5 billion according to sources.", 20)
	if !hasEntity(entities, EntityMoney) {
		t.Errorf("expected money entity in %+v", entities)
	}
}

func TestExtractEntitiesPercent(t *testing.T) {
	entities := ExtractEntities("Shares rose 12.5% on the news.", 20)
	if !hasEntity(entities, EntityPercentage) {
		t.Errorf("expected percentage entity in %+v", entities)
	}
}

func TestExtractEntitiesOrganization(t *testing.T) {
	entities := ExtractEntities("Acme Corp announced a partnership with Beta Holdings.", 20)
	count := 0
	for _, e := range entities {
		if e.Type == EntityOrganization {
			count++
		}
	}
	if count < 2 {
		t.Errorf("expected 2 organizations, got %d in %+v", count, entities)
	}
}

func TestExtractEntitiesTickerGate(t *testing.T) {
	// Without financial context, bare uppercase tokens are not tickers
	without := ExtractEntities("The NASA mission to MARS launched today.", 20)
	if hasEntity(without, EntityTicker) {
		t.Errorf("no financial context: expected no tickers, got %+v", without)
	}

	with := ExtractEntities("AAPL stock surged after earnings beat expectations.", 20)
	if !hasEntity(with, EntityTicker) {
		t.Errorf("financial context: expected ticker, got %+v", with)
	}
}

func TestExtractEntitiesStoplist(t *testing.T) {
	entities := ExtractEntities("The CEO discussed the stock market outlook.", 20)
	for _, e := range entities {
		if e.Type == EntityTicker && e.Name == "CEO" {
			t.Error("CEO should not be tagged as a ticker")
		}
	}
}

func TestExtractEntitiesDedupe(t *testing.T) {
	entities := ExtractEntities("Acme Corp and Acme Corp and ACME CORP met.", 20)
	seen := map[string]int{}
	for _, e := range entities {
		seen[strings.ToLower(e.Name)+"/"+e.Type]++
	}
	for key, n := range seen {
		if n > 1 {
			t.Errorf("entity %s appears %d times, want 1", key, n)
		}
	}
}

func TestExtractEntitiesCap(t *testing.T) {
	text := "Alpha Corp, Beta Corp, and Gamma Corp raised $5 billion, up 10% since January 15, 2026."
	entities := ExtractEntities(text, 3)
	if len(entities) > 3 {
		t.Errorf("expected at most 3 entities, got %d", len(entities))
	}
}

func TestExtractEntitiesEmpty(t *testing.T) {
	if got := ExtractEntities("", 20); got != nil {
		t.Errorf("empty text should yield nil, got %+v", got)
	}
}

func hasEntity(entities []storage.Entity, entityType string) bool {
	for _, e := range entities {
		if e.Type == entityType {
			return true
		}
	}
	return false
}
