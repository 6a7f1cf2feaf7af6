package dedup

import (
	"testing"
	"time"

	"github.com/aakash-priyadarshi/news-duplication-system/internal/storage"
)

func TestTitleSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		min, max float64
	}{
		{"identical", "Acme acquires Beta", "Acme acquires Beta", 1, 1},
		{"case and punctuation only", "Acme Acquires Beta!", "acme acquires beta", 1, 1},
		{"paraphrase", "Acme to acquire Beta in $2 billion deal", "Beta acquired by Acme; deal valued near $2B", 0.3, 0.85},
		{"unrelated", "Acme acquires Beta", "Weather forecast sunny tomorrow", 0, 0.2},
		{"empty left", "", "Acme acquires Beta", 0, 0},
		{"empty right", "Acme acquires Beta", "", 0, 0},
		{"both empty", "", "", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TitleSimilarity(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Errorf("TitleSimilarity = %.3f, want in [%.2f, %.2f]", got, tt.min, tt.max)
			}
			if got != got { // NaN check
				t.Error("similarity is NaN")
			}
		})
	}
}

func TestContentSimilarity(t *testing.T) {
	limits := Limits{MaxVocabularySize: 5000, MaxDocTokens: 1000}

	same := ContentSimilarity(
		"Acme Corporation announced the acquisition of Beta Holdings for two billion dollars",
		"Acme Corporation announced the acquisition of Beta Holdings for two billion dollars",
		limits)
	if same < 0.99 {
		t.Errorf("identical content sim = %.3f, want ~1", same)
	}

	related := ContentSimilarity(
		"Acme Corporation announced the acquisition of Beta Holdings for two billion dollars",
		"Beta Holdings will be acquired by Acme Corporation in a two billion dollar deal",
		limits)
	unrelated := ContentSimilarity(
		"Acme Corporation announced the acquisition of Beta Holdings",
		"Sunny weather expected across the region this weekend",
		limits)
	if related <= unrelated {
		t.Errorf("related %.3f should exceed unrelated %.3f", related, unrelated)
	}

	if got := ContentSimilarity("", "anything here", limits); got != 0 {
		t.Errorf("empty input sim = %.3f, want 0", got)
	}
	if got := ContentSimilarity("the a an of", "the a an of", limits); got != 0 {
		t.Errorf("stopword-only sim = %.3f, want 0", got)
	}
}

func TestContentSimilarityTokenCap(t *testing.T) {
	// The cap bounds cost; a tiny cap must still produce a sane score
	long := ""
	for i := 0; i < 500; i++ {
		long += "word" + string(rune('a'+i%26)) + " "
	}
	got := ContentSimilarity(long, long, Limits{MaxVocabularySize: 10, MaxDocTokens: 20})
	if got < 0.99 {
		t.Errorf("capped identical sim = %.3f, want ~1", got)
	}
}

func TestEntitySimilarity(t *testing.T) {
	acme := storage.Entity{Name: "Acme Corp", Type: "organization", Confidence: 0.8}
	beta := storage.Entity{Name: "Beta Holdings", Type: "organization", Confidence: 0.8}
	gamma := storage.Entity{Name: "Gamma Inc", Type: "organization", Confidence: 0.8}

	if got := EntitySimilarity([]storage.Entity{acme, beta}, []storage.Entity{acme, beta}); got != 1 {
		t.Errorf("identical sets sim = %.3f, want 1", got)
	}
	if got := EntitySimilarity([]storage.Entity{acme, beta}, []storage.Entity{acme, gamma}); got != 1.0/3.0 {
		t.Errorf("partial overlap sim = %.3f, want 0.333", got)
	}
	// Case-insensitive on names
	upper := storage.Entity{Name: "ACME CORP", Type: "organization"}
	if got := EntitySimilarity([]storage.Entity{acme}, []storage.Entity{upper}); got != 1 {
		t.Errorf("case-variant sim = %.3f, want 1", got)
	}
	// Empty sets yield 0, not an error
	if got := EntitySimilarity(nil, []storage.Entity{acme}); got != 0 {
		t.Errorf("empty set sim = %.3f, want 0", got)
	}
}

func TestTemporalProximity(t *testing.T) {
	tests := []struct {
		hours float64
		want  float64
	}{
		{0, 1},
		{12, 0.5},
		{-12, 0.5},
		{24, 0},
		{48, 0},
	}
	for _, tt := range tests {
		if got := TemporalProximity(tt.hours); got != tt.want {
			t.Errorf("TemporalProximity(%v) = %.3f, want %.3f", tt.hours, got, tt.want)
		}
	}
}

func TestSourceAlignment(t *testing.T) {
	a := &storage.Article{Source: "Wire A", Category: "business", Tags: []string{"markets", "tech"}}

	same := &storage.Article{Source: "Wire A", Category: "business", Tags: []string{"markets", "tech"}}
	if got := SourceAlignment(a, same); got != 1 {
		t.Errorf("full alignment = %.3f, want 1", got)
	}

	partial := &storage.Article{Source: "Wire B", Category: "business", Tags: []string{"markets"}}
	// 0.3 category + 0.3 * (1/2) tag jaccard = 0.45
	if got := SourceAlignment(a, partial); got < 0.449 || got > 0.451 {
		t.Errorf("partial alignment = %.3f, want 0.45", got)
	}

	none := &storage.Article{Source: "Wire C", Category: "sports"}
	if got := SourceAlignment(a, none); got != 0 {
		t.Errorf("no alignment = %.3f, want 0", got)
	}
}

func TestScoreHashShortCircuit(t *testing.T) {
	now := time.Now()
	a := &storage.Article{ContentHash: "same", Title: "One", PublishedAt: now}
	b := &storage.Article{ContentHash: "same", Title: "Completely different", PublishedAt: now}

	bd := Score(a, b, 0, DefaultWeights(), Limits{})
	if bd.Overall != 1 {
		t.Errorf("overall = %.3f, want 1", bd.Overall)
	}
	if bd.Method != MethodContentHash {
		t.Errorf("method = %s, want content_hash", bd.Method)
	}
}

func TestScoreParaphrasePair(t *testing.T) {
	// A paraphrased story with shared entities and a strong semantic
	// signal should clear the semantic threshold.
	now := time.Now()
	a := &storage.Article{
		Title:       "Acme to acquire Beta in $2 billion deal",
		Content:     "Acme Corporation said it will acquire Beta Holdings in a transaction valued at two billion dollars.",
		Source:      "Wire A",
		Category:    "business",
		Tags:        []string{"markets"},
		PublishedAt: now,
		Entities: []storage.Entity{
			{Name: "Acme", Type: "organization"},
			{Name: "Beta", Type: "organization"},
		},
	}
	b := &storage.Article{
		Title:       "Beta acquired by Acme; deal valued near $2B",
		Content:     "Beta Holdings is being acquired by Acme Corporation, with the deal valued near two billion dollars.",
		Source:      "Wire B",
		Category:    "business",
		Tags:        []string{"markets"},
		PublishedAt: now.Add(-30 * time.Minute),
		Entities: []storage.Entity{
			{Name: "Acme", Type: "organization"},
			{Name: "Beta", Type: "organization"},
		},
	}

	bd := Score(a, b, 0.9, DefaultWeights(), Limits{})
	if bd.Method != MethodSemantic {
		t.Errorf("method = %s, want semantic_similarity", bd.Method)
	}
	if bd.Overall < ThresholdFor(MethodSemantic, 0.85) {
		t.Errorf("overall = %.3f, should clear semantic threshold 0.85", bd.Overall)
	}
	if bd.EntitySim != 1 {
		t.Errorf("entity_sim = %.3f, want 1", bd.EntitySim)
	}
	if bd.TemporalProx < 0.97 {
		t.Errorf("temporal_prox = %.3f, want >= 0.97", bd.TemporalProx)
	}
}

func TestScoreFollowUpNotDuplicate(t *testing.T) {
	// Follow-up coverage: moderate entity overlap, low title similarity,
	// weak semantic signal. Must not clear any threshold.
	now := time.Now()
	a := &storage.Article{
		Title:       "Beta shareholders approve Acme deal",
		Content:     "Shareholders of Beta Holdings voted on Tuesday to approve the pending acquisition by Acme.",
		Source:      "Wire A",
		Category:    "business",
		PublishedAt: now,
		Entities: []storage.Entity{
			{Name: "Acme", Type: "organization"},
			{Name: "Beta", Type: "organization"},
			{Name: "Tuesday", Type: "date"},
		},
	}
	b := &storage.Article{
		Title:       "Acme announces intent to acquire Beta",
		Content:     "Acme Corporation announced its intention to acquire Beta Holdings pending regulatory review.",
		Source:      "Wire A",
		Category:    "business",
		PublishedAt: now.Add(-8 * time.Hour),
		Entities: []storage.Entity{
			{Name: "Acme", Type: "organization"},
			{Name: "Beta", Type: "organization"},
		},
	}

	bd := Score(a, b, 0.5, DefaultWeights(), Limits{})
	threshold := ThresholdFor(bd.Method, 0.85)
	if bd.Overall >= threshold {
		t.Errorf("follow-up overall = %.3f clears %s threshold %.2f; should not", bd.Overall, bd.Method, threshold)
	}
}

func TestScoreNeverNaN(t *testing.T) {
	now := time.Now()
	empty := &storage.Article{PublishedAt: now}
	full := &storage.Article{
		Title: "Something", Content: "Body text here", Source: "W",
		Category: "business", PublishedAt: now,
	}
	for _, pair := range [][2]*storage.Article{{empty, empty}, {empty, full}, {full, empty}} {
		bd := Score(pair[0], pair[1], 0, DefaultWeights(), Limits{})
		if bd.Overall != bd.Overall {
			t.Fatal("overall is NaN")
		}
	}
}

func TestThresholdFor(t *testing.T) {
	if got := ThresholdFor(MethodContentHash, 0.85); got != 1.0 {
		t.Errorf("hash threshold = %v", got)
	}
	if got := ThresholdFor(MethodTitle, 0.85); got != 0.9 {
		t.Errorf("title threshold = %v", got)
	}
	if got := ThresholdFor(MethodSemantic, 0.85); got != 0.85 {
		t.Errorf("semantic threshold = %v", got)
	}
	if got := ThresholdFor(MethodEntity, 0.85); got != 0.8 {
		t.Errorf("entity threshold = %v", got)
	}
	if got := ThresholdFor(MethodContent, 0.7); got != 0.7 {
		t.Errorf("content threshold should be the configured one, got %v", got)
	}
}
