package alerts

import (
	"context"
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

// stubChannel records sends and returns a scripted result.
type stubChannel struct {
	name    string
	success bool
	code    int
	sends   int
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Send(_ context.Context, _ *storage.Alert) storage.ChannelResult {
	s.sends++
	result := storage.ChannelResult{Channel: s.name, Success: s.success}
	if s.code != 0 {
		code := s.code
		result.StatusCode = &code
	}
	if !s.success {
		result.Error = "delivery failed"
	}
	return result
}

func qualityArticle(t *testing.T, store storage.Store, url string) *storage.Article {
	t.Helper()
	a := &storage.Article{
		URL:         url,
		ContentHash: url, // unique per test article
		Title:       "Acme merger reshapes widget industry",
		Summary:     "A large deal",
		Content:     makeContent(600),
		Source:      "Test Wire",
		Category:    "business",
		Tags:        []string{"markets"},
		Priority:    "medium",
		PublishedAt: time.Now().Add(-30 * time.Minute),
		FetchedAt:   time.Now(),
		Entities:    []storage.Entity{{Name: "Acme", Type: "organization", Confidence: 0.8}},
	}
	if _, err := store.AddArticle(a); err != nil {
		t.Fatalf("AddArticle failed: %v", err)
	}
	return a
}

func makeContent(n int) string {
	s := make([]byte, n)
	for i := range s {
		if i%6 == 5 {
			s[i] = ' '
		} else {
			s[i] = 'x'
		}
	}
	return string(s)
}

func TestProcessArticleAdmitsAndDispatches(t *testing.T) {
	store := newTestStore(t)
	webhook := &stubChannel{name: "webhook", success: true, code: 200}
	d := NewDispatcher(store, Options{MaxPerHour: 20, Cooldown: 5 * time.Minute}, webhook)

	article := qualityArticle(t, store, "https://example.com/1")
	alert, reason, err := d.ProcessArticle(context.Background(), article)
	if err != nil {
		t.Fatalf("ProcessArticle failed: %v", err)
	}
	if reason != "" {
		t.Fatalf("unexpected rejection: %s", reason)
	}
	if alert == nil {
		t.Fatal("expected an alert")
	}
	if alert.Status != "sent" {
		t.Errorf("status = %q, want sent", alert.Status)
	}
	if webhook.sends != 1 {
		t.Errorf("webhook sends = %d, want 1", webhook.sends)
	}

	stored, _ := store.GetAlert(alert.ID)
	if stored.Status != "sent" {
		t.Errorf("stored status = %q, want sent", stored.Status)
	}
	if stored.SentAt == nil {
		t.Error("sent_at should be set")
	}
	if len(stored.Results) != 1 || !stored.Results[0].Success {
		t.Errorf("results = %+v", stored.Results)
	}

	a, _ := store.GetArticleByURL(article.URL)
	if !a.AlertSent {
		t.Error("article alert_sent should be set")
	}
}

func TestRateLimit(t *testing.T) {
	store := newTestStore(t)
	webhook := &stubChannel{name: "webhook", success: true}
	d := NewDispatcher(store, Options{MaxPerHour: 2, Cooldown: time.Minute}, webhook)

	titles := []string{
		"Acme merger reshapes widget industry",
		"Beta funding round closes at record valuation",
		"Gamma bankruptcy filing stuns suppliers",
	}
	admitted := 0
	for i, title := range titles {
		article := qualityArticle(t, store, "https://example.com/rate-"+title[:4])
		article.Title = title
		// Distinct titles give each article its own cooldown key, so only the
		// hourly cap can reject one
		article.ID = int64(i + 1)
		if alert, _, err := d.ProcessArticle(context.Background(), article); err != nil {
			t.Fatal(err)
		} else if alert != nil {
			admitted++
		}
	}
	if admitted != 2 {
		t.Errorf("admitted = %d, want 2 (third hits the hourly rate limit)", admitted)
	}
	if d.FilteredCount() != 1 {
		t.Errorf("filtered = %d, want 1", d.FilteredCount())
	}
}

func TestCooldownSuppressesSimilarAlerts(t *testing.T) {
	store := newTestStore(t)
	webhook := &stubChannel{name: "webhook", success: true}
	d := NewDispatcher(store, Options{MaxPerHour: 20, Cooldown: 5 * time.Minute}, webhook)

	first := qualityArticle(t, store, "https://example.com/cd-1")
	if alert, _, _ := d.ProcessArticle(context.Background(), first); alert == nil {
		t.Fatal("first article should be admitted")
	}

	// Same source, same leading title words: coarse key collides
	second := qualityArticle(t, store, "https://example.com/cd-2")
	second.Title = "Acme merger reshapes widget prices"
	alert, reason, err := d.ProcessArticle(context.Background(), second)
	if err != nil {
		t.Fatal(err)
	}
	if alert != nil {
		t.Error("similar article inside cooldown should be rejected")
	}
	if reason != "cooldown" {
		t.Errorf("reason = %q, want cooldown", reason)
	}
}

func TestQualityScore(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		article storage.Article
		trusted []string
		want    int
	}{
		{
			name: "long fresh business article with entities",
			article: storage.Article{
				Content: makeContent(600), Category: "business",
				Entities:    []storage.Entity{{Name: "A"}},
				PublishedAt: now,
			},
			want: 6, // 2 content + 1 entities + 2 category + 1 fresh
		},
		{
			name: "short stale uncategorized",
			article: storage.Article{
				Content:     "tiny",
				Category:    "general",
				PublishedAt: now.Add(-5 * time.Hour),
			},
			want: 0,
		},
		{
			name: "medium content trusted source",
			article: storage.Article{
				Content: makeContent(300), Source: "Reuters",
				Category:    "sports",
				PublishedAt: now.Add(-3 * time.Hour),
			},
			trusted: []string{"Reuters"},
			want:    2, // 1 content + 1 trusted
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QualityScore(&tt.article, tt.trusted); got != tt.want {
				t.Errorf("QualityScore = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestQualityGateRejects(t *testing.T) {
	store := newTestStore(t)
	webhook := &stubChannel{name: "webhook", success: true}
	d := NewDispatcher(store, Options{MaxPerHour: 20, Cooldown: time.Minute}, webhook)

	thin := &storage.Article{
		ID: 1, URL: "https://example.com/thin", Title: "Thin item",
		Content: "too short", Source: "Unknown Blog", Category: "general",
		PublishedAt: time.Now().Add(-6 * time.Hour),
	}
	alert, reason, err := d.ProcessArticle(context.Background(), thin)
	if err != nil {
		t.Fatal(err)
	}
	if alert != nil {
		t.Error("thin article should be rejected")
	}
	if reason != "quality" {
		t.Errorf("reason = %q, want quality", reason)
	}
}

func TestCalculatePriority(t *testing.T) {
	tests := []struct {
		name    string
		article storage.Article
		want    string
	}{
		{"default", storage.Article{Title: "Quiet day in markets", Category: "business"}, "medium"},
		{"breaking keyword", storage.Article{Title: "BREAKING: dam fails", Category: "general"}, "high"},
		{"developing keyword", storage.Article{Title: "Developing story in region", Category: "general"}, "high"},
		{"business keyword", storage.Article{Title: "Acme acquisition of Beta", Category: "business"}, "high"},
		{"billion in content", storage.Article{Title: "Deal closes", Content: "valued at $3 billion", Category: "business"}, "high"},
		{"million in content", storage.Article{Title: "Deal closes", Content: "raised $250 million", Category: "business"}, "high"},
		{"breaking category", storage.Article{Title: "Quake hits", Category: "breaking"}, "high"},
		{"entertainment is low", storage.Article{Title: "Urgent casting news", Category: "entertainment"}, "low"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculatePriority(&tt.article); got != tt.want {
				t.Errorf("CalculatePriority = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChannelSelection(t *testing.T) {
	store := newTestStore(t)
	webhook := &stubChannel{name: "webhook", success: true}
	slack := &stubChannel{name: "slack", success: true}
	email := &stubChannel{name: "email", success: true}
	d := NewDispatcher(store, Options{MaxPerHour: 20, Cooldown: time.Minute}, webhook, slack, email)

	tests := []struct {
		priority, category string
		want               []string
	}{
		{"high", "business", []string{"webhook", "slack", "email"}},
		{"medium", "business", []string{"webhook", "slack"}},
		{"medium", "technology", []string{"webhook", "slack"}},
		{"high", "general", []string{"webhook", "email"}},
		{"medium", "sports", []string{"webhook"}},
	}
	for _, tt := range tests {
		got := d.selectChannels(tt.priority, tt.category)
		if len(got) != len(tt.want) {
			t.Errorf("selectChannels(%s, %s) = %v, want %v", tt.priority, tt.category, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("selectChannels(%s, %s) = %v, want %v", tt.priority, tt.category, got, tt.want)
				break
			}
		}
	}
}

func TestPartialChannelFailureIsSent(t *testing.T) {
	store := newTestStore(t)
	webhook := &stubChannel{name: "webhook", success: false, code: 500}
	slack := &stubChannel{name: "slack", success: true, code: 200}
	email := &stubChannel{name: "email", success: false}
	d := NewDispatcher(store, Options{MaxPerHour: 20, Cooldown: time.Minute}, webhook, slack, email)

	article := qualityArticle(t, store, "https://example.com/partial")
	article.Title = "Urgent merger announcement tonight" // high priority, selects email

	alert, reason, err := d.ProcessArticle(context.Background(), article)
	if err != nil {
		t.Fatal(err)
	}
	if reason != "" || alert == nil {
		t.Fatalf("expected admission, got reason %q", reason)
	}
	if alert.Status != "sent" {
		t.Errorf("status = %q, want sent (one channel succeeded)", alert.Status)
	}

	stored, _ := store.GetAlert(alert.ID)
	if len(stored.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(stored.Results))
	}
	byChannel := map[string]bool{}
	for _, r := range stored.Results {
		byChannel[r.Channel] = r.Success
	}
	if byChannel["webhook"] || !byChannel["slack"] || byChannel["email"] {
		t.Errorf("results = %+v", stored.Results)
	}
}

func TestAllChannelsFailedIsFailed(t *testing.T) {
	store := newTestStore(t)
	webhook := &stubChannel{name: "webhook", success: false, code: 503}
	d := NewDispatcher(store, Options{MaxPerHour: 20, Cooldown: time.Minute}, webhook)

	article := qualityArticle(t, store, "https://example.com/fail")
	alert, _, err := d.ProcessArticle(context.Background(), article)
	if err != nil {
		t.Fatal(err)
	}
	if alert.Status != "failed" {
		t.Errorf("status = %q, want failed", alert.Status)
	}

	a, _ := store.GetArticleByURL(article.URL)
	if a.AlertSent {
		t.Error("article alert_sent should stay false when nothing delivered")
	}
}

func TestResendRetriesOnlyFailedChannels(t *testing.T) {
	store := newTestStore(t)
	webhook := &stubChannel{name: "webhook", success: false, code: 500}
	slack := &stubChannel{name: "slack", success: true, code: 200}
	d := NewDispatcher(store, Options{MaxPerHour: 20, Cooldown: time.Minute}, webhook, slack)

	article := qualityArticle(t, store, "https://example.com/resend")
	alert, _, err := d.ProcessArticle(context.Background(), article)
	if err != nil {
		t.Fatal(err)
	}

	// Webhook recovers before the operator resends
	webhook.success = true
	webhook.code = 200

	updated, err := d.Resend(context.Background(), alert.ID)
	if err != nil {
		t.Fatalf("Resend failed: %v", err)
	}
	if updated.ResendCount != 1 {
		t.Errorf("resend_count = %d, want 1", updated.ResendCount)
	}
	if webhook.sends != 2 {
		t.Errorf("webhook sends = %d, want 2", webhook.sends)
	}
	if slack.sends != 1 {
		t.Errorf("slack sends = %d, want 1 (already succeeded, not resent)", slack.sends)
	}
}

func TestGCCooldowns(t *testing.T) {
	store := newTestStore(t)
	d := NewDispatcher(store, Options{MaxPerHour: 20, Cooldown: time.Minute})

	d.mu.Lock()
	d.cooldown["old|key"] = time.Now().Add(-2 * time.Hour)
	d.cooldown["new|key"] = time.Now()
	d.mu.Unlock()

	if removed := d.GCCooldowns(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	d.mu.Lock()
	_, oldThere := d.cooldown["old|key"]
	_, newThere := d.cooldown["new|key"]
	d.mu.Unlock()
	if oldThere || !newThere {
		t.Error("GC kept the wrong entries")
	}
}

func TestCooldownKey(t *testing.T) {
	a := cooldownKey("Wire", "Acme Merger Reshapes Widget Industry Today")
	b := cooldownKey("Wire", "acme MERGER reshapes widgets!!")
	if a[:len("Wire|")] != "Wire|" {
		t.Errorf("key should embed the source: %q", a)
	}
	// Both keys share the top-3 long words acme/merger/reshapes
	if a != b {
		t.Errorf("coarse keys should match: %q vs %q", a, b)
	}

	other := cooldownKey("Other Wire", "Acme Merger Reshapes Widget Industry")
	if a == other {
		t.Error("different sources must not collide")
	}
}
