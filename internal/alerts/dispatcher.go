package alerts

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aakash-priyadarshi/news-duplication-system/internal/normalize"
	"github.com/aakash-priyadarshi/news-duplication-system/internal/storage"
)

const (
	channelTimeout  = 10 * time.Second
	qualityMinScore = 3
)

var (
	breakingKeywords = []string{"breaking", "urgent", "alert", "developing"}
	businessKeywords = []string{"merger", "acquisition", "ipo", "bankruptcy", "ceo", "funding"}
	millionRe        = regexp.MustCompile(`\$\d+\s*million`)
)

// priorityCategories earn quality points and can upgrade priority.
var priorityCategories = map[string]bool{
	"business": true, "technology": true, "breaking": true,
}

// Options configure the dispatcher's admission gate.
type Options struct {
	Cooldown       time.Duration
	MaxPerHour     int
	TrustedSources []string
}

// Dispatcher turns unique-article events into delivered alerts. Admission
// runs rate limit, cooldown, and quality checks; admitted alerts fan out to
// the enabled channels with per-channel result tracking.
type Dispatcher struct {
	store    storage.Store
	opts     Options
	channels []Channel

	mu       sync.Mutex
	cooldown map[string]time.Time
	filtered int64
}

// NewDispatcher creates a dispatcher delivering through the given channels.
func NewDispatcher(store storage.Store, opts Options, channels ...Channel) *Dispatcher {
	if opts.MaxPerHour <= 0 {
		opts.MaxPerHour = 20
	}
	if opts.Cooldown == 0 {
		opts.Cooldown = 5 * time.Minute
	}
	return &Dispatcher{
		store:    store,
		opts:     opts,
		channels: channels,
		cooldown: make(map[string]time.Time),
	}
}

// ProcessArticle runs the admission gate for an elected original and, when
// admitted, creates and dispatches the alert. Returns the alert (nil when
// filtered) and the rejection reason.
func (d *Dispatcher) ProcessArticle(ctx context.Context, article *storage.Article) (*storage.Alert, string, error) {
	if reason := d.admit(article); reason != "" {
		d.mu.Lock()
		d.filtered++
		d.mu.Unlock()
		d.store.AddMetric("filtered_alerts", 1, map[string]string{"reason": reason})
		return nil, reason, nil
	}

	priority := CalculatePriority(article)
	channels := d.selectChannels(priority, article.Category)

	alert := &storage.Alert{
		ArticleID:   article.ID,
		Title:       article.Title,
		Summary:     article.Summary,
		Source:      article.Source,
		Category:    article.Category,
		Priority:    priority,
		URL:         article.URL,
		PublishedAt: article.PublishedAt,
		Entities:    article.Entities,
		Tags:        article.Tags,
		Channels:    channels,
		Status:      "pending",
	}
	if _, err := d.store.AddAlert(alert); err != nil {
		return nil, "", fmt.Errorf("persist alert: %w", err)
	}
	alert.CreatedAt = time.Now()

	d.mu.Lock()
	d.cooldown[cooldownKey(article.Source, article.Title)] = time.Now()
	d.mu.Unlock()

	if err := d.Dispatch(ctx, alert); err != nil {
		return alert, "", err
	}
	return alert, "", nil
}

// admit returns an empty string to admit, or the rejection reason.
func (d *Dispatcher) admit(article *storage.Article) string {
	count, err := d.store.CountAlertsSince(time.Now().Add(-time.Hour))
	if err != nil {
		log.Printf("alerts: rate-limit count failed, rejecting conservatively: %v", err)
		return "rate_limit_unavailable"
	}
	if count >= d.opts.MaxPerHour {
		return "rate_limit"
	}

	d.mu.Lock()
	last, seen := d.cooldown[cooldownKey(article.Source, article.Title)]
	d.mu.Unlock()
	if seen && time.Since(last) < d.opts.Cooldown {
		return "cooldown"
	}

	if QualityScore(article, d.opts.TrustedSources) < qualityMinScore {
		return "quality"
	}
	return ""
}

// QualityScore rates an article's alert-worthiness: substantial content,
// extracted entities, a priority category, a trusted source, and freshness
// each add points.
func QualityScore(article *storage.Article, trustedSources []string) int {
	score := 0
	switch {
	case len(article.Content) >= 500:
		score += 2
	case len(article.Content) >= 200:
		score++
	}
	if len(article.Entities) > 0 {
		score++
	}
	if priorityCategories[strings.ToLower(article.Category)] {
		score += 2
	}
	for _, trusted := range trustedSources {
		if strings.EqualFold(article.Source, trusted) {
			score++
			break
		}
	}
	if time.Since(article.PublishedAt) < 2*time.Hour {
		score++
	}
	return score
}

// CalculatePriority derives the alert priority from keywords, monetary
// magnitude, and category.
func CalculatePriority(article *storage.Article) string {
	title := strings.ToLower(article.Title)
	content := strings.ToLower(article.Content)
	category := strings.ToLower(article.Category)

	if category == "entertainment" {
		return "low"
	}
	if category == "breaking" {
		return "high"
	}
	for _, kw := range breakingKeywords {
		if strings.Contains(title, kw) {
			return "high"
		}
	}
	for _, kw := range businessKeywords {
		if strings.Contains(title, kw) {
			return "high"
		}
	}
	if strings.Contains(content, "billion") || millionRe.MatchString(content) {
		return "high"
	}
	return "medium"
}

// selectChannels picks delivery channels by priority and category from the
// channels actually configured.
func (d *Dispatcher) selectChannels(priority, category string) []string {
	var selected []string
	for _, ch := range d.channels {
		switch ch.Name() {
		case "webhook":
			selected = append(selected, ch.Name())
		case "email":
			if priority == "high" {
				selected = append(selected, ch.Name())
			}
		case "slack":
			cat := strings.ToLower(category)
			if cat == "business" || cat == "technology" {
				selected = append(selected, ch.Name())
			}
		}
	}
	return selected
}

// Dispatch delivers a pending alert to its selected channels, records each
// result, and settles the final status: sent when at least one channel
// succeeded, failed otherwise.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *storage.Alert) error {
	selected := make(map[string]bool, len(alert.Channels))
	for _, name := range alert.Channels {
		selected[name] = true
	}

	anySuccess := false
	for _, ch := range d.channels {
		if !selected[ch.Name()] {
			continue
		}
		chCtx, cancel := context.WithTimeout(ctx, channelTimeout)
		result := ch.Send(chCtx, alert)
		cancel()

		if err := d.store.AddAlertResult(alert.ID, result); err != nil {
			log.Printf("alerts: record %s result for alert %d: %v", ch.Name(), alert.ID, err)
		}
		alert.Results = append(alert.Results, result)
		if result.Success {
			anySuccess = true
		}
	}

	status := "failed"
	if anySuccess {
		status = "sent"
	}
	sentAt := time.Now()
	if err := d.store.UpdateAlertStatus(alert.ID, status, &sentAt); err != nil {
		return fmt.Errorf("settle alert status: %w", err)
	}
	alert.Status = status
	alert.SentAt = &sentAt

	if anySuccess {
		if err := d.store.MarkAlertSent(alert.ArticleID); err != nil {
			log.Printf("alerts: mark article %d alerted: %v", alert.ArticleID, err)
		}
	}
	return nil
}

// Resend re-delivers a previously failed or partially failed alert to the
// channels that did not succeed. Operator-initiated; bumps resend_count.
func (d *Dispatcher) Resend(ctx context.Context, alertID int64) (*storage.Alert, error) {
	alert, err := d.store.GetAlert(alertID)
	if err != nil {
		return nil, fmt.Errorf("load alert: %w", err)
	}

	succeeded := make(map[string]bool)
	for _, r := range alert.Results {
		if r.Success {
			succeeded[r.Channel] = true
		}
	}
	var retry []string
	for _, name := range alert.Channels {
		if !succeeded[name] {
			retry = append(retry, name)
		}
	}
	if len(retry) == 0 {
		return alert, nil
	}

	if err := d.store.IncrementAlertResend(alertID); err != nil {
		return nil, err
	}

	resend := *alert
	resend.Channels = retry
	resend.Results = nil
	if err := d.Dispatch(ctx, &resend); err != nil {
		return nil, err
	}
	// A channel that succeeded earlier keeps the alert sent even when every
	// retried channel fails again.
	if resend.Status != "sent" && len(succeeded) > 0 {
		if err := d.store.UpdateAlertStatus(alertID, "sent", alert.SentAt); err != nil {
			return nil, fmt.Errorf("settle alert status: %w", err)
		}
	}
	return d.store.GetAlert(alertID)
}

// GCCooldowns drops cooldown entries old enough to be irrelevant. Run
// periodically so the index does not grow without bound.
func (d *Dispatcher) GCCooldowns() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := time.Now().Add(-time.Hour)
	removed := 0
	for key, at := range d.cooldown {
		if at.Before(cutoff) {
			delete(d.cooldown, key)
			removed++
		}
	}
	return removed
}

// FilteredCount returns how many articles the admission gate rejected.
func (d *Dispatcher) FilteredCount() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filtered
}

// cooldownKey is the coarse similarity key for the cooldown index: the
// source plus the top three normalized title words of length four or more.
func cooldownKey(source, title string) string {
	words := strings.Fields(normalize.NormalizeForHash(title))
	var top []string
	for _, w := range words {
		if len([]rune(w)) >= 4 {
			top = append(top, w)
			if len(top) == 3 {
				break
			}
		}
	}
	sort.Strings(top)
	return source + "|" + strings.Join(top, " ")
}
