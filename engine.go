package newsdedup

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/aakash-priyadarshi/news-duplication-system/internal/alerts"
	"github.com/aakash-priyadarshi/news-duplication-system/internal/config"
	"github.com/aakash-priyadarshi/news-duplication-system/internal/dedup"
	"github.com/aakash-priyadarshi/news-duplication-system/internal/embedproc"
	"github.com/aakash-priyadarshi/news-duplication-system/internal/feeds"
	"github.com/aakash-priyadarshi/news-duplication-system/internal/normalize"
	"github.com/aakash-priyadarshi/news-duplication-system/internal/storage"
)

// Engine is the public API for the dedup pipeline. It wires the feed
// fetcher, normalizer, scoring engine, embedding adapter, and alert
// dispatcher around one shared store.
type Engine struct {
	store      *storage.SQLiteStore
	cfg        *config.Config
	settings   config.FetchSettings
	fetcher    *feeds.Fetcher
	normalizer *normalize.Normalizer
	dedup      *dedup.Engine
	dispatcher *alerts.Dispatcher

	exactDuplicates atomic.Int64
}

// NewEngine creates an engine from the loaded configuration. The Ollama
// adapter is created eagerly but only contacted when articles are scored.
func NewEngine(cfg *config.Config, settings config.FetchSettings) (*Engine, error) {
	if settings == (config.FetchSettings{}) {
		settings = config.DefaultFetchSettings()
	}

	store, err := storage.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	adapter, err := embedproc.NewAdapter(
		cfg.Ollama.BaseURL, cfg.Ollama.EmbeddingModel, cfg.Ollama.ValidationModel,
		cfg.Dedup.VectorDimension, cfg.Dedup.EmbedCacheSize, store,
	)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create embedding adapter: %w", err)
	}

	var extractor *feeds.Extractor
	if cfg.Fetch.ExtractFullContent {
		extractor = feeds.NewExtractor(nil)
	}

	engine := &Engine{
		store:      store,
		cfg:        cfg,
		settings:   settings,
		fetcher:    feeds.NewFetcher(store, settings, cfg.Fetch.MaxConcurrentFeeds, extractor),
		normalizer: normalize.NewNormalizer(store, cfg.Dedup.HashAlgorithm, 20),
		dedup: dedup.NewEngine(store, adapter, dedup.Options{
			SimilarityThreshold: cfg.Dedup.SimilarityThreshold,
			TimeWindow:          time.Duration(cfg.Dedup.TimeWindowHours) * time.Hour,
			Weights: dedup.Weights{
				Title:   cfg.Dedup.TitleWeight,
				Content: cfg.Dedup.ContentWeight,
				Entity:  cfg.Dedup.EntityWeight,
			},
			Limits: dedup.Limits{
				MaxVocabularySize: cfg.Dedup.MaxVocabularySize,
				MaxDocTokens:      cfg.Dedup.MaxDocTokens,
			},
			BatchSize:     cfg.Dedup.BatchSize,
			MaxCandidates: cfg.Dedup.MaxCandidates,
			LLMValidation: cfg.Dedup.LLMValidation,
		}),
		dispatcher: alerts.NewDispatcher(store, alerts.Options{
			Cooldown:       time.Duration(cfg.Alerts.CooldownMinutes) * time.Minute,
			MaxPerHour:     cfg.Alerts.MaxPerHour,
			TrustedSources: cfg.Alerts.TrustedSources,
		}, buildChannels(cfg)...),
	}
	return engine, nil
}

// buildChannels constructs the delivery channels the configuration enables.
func buildChannels(cfg *config.Config) []alerts.Channel {
	var channels []alerts.Channel
	if cfg.Alerts.WebhookEnabled {
		channels = append(channels, alerts.NewWebhookChannel(cfg.Alerts.WebhookURL, &http.Client{}))
	}
	if cfg.Alerts.SlackEnabled {
		channels = append(channels, alerts.NewSlackChannel(cfg.Alerts.SlackWebhookURL, cfg.Alerts.SlackChannel, &http.Client{}))
	}
	if cfg.Alerts.EmailEnabled {
		channels = append(channels, alerts.NewEmailChannel(
			cfg.Alerts.SMTPHost, cfg.Alerts.SMTPPort,
			cfg.Alerts.SMTPUser, cfg.Alerts.SMTPPassword,
			cfg.Alerts.EmailFrom, cfg.Alerts.EmailTo,
		))
	}
	return channels
}

// RunFetchCycle fetches every enabled feed, normalizes the items, and
// enqueues fresh articles for dedup checking.
func (e *Engine) RunFetchCycle(ctx context.Context) (*FetchResult, error) {
	stats, err := e.fetcher.FetchAll(ctx, e.ingestItems)
	if err != nil {
		return nil, err
	}
	result := &FetchResult{
		FeedsTotal:       stats.FeedsTotal,
		FeedsDownloaded:  stats.FeedsDownloaded,
		FeedsNotModified: stats.FeedsNotModified,
		FeedsErrored:     stats.FeedsErrored,
		NewArticles:      stats.NewArticles,
		ExactDuplicates:  int(e.exactDuplicates.Swap(0)),
		DurationMs:       stats.Duration.Milliseconds(),
	}
	return result, nil
}

// ingestItems is the fetcher's per-feed handler: normalize each item in
// feed order and hand new articles to the dedup queue. Item-level failures
// are contained; the rest of the feed still processes.
func (e *Engine) ingestItems(ctx context.Context, feed storage.Feed, items []feeds.Item) (int, error) {
	stored := 0
	for _, item := range items {
		result, err := e.normalizer.Process(normalize.RawItem{
			Title:        item.Title,
			URL:          item.Link,
			GUID:         item.GUID,
			Summary:      item.Description,
			Content:      item.Content,
			Author:       item.Author,
			ImageURL:     item.ImageURL,
			PublishedRaw: item.PublishedRaw,
			Published:    item.Published,
		}, feed)
		if err != nil {
			log.Printf("engine: normalize item %q from %s: %v", item.Title, feed.Name, err)
			continue
		}
		if result.ExactDuplicate {
			e.exactDuplicates.Add(1)
			stored++
			continue
		}
		if result.Emit {
			stored++
			// Article is persisted before the event is enqueued, so the
			// dedup engine's store queries always see it.
			e.dedup.Enqueue(ctx, result.Article.ID)
		}
	}
	return stored, nil
}

// RunDedupBatch scores one batch of unchecked articles and dispatches
// alerts for the elected originals.
func (e *Engine) RunDedupBatch(ctx context.Context) (*DedupResult, error) {
	verdicts, err := e.dedup.ProcessBatch(ctx)
	if err != nil {
		return nil, err
	}

	result := &DedupResult{Processed: len(verdicts)}
	for _, v := range verdicts {
		if v.IsDuplicate {
			result.Duplicates++
			continue
		}
		result.Uniques++
		if !v.UniqueDetected {
			continue
		}
		article, err := e.store.GetArticle(v.ArticleID)
		if err != nil {
			log.Printf("engine: load article %d for alerting: %v", v.ArticleID, err)
			continue
		}
		alert, reason, err := e.dispatcher.ProcessArticle(ctx, article)
		if err != nil {
			log.Printf("engine: dispatch alert for article %d: %v", v.ArticleID, err)
			continue
		}
		if alert != nil {
			result.AlertsCreated++
		} else if reason != "" {
			result.AlertsFiltered++
		}
	}
	return result, nil
}

// DrainDedup runs dedup batches until no unchecked articles remain.
func (e *Engine) DrainDedup(ctx context.Context) (*DedupResult, error) {
	total := &DedupResult{}
	for {
		batch, err := e.RunDedupBatch(ctx)
		if err != nil {
			return total, err
		}
		if batch.Processed == 0 {
			return total, nil
		}
		total.Processed += batch.Processed
		total.Duplicates += batch.Duplicates
		total.Uniques += batch.Uniques
		total.AlertsCreated += batch.AlertsCreated
		total.AlertsFiltered += batch.AlertsFiltered
	}
}

// RunMaintenance performs the hourly housekeeping pass: offline cluster
// merging, cooldown GC, and retention pruning.
func (e *Engine) RunMaintenance() error {
	merges, err := e.dedup.MergeAdjacentClusters(500)
	if err != nil {
		return fmt.Errorf("merge clusters: %w", err)
	}
	if merges > 0 {
		log.Printf("engine: maintenance merged %d cluster(s)", merges)
	}

	e.dispatcher.GCCooldowns()

	if err := e.store.PruneExpired(storage.RetentionPolicy{
		ArticleDays:   e.cfg.Retention.ArticleDays,
		ClusterDays:   e.cfg.Retention.ClusterDays,
		EmbeddingDays: e.cfg.Retention.EmbeddingDays,
		AlertDays:     e.cfg.Retention.AlertDays,
	}); err != nil {
		return fmt.Errorf("prune expired: %w", err)
	}
	return nil
}

// NewScheduler builds the timed fetch loop for this engine: each tick runs
// a fetch cycle followed by a full dedup drain.
func (e *Engine) NewScheduler() *feeds.Scheduler {
	interval := time.Duration(e.settings.RefreshIntervalMinutes) * time.Minute
	return feeds.NewScheduler(interval, func(ctx context.Context) (*feeds.CycleStats, error) {
		stats, err := e.fetcher.FetchAll(ctx, e.ingestItems)
		if err != nil {
			return nil, err
		}
		if _, err := e.DrainDedup(ctx); err != nil {
			log.Printf("engine: dedup drain: %v", err)
		}
		return stats, nil
	}, e.store)
}

// ImportFeeds loads a TOML feed roster and upserts every entry.
func (e *Engine) ImportFeeds(path string) (int, error) {
	doc, err := config.LoadFeeds(path)
	if err != nil {
		return 0, err
	}
	for _, entry := range doc.Feeds {
		feed := &storage.Feed{
			FeedKey:  entry.ID,
			Name:     entry.Name,
			URL:      entry.URL,
			Category: entry.Category,
			Priority: entry.Priority,
			Enabled:  entry.Enabled,
			Tags:     entry.Tags,
		}
		if feed.FeedKey == "" {
			feed.FeedKey = entry.URL
		}
		if feed.Name == "" {
			feed.Name = entry.URL
		}
		if feed.Category == "" {
			feed.Category = "general"
		}
		if feed.Priority == "" {
			feed.Priority = "medium"
		}
		if _, err := e.store.UpsertFeed(feed); err != nil {
			return 0, fmt.Errorf("import feed %s: %w", entry.URL, err)
		}
	}
	return len(doc.Feeds), nil
}

// --- read/admin surface ---

// ListFeeds returns the full feed roster with runtime counters.
func (e *Engine) ListFeeds() ([]Feed, error) {
	internal, err := e.store.ListFeeds()
	if err != nil {
		return nil, err
	}
	return feedsFromInternal(internal), nil
}

// SetFeedEnabled toggles a feed.
func (e *Engine) SetFeedEnabled(feedID int64, enabled bool) error {
	return e.store.SetFeedEnabled(feedID, enabled)
}

// DeleteFeed removes a feed from the roster.
func (e *Engine) DeleteFeed(feedID int64) error {
	return e.store.DeleteFeed(feedID)
}

// GetArticle returns a single article by ID.
func (e *Engine) GetArticle(articleID int64) (*Article, error) {
	a, err := e.store.GetArticle(articleID)
	if err != nil {
		return nil, err
	}
	result := articleFromInternal(*a)
	return &result, nil
}

// ListArticles returns recent articles for the admin surface.
func (e *Engine) ListArticles(limit, offset int) ([]Article, error) {
	internal, err := e.store.ListRecentArticles(limit, offset)
	if err != nil {
		return nil, err
	}
	return articlesFromInternal(internal), nil
}

// SearchArticles runs the full-text index over titles, bodies, summaries,
// and entity names.
func (e *Engine) SearchArticles(query string, limit int) ([]Article, error) {
	internal, err := e.store.SearchArticles(query, limit)
	if err != nil {
		return nil, err
	}
	return articlesFromInternal(internal), nil
}

// ListDuplicates returns recorded duplicate links, newest first.
func (e *Engine) ListDuplicates(limit, offset int) ([]DuplicateLink, error) {
	internal, err := e.store.ListDuplicates(limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]DuplicateLink, len(internal))
	for i, l := range internal {
		out[i] = DuplicateLink{
			ID:                 l.ID,
			OriginalArticleID:  l.OriginalArticleID,
			DuplicateArticleID: l.DuplicateArticleID,
			SimilarityScore:    l.SimilarityScore,
			DetectionMethod:    l.DetectionMethod,
			Breakdown:          l.Breakdown,
			OriginalTitle:      l.OriginalTitle,
			DuplicateTitle:     l.DuplicateTitle,
			OriginalSource:     l.OriginalSource,
			DuplicateSource:    l.DuplicateSource,
			TimeDiffSeconds:    l.TimeDiffSeconds,
			CreatedAt:          l.CreatedAt,
		}
	}
	return out, nil
}

// ListClusters returns story clusters, most recently updated first.
func (e *Engine) ListClusters(limit, offset int) ([]Cluster, error) {
	internal, err := e.store.ListClusters(limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]Cluster, len(internal))
	for i, c := range internal {
		out[i] = Cluster{
			ID:              c.ID,
			Category:        c.Category,
			Tags:            c.Tags,
			Sources:         c.Sources,
			AvgWordCount:    c.AvgWordCount,
			AvgEntityCount:  c.AvgEntityCount,
			MeanPublishedAt: c.MeanPublishedAt,
			CreatedAt:       c.CreatedAt,
			UpdatedAt:       c.UpdatedAt,
			ArticleIDs:      c.ArticleIDs,
		}
	}
	return out, nil
}

// GetClusterArticles returns the articles in one cluster, oldest first.
func (e *Engine) GetClusterArticles(clusterID int64) ([]Article, error) {
	internal, err := e.store.GetClusterArticles(clusterID)
	if err != nil {
		return nil, err
	}
	return articlesFromInternal(internal), nil
}

// ListAlerts returns alerts newest-first with per-channel results.
func (e *Engine) ListAlerts(limit, offset int) ([]Alert, error) {
	internal, err := e.store.ListRecentAlerts(limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]Alert, len(internal))
	for i := range internal {
		out[i] = alertFromInternal(&internal[i])
	}
	return out, nil
}

// ResendAlert re-dispatches a failed or partially failed alert to its
// unsuccessful channels. Operator-initiated.
func (e *Engine) ResendAlert(ctx context.Context, alertID int64) (*Alert, error) {
	updated, err := e.dispatcher.Resend(ctx, alertID)
	if err != nil {
		return nil, err
	}
	result := alertFromInternal(updated)
	return &result, nil
}

// Stats returns the pipeline health snapshot.
func (e *Engine) Stats() (*PipelineStats, error) {
	feedList, err := e.store.ListFeeds()
	if err != nil {
		return nil, err
	}
	dupCount, err := e.store.CountDuplicates()
	if err != nil {
		return nil, err
	}
	return &PipelineStats{
		Feeds:          len(feedList),
		Duplicates:     dupCount,
		FilteredAlerts: e.dispatcher.FilteredCount(),
		DedupErrors:    e.dedup.ErrorCount(),
	}, nil
}

// Close releases all resources held by the engine.
func (e *Engine) Close() error {
	return e.store.Close()
}

// --- internal type conversion helpers ---

func entitiesFromInternal(ee []storage.Entity) []Entity {
	if len(ee) == 0 {
		return nil
	}
	out := make([]Entity, len(ee))
	for i, e := range ee {
		out[i] = Entity{Name: e.Name, Type: e.Type, Confidence: e.Confidence}
	}
	return out
}

func articleFromInternal(a storage.Article) Article {
	return Article{
		ID:                a.ID,
		URL:               a.URL,
		ContentHash:       a.ContentHash,
		Title:             a.Title,
		Summary:           a.Summary,
		Content:           a.Content,
		Source:            a.Source,
		SourceID:          a.SourceID,
		Category:          a.Category,
		Tags:              a.Tags,
		Priority:          a.Priority,
		PublishedAt:       a.PublishedAt,
		FetchedAt:         a.FetchedAt,
		Author:            a.Author,
		ImageURL:          a.ImageURL,
		Language:          a.Language,
		Entities:          entitiesFromInternal(a.Entities),
		DuplicateChecked:  a.DuplicateChecked,
		IsDuplicate:       a.IsDuplicate,
		OriginalArticleID: a.OriginalArticleID,
		ProcessedAt:       a.ProcessedAt,
		AlertSent:         a.AlertSent,
	}
}

func articlesFromInternal(articles []storage.Article) []Article {
	out := make([]Article, len(articles))
	for i, a := range articles {
		out[i] = articleFromInternal(a)
	}
	return out
}

func feedFromInternal(f storage.Feed) Feed {
	return Feed{
		ID:                f.ID,
		FeedKey:           f.FeedKey,
		Name:              f.Name,
		URL:               f.URL,
		Category:          f.Category,
		Priority:          f.Priority,
		Enabled:           f.Enabled,
		Tags:              f.Tags,
		LastFetched:       f.LastFetched,
		LastError:         f.LastError,
		ArticlesProcessed: f.ArticlesProcessed,
		ErrorCount:        f.ErrorCount,
		CreatedAt:         f.CreatedAt,
	}
}

func feedsFromInternal(ff []storage.Feed) []Feed {
	out := make([]Feed, len(ff))
	for i, f := range ff {
		out[i] = feedFromInternal(f)
	}
	return out
}

func alertFromInternal(a *storage.Alert) Alert {
	out := Alert{
		ID:          a.ID,
		ArticleID:   a.ArticleID,
		Title:       a.Title,
		Summary:     a.Summary,
		Source:      a.Source,
		Category:    a.Category,
		Priority:    a.Priority,
		URL:         a.URL,
		PublishedAt: a.PublishedAt,
		Entities:    entitiesFromInternal(a.Entities),
		Tags:        a.Tags,
		Channels:    a.Channels,
		Status:      a.Status,
		CreatedAt:   a.CreatedAt,
		SentAt:      a.SentAt,
		ResendCount: a.ResendCount,
	}
	for _, r := range a.Results {
		out.Results = append(out.Results, ChannelResult{
			Channel:    r.Channel,
			Success:    r.Success,
			StatusCode: r.StatusCode,
			Error:      r.Error,
		})
	}
	return out
}
