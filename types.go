package newsdedup

import "time"

// Entity is a named entity extracted from an article.
type Entity struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Article is an ingested, normalized news item.
type Article struct {
	ID                int64      `json:"id"`
	URL               string     `json:"url"`
	ContentHash       string     `json:"content_hash"`
	Title             string     `json:"title"`
	Summary           string     `json:"summary,omitempty"`
	Content           string     `json:"content,omitempty"`
	Source            string     `json:"source"`
	SourceID          string     `json:"source_id,omitempty"`
	Category          string     `json:"category"`
	Tags              []string   `json:"tags,omitempty"`
	Priority          string     `json:"priority"`
	PublishedAt       time.Time  `json:"published_at"`
	FetchedAt         time.Time  `json:"fetched_at"`
	Author            string     `json:"author,omitempty"`
	ImageURL          string     `json:"image_url,omitempty"`
	Language          string     `json:"language,omitempty"`
	Entities          []Entity   `json:"entities,omitempty"`
	DuplicateChecked  bool       `json:"duplicate_checked"`
	IsDuplicate       bool       `json:"is_duplicate"`
	OriginalArticleID *int64     `json:"original_article_id,omitempty"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
	AlertSent         bool       `json:"alert_sent"`
}

// DuplicateLink is a directed edge from a duplicate article to its elected
// original, with the per-signal score breakdown that justified it.
type DuplicateLink struct {
	ID                 int64              `json:"id"`
	OriginalArticleID  int64              `json:"original_article_id"`
	DuplicateArticleID int64              `json:"duplicate_article_id"`
	SimilarityScore    float64            `json:"similarity_score"`
	DetectionMethod    string             `json:"detection_method"`
	Breakdown          map[string]float64 `json:"similarity_breakdown,omitempty"`
	OriginalTitle      string             `json:"original_title,omitempty"`
	DuplicateTitle     string             `json:"duplicate_title,omitempty"`
	OriginalSource     string             `json:"original_source,omitempty"`
	DuplicateSource    string             `json:"duplicate_source,omitempty"`
	TimeDiffSeconds    int64              `json:"time_diff_seconds"`
	CreatedAt          time.Time          `json:"created_at"`
}

// Cluster is a set of articles judged to cover one story.
type Cluster struct {
	ID              int64      `json:"id"`
	Category        string     `json:"category"`
	Tags            []string   `json:"tags,omitempty"`
	Sources         []string   `json:"sources,omitempty"`
	AvgWordCount    float64    `json:"avg_word_count"`
	AvgEntityCount  float64    `json:"avg_entity_count"`
	MeanPublishedAt *time.Time `json:"mean_published_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ArticleIDs      []int64    `json:"article_ids"`
}

// ChannelResult is the delivery outcome for one alert channel.
type ChannelResult struct {
	Channel    string `json:"channel"`
	Success    bool   `json:"success"`
	StatusCode *int   `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Alert is a queued or delivered notification for an elected original.
type Alert struct {
	ID          int64           `json:"id"`
	ArticleID   int64           `json:"article_id"`
	Title       string          `json:"title"`
	Summary     string          `json:"summary,omitempty"`
	Source      string          `json:"source"`
	Category    string          `json:"category"`
	Priority    string          `json:"priority"`
	URL         string          `json:"url"`
	PublishedAt time.Time       `json:"published_at"`
	Entities    []Entity        `json:"entities,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Channels    []string        `json:"channels"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	SentAt      *time.Time      `json:"sent_at,omitempty"`
	ResendCount int             `json:"resend_count"`
	Results     []ChannelResult `json:"results,omitempty"`
}

// Feed is an RSS/Atom source with its runtime counters.
type Feed struct {
	ID                int64      `json:"id"`
	FeedKey           string     `json:"feed_key"`
	Name              string     `json:"name"`
	URL               string     `json:"url"`
	Category          string     `json:"category"`
	Priority          string     `json:"priority"`
	Enabled           bool       `json:"enabled"`
	Tags              []string   `json:"tags,omitempty"`
	LastFetched       *time.Time `json:"last_fetched,omitempty"`
	LastError         *string    `json:"last_error,omitempty"`
	ArticlesProcessed int        `json:"articles_processed"`
	ErrorCount        int        `json:"error_count"`
	CreatedAt         time.Time  `json:"created_at"`
}

// FetchResult summarizes one feed polling cycle.
type FetchResult struct {
	FeedsTotal       int   `json:"feeds_total"`
	FeedsDownloaded  int   `json:"feeds_downloaded"`
	FeedsNotModified int   `json:"feeds_not_modified"`
	FeedsErrored     int   `json:"feeds_errored"`
	NewArticles      int   `json:"new_articles"`
	ExactDuplicates  int   `json:"exact_duplicates"`
	DurationMs       int64 `json:"duration_ms"`
}

// DedupResult summarizes one dedup batch plus the alert dispatch it
// triggered for elected originals.
type DedupResult struct {
	Processed      int `json:"processed"`
	Duplicates     int `json:"duplicates"`
	Uniques        int `json:"uniques"`
	AlertsCreated  int `json:"alerts_created"`
	AlertsFiltered int `json:"alerts_filtered"`
}

// PipelineStats is the health snapshot exposed over the admin surface.
type PipelineStats struct {
	Feeds          int   `json:"feeds"`
	Duplicates     int   `json:"duplicates"`
	FilteredAlerts int64 `json:"filtered_alerts"`
	DedupErrors    int64 `json:"dedup_errors"`
	SkippedTicks   int64 `json:"skipped_ticks"`
}
