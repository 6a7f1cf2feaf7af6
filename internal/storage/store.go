package storage

import "time"

// Feed is an RSS/Atom source with its runtime counters.
type Feed struct {
	ID                int64
	FeedKey           string
	Name              string
	URL               string
	Category          string
	Priority          string
	Enabled           bool
	Tags              []string
	LastFetched       *time.Time
	LastError         *string
	LastErrorAt       *time.Time
	ETag              string
	LastModified      string
	ArticlesProcessed int
	ErrorCount        int
	CreatedAt         time.Time
}

// Entity is one extracted named entity with its confidence score.
type Entity struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Article is a normalized, persisted news item.
type Article struct {
	ID                int64
	URL               string
	ContentHash       string
	Title             string
	Summary           string
	Content           string
	Source            string
	SourceID          string
	Category          string
	Tags              []string
	Priority          string
	PublishedAt       time.Time
	FetchedAt         time.Time
	Author            string
	ImageURL          string
	Language          string
	Entities          []Entity
	DuplicateChecked  bool
	IsDuplicate       bool
	OriginalArticleID *int64
	ProcessedAt       *time.Time
	AlertSent         bool
}

// DuplicateLink is a directed edge from a duplicate article to its
// elected original.
type DuplicateLink struct {
	ID                 int64
	OriginalArticleID  int64
	DuplicateArticleID int64
	SimilarityScore    float64
	DetectionMethod    string
	Breakdown          map[string]float64
	OriginalTitle      string
	DuplicateTitle     string
	OriginalSource     string
	DuplicateSource    string
	TimeDiffSeconds    int64
	CreatedAt          time.Time
}

// Cluster is an equivalence class of articles covering one story, with
// aggregate centroid features.
type Cluster struct {
	ID              int64
	Category        string
	Tags            []string
	Sources         []string
	AvgWordCount    float64
	AvgEntityCount  float64
	MeanPublishedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ArticleIDs      []int64
}

// EmbeddingRecord is a persisted dense vector for an article.
type EmbeddingRecord struct {
	ArticleID  int64
	Vector     []byte
	Model      string
	TextLength int
	CreatedAt  time.Time
}

// ChannelResult is the per-channel delivery outcome for an alert.
type ChannelResult struct {
	Channel    string
	Success    bool
	StatusCode *int
	Error      string
	CreatedAt  time.Time
}

// Alert is a queued or delivered notification for an elected original.
type Alert struct {
	ID          int64
	ArticleID   int64
	Title       string
	Summary     string
	Source      string
	Category    string
	Priority    string
	URL         string
	PublishedAt time.Time
	Entities    []Entity
	Tags        []string
	Channels    []string
	Status      string
	CreatedAt   time.Time
	SentAt      *time.Time
	ResendCount int
	Results     []ChannelResult
}

// CandidateFilter bounds the dedup candidate query: articles published at
// or after Since, excluding ExcludeID, sharing source, category, or any tag.
type CandidateFilter struct {
	Since     time.Time
	ExcludeID int64
	Source    string
	Category  string
	Tags      []string
	Limit     int
}

// RetentionPolicy holds the per-collection eviction horizons in days.
type RetentionPolicy struct {
	ArticleDays   int
	ClusterDays   int
	EmbeddingDays int
	AlertDays     int
}

// Store is the persistence contract the pipeline is written against.
type Store interface {
	Close() error

	// Feeds
	UpsertFeed(feed *Feed) (int64, error)
	GetFeed(feedID int64) (*Feed, error)
	GetEnabledFeeds() ([]Feed, error)
	ListFeeds() ([]Feed, error)
	SetFeedEnabled(feedID int64, enabled bool) error
	DeleteFeed(feedID int64) error
	RecordFeedError(feedID int64, errMsg string) error
	RecordFeedSuccess(feedID int64, articles int) error
	UpdateFeedCacheHeaders(feedID int64, etag, lastModified string) error

	// Articles
	AddArticle(article *Article) (int64, error)
	GetArticle(articleID int64) (*Article, error)
	GetArticleByURL(url string) (*Article, error)
	GetArticleByHash(hash string) (*Article, error)
	GetCandidateArticles(filter CandidateFilter) ([]Article, error)
	GetUncheckedArticles(limit int) ([]Article, error)
	UpdateArticleFlags(articleID int64, isDuplicate bool, originalID *int64) error
	MarkAlertSent(articleID int64) error
	SearchArticles(query string, limit int) ([]Article, error)
	ListRecentArticles(limit, offset int) ([]Article, error)

	// Duplicate links
	AddDuplicateLink(link *DuplicateLink) error
	ListDuplicates(limit, offset int) ([]DuplicateLink, error)
	CountDuplicates() (int, error)

	// Clusters
	CreateCluster(cluster *Cluster, articleID int64) (int64, error)
	GetCluster(clusterID int64) (*Cluster, error)
	GetClusterByArticle(articleID int64) (*Cluster, error)
	AddArticleToCluster(clusterID, articleID int64) error
	UpdateClusterCentroid(cluster *Cluster) error
	MergeClusters(destID, srcID int64) error
	ListClusters(limit, offset int) ([]Cluster, error)
	GetClusterArticles(clusterID int64) ([]Article, error)

	// Embeddings
	PutEmbedding(rec *EmbeddingRecord) error
	GetEmbeddingByArticle(articleID int64) (*EmbeddingRecord, error)

	// Alerts
	AddAlert(alert *Alert) (int64, error)
	GetAlert(alertID int64) (*Alert, error)
	UpdateAlertStatus(alertID int64, status string, sentAt *time.Time) error
	AddAlertResult(alertID int64, result ChannelResult) error
	CountAlertsSince(since time.Time) (int, error)
	ListRecentAlerts(limit, offset int) ([]Alert, error)
	IncrementAlertResend(alertID int64) error

	// Metrics
	AddMetric(name string, value float64, labels map[string]string) error

	// Maintenance
	PruneExpired(policy RetentionPolicy) error
}
