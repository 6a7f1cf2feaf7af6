package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new database connection and initializes the schema
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_time_format=sqlite&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Allow concurrent writers (feed fetching is fanned out across
	// goroutines) to wait for the write lock instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Migrations for existing databases.
	migrations := []string{
		"ALTER TABLE feeds ADD COLUMN etag TEXT",
		"ALTER TABLE feeds ADD COLUMN last_modified TEXT",
		"ALTER TABLE articles ADD COLUMN language TEXT",
		"ALTER TABLE alerts ADD COLUMN resend_count INTEGER NOT NULL DEFAULT 0",
	}
	for _, m := range migrations {
		db.Exec(m) // ignore "duplicate column" errors
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- JSON column helpers ---

func encodeStrings(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var ss []string
	json.Unmarshal([]byte(raw), &ss)
	return ss
}

func encodeEntities(ee []Entity) string {
	if len(ee) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ee)
	return string(b)
}

func decodeEntities(raw string) []Entity {
	if raw == "" {
		return nil
	}
	var ee []Entity
	json.Unmarshal([]byte(raw), &ee)
	return ee
}

// --- Feeds ---

// UpsertFeed inserts or updates a feed by its roster key. Runtime counters
// (error_count, articles_processed, cache headers) survive the update.
func (s *SQLiteStore) UpsertFeed(feed *Feed) (int64, error) {
	_, err := s.db.Exec(
		`INSERT INTO feeds (feed_key, name, url, category, priority, enabled, tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(feed_key) DO UPDATE SET
		   name = excluded.name,
		   url = excluded.url,
		   category = excluded.category,
		   priority = excluded.priority,
		   enabled = excluded.enabled,
		   tags = excluded.tags`,
		feed.FeedKey, feed.Name, feed.URL, feed.Category, feed.Priority,
		feed.Enabled, encodeStrings(feed.Tags),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert feed %s: %w", feed.FeedKey, err)
	}

	var id int64
	if err := s.db.QueryRow("SELECT id FROM feeds WHERE feed_key = ?", feed.FeedKey).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to resolve feed id for %s: %w", feed.FeedKey, err)
	}
	return id, nil
}

const feedColumns = `id, feed_key, name, url, category, priority, enabled, tags,
	last_fetched, last_error, last_error_at, etag, last_modified,
	articles_processed, error_count, created_at`

func scanFeed(row interface{ Scan(...any) error }) (*Feed, error) {
	var f Feed
	var tags string
	var etag, lastMod sql.NullString
	if err := row.Scan(&f.ID, &f.FeedKey, &f.Name, &f.URL, &f.Category, &f.Priority,
		&f.Enabled, &tags, &f.LastFetched, &f.LastError, &f.LastErrorAt,
		&etag, &lastMod, &f.ArticlesProcessed, &f.ErrorCount, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.Tags = decodeStrings(tags)
	f.ETag = etag.String
	f.LastModified = lastMod.String
	return &f, nil
}

// GetFeed returns a single feed by ID.
func (s *SQLiteStore) GetFeed(feedID int64) (*Feed, error) {
	f, err := scanFeed(s.db.QueryRow("SELECT "+feedColumns+" FROM feeds WHERE id = ?", feedID))
	if err != nil {
		return nil, fmt.Errorf("get feed %d: %w", feedID, err)
	}
	return f, nil
}

func (s *SQLiteStore) queryFeeds(query string, args ...any) ([]Feed, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, *f)
	}
	return feeds, rows.Err()
}

// GetEnabledFeeds returns all enabled feeds
func (s *SQLiteStore) GetEnabledFeeds() ([]Feed, error) {
	return s.queryFeeds("SELECT " + feedColumns + " FROM feeds WHERE enabled = 1 ORDER BY name")
}

// ListFeeds returns all feeds, enabled or not.
func (s *SQLiteStore) ListFeeds() ([]Feed, error) {
	return s.queryFeeds("SELECT " + feedColumns + " FROM feeds ORDER BY name")
}

// SetFeedEnabled toggles a feed without touching its counters.
func (s *SQLiteStore) SetFeedEnabled(feedID int64, enabled bool) error {
	_, err := s.db.Exec("UPDATE feeds SET enabled = ? WHERE id = ?", enabled, feedID)
	if err != nil {
		return fmt.Errorf("failed to set feed enabled: %w", err)
	}
	return nil
}

// DeleteFeed removes a feed. Articles already ingested from it are kept.
func (s *SQLiteStore) DeleteFeed(feedID int64) error {
	_, err := s.db.Exec("DELETE FROM feeds WHERE id = ?", feedID)
	if err != nil {
		return fmt.Errorf("failed to delete feed: %w", err)
	}
	return nil
}

// RecordFeedError increments the feed's error counter and stores the message.
func (s *SQLiteStore) RecordFeedError(feedID int64, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE feeds SET last_error = ?, last_error_at = CURRENT_TIMESTAMP,
		 error_count = error_count + 1 WHERE id = ?`,
		errMsg, feedID,
	)
	if err != nil {
		return fmt.Errorf("failed to record feed error: %w", err)
	}
	return nil
}

// RecordFeedSuccess clears the last error, updates last_fetched, and adds
// to the processed-article counter.
func (s *SQLiteStore) RecordFeedSuccess(feedID int64, articles int) error {
	_, err := s.db.Exec(
		`UPDATE feeds SET last_error = NULL, last_fetched = CURRENT_TIMESTAMP,
		 articles_processed = articles_processed + ? WHERE id = ?`,
		articles, feedID,
	)
	if err != nil {
		return fmt.Errorf("failed to record feed success: %w", err)
	}
	return nil
}

// UpdateFeedCacheHeaders stores the HTTP cache headers from the last successful fetch.
func (s *SQLiteStore) UpdateFeedCacheHeaders(feedID int64, etag, lastModified string) error {
	_, err := s.db.Exec("UPDATE feeds SET etag = ?, last_modified = ? WHERE id = ?", etag, lastModified, feedID)
	if err != nil {
		return fmt.Errorf("failed to update feed cache headers: %w", err)
	}
	return nil
}

// --- Articles ---

const articleColumns = `id, url, content_hash, title, summary, content, source, source_id,
	category, tags, priority, published_at, fetched_at, author, image_url, language,
	entities, duplicate_checked, is_duplicate, original_article_id, processed_at, alert_sent`

func scanArticle(row interface{ Scan(...any) error }) (*Article, error) {
	var a Article
	var summary, content, sourceID, author, imageURL, language sql.NullString
	var tags, entities string
	if err := row.Scan(&a.ID, &a.URL, &a.ContentHash, &a.Title, &summary, &content,
		&a.Source, &sourceID, &a.Category, &tags, &a.Priority, &a.PublishedAt,
		&a.FetchedAt, &author, &imageURL, &language, &entities,
		&a.DuplicateChecked, &a.IsDuplicate, &a.OriginalArticleID,
		&a.ProcessedAt, &a.AlertSent); err != nil {
		return nil, err
	}
	a.Summary = summary.String
	a.Content = content.String
	a.SourceID = sourceID.String
	a.Author = author.String
	a.ImageURL = imageURL.String
	a.Language = language.String
	a.Tags = decodeStrings(tags)
	a.Entities = decodeEntities(entities)
	return &a, nil
}

// AddArticle persists a normalized article together with its tag and entity
// index rows and the full-text entry. The whole insert is one transaction.
func (s *SQLiteStore) AddArticle(article *Article) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin article insert: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO articles (url, content_hash, title, summary, content, source, source_id,
		   category, tags, priority, published_at, fetched_at, author, image_url, language,
		   entities, duplicate_checked, is_duplicate, alert_sent)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		article.URL, article.ContentHash, article.Title,
		nullString(article.Summary), nullString(article.Content),
		article.Source, nullString(article.SourceID), article.Category,
		encodeStrings(article.Tags), article.Priority,
		article.PublishedAt, article.FetchedAt,
		nullString(article.Author), nullString(article.ImageURL), nullString(article.Language),
		encodeEntities(article.Entities),
		article.DuplicateChecked, article.IsDuplicate, article.AlertSent,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add article: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get article id: %w", err)
	}

	for _, tag := range article.Tags {
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO article_tags (article_id, tag) VALUES (?, ?)",
			id, strings.ToLower(tag),
		); err != nil {
			return 0, fmt.Errorf("failed to index article tag: %w", err)
		}
	}
	for _, e := range article.Entities {
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO article_entities (article_id, name, type, confidence) VALUES (?, ?, ?, ?)",
			id, strings.ToLower(e.Name), e.Type, e.Confidence,
		); err != nil {
			return 0, fmt.Errorf("failed to index article entity: %w", err)
		}
	}

	entityNames := make([]string, len(article.Entities))
	for i, e := range article.Entities {
		entityNames[i] = e.Name
	}
	if _, err := tx.Exec(
		"INSERT INTO articles_fts (rowid, title, content, summary, entity_names) VALUES (?, ?, ?, ?, ?)",
		id, article.Title, article.Content, article.Summary, strings.Join(entityNames, " "),
	); err != nil {
		return 0, fmt.Errorf("failed to index article text: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit article insert: %w", err)
	}
	article.ID = id
	return id, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// GetArticle returns a single article by ID.
func (s *SQLiteStore) GetArticle(articleID int64) (*Article, error) {
	a, err := scanArticle(s.db.QueryRow(
		"SELECT "+articleColumns+" FROM articles WHERE id = ?", articleID))
	if err != nil {
		return nil, fmt.Errorf("get article %d: %w", articleID, err)
	}
	return a, nil
}

// GetArticleByURL returns the article with the given URL, or nil if absent.
func (s *SQLiteStore) GetArticleByURL(url string) (*Article, error) {
	a, err := scanArticle(s.db.QueryRow(
		"SELECT "+articleColumns+" FROM articles WHERE url = ?", url))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get article by url: %w", err)
	}
	return a, nil
}

// GetArticleByHash returns the earliest-published article with the given
// content hash, or nil if absent.
func (s *SQLiteStore) GetArticleByHash(hash string) (*Article, error) {
	a, err := scanArticle(s.db.QueryRow(
		"SELECT "+articleColumns+" FROM articles WHERE content_hash = ? ORDER BY published_at ASC, id ASC LIMIT 1", hash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get article by hash: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) queryArticles(query string, args ...any) ([]Article, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

// GetCandidateArticles returns articles inside the dedup window that share
// at least one of source, category, or any tag with the probe article.
// The Since bound is inclusive; results are capped and newest-first.
func (s *SQLiteStore) GetCandidateArticles(filter CandidateFilter) ([]Article, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var overlap []string
	args := []any{filter.Since, filter.ExcludeID}

	if filter.Source != "" {
		overlap = append(overlap, "a.source = ?")
		args = append(args, filter.Source)
	}
	if filter.Category != "" {
		overlap = append(overlap, "a.category = ?")
		args = append(args, filter.Category)
	}
	if len(filter.Tags) > 0 {
		placeholders := strings.Repeat("?,", len(filter.Tags))
		overlap = append(overlap,
			"EXISTS (SELECT 1 FROM article_tags t WHERE t.article_id = a.id AND t.tag IN ("+
				placeholders[:len(placeholders)-1]+"))")
		for _, tag := range filter.Tags {
			args = append(args, strings.ToLower(tag))
		}
	}
	if len(overlap) == 0 {
		return nil, nil
	}
	args = append(args, limit)

	query := "SELECT " + articleColumns + ` FROM articles a
		WHERE a.published_at >= ? AND a.id != ?
		  AND (` + strings.Join(overlap, " OR ") + `)
		ORDER BY a.published_at DESC
		LIMIT ?`
	return s.queryArticles(query, args...)
}

// GetUncheckedArticles returns articles awaiting dedup, oldest-fetched first.
func (s *SQLiteStore) GetUncheckedArticles(limit int) ([]Article, error) {
	return s.queryArticles(
		"SELECT "+articleColumns+" FROM articles WHERE duplicate_checked = 0 ORDER BY fetched_at ASC LIMIT ?",
		limit,
	)
}

// UpdateArticleFlags marks an article duplicate-checked with its verdict.
// The flags and cluster linkage are written in one statement so the article
// is never visible in a half-updated state.
func (s *SQLiteStore) UpdateArticleFlags(articleID int64, isDuplicate bool, originalID *int64) error {
	_, err := s.db.Exec(
		`UPDATE articles SET duplicate_checked = 1, is_duplicate = ?,
		 original_article_id = ?, processed_at = CURRENT_TIMESTAMP WHERE id = ?`,
		isDuplicate, originalID, articleID,
	)
	if err != nil {
		return fmt.Errorf("failed to update article flags: %w", err)
	}
	return nil
}

// MarkAlertSent flags an article as having produced an alert.
func (s *SQLiteStore) MarkAlertSent(articleID int64) error {
	_, err := s.db.Exec("UPDATE articles SET alert_sent = 1 WHERE id = ?", articleID)
	if err != nil {
		return fmt.Errorf("failed to mark alert sent: %w", err)
	}
	return nil
}

// SearchArticles runs a full-text query over titles, content, summaries,
// and entity names.
func (s *SQLiteStore) SearchArticles(query string, limit int) ([]Article, error) {
	return s.queryArticles(
		"SELECT "+articleColumns+` FROM articles
		 WHERE id IN (SELECT rowid FROM articles_fts WHERE articles_fts MATCH ?)
		 ORDER BY published_at DESC LIMIT ?`,
		query, limit,
	)
}

// ListRecentArticles returns articles newest-first for the admin surface.
func (s *SQLiteStore) ListRecentArticles(limit, offset int) ([]Article, error) {
	return s.queryArticles(
		"SELECT "+articleColumns+" FROM articles ORDER BY published_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
}

// --- Duplicate links ---

// AddDuplicateLink records a duplicate-to-original edge. Re-inserting the
// same pair is a no-op.
func (s *SQLiteStore) AddDuplicateLink(link *DuplicateLink) error {
	breakdown, _ := json.Marshal(link.Breakdown)
	_, err := s.db.Exec(
		`INSERT INTO duplicates (original_article_id, duplicate_article_id, similarity_score,
		   detection_method, breakdown, original_title, duplicate_title,
		   original_source, duplicate_source, time_diff_seconds)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(original_article_id, duplicate_article_id) DO NOTHING`,
		link.OriginalArticleID, link.DuplicateArticleID, link.SimilarityScore,
		link.DetectionMethod, string(breakdown), link.OriginalTitle, link.DuplicateTitle,
		link.OriginalSource, link.DuplicateSource, link.TimeDiffSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to add duplicate link: %w", err)
	}
	return nil
}

// ListDuplicates returns duplicate links newest-first.
func (s *SQLiteStore) ListDuplicates(limit, offset int) ([]DuplicateLink, error) {
	rows, err := s.db.Query(
		`SELECT id, original_article_id, duplicate_article_id, similarity_score,
		   detection_method, breakdown, original_title, duplicate_title,
		   original_source, duplicate_source, time_diff_seconds, created_at
		 FROM duplicates ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicates: %w", err)
	}
	defer rows.Close()

	var links []DuplicateLink
	for rows.Next() {
		var l DuplicateLink
		var breakdown string
		var origTitle, dupTitle, origSource, dupSource sql.NullString
		if err := rows.Scan(&l.ID, &l.OriginalArticleID, &l.DuplicateArticleID,
			&l.SimilarityScore, &l.DetectionMethod, &breakdown,
			&origTitle, &dupTitle, &origSource, &dupSource,
			&l.TimeDiffSeconds, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate link: %w", err)
		}
		json.Unmarshal([]byte(breakdown), &l.Breakdown)
		l.OriginalTitle = origTitle.String
		l.DuplicateTitle = dupTitle.String
		l.OriginalSource = origSource.String
		l.DuplicateSource = dupSource.String
		links = append(links, l)
	}
	return links, rows.Err()
}

// CountDuplicates returns the total number of recorded duplicate links.
func (s *SQLiteStore) CountDuplicates() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM duplicates").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count duplicates: %w", err)
	}
	return count, nil
}

// --- Clusters ---

// CreateCluster creates a cluster seeded with a single article.
func (s *SQLiteStore) CreateCluster(cluster *Cluster, articleID int64) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin cluster insert: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO clusters (category, tags, sources, avg_word_count, avg_entity_count, mean_published_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		cluster.Category, encodeStrings(cluster.Tags), encodeStrings(cluster.Sources),
		cluster.AvgWordCount, cluster.AvgEntityCount, cluster.MeanPublishedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create cluster: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get cluster id: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO cluster_members (cluster_id, article_id) VALUES (?, ?)",
		id, articleID,
	); err != nil {
		return 0, fmt.Errorf("failed to add cluster member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cluster insert: %w", err)
	}
	cluster.ID = id
	return id, nil
}

func (s *SQLiteStore) clusterMembers(clusterID int64) ([]int64, error) {
	rows, err := s.db.Query(
		"SELECT article_id FROM cluster_members WHERE cluster_id = ? ORDER BY added_at", clusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cluster members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan cluster member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanCluster(row interface{ Scan(...any) error }) (*Cluster, error) {
	var c Cluster
	var tags, sources string
	if err := row.Scan(&c.ID, &c.Category, &tags, &sources,
		&c.AvgWordCount, &c.AvgEntityCount, &c.MeanPublishedAt,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Tags = decodeStrings(tags)
	c.Sources = decodeStrings(sources)
	return &c, nil
}

const clusterColumns = `id, category, tags, sources, avg_word_count, avg_entity_count,
	mean_published_at, created_at, updated_at`

// GetCluster returns a cluster and its member article IDs.
func (s *SQLiteStore) GetCluster(clusterID int64) (*Cluster, error) {
	c, err := scanCluster(s.db.QueryRow(
		"SELECT "+clusterColumns+" FROM clusters WHERE id = ?", clusterID))
	if err != nil {
		return nil, fmt.Errorf("get cluster %d: %w", clusterID, err)
	}
	c.ArticleIDs, err = s.clusterMembers(clusterID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetClusterByArticle returns the cluster containing an article, or nil.
func (s *SQLiteStore) GetClusterByArticle(articleID int64) (*Cluster, error) {
	var clusterID int64
	err := s.db.QueryRow(
		"SELECT cluster_id FROM cluster_members WHERE article_id = ?", articleID,
	).Scan(&clusterID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cluster for article %d: %w", articleID, err)
	}
	return s.GetCluster(clusterID)
}

// AddArticleToCluster appends an article and bumps the cluster's updated_at.
func (s *SQLiteStore) AddArticleToCluster(clusterID, articleID int64) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO cluster_members (cluster_id, article_id) VALUES (?, ?)",
		clusterID, articleID,
	)
	if err != nil {
		return fmt.Errorf("failed to add article to cluster: %w", err)
	}
	_, err = s.db.Exec("UPDATE clusters SET updated_at = CURRENT_TIMESTAMP WHERE id = ?", clusterID)
	return err
}

// UpdateClusterCentroid rewrites the cluster's aggregate features.
func (s *SQLiteStore) UpdateClusterCentroid(cluster *Cluster) error {
	_, err := s.db.Exec(
		`UPDATE clusters SET category = ?, tags = ?, sources = ?,
		   avg_word_count = ?, avg_entity_count = ?, mean_published_at = ?,
		   updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		cluster.Category, encodeStrings(cluster.Tags), encodeStrings(cluster.Sources),
		cluster.AvgWordCount, cluster.AvgEntityCount, cluster.MeanPublishedAt, cluster.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update cluster centroid: %w", err)
	}
	return nil
}

// MergeClusters moves all members of src into dest and deletes src.
func (s *SQLiteStore) MergeClusters(destID, srcID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin cluster merge: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"UPDATE OR IGNORE cluster_members SET cluster_id = ? WHERE cluster_id = ?",
		destID, srcID,
	); err != nil {
		return fmt.Errorf("failed to move cluster members: %w", err)
	}
	// Members that collided on the unique article constraint stay behind;
	// deleting the source cluster cascades them away.
	if _, err := tx.Exec("DELETE FROM clusters WHERE id = ?", srcID); err != nil {
		return fmt.Errorf("failed to delete merged cluster: %w", err)
	}
	if _, err := tx.Exec("UPDATE clusters SET updated_at = CURRENT_TIMESTAMP WHERE id = ?", destID); err != nil {
		return fmt.Errorf("failed to touch merged cluster: %w", err)
	}

	return tx.Commit()
}

// ListClusters returns clusters most-recently-updated first, members included.
func (s *SQLiteStore) ListClusters(limit, offset int) ([]Cluster, error) {
	rows, err := s.db.Query(
		"SELECT "+clusterColumns+" FROM clusters ORDER BY updated_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}
	defer rows.Close()

	var clusters []Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cluster: %w", err)
		}
		clusters = append(clusters, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range clusters {
		clusters[i].ArticleIDs, err = s.clusterMembers(clusters[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return clusters, nil
}

// GetClusterArticles returns the full articles in a cluster, oldest first.
func (s *SQLiteStore) GetClusterArticles(clusterID int64) ([]Article, error) {
	return s.queryArticles(
		"SELECT "+articleColumns+` FROM articles
		 WHERE id IN (SELECT article_id FROM cluster_members WHERE cluster_id = ?)
		 ORDER BY published_at ASC`,
		clusterID,
	)
}

// --- Embeddings ---

// PutEmbedding stores or refreshes the cached vector for an article.
func (s *SQLiteStore) PutEmbedding(rec *EmbeddingRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO embeddings (article_id, vector, model, text_length)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(article_id) DO UPDATE SET
		   vector = excluded.vector,
		   model = excluded.model,
		   text_length = excluded.text_length,
		   created_at = CURRENT_TIMESTAMP`,
		rec.ArticleID, rec.Vector, rec.Model, rec.TextLength,
	)
	if err != nil {
		return fmt.Errorf("failed to put embedding: %w", err)
	}
	return nil
}

// GetEmbeddingByArticle returns the cached vector for an article, or nil.
func (s *SQLiteStore) GetEmbeddingByArticle(articleID int64) (*EmbeddingRecord, error) {
	var rec EmbeddingRecord
	err := s.db.QueryRow(
		"SELECT article_id, vector, model, text_length, created_at FROM embeddings WHERE article_id = ?",
		articleID,
	).Scan(&rec.ArticleID, &rec.Vector, &rec.Model, &rec.TextLength, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	return &rec, nil
}

// --- Alerts ---

// AddAlert persists a new alert in pending state.
func (s *SQLiteStore) AddAlert(alert *Alert) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO alerts (article_id, title, summary, source, category, priority,
		   url, published_at, entities, tags, channels, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ArticleID, alert.Title, nullString(alert.Summary), alert.Source,
		alert.Category, alert.Priority, alert.URL, alert.PublishedAt,
		encodeEntities(alert.Entities), encodeStrings(alert.Tags),
		encodeStrings(alert.Channels), alert.Status,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add alert: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get alert id: %w", err)
	}
	alert.ID = id
	return id, nil
}

const alertColumns = `id, article_id, title, summary, source, category, priority,
	url, published_at, entities, tags, channels, status, created_at, sent_at, resend_count`

func scanAlert(row interface{ Scan(...any) error }) (*Alert, error) {
	var a Alert
	var summary sql.NullString
	var entities, tags, channels string
	if err := row.Scan(&a.ID, &a.ArticleID, &a.Title, &summary, &a.Source,
		&a.Category, &a.Priority, &a.URL, &a.PublishedAt,
		&entities, &tags, &channels, &a.Status, &a.CreatedAt, &a.SentAt,
		&a.ResendCount); err != nil {
		return nil, err
	}
	a.Summary = summary.String
	a.Entities = decodeEntities(entities)
	a.Tags = decodeStrings(tags)
	a.Channels = decodeStrings(channels)
	return &a, nil
}

// GetAlert returns an alert with its per-channel delivery results.
func (s *SQLiteStore) GetAlert(alertID int64) (*Alert, error) {
	a, err := scanAlert(s.db.QueryRow(
		"SELECT "+alertColumns+" FROM alerts WHERE id = ?", alertID))
	if err != nil {
		return nil, fmt.Errorf("get alert %d: %w", alertID, err)
	}
	a.Results, err = s.alertResults(alertID)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *SQLiteStore) alertResults(alertID int64) ([]ChannelResult, error) {
	rows, err := s.db.Query(
		"SELECT channel, success, status_code, error, created_at FROM alert_results WHERE alert_id = ? ORDER BY id",
		alertID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert results: %w", err)
	}
	defer rows.Close()

	var results []ChannelResult
	for rows.Next() {
		var r ChannelResult
		var statusCode sql.NullInt64
		var errMsg sql.NullString
		if err := rows.Scan(&r.Channel, &r.Success, &statusCode, &errMsg, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert result: %w", err)
		}
		if statusCode.Valid {
			code := int(statusCode.Int64)
			r.StatusCode = &code
		}
		r.Error = errMsg.String
		results = append(results, r)
	}
	return results, rows.Err()
}

// UpdateAlertStatus sets an alert's status and delivery timestamp.
func (s *SQLiteStore) UpdateAlertStatus(alertID int64, status string, sentAt *time.Time) error {
	_, err := s.db.Exec(
		"UPDATE alerts SET status = ?, sent_at = ? WHERE id = ?",
		status, sentAt, alertID,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}
	return nil
}

// AddAlertResult appends a per-channel delivery outcome.
func (s *SQLiteStore) AddAlertResult(alertID int64, result ChannelResult) error {
	_, err := s.db.Exec(
		"INSERT INTO alert_results (alert_id, channel, success, status_code, error) VALUES (?, ?, ?, ?, ?)",
		alertID, result.Channel, result.Success, result.StatusCode, nullString(result.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to add alert result: %w", err)
	}
	return nil
}

// CountAlertsSince counts alerts created at or after the given instant.
// Used by the dispatcher's hourly rate limit.
func (s *SQLiteStore) CountAlertsSince(since time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM alerts WHERE created_at >= ?", since.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return count, nil
}

// ListRecentAlerts returns alerts newest-first with their channel results.
func (s *SQLiteStore) ListRecentAlerts(limit, offset int) ([]Alert, error) {
	rows, err := s.db.Query(
		"SELECT "+alertColumns+" FROM alerts ORDER BY created_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range alerts {
		alerts[i].Results, err = s.alertResults(alerts[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return alerts, nil
}

// IncrementAlertResend bumps the operator-resend counter.
func (s *SQLiteStore) IncrementAlertResend(alertID int64) error {
	_, err := s.db.Exec("UPDATE alerts SET resend_count = resend_count + 1 WHERE id = ?", alertID)
	if err != nil {
		return fmt.Errorf("failed to increment resend count: %w", err)
	}
	return nil
}

// --- Metrics ---

// AddMetric records a named measurement with optional labels.
func (s *SQLiteStore) AddMetric(name string, value float64, labels map[string]string) error {
	encoded := "{}"
	if len(labels) > 0 {
		b, _ := json.Marshal(labels)
		encoded = string(b)
	}
	_, err := s.db.Exec(
		"INSERT INTO metrics (name, value, labels) VALUES (?, ?, ?)",
		name, value, encoded,
	)
	if err != nil {
		return fmt.Errorf("failed to add metric: %w", err)
	}
	return nil
}

// --- Maintenance ---

// PruneExpired enforces the retention horizons: old articles (with their
// tag/entity/FTS rows), inactive clusters, stale embeddings, and old alerts.
func (s *SQLiteStore) PruneExpired(policy RetentionPolicy) error {
	now := time.Now().UTC()

	if policy.ArticleDays > 0 {
		cutoff := now.AddDate(0, 0, -policy.ArticleDays)
		if _, err := s.db.Exec(
			"DELETE FROM articles_fts WHERE rowid IN (SELECT id FROM articles WHERE published_at < ?)",
			cutoff,
		); err != nil {
			return fmt.Errorf("failed to prune article index: %w", err)
		}
		if _, err := s.db.Exec("DELETE FROM articles WHERE published_at < ?", cutoff); err != nil {
			return fmt.Errorf("failed to prune articles: %w", err)
		}
	}
	if policy.ClusterDays > 0 {
		cutoff := now.AddDate(0, 0, -policy.ClusterDays)
		if _, err := s.db.Exec("DELETE FROM clusters WHERE updated_at < ?", cutoff); err != nil {
			return fmt.Errorf("failed to prune clusters: %w", err)
		}
	}
	if policy.EmbeddingDays > 0 {
		cutoff := now.AddDate(0, 0, -policy.EmbeddingDays)
		if _, err := s.db.Exec("DELETE FROM embeddings WHERE created_at < ?", cutoff); err != nil {
			return fmt.Errorf("failed to prune embeddings: %w", err)
		}
	}
	if policy.AlertDays > 0 {
		cutoff := now.AddDate(0, 0, -policy.AlertDays)
		if _, err := s.db.Exec("DELETE FROM alerts WHERE created_at < ?", cutoff); err != nil {
			return fmt.Errorf("failed to prune alerts: %w", err)
		}
	}

	// Clusters whose members were all evicted are no longer meaningful.
	if _, err := s.db.Exec(
		"DELETE FROM clusters WHERE id NOT IN (SELECT DISTINCT cluster_id FROM cluster_members)",
	); err != nil {
		return fmt.Errorf("failed to prune empty clusters: %w", err)
	}
	return nil
}
