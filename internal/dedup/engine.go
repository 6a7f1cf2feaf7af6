package dedup

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/aakash-priyadarshi/news-duplication-system/internal/embedproc"
	"github.com/aakash-priyadarshi/news-duplication-system/internal/storage"
)

const (
	// Candidates that cannot reach this overall score even with perfect
	// content and semantic signals are discarded before the expensive
	// signals are computed.
	discardBelow = 0.3

	// LLM validation only fires inside this band around the decision
	// threshold, and only confirms at or above this confidence.
	borderlineLow     = 0.7
	borderlineMargin  = 0.05
	llmMinConfidence  = 0.85
	maxProcessRetries = 3
)

// Options configure the scoring engine.
type Options struct {
	SimilarityThreshold float64
	TimeWindow          time.Duration
	Weights             Weights
	Limits              Limits
	BatchSize           int
	MaxCandidates       int
	QueueSize           int
	LLMValidation       bool
}

// Verdict is the outcome of dedup-checking one article.
type Verdict struct {
	ArticleID         int64
	IsDuplicate       bool
	OriginalArticleID int64 // zero when the article is the elected original
	ClusterID         int64
	Matches           int
	// UniqueDetected is true when the article is an elected original and
	// the dispatcher should consider alerting on it.
	UniqueDetected bool
	Breakdown      *Breakdown // best-scoring match, nil when unmatched
}

// Validator supplies embeddings and optional LLM duplicate validation.
type Validator interface {
	Embed(ctx context.Context, articleID int64, text string) ([]float32, bool)
	ValidateDuplicate(ctx context.Context, titleA, contentA, titleB, contentB string) *embedproc.Validation
}

// Engine scores not-yet-checked articles against a time-windowed candidate
// set and maintains cluster membership. Batches run one at a time; within a
// batch, articles are processed sequentially.
type Engine struct {
	store   storage.Store
	adapter Validator
	opts    Options

	queue chan int64

	mu       sync.Mutex // serializes batches
	attempts map[int64]int

	errorCount int64
}

// NewEngine creates a dedup engine. The adapter may be nil, in which case
// the semantic signal is zero and LLM validation is skipped.
func NewEngine(store storage.Store, adapter Validator, opts Options) *Engine {
	if opts.SimilarityThreshold == 0 {
		opts.SimilarityThreshold = 0.85
	}
	if opts.TimeWindow == 0 {
		opts.TimeWindow = 24 * time.Hour
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = 50
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	return &Engine{
		store:    store,
		adapter:  adapter,
		opts:     opts,
		queue:    make(chan int64, opts.QueueSize),
		attempts: make(map[int64]int),
	}
}

// Enqueue adds an article for dedup checking. Blocks when the queue is
// full, backpressuring the producer. Returns false on cancellation.
func (e *Engine) Enqueue(ctx context.Context, articleID int64) bool {
	select {
	case e.queue <- articleID:
		return true
	case <-ctx.Done():
		return false
	}
}

// ProcessBatch drains up to one batch of queued articles and scores each.
// When the queue is empty it falls back to scanning the store for
// unchecked articles, which makes restarts pick up where they left off.
// Only one batch runs at a time.
func (e *Engine) ProcessBatch(ctx context.Context) ([]Verdict, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := e.drainQueue()
	if len(ids) == 0 {
		articles, err := e.store.GetUncheckedArticles(e.opts.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("scan unchecked articles: %w", err)
		}
		for _, a := range articles {
			ids = append(ids, a.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var verdicts []Verdict
	for _, id := range ids {
		if ctx.Err() != nil {
			return verdicts, ctx.Err()
		}
		verdict, err := e.processOne(ctx, id)
		if err != nil {
			e.retryOrDrop(ctx, id, err)
			continue
		}
		delete(e.attempts, id)
		if verdict != nil {
			verdicts = append(verdicts, *verdict)
		}
	}
	return verdicts, nil
}

func (e *Engine) drainQueue() []int64 {
	var ids []int64
	seen := make(map[int64]bool)
	for len(ids) < e.opts.BatchSize {
		select {
		case id := <-e.queue:
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		default:
			return ids
		}
	}
	return ids
}

// retryOrDrop re-enqueues a failed article up to the retry cap. Beyond it,
// the article stays unchecked for a later reprocessing sweep.
func (e *Engine) retryOrDrop(ctx context.Context, id int64, err error) {
	e.attempts[id]++
	if e.attempts[id] < maxProcessRetries {
		log.Printf("dedup: article %d attempt %d failed, retrying: %v", id, e.attempts[id], err)
		select {
		case e.queue <- id:
		default:
			// Queue full; the store scan fallback will find it again.
		}
		return
	}
	e.errorCount++
	delete(e.attempts, id)
	log.Printf("dedup: article %d failed %d times, leaving unchecked: %v", id, maxProcessRetries, err)
	e.store.AddMetric("dedup_article_failed", 1, map[string]string{"article_id": fmt.Sprint(id)})
}

// ErrorCount returns the number of articles abandoned after retries.
func (e *Engine) ErrorCount() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errorCount
}

func (e *Engine) processOne(ctx context.Context, articleID int64) (*Verdict, error) {
	article, err := e.store.GetArticle(articleID)
	if err != nil {
		return nil, fmt.Errorf("load article %d: %w", articleID, err)
	}
	if article.DuplicateChecked {
		return nil, nil
	}

	candidates, err := e.store.GetCandidateArticles(storage.CandidateFilter{
		Since:     time.Now().Add(-e.opts.TimeWindow),
		ExcludeID: article.ID,
		Source:    article.Source,
		Category:  article.Category,
		Tags:      article.Tags,
		Limit:     e.opts.MaxCandidates,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve candidates: %w", err)
	}

	matches := e.scoreCandidates(ctx, article, candidates)
	if len(matches) == 0 {
		return e.markUnique(article)
	}
	return e.recordDuplicates(ctx, article, matches)
}

type match struct {
	candidate *storage.Article
	breakdown Breakdown
}

// scoreCandidates computes the signal blend for each candidate and returns
// the ones that clear their method threshold, best first.
func (e *Engine) scoreCandidates(ctx context.Context, article *storage.Article, candidates []storage.Article) []match {
	var articleVec []float32
	haveVec := false

	var scored []match
	for i := range candidates {
		cand := &candidates[i]

		// Cheap pre-filter: even with perfect content and semantic
		// signals this pair cannot reach the discard floor.
		if article.ContentHash != cand.ContentHash {
			upperBound := e.opts.Weights.Title*TitleSimilarity(article.Title, cand.Title) +
				e.opts.Weights.Entity*EntitySimilarity(article.Entities, cand.Entities) +
				0.10*TemporalProximity(article.PublishedAt.Sub(cand.PublishedAt).Hours()) +
				0.10*SourceAlignment(article, cand) +
				e.opts.Weights.Content + 0.30
			if upperBound < discardBelow {
				continue
			}
		}

		semantic := 0.0
		if e.adapter != nil {
			if !haveVec {
				articleVec, _ = e.adapter.Embed(ctx, article.ID, embedText(article))
				haveVec = true
			}
			candVec, _ := e.adapter.Embed(ctx, cand.ID, embedText(cand))
			semantic = embedproc.Similarity(articleVec, candVec)
		}

		bd := Score(article, cand, semantic, e.opts.Weights, e.opts.Limits)
		if bd.Overall < discardBelow {
			continue
		}
		scored = append(scored, match{candidate: cand, breakdown: bd})
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].breakdown.Overall > scored[j].breakdown.Overall
	})

	var matches []match
	for _, m := range scored {
		threshold := ThresholdFor(m.breakdown.Method, e.opts.SimilarityThreshold)
		if m.breakdown.Overall >= threshold {
			matches = append(matches, m)
			continue
		}
		// Borderline band: let the LLM confirm near-misses. A provider
		// failure leaves the algorithmic decision in place.
		if e.opts.LLMValidation && e.adapter != nil &&
			m.breakdown.Overall >= borderlineLow && m.breakdown.Overall < threshold+borderlineMargin {
			v := e.adapter.ValidateDuplicate(ctx, article.Title, article.Content,
				m.candidate.Title, m.candidate.Content)
			if v != nil && v.IsDuplicate && v.Confidence >= llmMinConfidence {
				matches = append(matches, m)
			}
		}
	}
	return matches
}

func embedText(a *storage.Article) string {
	return a.Title + "\n" + a.Content
}

// markUnique flags an unmatched article, seeds its singleton cluster, and
// signals the dispatcher.
func (e *Engine) markUnique(article *storage.Article) (*Verdict, error) {
	if err := e.store.UpdateArticleFlags(article.ID, false, nil); err != nil {
		return nil, fmt.Errorf("flag unique article: %w", err)
	}
	cluster := clusterFromArticle(article)
	clusterID, err := e.store.CreateCluster(cluster, article.ID)
	if err != nil {
		return nil, fmt.Errorf("create singleton cluster: %w", err)
	}
	return &Verdict{
		ArticleID:      article.ID,
		ClusterID:      clusterID,
		UniqueDetected: true,
	}, nil
}

// recordDuplicates elects the original among the new article and all
// matches, links every non-original to it, updates the new article's flags,
// and folds everyone into the original's cluster. Every persisted link
// carries the breakdown of its own article pair: the breakdowns held in
// matches describe incoming-article edges only, so when the elected
// original is a candidate, the other candidates are re-scored against it.
func (e *Engine) recordDuplicates(ctx context.Context, article *storage.Article, matches []match) (*Verdict, error) {
	group := make([]*storage.Article, 0, len(matches)+1)
	group = append(group, article)
	for _, m := range matches {
		group = append(group, m.candidate)
	}
	original := electOriginal(group)

	best := matches[0].breakdown
	verdict := &Verdict{ArticleID: article.ID, Matches: len(matches), Breakdown: &best}

	if original.ID == article.ID {
		// The new article predates every match: it becomes the original
		// even though it arrived last. Each match breakdown already is
		// the article-to-candidate edge.
		for _, m := range matches {
			if err := e.addLink(original, m.candidate, m.breakdown); err != nil {
				return nil, err
			}
		}
		if err := e.store.UpdateArticleFlags(article.ID, false, nil); err != nil {
			return nil, fmt.Errorf("flag elected original: %w", err)
		}
		verdict.UniqueDetected = true
	} else {
		articleEdge := best
		for _, m := range matches {
			if m.candidate.ID == original.ID {
				// Score(article, original) was computed during matching.
				articleEdge = m.breakdown
				continue
			}
			if err := e.addLink(original, m.candidate, e.pairScore(ctx, original, m.candidate)); err != nil {
				return nil, err
			}
		}
		if err := e.addLink(original, article, articleEdge); err != nil {
			return nil, err
		}
		if err := e.store.UpdateArticleFlags(article.ID, true, &original.ID); err != nil {
			return nil, fmt.Errorf("flag duplicate article: %w", err)
		}
		verdict.IsDuplicate = true
		verdict.OriginalArticleID = original.ID
	}

	clusterID, err := e.updateClusters(original, group)
	if err != nil {
		return nil, err
	}
	verdict.ClusterID = clusterID
	return verdict, nil
}

// pairScore computes the full signal blend for an arbitrary article pair.
// Embeddings come from the adapter's caches, so re-scoring a candidate
// against the elected original does not re-contact the provider.
func (e *Engine) pairScore(ctx context.Context, a, b *storage.Article) Breakdown {
	semantic := 0.0
	if e.adapter != nil {
		va, _ := e.adapter.Embed(ctx, a.ID, embedText(a))
		vb, _ := e.adapter.Embed(ctx, b.ID, embedText(b))
		semantic = embedproc.Similarity(va, vb)
	}
	return Score(a, b, semantic, e.opts.Weights, e.opts.Limits)
}

func (e *Engine) addLink(original, duplicate *storage.Article, bd Breakdown) error {
	link := &storage.DuplicateLink{
		OriginalArticleID:  original.ID,
		DuplicateArticleID: duplicate.ID,
		SimilarityScore:    bd.Overall,
		DetectionMethod:    string(bd.Method),
		Breakdown:          bd.Map(),
		OriginalTitle:      original.Title,
		DuplicateTitle:     duplicate.Title,
		OriginalSource:     original.Source,
		DuplicateSource:    duplicate.Source,
		TimeDiffSeconds:    int64(duplicate.PublishedAt.Sub(original.PublishedAt).Seconds()),
	}
	if err := e.store.AddDuplicateLink(link); err != nil {
		return fmt.Errorf("add duplicate link %d->%d: %w", duplicate.ID, original.ID, err)
	}
	return nil
}

// electOriginal picks the earliest-published article; ties break on the
// earliest store insertion (lowest id).
func electOriginal(group []*storage.Article) *storage.Article {
	original := group[0]
	for _, a := range group[1:] {
		if a.PublishedAt.Before(original.PublishedAt) ||
			(a.PublishedAt.Equal(original.PublishedAt) && a.ID < original.ID) {
			original = a
		}
	}
	return original
}

// updateClusters folds the whole duplicate group into one cluster anchored
// on the original, merging clusters when the group spans more than one,
// then recomputes the centroid.
func (e *Engine) updateClusters(original *storage.Article, group []*storage.Article) (int64, error) {
	dest, err := e.store.GetClusterByArticle(original.ID)
	if err != nil {
		return 0, fmt.Errorf("find original cluster: %w", err)
	}
	if dest == nil {
		cluster := clusterFromArticle(original)
		if _, err := e.store.CreateCluster(cluster, original.ID); err != nil {
			return 0, fmt.Errorf("create cluster for original: %w", err)
		}
		dest = cluster
	}

	for _, a := range group {
		if a.ID == original.ID {
			continue
		}
		existing, err := e.store.GetClusterByArticle(a.ID)
		if err != nil {
			return 0, fmt.Errorf("find member cluster: %w", err)
		}
		switch {
		case existing == nil:
			if err := e.store.AddArticleToCluster(dest.ID, a.ID); err != nil {
				return 0, fmt.Errorf("add article %d to cluster: %w", a.ID, err)
			}
		case existing.ID != dest.ID:
			if err := e.store.MergeClusters(dest.ID, existing.ID); err != nil {
				return 0, fmt.Errorf("merge clusters %d<-%d: %w", dest.ID, existing.ID, err)
			}
		}
	}

	if err := e.RecomputeCentroid(dest.ID); err != nil {
		return 0, err
	}
	return dest.ID, nil
}

func clusterFromArticle(a *storage.Article) *storage.Cluster {
	published := a.PublishedAt
	return &storage.Cluster{
		Category:        a.Category,
		Tags:            a.Tags,
		Sources:         []string{a.Source},
		AvgWordCount:    float64(wordCount(a.Content)),
		AvgEntityCount:  float64(len(a.Entities)),
		MeanPublishedAt: &published,
	}
}
