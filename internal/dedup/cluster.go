package dedup

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/aakash-priyadarshi/news-duplication-system/internal/storage"
)

// clusterMergeThreshold is the inter-cluster similarity needed for the
// offline maintenance merge.
const clusterMergeThreshold = 0.8

// RecomputeCentroid rebuilds a cluster's aggregate features from its
// current members: average word and entity counts, the dominant category,
// the union of tags and sources, and the mean publish time.
func (e *Engine) RecomputeCentroid(clusterID int64) error {
	articles, err := e.store.GetClusterArticles(clusterID)
	if err != nil {
		return fmt.Errorf("load cluster %d articles: %w", clusterID, err)
	}
	if len(articles) == 0 {
		return nil
	}

	cluster, err := e.store.GetCluster(clusterID)
	if err != nil {
		return fmt.Errorf("load cluster %d: %w", clusterID, err)
	}

	var totalWords, totalEntities int
	var publishedSum int64
	categoryCount := make(map[string]int)
	tagSet := make(map[string]bool)
	sourceSet := make(map[string]bool)

	for _, a := range articles {
		totalWords += wordCount(a.Content)
		totalEntities += len(a.Entities)
		publishedSum += a.PublishedAt.Unix()
		categoryCount[a.Category]++
		for _, t := range a.Tags {
			tagSet[strings.ToLower(t)] = true
		}
		sourceSet[a.Source] = true
	}

	n := float64(len(articles))
	cluster.AvgWordCount = float64(totalWords) / n
	cluster.AvgEntityCount = float64(totalEntities) / n
	cluster.Category = dominantKey(categoryCount)
	cluster.Tags = sortedKeys(tagSet)
	cluster.Sources = sortedKeys(sourceSet)
	mean := time.Unix(publishedSum/int64(len(articles)), 0).UTC()
	cluster.MeanPublishedAt = &mean

	return e.store.UpdateClusterCentroid(cluster)
}

// MergeAdjacentClusters is the periodic offline maintenance pass: clusters
// in the same category whose tag and source overlap reaches the merge
// threshold are folded together. Returns the number of merges performed.
func (e *Engine) MergeAdjacentClusters(limit int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if limit <= 0 {
		limit = 500
	}
	clusters, err := e.store.ListClusters(limit, 0)
	if err != nil {
		return 0, fmt.Errorf("list clusters: %w", err)
	}

	merged := make(map[int64]bool)
	count := 0
	for i := range clusters {
		if merged[clusters[i].ID] {
			continue
		}
		absorbed := false
		for j := i + 1; j < len(clusters); j++ {
			if merged[clusters[j].ID] {
				continue
			}
			if clusters[i].Category != clusters[j].Category {
				continue
			}
			if clusterSimilarity(&clusters[i], &clusters[j]) < clusterMergeThreshold {
				continue
			}
			if err := e.store.MergeClusters(clusters[i].ID, clusters[j].ID); err != nil {
				log.Printf("dedup: merge clusters %d<-%d: %v", clusters[i].ID, clusters[j].ID, err)
				continue
			}
			merged[clusters[j].ID] = true
			absorbed = true
			count++
		}
		if absorbed {
			if err := e.RecomputeCentroid(clusters[i].ID); err != nil {
				log.Printf("dedup: recompute centroid %d: %v", clusters[i].ID, err)
			}
		}
	}
	return count, nil
}

// clusterSimilarity blends tag and source overlap for same-category
// clusters. Both clusters covering one story from the same outlets with the
// same tags score 1.0.
func clusterSimilarity(a, b *storage.Cluster) float64 {
	return 0.5*jaccard(lowerSet(a.Tags), lowerSet(b.Tags)) +
		0.5*jaccard(lowerSet(a.Sources), lowerSet(b.Sources))
}

func dominantKey(counts map[string]int) string {
	best := ""
	bestN := 0
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best = k
			bestN = n
		}
	}
	return best
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
