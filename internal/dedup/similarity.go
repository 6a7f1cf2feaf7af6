package dedup

import (
	"math"
	"sort"
	"strings"

	"github.com/aakash-priyadarshi/news-duplication-system/internal/normalize"
	"github.com/aakash-priyadarshi/news-duplication-system/internal/storage"
)

// Method is the closed set of duplicate-detection methods. Every threshold
// switch below handles all of them.
type Method string

const (
	MethodContentHash Method = "content_hash"
	MethodTitle       Method = "title_similarity"
	MethodContent     Method = "content_similarity"
	MethodEntity      Method = "entity_similarity"
	MethodSemantic    Method = "semantic_similarity"
)

// Per-method decision thresholds. The content method uses the configured
// similarity threshold instead.
const (
	titleThreshold    = 0.9
	semanticThreshold = 0.85
	entityThreshold   = 0.8
)

// Weights are the configurable blend of the three named signals. They must
// sum to 1.0 (validated at startup).
type Weights struct {
	Title   float64
	Content float64
	Entity  float64
}

// DefaultWeights returns the default signal blend.
func DefaultWeights() Weights {
	return Weights{Title: 0.4, Content: 0.4, Entity: 0.2}
}

// Limits bound the pairwise TF-IDF computation.
type Limits struct {
	MaxVocabularySize int
	MaxDocTokens      int
}

// Breakdown holds every per-pair signal plus the combined score and the
// method that dominated the decision.
type Breakdown struct {
	ContentHash  float64
	TitleSim     float64
	ContentSim   float64
	EntitySim    float64
	SemanticSim  float64
	TemporalProx float64
	SourceAlign  float64
	Overall      float64
	Method       Method
}

// Map flattens the breakdown for persistence in a duplicate link.
func (b Breakdown) Map() map[string]float64 {
	return map[string]float64{
		"content_hash":  b.ContentHash,
		"title_sim":     b.TitleSim,
		"content_sim":   b.ContentSim,
		"entity_sim":    b.EntitySim,
		"semantic_sim":  b.SemanticSim,
		"temporal_prox": b.TemporalProx,
		"source_align":  b.SourceAlign,
		"overall":       b.Overall,
	}
}

// Score computes all similarity signals for an article pair. semanticSim is
// supplied by the caller (embeddings are fetched outside this pure function).
func Score(a, b *storage.Article, semanticSim float64, weights Weights, limits Limits) Breakdown {
	bd := Breakdown{SemanticSim: semanticSim}

	if a.ContentHash != "" && a.ContentHash == b.ContentHash {
		bd.ContentHash = 1
		bd.TitleSim = 1
		bd.ContentSim = 1
		bd.Overall = 1
		bd.Method = MethodContentHash
		return bd
	}

	bd.TitleSim = TitleSimilarity(a.Title, b.Title)
	bd.ContentSim = ContentSimilarity(a.Content, b.Content, limits)
	bd.EntitySim = EntitySimilarity(a.Entities, b.Entities)
	bd.TemporalProx = TemporalProximity(a.PublishedAt.Sub(b.PublishedAt).Hours())
	bd.SourceAlign = SourceAlignment(a, b)

	bd.Overall = weights.Title*bd.TitleSim +
		weights.Content*bd.ContentSim +
		weights.Entity*bd.EntitySim +
		0.30*bd.SemanticSim +
		0.10*bd.TemporalProx +
		0.10*bd.SourceAlign
	if bd.Overall > 1 {
		bd.Overall = 1
	}

	bd.Method = primaryMethod(bd)
	return bd
}

// primaryMethod picks the highest-precedence signal that dominates the
// decision: hash, then near-identical titles, then semantic, then entity,
// otherwise content.
func primaryMethod(bd Breakdown) Method {
	switch {
	case bd.ContentHash == 1:
		return MethodContentHash
	case bd.TitleSim >= titleThreshold:
		return MethodTitle
	case bd.SemanticSim >= semanticThreshold:
		return MethodSemantic
	case bd.EntitySim >= entityThreshold:
		return MethodEntity
	default:
		return MethodContent
	}
}

// ThresholdFor returns the overall-score threshold the given method must
// clear. contentThreshold is the configured similarity threshold.
func ThresholdFor(method Method, contentThreshold float64) float64 {
	switch method {
	case MethodContentHash:
		return 1.0
	case MethodTitle:
		return titleThreshold
	case MethodSemantic:
		return semanticThreshold
	case MethodEntity:
		return entityThreshold
	default:
		return contentThreshold
	}
}

// TitleSimilarity blends token Jaccard (0.4) with character-bigram Dice
// (0.6) over normalized titles.
func TitleSimilarity(a, b string) float64 {
	na := normalize.NormalizeForHash(a)
	nb := normalize.NormalizeForHash(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	j := jaccard(tokenSet(na), tokenSet(nb))
	d := bigramDice(na, nb)
	return 0.4*j + 0.6*d
}

// ContentSimilarity is the TF-IDF cosine over the pairwise two-document
// corpus. Both documents are tokenized into the same vocabulary; the caps
// bound cost on very long documents.
func ContentSimilarity(a, b string, limits Limits) float64 {
	ta := contentTokens(a, limits.MaxDocTokens)
	tb := contentTokens(b, limits.MaxDocTokens)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	vocab := buildVocabulary(ta, tb, limits.MaxVocabularySize)
	if len(vocab) == 0 {
		return 0
	}

	va := tfidfVector(ta, tb, vocab)
	vb := tfidfVector(tb, ta, vocab)
	return cosine(va, vb)
}

// EntitySimilarity is the Jaccard overlap of lowercased entity names.
// Empty sets yield 0, never an error.
func EntitySimilarity(a, b []storage.Entity) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, e := range a {
		setA[strings.ToLower(e.Name)] = true
	}
	setB := make(map[string]bool, len(b))
	for _, e := range b {
		setB[strings.ToLower(e.Name)] = true
	}
	return jaccard(setA, setB)
}

// TemporalProximity maps a publish-time delta in hours to [0,1], reaching
// zero at 24 hours apart.
func TemporalProximity(deltaHours float64) float64 {
	return math.Max(0, 1-math.Abs(deltaHours)/24)
}

// SourceAlignment scores feed-level affinity: same source (0.4), same
// category (0.3), tag overlap (0.3).
func SourceAlignment(a, b *storage.Article) float64 {
	var score float64
	if a.Source != "" && a.Source == b.Source {
		score += 0.4
	}
	if a.Category != "" && a.Category == b.Category {
		score += 0.3
	}
	score += 0.3 * jaccard(lowerSet(a.Tags), lowerSet(b.Tags))
	return score
}

// --- token machinery ---

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "he": true, "her": true, "his": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "said": true, "she": true, "that": true, "the": true,
	"their": true, "they": true, "this": true, "to": true, "was": true,
	"were": true, "will": true, "with": true,
}

func tokenSet(normalized string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(normalized) {
		set[tok] = true
	}
	return set
}

func lowerSet(ss []string) map[string]bool {
	set := make(map[string]bool, len(ss))
	for _, s := range ss {
		set[strings.ToLower(s)] = true
	}
	return set
}

// contentTokens normalizes, drops stopwords and single-character tokens,
// and caps the stream length.
func contentTokens(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	fields := strings.Fields(normalize.NormalizeForHash(text))
	tokens := make([]string, 0, len(fields))
	for _, tok := range fields {
		if stopwords[tok] || len(tok) < 2 {
			continue
		}
		tokens = append(tokens, tok)
		if len(tokens) >= maxTokens {
			break
		}
	}
	return tokens
}

// buildVocabulary collects the shared term space of the pair, keeping the
// most frequent terms when the cap is exceeded.
func buildVocabulary(a, b []string, maxSize int) map[string]int {
	if maxSize <= 0 {
		maxSize = 5000
	}
	freq := make(map[string]int)
	for _, tok := range a {
		freq[tok]++
	}
	for _, tok := range b {
		freq[tok]++
	}

	terms := make([]string, 0, len(freq))
	for term := range freq {
		terms = append(terms, term)
	}
	if len(terms) > maxSize {
		sort.Slice(terms, func(i, j int) bool {
			if freq[terms[i]] != freq[terms[j]] {
				return freq[terms[i]] > freq[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:maxSize]
	}

	vocab := make(map[string]int, len(terms))
	for i, term := range terms {
		vocab[term] = i
	}
	return vocab
}

// tfidfVector computes TF-IDF weights for doc against the two-document
// corpus {doc, other}. IDF over two documents is log(2/df)+1 so shared
// terms still contribute.
func tfidfVector(doc, other []string, vocab map[string]int) []float64 {
	tf := make(map[string]float64)
	for _, tok := range doc {
		tf[tok]++
	}
	otherHas := make(map[string]bool, len(other))
	for _, tok := range other {
		otherHas[tok] = true
	}

	vec := make([]float64, len(vocab))
	for term, idx := range vocab {
		count, ok := tf[term]
		if !ok {
			continue
		}
		df := 1.0
		if otherHas[term] {
			df = 2.0
		}
		idf := math.Log(2.0/df) + 1
		vec[idx] = (count / float64(len(doc))) * idf
	}
	return vec
}

func cosine(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if b[k] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// bigramDice is the Dice coefficient over character bigrams.
func bigramDice(a, b string) float64 {
	ba := bigrams(a)
	bb := bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}
	var overlap int
	for gram, count := range ba {
		if other, ok := bb[gram]; ok {
			if other < count {
				overlap += other
			} else {
				overlap += count
			}
		}
	}
	var totalA, totalB int
	for _, c := range ba {
		totalA += c
	}
	for _, c := range bb {
		totalB += c
	}
	return 2 * float64(overlap) / float64(totalA+totalB)
}

func bigrams(s string) map[string]int {
	runes := []rune(s)
	grams := make(map[string]int)
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])]++
	}
	return grams
}
