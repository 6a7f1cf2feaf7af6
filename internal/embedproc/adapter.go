package embedproc

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	embedding "github.com/matthewjhunter/go-embedding"
	"github.com/ollama/ollama/api"

	"github.com/aakash-priyadarshi/news-duplication-system/internal/storage"
)

const (
	embedTimeout    = 30 * time.Second
	validateTimeout = 60 * time.Second
	maxEmbedChars   = 4000
)

// Validation is the parsed verdict of an LLM duplicate comparison.
type Validation struct {
	IsDuplicate bool    `json:"is_duplicate"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
}

// Adapter produces dense vectors and optional LLM duplicate validation,
// degrading gracefully when the provider is unreachable: Embed falls back
// to a deterministic pseudo-vector, Validate to a nil verdict.
type Adapter struct {
	embedder  embedding.Embedder
	client    *api.Client
	model     string
	dimension int

	mu    sync.Mutex
	cache *lruCache
	store storage.Store
}

// ollamaEmbedder adapts the Ollama embeddings endpoint to the
// embedding.Embedder interface.
type ollamaEmbedder struct {
	client *api.Client
	model  string
}

func (o *ollamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d texts", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

func (o *ollamaEmbedder) Model() string { return o.model }

// NewAdapter creates an adapter backed by an Ollama instance. The client is
// created eagerly but only contacted when called.
func NewAdapter(baseURL, embedModel, validationModel string, dimension, cacheSize int, store storage.Store) (*Adapter, error) {
	var client *api.Client
	if baseURL != "" {
		parsedURL, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		client = api.NewClient(parsedURL, http.DefaultClient)
	} else {
		envClient, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client from environment: %w", err)
		}
		client = envClient
	}

	a := &Adapter{
		client:    client,
		model:     validationModel,
		dimension: dimension,
		cache:     newLRUCache(cacheSize),
		store:     store,
	}
	a.embedder = &ollamaEmbedder{client: client, model: embedModel}
	return a, nil
}

// NewAdapterWithEmbedder creates an adapter around an arbitrary embedder,
// with LLM validation disabled. Used by tests.
func NewAdapterWithEmbedder(embedder embedding.Embedder, dimension, cacheSize int, store storage.Store) *Adapter {
	return &Adapter{
		embedder:  embedder,
		dimension: dimension,
		cache:     newLRUCache(cacheSize),
		store:     store,
	}
}

// Embed returns a dense vector for the article's text. Lookup order:
// in-process LRU, persisted per-article vector, provider. A provider
// failure yields a deterministic pseudo-vector so downstream similarity
// degrades instead of failing. The returned bool is false for fallback
// vectors, which are never cached or persisted.
func (a *Adapter) Embed(ctx context.Context, articleID int64, text string) ([]float32, bool) {
	if text == "" {
		return a.pseudoVector(text), false
	}
	if len(text) > maxEmbedChars {
		text = text[:maxEmbedChars]
	}
	key := cacheKey(text)

	a.mu.Lock()
	if vec, ok := a.cache.get(key); ok {
		a.mu.Unlock()
		return vec, true
	}
	a.mu.Unlock()

	if a.store != nil && articleID > 0 {
		if rec, err := a.store.GetEmbeddingByArticle(articleID); err == nil && rec != nil {
			vec := embedding.DecodeFloat32s(rec.Vector)
			a.mu.Lock()
			a.cache.put(key, vec)
			a.mu.Unlock()
			return vec, true
		}
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	vec, err := embedding.Single(embedCtx, a.embedder, text)
	if err != nil || len(vec) == 0 {
		log.Printf("embed: provider unavailable, using pseudo-vector: %v", err)
		return a.pseudoVector(text), false
	}

	a.mu.Lock()
	a.cache.put(key, vec)
	a.mu.Unlock()

	if a.store != nil && articleID > 0 {
		rec := &storage.EmbeddingRecord{
			ArticleID:  articleID,
			Vector:     embedding.EncodeFloat32s(vec),
			Model:      a.embedder.Model(),
			TextLength: len(text),
		}
		if err := a.store.PutEmbedding(rec); err != nil {
			log.Printf("embed: persist vector for article %d: %v", articleID, err)
		}
	}
	return vec, true
}

// Similarity is the cosine similarity of two vectors.
func Similarity(a, b []float32) float64 {
	return embedding.CosineSimilarity(a, b)
}

// pseudoVector derives a deterministic vector from text token features.
// Tokens are hashed into dimension buckets and the result is L2-normalized,
// giving a cheap bag-of-words surrogate for cosine similarity.
func (a *Adapter) pseudoVector(text string) []float32 {
	dim := a.dimension
	if dim <= 0 {
		dim = 256
	}
	vec := make([]float32, dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(token))
		bucket := (int(sum[0])<<16 | int(sum[1])<<8 | int(sum[2])) % dim
		// Sign from another hash byte spreads tokens across both halves
		// of each axis, keeping unrelated texts near-orthogonal.
		if sum[3]%2 == 0 {
			vec[bucket]++
		} else {
			vec[bucket]--
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

// ValidateDuplicate asks the LLM whether two articles cover the same story.
// Any provider or parse failure returns nil; the caller's algorithmic
// decision stands.
func (a *Adapter) ValidateDuplicate(ctx context.Context, titleA, contentA, titleB, contentB string) *Validation {
	if a.client == nil || a.model == "" {
		return nil
	}

	prompt := fmt.Sprintf(`You are comparing two news articles to decide whether they report the same story.

Article 1 title: %s
Article 1 content: %s

Article 2 title: %s
Article 2 content: %s

Two articles are duplicates when they cover the same underlying event, even with different wording. A follow-up development is NOT a duplicate.

Respond ONLY with valid JSON in this exact format:
{
  "is_duplicate": true/false,
  "confidence": <0.0-1.0>,
  "reasoning": "<brief explanation>"
}`,
		titleA, truncateText(contentA, 1500),
		titleB, truncateText(contentB, 1500))

	callCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req := &api.GenerateRequest{
		Model:  a.model,
		Prompt: prompt,
		Stream: new(bool), // false
		Options: map[string]interface{}{
			"temperature": 0.1,
		},
	}

	var fullResponse strings.Builder
	err := a.client.Generate(callCtx, req, func(resp api.GenerateResponse) error {
		fullResponse.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		log.Printf("validate: provider unavailable: %v", err)
		return nil
	}

	return parseValidation(fullResponse.String())
}

// parseValidation extracts the first balanced JSON object from an LLM
// response. Missing or ill-formed fields coerce to safe defaults
// (not a duplicate, zero confidence); an unparseable response yields nil.
func parseValidation(text string) *Validation {
	extracted := extractJSON(text)

	var raw struct {
		IsDuplicate *bool    `json:"is_duplicate"`
		Confidence  *float64 `json:"confidence"`
		Reasoning   string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(extracted), &raw); err != nil {
		return nil
	}

	v := &Validation{Reasoning: raw.Reasoning}
	if raw.IsDuplicate != nil {
		v.IsDuplicate = *raw.IsDuplicate
	}
	if raw.Confidence != nil {
		v.Confidence = *raw.Confidence
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	return v
}

// extractJSON attempts to extract the first balanced JSON object from a
// text response that might contain extra prose around it.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return text
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text[start:]
}

// truncateText truncates text to maxLen characters
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return string(sum[:])
}
