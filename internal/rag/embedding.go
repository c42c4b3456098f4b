package rag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"kotonoha/internal/config"
	"kotonoha/internal/interfaces"
)

const cacheTTL = 24 * time.Hour

// Embedder turns text into a fixed-length vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EmbeddingCache stores cached embeddings
type EmbeddingCache struct {
	cache map[string]*CachedEmbedding
	mu    sync.RWMutex
}

// CachedEmbedding holds a cached embedding with expiration
type CachedEmbedding struct {
	Vector    []float64
	CreatedAt time.Time
}

// Put caches an embedding
func (c *EmbeddingCache) Put(text string, vector []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[text] = &CachedEmbedding{
		Vector:    vector,
		CreatedAt: time.Now(),
	}
}

// Get retrieves a non-expired embedding from the cache
func (c *EmbeddingCache) Get(text string) ([]float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, ok := c.cache[text]
	if !ok {
		return nil, false
	}
	if time.Since(cached.CreatedAt) > cacheTTL {
		return nil, false
	}
	return cached.Vector, true
}

// OpenAIEmbedder generates embeddings through the OpenAI API with a
// TTL cache in front of it
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	cache  *EmbeddingCache
}

// NewOpenAIEmbedder creates the embedding provider
func NewOpenAIEmbedder(cfg config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding: %w", interfaces.ErrMissingCredential)
	}

	return &OpenAIEmbedder{
		client: openai.NewClient(cfg.APIKey),
		model:  openai.EmbeddingModel(cfg.Model),
		cache:  &EmbeddingCache{cache: make(map[string]*CachedEmbedding)},
	}, nil
}

// Embed generates an embedding for a single text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if vec, ok := e.cache.Get(text); ok {
		return vec, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding generated")
	}

	vec := make([]float64, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float64(v)
	}

	e.cache.Put(text, vec)
	return vec, nil
}

// CacheSize returns the number of cached embeddings
func (e *OpenAIEmbedder) CacheSize() int {
	e.cache.mu.RLock()
	defer e.cache.mu.RUnlock()
	return len(e.cache.cache)
}
