package rag

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kotonoha/internal/interfaces"
)

// MemoryStore keeps the most recent embedded memories in a bounded ring
// and answers cosine-similarity queries against them. Both Save and
// Search fail soft when the embedding provider is unavailable: the
// narrative continues without enrichment.
type MemoryStore struct {
	embedder  Embedder
	logger    *zap.Logger
	maxSize   int
	threshold float64

	mu      sync.RWMutex
	vectors []interfaces.MemoryVector
}

// NewMemoryStore creates a memory store. embedder may be nil, in which
// case every operation degrades to a logged no-op.
func NewMemoryStore(embedder Embedder, maxSize int, threshold float64, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		embedder:  embedder,
		logger:    logger.Named("memory"),
		maxSize:   maxSize,
		threshold: threshold,
	}
}

// Save embeds text and appends a memory vector, evicting the oldest
// entry if the capacity bound is exceeded
func (s *MemoryStore) Save(ctx context.Context, text, turnID string) error {
	if s.embedder == nil {
		s.logger.Debug("no embedder configured, skipping memory save")
		return nil
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("memory save skipped", zap.Error(err))
		return nil
	}

	vec := interfaces.MemoryVector{
		ID:        uuid.NewString(),
		TurnID:    turnID,
		Text:      text,
		Embedding: embedding,
		Timestamp: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.vectors = append(s.vectors, vec)
	if len(s.vectors) > s.maxSize {
		s.vectors = s.vectors[len(s.vectors)-s.maxSize:]
	}
	return nil
}

// Search returns up to topK memories by descending cosine similarity,
// filtered to the minimum threshold, ties broken by recency
func (s *MemoryStore) Search(ctx context.Context, query string, topK int) []interfaces.MemorySearchResult {
	if s.embedder == nil {
		return nil
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("memory search skipped", zap.Error(err))
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		result interfaces.MemorySearchResult
		ts     time.Time
	}

	candidates := make([]scored, 0, len(s.vectors))
	for _, vec := range s.vectors {
		sim := CosineSimilarity(queryVec, vec.Embedding)
		if sim <= s.threshold {
			continue
		}
		candidates = append(candidates, scored{
			result: interfaces.MemorySearchResult{
				Text:       vec.Text,
				Similarity: sim,
				TurnID:     vec.TurnID,
			},
			ts: vec.Timestamp,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].result.Similarity != candidates[j].result.Similarity {
			return candidates[i].result.Similarity > candidates[j].result.Similarity
		}
		return candidates[i].ts.After(candidates[j].ts)
	})

	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]interfaces.MemorySearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = c.result
	}
	return results
}

// Export returns a copy of all stored vectors, oldest first
func (s *MemoryStore) Export() []interfaces.MemoryVector {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]interfaces.MemoryVector, len(s.vectors))
	copy(out, s.vectors)
	return out
}

// Import replaces the store contents wholesale, re-applying the
// capacity bound
func (s *MemoryStore) Import(vectors []interfaces.MemoryVector) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vectors = make([]interfaces.MemoryVector, len(vectors))
	copy(s.vectors, vectors)
	if len(s.vectors) > s.maxSize {
		s.vectors = s.vectors[len(s.vectors)-s.maxSize:]
	}
}

// Clear removes all stored vectors
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
}

// Size returns the number of stored vectors
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}
