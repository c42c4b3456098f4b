package interfaces

import (
	"context"
	"time"
)

// MemoryVector is one embedded narrative memory. Vectors are created once
// per committed agent turn and never mutated afterwards.
type MemoryVector struct {
	ID        string    `json:"id"`
	TurnID    string    `json:"turn_id"`
	Text      string    `json:"text"`
	Embedding []float64 `json:"embedding"`
	Timestamp time.Time `json:"timestamp"`
}

// MemorySearchResult is a retrieved memory with its similarity score
type MemorySearchResult struct {
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
	TurnID     string  `json:"turn_id"`
}

// VectorStore persists embedded memories and answers nearest-neighbor
// queries. Both operations fail soft: memory is an enrichment, not a hard
// dependency of narrative continuation.
type VectorStore interface {
	// Save embeds text and appends a memory vector, evicting the oldest
	// entry when the capacity bound is exceeded
	Save(ctx context.Context, text, turnID string) error

	// Search returns up to topK memories by descending cosine similarity,
	// filtered to the configured minimum threshold
	Search(ctx context.Context, query string, topK int) []MemorySearchResult

	// Export returns all stored vectors for save-slot serialization
	Export() []MemoryVector

	// Import replaces the store contents wholesale
	Import(vectors []MemoryVector)

	// Clear removes all stored vectors
	Clear()
}
