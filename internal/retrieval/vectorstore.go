package retrieval

import (
	"context"
	"time"
)

// VectorStore is the similarity search contract consumed by the Searcher.
// It is called once per namespace and needs no knowledge of which other
// namespaces exist.
type VectorStore interface {
	// Search returns the topK records of namespace most similar to vector.
	// filter restricts results to records whose metadata fields equal the
	// given values; nil means no filtering.
	Search(ctx context.Context, namespace string, vector []float32, topK int, filter Filter) ([]ScoredRecord, error)
}

// Filter is an equality predicate over metadata fields.
type Filter map[string]string

// Matches reports whether md satisfies every condition in f.
func (f Filter) Matches(md Metadata) bool {
	for k, want := range f {
		v, ok := md.Field(k)
		if !ok || v.Str() != want {
			return false
		}
	}
	return true
}

// Record represents one embedded knowledge-base entry.
type Record struct {
	ID        string
	Namespace string
	SourceID  string
	Metadata  Metadata
	Embedding []float32
	CreatedAt time.Time
}

// ScoredRecord is a Record with its cosine similarity to the query.
type ScoredRecord struct {
	Record
	Score float32
}
