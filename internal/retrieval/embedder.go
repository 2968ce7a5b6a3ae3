package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/BlockchainHB/fbabossdiscord/internal/engine"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyEmbedding is returned when the backend yields a zero-length vector.
var ErrEmptyEmbedding = errors.New("empty embedding")

// Embedder turns text into vectors with a fixed embedding model.
type Embedder struct {
	engine engine.Engine
	model  string
}

// NewEmbedder creates an Embedder using the given Engine and model name.
func NewEmbedder(e engine.Engine, model string) *Embedder {
	return &Embedder{engine: e, model: model}
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(vec) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return vec, nil
}

// embedBatchSize caps the number of texts sent in one batch request.
const embedBatchSize = 16

// EmbedBatch embeds texts preserving input order. Backends with a native
// batch endpoint get requests of up to embedBatchSize texts; otherwise texts
// are embedded one by one, at most four in flight. Returns nil (not error)
// for empty input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if b, ok := e.engine.(engine.BatchEmbedder); ok {
		return e.embedNative(ctx, b, texts)
	}

	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Embedder) embedNative(ctx context.Context, b engine.BatchEmbedder, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		vecs, err := b.EmbedBatch(ctx, e.model, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding texts %d-%d: %w", start, end-1, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedding texts %d-%d: got %d vectors", start, end-1, len(vecs))
		}
		for i, v := range vecs {
			if len(v) == 0 {
				return nil, fmt.Errorf("text %d: %w", start+i, ErrEmptyEmbedding)
			}
		}
		results = append(results, vecs...)
	}
	return results, nil
}
