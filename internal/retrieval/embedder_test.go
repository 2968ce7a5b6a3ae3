package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/BlockchainHB/fbabossdiscord/internal/engine"
)

// mockEngine implements engine.Engine for testing.
type mockEngine struct {
	embedFn func(ctx context.Context, model string, text string) ([]float32, error)
}

func (m *mockEngine) Complete(_ context.Context, _ string, _ engine.CompletionRequest) (engine.Completion, error) {
	return engine.Completion{}, fmt.Errorf("not implemented")
}
func (m *mockEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return m.embedFn(ctx, model, text)
}
func (m *mockEngine) IsRunning(_ context.Context) bool          { return false }
func (m *mockEngine) HasModel(_ context.Context, _ string) bool { return false }
func (m *mockEngine) PullModel(_ context.Context, _ string, _ func(engine.PullProgress)) error {
	return fmt.Errorf("not implemented")
}

func makeVector(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(i) * 0.001
	}
	return v
}

func TestEmbed_ReturnsDimension(t *testing.T) {
	mock := &mockEngine{
		embedFn: func(_ context.Context, model string, _ string) ([]float32, error) {
			if model != "nomic-embed-text" {
				t.Errorf("model = %q", model)
			}
			return makeVector(384), nil
		},
	}
	vec, err := NewEmbedder(mock, "nomic-embed-text").Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 384 {
		t.Errorf("got %d dimensions, want 384", len(vec))
	}
}

func TestEmbed_EmptyVector(t *testing.T) {
	mock := &mockEngine{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) { return nil, nil },
	}
	_, err := NewEmbedder(mock, "m").Embed(context.Background(), "hello")
	if !errors.Is(err, ErrEmptyEmbedding) {
		t.Fatalf("err = %v, want ErrEmptyEmbedding", err)
	}
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	mock := &mockEngine{
		embedFn: func(_ context.Context, _ string, text string) ([]float32, error) {
			return []float32{float32(len(text))}, nil
		},
	}
	vecs, err := NewEmbedder(mock, "m").EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	for i, v := range vecs {
		if v[0] != float32(i+1) {
			t.Errorf("vecs[%d] = %v, want [%d]", i, v, i+1)
		}
	}
}

func TestEmbedBatch_Error(t *testing.T) {
	mock := &mockEngine{
		embedFn: func(_ context.Context, _ string, text string) ([]float32, error) {
			if text == "b" {
				return nil, errors.New("embedding failed")
			}
			return makeVector(8), nil
		},
	}
	_, err := NewEmbedder(mock, "m").EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err == nil || !strings.Contains(err.Error(), "embedding failed") {
		t.Fatalf("err = %v, want embedding failed", err)
	}
}

func TestEmbedBatch_EmptyInput(t *testing.T) {
	mock := &mockEngine{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			t.Fatal("should not be called for empty input")
			return nil, nil
		},
	}
	vecs, err := NewEmbedder(mock, "m").EmbedBatch(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("EmbedBatch(nil) = %v, %v", vecs, err)
	}
}

// batchEngine adds a native batch endpoint to mockEngine.
type batchEngine struct {
	mockEngine
	calls [][]string
}

func (b *batchEngine) EmbedBatch(_ context.Context, _ string, texts []string) ([][]float32, error) {
	b.calls = append(b.calls, texts)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text))}
	}
	return out, nil
}

func TestEmbedBatch_NativeBatches(t *testing.T) {
	eng := &batchEngine{mockEngine: mockEngine{
		embedFn: func(context.Context, string, string) ([]float32, error) {
			t.Fatal("single Embed used despite native batching")
			return nil, nil
		},
	}}

	texts := make([]string, embedBatchSize+3)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}
	vecs, err := NewEmbedder(eng, "m").EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(eng.calls) != 2 || len(eng.calls[0]) != embedBatchSize || len(eng.calls[1]) != 3 {
		t.Errorf("batch sizes = %d calls", len(eng.calls))
	}
	for i, v := range vecs {
		if v[0] != float32(i+1) {
			t.Fatalf("vecs[%d] = %v, want [%d]", i, v, i+1)
		}
	}
}

type shortBatchEngine struct{ mockEngine }

func (shortBatchEngine) EmbedBatch(_ context.Context, _ string, texts []string) ([][]float32, error) {
	return [][]float32{{1}}, nil
}

func TestEmbedBatch_NativeCountMismatch(t *testing.T) {
	_, err := NewEmbedder(&shortBatchEngine{}, "m").EmbedBatch(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error when the backend returns too few vectors")
	}
}
