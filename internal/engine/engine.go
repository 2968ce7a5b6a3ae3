package engine

import "context"

// Engine abstracts the generation backend (Ollama or any OpenAI-compatible
// server). The QA pipeline, namespace router and ingest worker use this
// interface instead of depending on a concrete client.
type Engine interface {
	// Complete sends messages to the given model and returns the generated
	// text together with the backend's token usage.
	Complete(ctx context.Context, model string, req CompletionRequest) (Completion, error)

	// Embed returns the embedding vector for the given text using the specified model.
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool

	// HasModel reports whether the given model name is available.
	HasModel(ctx context.Context, name string) bool

	// PullModel downloads a model. The optional callback receives progress updates.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

// BatchEmbedder is implemented by backends that embed several texts in one
// request. Results are in input order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error)
}

var (
	_ BatchEmbedder = (*OllamaEngine)(nil)
	_ BatchEmbedder = (*OpenAIEngine)(nil)
)
