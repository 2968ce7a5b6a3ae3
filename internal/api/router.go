package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BlockchainHB/fbabossdiscord/internal/ingest"
	"github.com/BlockchainHB/fbabossdiscord/internal/namespace"
	"github.com/BlockchainHB/fbabossdiscord/internal/pipeline"
	"github.com/BlockchainHB/fbabossdiscord/internal/queue"
	"github.com/BlockchainHB/fbabossdiscord/internal/storage"
)

// JobQueue is the question queue as seen by the HTTP layer.
type JobQueue interface {
	CheckRateLimit(userID, scope string) queue.RateLimitStatus
	Enqueue(req pipeline.QuestionRequest, opts queue.EnqueueOptions) (string, error)
	Run(ctx context.Context, jobID string) (*pipeline.QAResult, error)
	Stats() queue.Stats
}

// Ingester stores documents for embedding.
type Ingester interface {
	Submit(ctx context.Context, req ingest.Request) (ingest.Result, error)
}

// VectorIndex is the part of the vector store the API manages directly.
type VectorIndex interface {
	DeleteBySource(ctx context.Context, sourceID string) (int, error)
	Namespaces(ctx context.Context) (map[string]int, error)
}

type Deps struct {
	Store   *storage.Store
	Queue   JobQueue
	Ingest  Ingester
	Catalog *namespace.Catalog
	Vectors VectorIndex // optional; if nil, vector cleanup and counts are skipped
	Token   string
}

// NewHandler returns the HTTP API. Everything except /health requires the
// bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/v1/ask", handleAsk(deps))
		r.Get("/v1/rate-limit", handleRateLimit(deps))
		r.Get("/v1/queue", handleQueueStats(deps))
		r.Get("/v1/usage", handleUsage(deps))

		r.Get("/namespaces", handleNamespaces(deps))
		r.Get("/conversations/{id}/messages", handleConversationMessages(deps))

		r.Post("/ingest", handleIngest(deps))
		r.Get("/documents", handleListDocuments(deps))
		r.Delete("/documents/{id}", handleDeleteDocument(deps))
	})

	return r
}
