package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BlockchainHB/fbabossdiscord/internal/retrieval"
	"github.com/BlockchainHB/fbabossdiscord/internal/storage"
)

// JobStore abstracts the persistent job table and the documents it points at.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
	GetDocument(ctx context.Context, id string) (storage.Document, error)
	SetDocumentVector(ctx context.Context, id, vectorID string) error
}

// ContentEmbedder generates embeddings for document chunks, in input order.
type ContentEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex stores document chunk vectors.
type VectorIndex interface {
	Insert(ctx context.Context, records []retrieval.Record) error
	DeleteBySource(ctx context.Context, sourceID string) (int, error)
}

// Worker processes ingest_embed jobs from the SQLite job table.
type Worker struct {
	store    JobStore
	embedder ContentEmbedder
	vectors  VectorIndex
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, embedder ContentEmbedder, vectors VectorIndex, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("ingest worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single ingest_embed job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("ingest job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type jobPayload struct {
	DocumentID string `json:"document_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload jobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	doc, err := w.store.GetDocument(ctx, payload.DocumentID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", payload.DocumentID, err)
	}

	md, err := documentMetadata(doc)
	if err != nil {
		return err
	}

	chunks := chunkText(doc.Content, chunkRunes, chunkOverlap)
	if len(chunks) == 0 {
		return fmt.Errorf("document %s has no content", doc.ID)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = embeddingText(doc.Title, c)
	}

	vecs, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding content: %w", err)
	}
	if len(vecs) != len(chunks) {
		return fmt.Errorf("embedding content: got %d vectors for %d chunks", len(vecs), len(chunks))
	}

	now := time.Now().UTC()
	records := make([]retrieval.Record, len(chunks))
	for i, c := range chunks {
		cmd := md.With("text", retrieval.String(c))
		if len(chunks) > 1 {
			cmd = cmd.With("chunk", retrieval.Number(float64(i))).
				With("chunks", retrieval.Number(float64(len(chunks))))
		}
		records[i] = retrieval.Record{
			ID:        uuid.New().String(),
			Namespace: doc.Namespace,
			SourceID:  doc.ID,
			Metadata:  cmd,
			Embedding: vecs[i],
			CreatedAt: now,
		}
	}

	// A retried job may have inserted vectors before failing.
	if _, err := w.vectors.DeleteBySource(ctx, doc.ID); err != nil {
		return fmt.Errorf("clearing old vectors: %w", err)
	}
	if err := w.vectors.Insert(ctx, records); err != nil {
		return fmt.Errorf("inserting vectors: %w", err)
	}

	if err := w.store.SetDocumentVector(ctx, doc.ID, records[0].ID); err != nil {
		return fmt.Errorf("updating vector_id: %w", err)
	}

	w.logger.Debug("document embedded", "document_id", doc.ID, "namespace", doc.Namespace, "chunks", len(records))
	return nil
}

// documentMetadata merges the document's free-form metadata with its title
// and description. Chunk text is added per record.
func documentMetadata(doc storage.Document) (retrieval.Metadata, error) {
	var md retrieval.Metadata
	if doc.MetadataJSON != "" && doc.MetadataJSON != "{}" {
		if err := json.Unmarshal([]byte(doc.MetadataJSON), &md); err != nil {
			return retrieval.Metadata{}, fmt.Errorf("parsing document metadata: %w", err)
		}
	}
	md = md.With("title", retrieval.String(doc.Title)).
		With("description", retrieval.String(doc.Description))
	if doc.Source != "" {
		md = md.With("source", retrieval.String(doc.Source))
	}
	return md.With("type", retrieval.String(doc.Type)), nil
}

func embeddingText(title, chunk string) string {
	if title == "" {
		return chunk
	}
	return title + "\n\n" + chunk
}
