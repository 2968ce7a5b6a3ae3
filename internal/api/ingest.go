package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BlockchainHB/fbabossdiscord/internal/ingest"
	"github.com/BlockchainHB/fbabossdiscord/internal/storage"
)

const maxIngestBodySize = 10 << 20 // 10MB

func handleIngest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodySize)
		defer r.Body.Close()

		var req ingest.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		res, err := deps.Ingest.Submit(r.Context(), req)
		switch {
		case errors.Is(err, ingest.ErrInvalidRequest):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case errors.Is(err, ingest.ErrFetchFailed):
			httpError(w, http.StatusBadGateway, "api_error", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

type namespaceInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Vectors     int    `json:"vectors"`
	Default     bool   `json:"default,omitempty"`
}

func handleNamespaces(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var counts map[string]int
		if deps.Vectors != nil {
			var err error
			counts, err = deps.Vectors.Namespaces(r.Context())
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to count vectors: %v", err)
				return
			}
		}

		list := deps.Catalog.List()
		out := make([]namespaceInfo, len(list))
		for i, ns := range list {
			out[i] = namespaceInfo{
				Name:        ns.Name,
				Description: ns.Description,
				Vectors:     counts[ns.Name],
				Default:     ns.Name == deps.Catalog.Default(),
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type messageView struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type conversationView struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Title     string        `json:"title"`
	UpdatedAt time.Time     `json:"updated_at"`
	Messages  []messageView `json:"messages"`
}

func handleConversationMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		conv, err := deps.Store.GetConversation(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get conversation: %v", err)
			return
		}

		msgs, err := deps.Store.ListMessages(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list messages: %v", err)
			return
		}

		view := conversationView{
			ID:        conv.ID,
			UserID:    conv.UserID,
			Title:     conv.Title,
			UpdatedAt: conv.UpdatedAt,
			Messages:  make([]messageView, len(msgs)),
		}
		for i, m := range msgs {
			view.Messages[i] = messageView{ID: m.ID, Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt}
		}
		writeJSON(w, http.StatusOK, view)
	}
}

type documentView struct {
	ID        string    `json:"id"`
	Namespace string    `json:"namespace"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	Embedded  bool      `json:"embedded"`
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		docs, err := deps.Store.ListDocuments(r.Context(), r.URL.Query().Get("namespace"), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}

		out := make([]documentView, len(docs))
		for i, d := range docs {
			out[i] = documentView{
				ID:        d.ID,
				Namespace: d.Namespace,
				Type:      d.Type,
				Title:     d.Title,
				Source:    d.Source,
				CreatedAt: d.CreatedAt,
				Embedded:  d.VectorID != "",
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleDeleteDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		doc, err := deps.Store.GetDocument(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get document: %v", err)
			return
		}

		if deps.Vectors != nil && doc.VectorID != "" {
			if _, err := deps.Vectors.DeleteBySource(r.Context(), id); err != nil {
				slog.Warn("failed to delete document vectors", "document_id", id, "error", err)
			}
		}

		if err := deps.Store.DeleteDocument(r.Context(), id); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete document: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
