package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/BlockchainHB/fbabossdiscord/internal/storage"
)

// JobType is the background job that embeds a stored document.
const JobType = "ingest_embed"

const (
	maxURLFetchSize = 5 << 20
	fetchTimeout    = 10 * time.Second
)

var (
	// ErrInvalidRequest marks requests rejected before anything is stored.
	ErrInvalidRequest = errors.New("invalid ingest request")
	// ErrFetchFailed is returned when a URL source cannot be retrieved.
	ErrFetchFailed = errors.New("fetching url failed")
)

// Request describes one document to add to the knowledge base.
type Request struct {
	Namespace   string         `json:"namespace"`
	Type        string         `json:"type"` // "text", "url" or "file"
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Content     string         `json:"content"`
	URL         string         `json:"url"`
	Source      string         `json:"source"`
	Metadata    map[string]any `json:"metadata"`
}

// Result identifies the stored document and its embedding job.
type Result struct {
	DocumentID string `json:"id"`
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
}

// DocumentStore persists documents and schedules their embedding.
type DocumentStore interface {
	SaveDocument(ctx context.Context, d storage.Document) error
	EnqueueJob(ctx context.Context, job storage.Job) error
}

// Namespaces validates target namespaces.
type Namespaces interface {
	Has(name string) bool
	Default() string
}

// Service turns ingest requests into stored documents and queued jobs.
type Service struct {
	store      DocumentStore
	namespaces Namespaces
	client     *http.Client
}

// NewService creates a Service. A nil client uses http.DefaultClient.
func NewService(store DocumentStore, namespaces Namespaces, client *http.Client) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	return &Service{store: store, namespaces: namespaces, client: client}
}

// Submit resolves the request content, saves the document and enqueues an
// embedding job for it.
func (s *Service) Submit(ctx context.Context, req Request) (Result, error) {
	if req.Type == "" {
		req.Type = "text"
	}
	if req.Namespace == "" {
		req.Namespace = s.namespaces.Default()
	}
	if !s.namespaces.Has(req.Namespace) {
		return Result{}, fmt.Errorf("%w: unknown namespace %q", ErrInvalidRequest, req.Namespace)
	}
	if req.Source == "" {
		return Result{}, fmt.Errorf("%w: source is required", ErrInvalidRequest)
	}

	content, err := s.resolve(ctx, &req)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(content) == "" {
		return Result{}, fmt.Errorf("%w: document has no text content", ErrInvalidRequest)
	}

	metaJSON := "{}"
	if len(req.Metadata) > 0 {
		b, err := json.Marshal(req.Metadata)
		if err != nil {
			return Result{}, fmt.Errorf("%w: metadata: %v", ErrInvalidRequest, err)
		}
		metaJSON = string(b)
	}

	doc := storage.Document{
		ID:           uuid.New().String(),
		Namespace:    req.Namespace,
		Type:         req.Type,
		Title:        req.Title,
		Description:  req.Description,
		Content:      content,
		Source:       req.Source,
		MetadataJSON: metaJSON,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.SaveDocument(ctx, doc); err != nil {
		return Result{}, fmt.Errorf("saving document: %w", err)
	}

	payload, err := json.Marshal(jobPayload{DocumentID: doc.ID})
	if err != nil {
		return Result{}, fmt.Errorf("creating job payload: %w", err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        JobType,
		PayloadJSON: string(payload),
	}
	if err := s.store.EnqueueJob(ctx, job); err != nil {
		return Result{}, fmt.Errorf("enqueueing job: %w", err)
	}

	return Result{DocumentID: doc.ID, JobID: job.ID, Status: "queued"}, nil
}

func (s *Service) resolve(ctx context.Context, req *Request) (string, error) {
	switch req.Type {
	case "text":
		if req.Content == "" {
			return "", fmt.Errorf("%w: content is required", ErrInvalidRequest)
		}
		return req.Content, nil

	case "url":
		if req.URL == "" {
			return "", fmt.Errorf("%w: url is required", ErrInvalidRequest)
		}
		text, title, err := s.fetch(ctx, req.URL)
		if err != nil {
			return "", err
		}
		if req.Title == "" {
			req.Title = title
		}
		if req.Title == "" {
			req.Title = req.URL
		}
		return text, nil

	case "file":
		if req.Content == "" {
			return "", fmt.Errorf("%w: content is required", ErrInvalidRequest)
		}
		data, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			return "", fmt.Errorf("%w: invalid base64 content", ErrInvalidRequest)
		}
		return decodeFile(data)

	default:
		return "", fmt.Errorf("%w: unsupported type %q", ErrInvalidRequest, req.Type)
	}
}

func (s *Service) fetch(ctx context.Context, url string) (text, title string, err error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("%w: invalid url: %v", ErrInvalidRequest, err)
	}
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("%w: url returned status %d", ErrFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxURLFetchSize))
	if err != nil {
		return "", "", fmt.Errorf("%w: reading response: %v", ErrFetchFailed, err)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/pdf" || IsPDF(body):
		text, err := PDFText(body)
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}
		return text, "", nil
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return HTMLText(strings.NewReader(string(body)))
	default:
		return string(body), "", nil
	}
}

func decodeFile(data []byte) (string, error) {
	if IsPDF(data) {
		text, err := PDFText(data)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return text, nil
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: file is neither PDF nor UTF-8 text", ErrInvalidRequest)
	}
	return string(data), nil
}
