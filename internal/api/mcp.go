package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/BlockchainHB/fbabossdiscord/internal/ingest"
	"github.com/BlockchainHB/fbabossdiscord/internal/namespace"
	"github.com/BlockchainHB/fbabossdiscord/internal/pipeline"
	"github.com/BlockchainHB/fbabossdiscord/internal/queue"
	"github.com/BlockchainHB/fbabossdiscord/internal/retrieval"
)

// MCPEmbedder embeds search queries for the MCP layer.
type MCPEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MCPSearcher runs a multi-namespace similarity search.
type MCPSearcher interface {
	Search(ctx context.Context, embedding []float32, namespaces []string, topK int, minScore float64) ([]retrieval.Match, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Queue    JobQueue
	Embedder MCPEmbedder
	Searcher MCPSearcher
	Catalog  *namespace.Catalog
	Ingest   Ingester // optional; if nil, add_document is not registered
	MinScore float64
}

const mcpUserID = "mcp"

// NewMCPServer creates an MCP server with the question-answering tools and
// the namespace catalog registered.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"fbaboss",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("fbaboss answers Amazon FBA course questions from a namespaced knowledge base."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_question",
			mcp.WithDescription("Answer a question from the course knowledge base. Counts against the caller's rate limit."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithString("user_id", mcp.Description("Identifier of the asking user (default \"mcp\")")),
			mcp.WithString("language", mcp.Description("Answer language (default English)")),
		),
		mcpAskQuestion(deps),
	)

	s.AddTool(
		mcp.NewTool("search_knowledge",
			mcp.WithDescription("Semantically search the knowledge base and return the best matching entries."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithString("namespaces", mcp.Description("Comma-separated namespaces to search (default all)")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchKnowledge(deps),
	)

	if deps.Ingest != nil {
		s.AddTool(
			mcp.NewTool("add_document",
				mcp.WithDescription("Store a text document in a namespace for later retrieval."),
				mcp.WithString("content", mcp.Description("The text content to store"), mcp.Required()),
				mcp.WithString("title", mcp.Description("Title for the document")),
				mcp.WithString("namespace", mcp.Description("Target namespace (default namespace if omitted)")),
			),
			mcpAddDocument(deps),
		)
	}

	s.AddResource(
		mcp.NewResource(
			"catalog://namespaces",
			"Namespace Catalog",
			mcp.WithResourceDescription("Knowledge base namespaces and their descriptions"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceNamespaces(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"queue://stats",
			"Queue Stats",
			mcp.WithResourceDescription("Waiting and active question jobs"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceQueue(deps),
	)

	return s
}

func mcpAskQuestion(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		qr := pipeline.QuestionRequest{
			Question: question,
			UserID:   req.GetString("user_id", mcpUserID),
			Language: req.GetString("language", ""),
		}
		id, err := deps.Queue.Enqueue(qr, queue.EnqueueOptions{})
		if errors.Is(err, queue.ErrRateLimited) {
			st := deps.Queue.CheckRateLimit(qr.UserID, queue.ScopeKey(qr.Scope))
			return mcpError(fmt.Sprintf("rate limit exceeded, try again after %s", st.ResetAt.Format("15:04:05"))), nil
		}
		if err != nil {
			return mcpError(err.Error()), nil
		}

		res, err := deps.Queue.Run(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("answering failed: %v", err)), nil
		}
		if res == nil {
			return mcpError("job finished before its result could be collected"), nil
		}

		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

type searchHit struct {
	ID        string  `json:"id"`
	Namespace string  `json:"namespace"`
	Title     string  `json:"title"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}

func mcpSearchKnowledge(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 20 {
			limit = 20
		}

		namespaces := deps.Catalog.Names()
		if raw := req.GetString("namespaces", ""); raw != "" {
			namespaces = namespaces[:0:0]
			for _, ns := range strings.Split(raw, ",") {
				ns = strings.TrimSpace(ns)
				if !deps.Catalog.Has(ns) {
					return mcpError(fmt.Sprintf("unknown namespace %q", ns)), nil
				}
				namespaces = append(namespaces, ns)
			}
		}

		vec, err := deps.Embedder.Embed(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("embedding query failed: %v", err)), nil
		}
		matches, err := deps.Searcher.Search(ctx, vec, namespaces, limit, deps.MinScore)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(matches) == 0 {
			return mcpText("[]"), nil
		}

		hits := make([]searchHit, len(matches))
		for i, m := range matches {
			hits[i] = searchHit{
				ID:        m.ID,
				Namespace: m.Namespace,
				Title:     m.Metadata.Title(),
				Text:      m.Metadata.Body(),
				Score:     m.Score,
			}
		}

		b, err := json.Marshal(hits)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		res, err := deps.Ingest.Submit(ctx, ingest.Request{
			Namespace: req.GetString("namespace", ""),
			Title:     req.GetString("title", ""),
			Content:   content,
			Source:    "mcp",
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to store document: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Stored document %s", res.DocumentID)), nil
	}
}

func mcpResourceNamespaces(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(map[string]any{
			"default":    deps.Catalog.Default(),
			"namespaces": deps.Catalog.List(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal catalog: %w", err)
		}
		return jsonResource(req.Params.URI, b), nil
	}
}

func mcpResourceQueue(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Queue.Stats())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
		}
		return jsonResource(req.Params.URI, b), nil
	}
}

func jsonResource(uri string, b []byte) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
