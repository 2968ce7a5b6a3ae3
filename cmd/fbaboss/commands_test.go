package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
	statuses map[string]int
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{statuses: map[string]int{}}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			if code, ok := ts.statuses[key]; ok {
				w.WriteHeader(code)
			}
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestMain(m *testing.M) {
	noColor = true
	os.Exit(m.Run())
}

func TestRunAsk(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/ask": `{
			"job_id": "job-1",
			"answer": "Order three samples from different suppliers.",
			"confidence": 0.82,
			"sources": [{"id": "v1", "title": "Sampling", "namespace": "unit-4", "score": 0.91}],
			"namespaces": ["unit-4"],
			"processing_ms": 1200
		}`,
	})

	var out bytes.Buffer
	err := runAsk(ctx, ts.client(), "How many samples?", askOptions{
		UserID:  "u-1",
		GuildID: "g-1",
		Memory:  true,
	}, &out)
	if err != nil {
		t.Fatalf("runAsk: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("Authorization = %q", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("decoding request body: %v", err)
	}
	if body["question"] != "How many samples?" || body["user_id"] != "u-1" || body["memory_enabled"] != true {
		t.Errorf("body = %v", body)
	}
	scope, _ := body["scope"].(map[string]any)
	if scope["guild_id"] != "g-1" {
		t.Errorf("scope = %v", body["scope"])
	}
	if _, ok := body["high_priority"]; ok {
		t.Error("high_priority sent without --priority")
	}

	got := out.String()
	for _, want := range []string{"Order three samples", "confidence 82%", "unit-4", "1. Sampling"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunAsk_RateLimited(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/ask": `{"error":{"message":"rate limit exceeded","type":"rate_limit_error"}}`,
	})
	ts.statuses["POST /v1/ask"] = http.StatusTooManyRequests

	var out bytes.Buffer
	err := runAsk(ctx, ts.client(), "again?", askOptions{UserID: "u-1"}, &out)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Errorf("error = %v", err)
	}
	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.Type != "rate_limit_error" {
		t.Errorf("error type = %+v", apiErr)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestAskRequestBody_NoScope(t *testing.T) {
	body := askRequestBody("q", askOptions{UserID: "cli", Priority: true, Language: "Spanish"})
	if _, ok := body["scope"]; ok {
		t.Errorf("scope should be omitted, got %v", body["scope"])
	}
	if body["high_priority"] != true {
		t.Error("high_priority not set")
	}
	if body["language"] != "Spanish" {
		t.Errorf("language = %v", body["language"])
	}
}

func TestIngestRequestBody_Text(t *testing.T) {
	req, err := ingestRequestBody(ingestOptions{Text: "Use a customs broker.", Namespace: "unit-6", Title: "Customs"})
	if err != nil {
		t.Fatalf("ingestRequestBody: %v", err)
	}
	if req["type"] != "text" || req["content"] != "Use a customs broker." {
		t.Errorf("req = %v", req)
	}
	if req["namespace"] != "unit-6" || req["title"] != "Customs" || req["source"] != "cli" {
		t.Errorf("req = %v", req)
	}
}

func TestIngestRequestBody_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workbook.pdf")
	data := []byte("%PDF-1.4 fake")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	req, err := ingestRequestBody(ingestOptions{File: path})
	if err != nil {
		t.Fatalf("ingestRequestBody: %v", err)
	}
	if req["type"] != "file" {
		t.Errorf("type = %v, want file", req["type"])
	}
	if req["content"] != base64.StdEncoding.EncodeToString(data) {
		t.Errorf("content not base64 of file")
	}
	if req["title"] != "workbook.pdf" {
		t.Errorf("title = %v, want file name", req["title"])
	}
}

func TestIngestRequestBody_Errors(t *testing.T) {
	if _, err := ingestRequestBody(ingestOptions{}); err == nil {
		t.Error("expected error with no content source")
	}
	if _, err := ingestRequestBody(ingestOptions{File: filepath.Join(t.TempDir(), "missing.txt")}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestIngestCommand_PostsURL(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /ingest": `{"id":"doc-123","job_id":"job-9","status":"queued"}`,
	})

	req, err := ingestRequestBody(ingestOptions{URL: "https://example.com/ppc"})
	if err != nil {
		t.Fatal(err)
	}
	var result map[string]string
	if err := ts.client().post(ctx, "/ingest", req, &result); err != nil {
		t.Fatalf("post: %v", err)
	}
	if result["id"] != "doc-123" {
		t.Errorf("id = %q", result["id"])
	}

	var sent map[string]any
	json.Unmarshal([]byte(ts.requests[0].Body), &sent)
	if sent["type"] != "url" || sent["url"] != "https://example.com/ppc" {
		t.Errorf("sent = %v", sent)
	}
}

func TestListNamespaces(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /namespaces": `[
			{"name":"general","description":"General knowledge base","vectors":12,"default":true},
			{"name":"unit-4","description":"Sourcing","vectors":3}
		]`,
	})

	var out bytes.Buffer
	if err := listNamespaces(ctx, ts.client(), &out); err != nil {
		t.Fatalf("listNamespaces: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "general (default)") {
		t.Errorf("default not marked:\n%s", got)
	}
	if !strings.Contains(got, "Sourcing") {
		t.Errorf("description missing:\n%s", got)
	}
}

func TestListDocuments(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /documents": `[
			{"id":"d1","namespace":"unit-4","title":"Samples","created_at":"2026-03-01T10:00:00Z","embedded":true},
			{"id":"d2","namespace":"unit-4","title":"Suppliers","created_at":"2026-03-02T10:00:00Z","embedded":false}
		]`,
	})

	var out bytes.Buffer
	if err := listDocuments(ctx, ts.client(), "unit-4", 5, &out); err != nil {
		t.Fatalf("listDocuments: %v", err)
	}
	if ts.requests[0].Path != "/documents?limit=5&namespace=unit-4" {
		t.Errorf("path = %q", ts.requests[0].Path)
	}
	got := out.String()
	if !strings.Contains(got, "embedded") || !strings.Contains(got, "pending") {
		t.Errorf("states missing:\n%s", got)
	}
}

func TestListDocuments_Empty(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /documents": `[]`})

	var out bytes.Buffer
	if err := listDocuments(ctx, ts.client(), "", 20, &out); err != nil {
		t.Fatalf("listDocuments: %v", err)
	}
	if strings.TrimSpace(out.String()) != "No documents." {
		t.Errorf("output = %q", out.String())
	}
}

func TestShowConversation(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /conversations/c-1/messages": `{
			"id":"c-1","user_id":"u-1","title":"Samples",
			"messages":[
				{"role":"user","content":"How many samples?","created_at":"2026-03-01T10:00:00Z"},
				{"role":"assistant","content":"Three.","created_at":"2026-03-01T10:00:05Z"}
			]
		}`,
	})

	var out bytes.Buffer
	if err := showConversation(ctx, ts.client(), "c-1", &out); err != nil {
		t.Fatalf("showConversation: %v", err)
	}
	got := out.String()
	for _, want := range []string{"Samples", "User", "How many samples?", "Assistant", "Three."} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestShowConversation_NotFound(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	err := showConversation(ctx, ts.client(), "missing", &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "404: not found") {
		t.Errorf("error = %v", err)
	}
}

func TestClient_Unreachable(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	c := ts.client()
	ts.server.Close()

	err := c.get(ctx, "/namespaces", nil)
	if err == nil || !strings.Contains(err.Error(), "is fbaboss running?") {
		t.Errorf("error = %v", err)
	}
}
