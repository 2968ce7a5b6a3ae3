package namespace

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/BlockchainHB/fbabossdiscord/internal/engine"
)

// mockEngine implements engine.Engine for router tests.
type mockEngine struct {
	response string
	usage    engine.Usage
	err      error
	delay    time.Duration

	lastReq engine.CompletionRequest
}

func (m *mockEngine) Complete(ctx context.Context, _ string, req engine.CompletionRequest) (engine.Completion, error) {
	m.lastReq = req
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return engine.Completion{}, ctx.Err()
		}
	}
	if m.err != nil {
		return engine.Completion{}, m.err
	}
	return engine.Completion{Text: m.response, Usage: m.usage}, nil
}

func (m *mockEngine) Embed(context.Context, string, string) ([]float32, error) { return nil, nil }
func (m *mockEngine) IsRunning(context.Context) bool                           { return true }
func (m *mockEngine) HasModel(context.Context, string) bool                    { return true }
func (m *mockEngine) PullModel(context.Context, string, func(engine.PullProgress)) error {
	return nil
}

func assertFallback(t *testing.T, d RoutingDecision) {
	t.Helper()
	want := RoutingDecision{
		Namespaces: []string{"general"},
		Reasoning:  FallbackReasoning,
		Confidence: 0.3,
		Fallback:   true,
		Usage:      d.Usage,
	}
	if !reflect.DeepEqual(d, want) {
		t.Errorf("decision = %+v, want fallback", d)
	}
}

func TestRoute_ProductResearch(t *testing.T) {
	mock := &mockEngine{
		response: `{"namespaces":["unit-3"],"reasoning":"Product research question","confidence":0.9}`,
		usage:    engine.Usage{PromptTokens: 120, CompletionTokens: 20},
	}
	r := NewRouter(mock, "phi3.5", DefaultCatalog())
	d := r.Route(context.Background(), "How do I find profitable products?")

	if d.Fallback {
		t.Fatal("unexpected fallback")
	}
	if !reflect.DeepEqual(d.Namespaces, []string{"unit-3"}) {
		t.Errorf("Namespaces = %v, want [unit-3]", d.Namespaces)
	}
	if d.Confidence < 0.5 {
		t.Errorf("Confidence = %v, want >= 0.5", d.Confidence)
	}
	if d.Usage.Total() != 140 {
		t.Errorf("Usage = %+v", d.Usage)
	}
	if mock.lastReq.Temperature != 0.1 || mock.lastReq.MaxTokens != 200 {
		t.Errorf("sampling = %v/%d, want 0.1/200", mock.lastReq.Temperature, mock.lastReq.MaxTokens)
	}
	if !strings.Contains(mock.lastReq.Messages[0].Content, "unit-3: Product research") {
		t.Error("prompt does not list the catalog")
	}
}

func TestRoute_FiltersUnknownDuplicatesAndCaps(t *testing.T) {
	mock := &mockEngine{
		response: "```json\n" + `{"namespaces":["unit-9","unit-4","unit-4","unit-5","unit-6","unit-7"],"reasoning":"r","confidence":0.7}` + "\n```",
	}
	d := NewRouter(mock, "m", DefaultCatalog()).Route(context.Background(), "q")
	if !reflect.DeepEqual(d.Namespaces, []string{"unit-4", "unit-5", "unit-6"}) {
		t.Errorf("Namespaces = %v", d.Namespaces)
	}
}

func TestRoute_ClampsConfidence(t *testing.T) {
	mock := &mockEngine{response: `{"namespaces":["unit-1"],"reasoning":"r","confidence":7}`}
	if d := NewRouter(mock, "m", DefaultCatalog()).Route(context.Background(), "q"); d.Confidence != 1 {
		t.Errorf("Confidence = %v, want 1", d.Confidence)
	}
	mock.response = `{"namespaces":["unit-1"],"reasoning":"r","confidence":-2}`
	if d := NewRouter(mock, "m", DefaultCatalog()).Route(context.Background(), "q"); d.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", d.Confidence)
	}
}

func TestRoute_Fallbacks(t *testing.T) {
	cases := map[string]*mockEngine{
		"empty list":   {response: `{"namespaces":[],"reasoning":"none","confidence":0.9}`},
		"all invalid":  {response: `{"namespaces":["nope","unit-99"],"reasoning":"x","confidence":0.9}`},
		"malformed":    {response: `not valid json {{{`},
		"no object":    {response: `I think unit-3`},
		"engine error": {err: errors.New("connection refused")},
	}
	for name, mock := range cases {
		t.Run(name, func(t *testing.T) {
			assertFallback(t, NewRouter(mock, "m", DefaultCatalog()).Route(context.Background(), "q"))
		})
	}
}

func TestRoute_Timeout(t *testing.T) {
	mock := &mockEngine{response: `{"namespaces":["unit-3"],"reasoning":"r","confidence":0.9}`, delay: time.Second}
	r := NewRouter(mock, "m", DefaultCatalog())
	r.timeout = 20 * time.Millisecond

	start := time.Now()
	d := r.Route(context.Background(), "q")
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Route did not honour its timeout")
	}
	assertFallback(t, d)
}

func TestRoute_FallbackUsesCatalogDefault(t *testing.T) {
	cat, err := NewCatalog([]Namespace{{Name: "a", Description: "A"}}, "b")
	if err != nil {
		t.Fatal(err)
	}
	d := NewRouter(&mockEngine{err: errors.New("x")}, "m", cat).Route(context.Background(), "q")
	if !reflect.DeepEqual(d.Namespaces, []string{"b"}) {
		t.Errorf("Namespaces = %v, want [b]", d.Namespaces)
	}
}
