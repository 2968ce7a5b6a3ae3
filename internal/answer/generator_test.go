package answer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/BlockchainHB/fbabossdiscord/internal/engine"
)

// --- mock engine ---

type call struct {
	model string
	req   engine.CompletionRequest
}

type mockEngine struct {
	mu     sync.Mutex
	calls  []call
	textFn func(req engine.CompletionRequest) (string, error)
	usage  engine.Usage
}

func (m *mockEngine) Complete(_ context.Context, model string, req engine.CompletionRequest) (engine.Completion, error) {
	m.mu.Lock()
	m.calls = append(m.calls, call{model, req})
	m.mu.Unlock()
	text, err := m.textFn(req)
	if err != nil {
		return engine.Completion{}, err
	}
	return engine.Completion{Text: text, Usage: m.usage}, nil
}

func (m *mockEngine) Embed(context.Context, string, string) ([]float32, error) { return nil, nil }
func (m *mockEngine) IsRunning(context.Context) bool                           { return true }
func (m *mockEngine) HasModel(context.Context, string) bool                    { return true }
func (m *mockEngine) PullModel(context.Context, string, func(engine.PullProgress)) error {
	return nil
}

func reply(s string) func(engine.CompletionRequest) (string, error) {
	return func(engine.CompletionRequest) (string, error) { return s, nil }
}

// --- Generate ---

func TestGenerate(t *testing.T) {
	mock := &mockEngine{textFn: reply("  Use BSR and review counts.  "), usage: engine.Usage{PromptTokens: 300, CompletionTokens: 40}}
	g := NewGenerator(mock, "llama3.1", "phi3.5")

	a, err := g.Generate(context.Background(), "How do I find profitable products?", "[Doc] (Relevance: 81.0%)\nbody", "", "", "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if a.Text != "Use BSR and review counts." {
		t.Errorf("Text = %q", a.Text)
	}
	if a.Usage.PromptTokens != 300 || a.Usage.CompletionTokens != 40 {
		t.Errorf("Usage = %+v", a.Usage)
	}
	c := mock.calls[0]
	if c.model != "llama3.1" || c.req.Temperature != 0.3 || c.req.MaxTokens != 1000 {
		t.Errorf("call = %s %v %d", c.model, c.req.Temperature, c.req.MaxTokens)
	}
	if c.req.Messages[1].Content != "How do I find profitable products?" {
		t.Errorf("user message = %q", c.req.Messages[1].Content)
	}
}

func TestGenerate_Errors(t *testing.T) {
	g := NewGenerator(&mockEngine{textFn: reply("   ")}, "m", "")
	if _, err := g.Generate(context.Background(), "q", "d", "", "", ""); !errors.Is(err, ErrEmptyAnswer) {
		t.Errorf("empty completion err = %v, want ErrEmptyAnswer", err)
	}

	boom := errors.New("backend down")
	g = NewGenerator(&mockEngine{textFn: func(engine.CompletionRequest) (string, error) { return "", boom }}, "m", "")
	if _, err := g.Generate(context.Background(), "q", "d", "", "", ""); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped backend error", err)
	}
}

// --- Validate ---

func TestValidate_Parsed(t *testing.T) {
	mock := &mockEngine{textFn: reply("```json\n{\"isValid\": false, \"confidence\": 0.82, \"feedback\": \"missing fees\"}\n```"), usage: engine.Usage{PromptTokens: 10, CompletionTokens: 5}}
	g := NewGenerator(mock, "big", "small")

	v := g.Validate(context.Background(), "q", "a", "d")
	if v.IsValid || v.Confidence != 0.82 || v.Feedback != "missing fees" || v.Degraded {
		t.Errorf("Validation = %+v", v)
	}
	if v.Usage.Total() != 15 {
		t.Errorf("Usage = %+v", v.Usage)
	}
	c := mock.calls[0]
	if c.model != "small" || c.req.Temperature != 0.1 || c.req.Schema == nil {
		t.Errorf("call = %s %v schema=%v", c.model, c.req.Temperature, c.req.Schema != nil)
	}
}

func TestValidate_ClampsConfidence(t *testing.T) {
	g := NewGenerator(&mockEngine{textFn: reply(`{"isValid":true,"confidence":1.7,"feedback":""}`)}, "m", "")
	if v := g.Validate(context.Background(), "q", "a", "d"); v.Confidence != 1 {
		t.Errorf("Confidence = %v, want 1", v.Confidence)
	}
}

func TestValidate_Degrades(t *testing.T) {
	cases := map[string]func(engine.CompletionRequest) (string, error){
		"malformed":          reply(`{"isValid": tru`),
		"no object":          reply("looks good to me"),
		"missing confidence": reply(`{"isValid": true, "feedback": "ok"}`),
		"engine error":       func(engine.CompletionRequest) (string, error) { return "", errors.New("timeout") },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			v := NewGenerator(&mockEngine{textFn: fn}, "m", "").Validate(context.Background(), "q", "a", "d")
			if v.Confidence != NeutralConfidence || !v.Degraded || !v.IsValid {
				t.Errorf("Validation = %+v, want neutral", v)
			}
		})
	}
}

// --- Improve ---

func TestImprove(t *testing.T) {
	mock := &mockEngine{textFn: reply(`"How do I identify profitable products to sell on Amazon FBA?"`)}
	g := NewGenerator(mock, "big", "small")

	got, _, err := g.Improve(context.Background(), "how find good products")
	if err != nil {
		t.Fatalf("Improve: %v", err)
	}
	if got != "How do I identify profitable products to sell on Amazon FBA?" {
		t.Errorf("Improve = %q", got)
	}
	c := mock.calls[0]
	if c.model != "small" || c.req.MaxTokens != 150 || c.req.Temperature != 0.3 {
		t.Errorf("call = %s %d %v", c.model, c.req.MaxTokens, c.req.Temperature)
	}
	if !strings.Contains(c.req.Messages[1].Content, "how find good products") {
		t.Error("question not sent")
	}
}

func TestImprove_Errors(t *testing.T) {
	if _, _, err := NewGenerator(&mockEngine{textFn: reply(`""`)}, "m", "").Improve(context.Background(), "q"); !errors.Is(err, ErrEmptyRewrite) {
		t.Errorf("err = %v, want ErrEmptyRewrite", err)
	}
	fail := func(engine.CompletionRequest) (string, error) { return "", errors.New("down") }
	if _, _, err := NewGenerator(&mockEngine{textFn: fail}, "m", "").Improve(context.Background(), "q"); err == nil {
		t.Error("expected error")
	}
}
