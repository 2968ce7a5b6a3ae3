package reranking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BlockchainHB/fbabossdiscord/internal/engine"
	"github.com/BlockchainHB/fbabossdiscord/internal/retrieval"
)

const defaultConcurrency = 3

// maxExcerptRunes bounds the match text shown to the scoring model.
const maxExcerptRunes = 1200

// Reranker re-scores search matches by relevance to a question.
type Reranker interface {
	Rerank(ctx context.Context, question string, matches []retrieval.Match) ([]retrieval.Match, engine.Usage)
}

// New returns an LLMReranker if enabled, NoOpReranker otherwise.
//
// topK controls the early-return threshold: once topK matches have been
// scored, the reranker returns that subset without waiting for the rest.
// Set topK to 0 (or >= len(matches)) to score everything.
func New(eng engine.Engine, model string, enabled bool, timeout time.Duration, threshold float64, topK int) Reranker {
	if !enabled || eng == nil {
		return NoOpReranker{}
	}
	return &LLMReranker{
		engine:    eng,
		model:     model,
		timeout:   timeout,
		threshold: threshold,
		topK:      topK,
	}
}

// LLMReranker asks a model to score each (question, match) pair.
// Scoring runs concurrently, bounded to defaultConcurrency calls. Results
// below threshold are dropped and the rest sorted by score descending.
type LLMReranker struct {
	engine    engine.Engine
	model     string
	timeout   time.Duration
	threshold float64
	topK      int // early-return threshold; 0 = score all
}

// Rerank scores each match against the question. If the timeout fires
// before scoring completes the matches are returned in their original
// order. The returned usage covers every completed scoring call.
func (r *LLMReranker) Rerank(ctx context.Context, question string, matches []retrieval.Match) ([]retrieval.Match, engine.Usage) {
	if len(matches) == 0 {
		return matches, engine.Usage{}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	earlyReturnAt := r.topK
	if earlyReturnAt <= 0 || earlyReturnAt >= len(matches) {
		earlyReturnAt = 0
	}

	var (
		usageMu sync.Mutex
		usage   engine.Usage
	)
	total := func() engine.Usage {
		usageMu.Lock()
		defer usageMu.Unlock()
		return usage
	}

	// Buffered so senders never block after collection stops.
	results := make(chan retrieval.Match, len(matches))
	sem := make(chan struct{}, defaultConcurrency)

	var wg sync.WaitGroup
	for _, m := range matches {
		wg.Add(1)
		go func(m retrieval.Match) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-timeoutCtx.Done():
				return
			}
			defer func() { <-sem }()

			score, u, err := r.score(timeoutCtx, question, m)
			usageMu.Lock()
			usage = usage.Add(u)
			usageMu.Unlock()
			if err != nil {
				if timeoutCtx.Err() != nil {
					return
				}
				slog.Debug("reranker: score failed, keeping search score", "match_id", m.ID, "error", err)
				results <- m
				return
			}
			m.Score = score
			results <- m
		}(m)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	scored := make([]retrieval.Match, 0, len(matches))
collect:
	for {
		select {
		case m, ok := <-results:
			if !ok {
				break collect
			}
			scored = append(scored, m)
			if earlyReturnAt > 0 && len(scored) >= earlyReturnAt {
				cancel()
				break collect
			}
		case <-timeoutCtx.Done():
			slog.Warn("reranker timed out, keeping search order", "scored", len(scored), "matches", len(matches))
			return matches, total()
		}
	}

	if len(scored) == 0 {
		return matches, total()
	}

	filtered := make([]retrieval.Match, 0, len(scored))
	for _, m := range scored {
		if m.Score >= r.threshold {
			filtered = append(filtered, m)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})

	return filtered, total()
}

func scoreSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"score": {Type: "number", Description: "Relevance score 0.0-1.0"},
		},
		Required: []string{"score"},
	}
}

func (r *LLMReranker) score(ctx context.Context, question string, m retrieval.Match) (float64, engine.Usage, error) {
	prompt := "Rate how useful the following course material is for answering the question, on a scale of 0.0 to 1.0.\n" +
		"Question: " + question + "\n" +
		"Material: " + excerpt(m) + "\n" +
		`Respond with only a JSON object: {"score": <float>}`

	comp, err := r.engine.Complete(ctx, r.model, engine.CompletionRequest{
		Messages:    []engine.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   20,
		Schema:      scoreSchema(),
	})
	if err != nil {
		return m.Score, engine.Usage{}, err
	}

	s, err := parseScore(comp.Text)
	if err != nil {
		slog.Debug("reranker: parse failed, keeping search score", "resp", comp.Text, "error", err)
		return m.Score, comp.Usage, nil
	}
	return s, comp.Usage, nil
}

func excerpt(m retrieval.Match) string {
	text := m.Metadata.Body()
	if title := m.Metadata.Title(); title != "" {
		text = title + ": " + text
	}
	r := []rune(text)
	if len(r) > maxExcerptRunes {
		return string(r[:maxExcerptRunes])
	}
	return text
}

// parseScore extracts the score from a model reply. Small models often wrap
// the JSON in code fences or filler text.
func parseScore(resp string) (float64, error) {
	raw := engine.ExtractJSON(resp)
	if raw == "" {
		return 0, fmt.Errorf("no JSON object in response")
	}
	var obj struct {
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return 0, fmt.Errorf("unmarshal score: %w", err)
	}
	if obj.Score == nil {
		return 0, fmt.Errorf("response has no score")
	}
	s := *obj.Score
	if s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}
	return s, nil
}

// NoOpReranker passes matches through unchanged.
type NoOpReranker struct{}

func (NoOpReranker) Rerank(_ context.Context, _ string, matches []retrieval.Match) ([]retrieval.Match, engine.Usage) {
	return matches, engine.Usage{}
}
