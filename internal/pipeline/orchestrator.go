package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BlockchainHB/fbabossdiscord/internal/answer"
	"github.com/BlockchainHB/fbabossdiscord/internal/composer"
	"github.com/BlockchainHB/fbabossdiscord/internal/conversation"
	"github.com/BlockchainHB/fbabossdiscord/internal/engine"
	"github.com/BlockchainHB/fbabossdiscord/internal/namespace"
	"github.com/BlockchainHB/fbabossdiscord/internal/retrieval"
	"github.com/BlockchainHB/fbabossdiscord/internal/storage"
	"github.com/google/uuid"
)

// persistTimeout bounds each best-effort side effect.
const persistTimeout = 5 * time.Second

// Router picks the namespaces to search for a question.
type Router interface {
	Route(ctx context.Context, question string) namespace.RoutingDecision
}

// Embedder turns a question into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs the namespace fan-out search.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, namespaces []string, topK int, minScore float64) ([]retrieval.Match, error)
}

// Answerer generates, validates and rewrites.
type Answerer interface {
	Improve(ctx context.Context, question string) (string, engine.Usage, error)
	Generate(ctx context.Context, question, documentContext, conversationContext, language, override string) (answer.Answer, error)
	Validate(ctx context.Context, question, answer, documentContext string) answer.Validation
}

// Reranker re-scores search matches against the improved question.
type Reranker interface {
	Rerank(ctx context.Context, question string, matches []retrieval.Match) ([]retrieval.Match, engine.Usage)
}

// History loads and records conversation memory.
type History interface {
	Build(ctx context.Context, userID string, scope conversation.Scope, enabled bool) conversation.Context
	Record(ctx context.Context, userID string, scope conversation.Scope, conversationID, question, answer string) (string, error)
}

// UsageSink receives one telemetry record per processed question.
type UsageSink interface {
	LogUsage(ctx context.Context, u storage.UsageLog) error
}

// Deps are the collaborators of an Orchestrator. Reranker, History and
// Usage are optional.
type Deps struct {
	Router   Router
	Embedder Embedder
	Searcher Searcher
	Reranker Reranker
	Answerer Answerer
	History  History
	Usage    UsageSink
	Composer *composer.Composer
}

// Options tune retrieval and retry behaviour.
type Options struct {
	TopK         int
	MinScore     float64
	Retry        RetryPolicy
	ImproveRetry RetryPolicy
}

// DefaultOptions returns topK 5, minScore 0.02 and the default retry policies.
func DefaultOptions() Options {
	return Options{
		TopK:         5,
		MinScore:     0.02,
		Retry:        DefaultRetryPolicy(),
		ImproveRetry: DefaultImproveRetryPolicy(),
	}
}

// Orchestrator answers questions: improve, route, embed, search, build
// context, generate, validate, then persist. A failing attempt restarts
// the sequence from the top.
type Orchestrator struct {
	deps    Deps
	opts    Options
	logger  *slog.Logger
	onStage func(attempt int, s Stage)
}

// New creates an Orchestrator. A nil Composer selects composer.New(0).
func New(deps Deps, opts Options) *Orchestrator {
	if deps.Composer == nil {
		deps.Composer = composer.New(0)
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.ImproveRetry.MaxAttempts <= 0 {
		opts.ImproveRetry = DefaultImproveRetryPolicy()
	}
	return &Orchestrator{deps: deps, opts: opts, logger: slog.Default()}
}

// OnStage registers a hook called on every stage transition.
func (o *Orchestrator) OnStage(fn func(attempt int, s Stage)) {
	o.onStage = fn
}

func (o *Orchestrator) enter(attempt int, s Stage) {
	o.logger.Debug("pipeline stage", "stage", s, "attempt", attempt)
	if o.onStage != nil {
		o.onStage(attempt, s)
	}
}

// Process answers a question. When every attempt fails the error is an
// *ExhaustedError. Cancellation of ctx ends processing with ctx's error,
// even when an attempt degraded its way to a result, and nothing is
// persisted.
func (o *Orchestrator) Process(ctx context.Context, req QuestionRequest) (*QAResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	var res *QAResult
	attempts, err := o.opts.Retry.Do(ctx, func(attempt int) error {
		if attempt > 1 {
			o.enter(attempt, StageRetrying)
		}
		r, err := o.attempt(ctx, attempt, req)
		if err != nil {
			o.logger.Warn("pipeline attempt failed", "attempt", attempt, "error", err)
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		o.enter(attempts, StageFailed)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("processing question: %w", err)
		}
		return nil, &ExhaustedError{Attempts: attempts, Err: err}
	}

	if err := ctx.Err(); err != nil {
		o.enter(attempts, StageFailed)
		return nil, fmt.Errorf("processing question: %w", err)
	}

	res.Attempts = attempts
	res.ProcessingTime = time.Since(start)

	o.enter(attempts, StagePersisting)
	o.persist(ctx, req, res)
	o.enter(attempts, StageDone)
	return res, nil
}

// attempt runs the stages once. A panic in a collaborator fails the attempt.
func (o *Orchestrator) attempt(ctx context.Context, n int, req QuestionRequest) (res *QAResult, err error) {
	stage := StageImproving
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	var usage engine.Usage

	o.enter(n, stage)
	improved, u := o.improve(ctx, req.Question)
	usage = usage.Add(u)

	stage = StageRouting
	o.enter(n, stage)
	decision := o.deps.Router.Route(ctx, improved)
	usage = usage.Add(decision.Usage)

	stage = StageEmbedding
	o.enter(n, stage)
	vec, err := o.deps.Embedder.Embed(ctx, improved)
	if err != nil {
		return nil, &StageError{Stage: stage, Err: err}
	}

	stage = StageSearching
	o.enter(n, stage)
	matches, err := o.deps.Searcher.Search(ctx, vec, decision.Namespaces, o.opts.TopK, o.opts.MinScore)
	if err != nil {
		return nil, &StageError{Stage: stage, Err: err}
	}
	if o.deps.Reranker != nil && len(matches) > 0 {
		var u engine.Usage
		matches, u = o.deps.Reranker.Rerank(ctx, improved, matches)
		usage = usage.Add(u)
	}

	stage = StageContextBuilding
	o.enter(n, stage)
	docCtx, rendered := o.deps.Composer.BuildDocumentContext(matches)
	var conv conversation.Context
	if o.deps.History != nil {
		conv = o.deps.History.Build(ctx, req.UserID, req.Scope, req.MemoryEnabled)
	}

	stage = StageGenerating
	o.enter(n, stage)
	ans, err := o.deps.Answerer.Generate(ctx, req.Question, docCtx, conv.Text, req.Language, req.PromptOverride)
	if err != nil {
		return nil, &StageError{Stage: stage, Err: err}
	}
	usage = usage.Add(ans.Usage)

	stage = StageValidating
	o.enter(n, stage)
	v := o.deps.Answerer.Validate(ctx, req.Question, ans.Text, docCtx)
	usage = usage.Add(v.Usage)

	return &QAResult{
		Answer:     ans.Text,
		Confidence: v.Confidence,
		Sources:    sourcesFromMatches(rendered),
		Usage: TokenUsage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			EmbeddingTokens:  composer.EstimateTokens(improved),
		},
		ConversationID:   conv.ConversationID,
		ImprovedQuestion: improved,
		Namespaces:       decision.Namespaces,
	}, nil
}

// improve rewrites the question under its own retry policy, falling back to
// the original question when every try fails.
func (o *Orchestrator) improve(ctx context.Context, question string) (string, engine.Usage) {
	var usage engine.Usage
	improved := question
	_, err := o.opts.ImproveRetry.Do(ctx, func(int) error {
		text, u, err := o.deps.Answerer.Improve(ctx, question)
		usage = usage.Add(u)
		if err != nil {
			return err
		}
		improved = text
		return nil
	})
	if err != nil {
		o.logger.Warn("question improvement failed, using original", "error", err)
		return question, usage
	}
	return improved, usage
}

// persist stores the exchange and the telemetry record. Neither outcome
// affects the result beyond the conversation ID.
func (o *Orchestrator) persist(ctx context.Context, req QuestionRequest, res *QAResult) {
	ctx = context.WithoutCancel(ctx)

	if o.deps.History != nil && req.MemoryEnabled {
		o.bestEffort(ctx, "conversation", func(ctx context.Context) error {
			id, err := o.deps.History.Record(ctx, req.UserID, req.Scope, res.ConversationID, req.Question, res.Answer)
			if id != "" {
				res.ConversationID = id
			}
			return err
		})
	}

	if o.deps.Usage != nil {
		o.bestEffort(ctx, "telemetry", func(ctx context.Context) error {
			return o.deps.Usage.LogUsage(ctx, storage.UsageLog{
				ID:               uuid.New().String(),
				CreatedAt:        time.Now(),
				UserID:           req.UserID,
				ConversationID:   res.ConversationID,
				Question:         req.Question,
				Namespaces:       res.Namespaces,
				PromptTokens:     res.Usage.PromptTokens,
				CompletionTokens: res.Usage.CompletionTokens,
				EmbeddingTokens:  res.Usage.EmbeddingTokens,
				LatencyMS:        res.ProcessingTime.Milliseconds(),
				ResultCount:      len(res.Sources),
				Confidence:       res.Confidence,
				Attempts:         res.Attempts,
			})
		})
	}
}

// bestEffort runs a side effect whose failure is logged and otherwise ignored.
func (o *Orchestrator) bestEffort(ctx context.Context, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("best-effort side effect panicked", "effect", name, "panic", r)
		}
	}()
	if err := fn(ctx); err != nil {
		o.logger.Error("best-effort side effect failed", "effect", name, "error", err)
	}
}
