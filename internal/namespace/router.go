package namespace

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BlockchainHB/fbabossdiscord/internal/engine"
)

const (
	routingTimeout     = 10 * time.Second
	routingTemperature = 0.1
	routingMaxTokens   = 200
	maxNamespaces      = 3

	FallbackReasoning  = "Defaulting to general knowledge base"
	FallbackConfidence = 0.3
)

// RoutingDecision is the set of namespaces chosen for a question.
type RoutingDecision struct {
	Namespaces []string
	Reasoning  string
	Confidence float64
	// Fallback is set when the classifier output was unusable and the
	// default namespace was substituted.
	Fallback bool
	Usage    engine.Usage
}

// Router classifies questions into catalog namespaces using a fast model.
type Router struct {
	engine  engine.Engine
	model   string
	catalog *Catalog
	timeout time.Duration
	logger  *slog.Logger
}

// NewRouter creates a Router over the given catalog.
func NewRouter(e engine.Engine, model string, catalog *Catalog) *Router {
	return &Router{
		engine:  e,
		model:   model,
		catalog: catalog,
		timeout: routingTimeout,
		logger:  slog.Default(),
	}
}

func (r *Router) Catalog() *Catalog { return r.catalog }

type routingResponse struct {
	Namespaces []string `json:"namespaces"`
	Reasoning  string   `json:"reasoning"`
	Confidence float64  `json:"confidence"`
}

// Route picks up to three namespaces for the question. It never fails: a
// backend error, timeout, unparsable reply or a reply naming no known
// namespace yields the fallback decision for the default namespace.
func (r *Router) Route(ctx context.Context, question string) RoutingDecision {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	comp, err := r.engine.Complete(ctx, r.model, engine.CompletionRequest{
		Messages:    BuildPrompt(r.catalog, question),
		Temperature: routingTemperature,
		MaxTokens:   routingMaxTokens,
		Schema:      routingSchema(),
	})
	if err != nil {
		r.logger.Warn("namespace routing failed", "error", err)
		return r.fallback(engine.Usage{})
	}

	raw := engine.ExtractJSON(comp.Text)
	var resp routingResponse
	if raw == "" {
		r.logger.Warn("namespace routing reply has no JSON object", "response", comp.Text)
		return r.fallback(comp.Usage)
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		r.logger.Warn("failed to unmarshal routing decision", "error", err, "response", comp.Text)
		return r.fallback(comp.Usage)
	}

	names := r.filter(resp.Namespaces)
	if len(names) == 0 {
		r.logger.Warn("routing named no known namespace", "namespaces", resp.Namespaces)
		return r.fallback(comp.Usage)
	}

	return RoutingDecision{
		Namespaces: names,
		Reasoning:  resp.Reasoning,
		Confidence: clamp01(resp.Confidence),
		Usage:      comp.Usage,
	}
}

// filter drops unknown and repeated names and keeps at most three.
func (r *Router) filter(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, name := range in {
		if !r.catalog.Has(name) || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
		if len(out) == maxNamespaces {
			break
		}
	}
	return out
}

func (r *Router) fallback(usage engine.Usage) RoutingDecision {
	return RoutingDecision{
		Namespaces: []string{r.catalog.Default()},
		Reasoning:  FallbackReasoning,
		Confidence: FallbackConfidence,
		Fallback:   true,
		Usage:      usage,
	}
}

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
