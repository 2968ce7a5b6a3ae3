package answer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BlockchainHB/fbabossdiscord/internal/composer"
	"github.com/BlockchainHB/fbabossdiscord/internal/engine"
)

const (
	generateTemperature = 0.3
	generateMaxTokens   = 1000
	validateTemperature = 0.1
	validateMaxTokens   = 300
	improveTemperature  = 0.3
	improveMaxTokens    = 150

	// NeutralConfidence is reported when validation could not be performed.
	NeutralConfidence = 0.5
)

var (
	ErrEmptyAnswer  = errors.New("empty answer from generation backend")
	ErrEmptyRewrite = errors.New("empty question rewrite")
)

// Answer is a generated reply plus the tokens spent producing it.
type Answer struct {
	Text  string
	Usage engine.Usage
}

// Validation is the advisory quality assessment of an answer.
type Validation struct {
	IsValid    bool
	Confidence float64
	Feedback   string
	// Degraded is set when the neutral confidence was substituted.
	Degraded bool
	Usage    engine.Usage
}

// Generator produces, validates and refines answers with the generation
// backend. Answers use the chat model; validation and question rewriting use
// the fast model.
type Generator struct {
	engine    engine.Engine
	chatModel string
	fastModel string
	logger    *slog.Logger
}

// NewGenerator creates a Generator. An empty fastModel reuses chatModel.
func NewGenerator(e engine.Engine, chatModel, fastModel string) *Generator {
	if fastModel == "" {
		fastModel = chatModel
	}
	return &Generator{engine: e, chatModel: chatModel, fastModel: fastModel, logger: slog.Default()}
}

// Generate answers the question from the document and conversation context.
// An empty completion is an error so the caller can retry.
func (g *Generator) Generate(ctx context.Context, question, documentContext, conversationContext, language, override string) (Answer, error) {
	comp, err := g.engine.Complete(ctx, g.chatModel, engine.CompletionRequest{
		Messages:    composer.BuildAnswerPrompt(question, documentContext, conversationContext, language, override),
		Temperature: generateTemperature,
		MaxTokens:   generateMaxTokens,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("generating answer: %w", err)
	}
	text := strings.TrimSpace(comp.Text)
	if text == "" {
		return Answer{Usage: comp.Usage}, ErrEmptyAnswer
	}
	return Answer{Text: text, Usage: comp.Usage}, nil
}

const validatePrompt = `You review answers given to students of an Amazon FBA course. Judge whether the answer is accurate, supported by the knowledge base excerpts, and actually addresses the question. Your output must be ONLY a single valid JSON object:
{"isValid": true, "confidence": 0.0, "feedback": "..."}
"confidence" is a number between 0 and 1.`

type validationResponse struct {
	IsValid    bool     `json:"isValid"`
	Confidence *float64 `json:"confidence"`
	Feedback   string   `json:"feedback"`
}

// Validate scores an answer. It never fails: a backend or parse failure
// yields a valid verdict with NeutralConfidence.
func (g *Generator) Validate(ctx context.Context, question, answer, documentContext string) Validation {
	user := "Question:\n" + question + "\n\nKnowledge base excerpts:\n" + documentContext + "\n\nAnswer:\n" + answer

	comp, err := g.engine.Complete(ctx, g.fastModel, engine.CompletionRequest{
		Messages: []engine.Message{
			{Role: "system", Content: validatePrompt},
			{Role: "user", Content: user},
		},
		Temperature: validateTemperature,
		MaxTokens:   validateMaxTokens,
		Schema:      validationSchema(),
	})
	if err != nil {
		g.logger.Warn("answer validation failed", "error", err)
		return neutral(engine.Usage{})
	}

	var resp validationResponse
	raw := engine.ExtractJSON(comp.Text)
	if raw == "" {
		g.logger.Warn("validation reply has no JSON object", "response", comp.Text)
		return neutral(comp.Usage)
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil || resp.Confidence == nil {
		g.logger.Warn("failed to parse validation", "error", err, "response", comp.Text)
		return neutral(comp.Usage)
	}

	return Validation{
		IsValid:    resp.IsValid,
		Confidence: clamp01(*resp.Confidence),
		Feedback:   resp.Feedback,
		Usage:      comp.Usage,
	}
}

func neutral(usage engine.Usage) Validation {
	return Validation{IsValid: true, Confidence: NeutralConfidence, Degraded: true, Usage: usage}
}

func validationSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"isValid":    {Type: "boolean", Description: "Whether the answer is acceptable"},
			"confidence": {Type: "number", Description: "Confidence between 0 and 1"},
			"feedback":   {Type: "string", Description: "Short justification"},
		},
		Required: []string{"isValid", "confidence", "feedback"},
	}
}

const improvePrompt = `Rewrite the student's question so it works well as a knowledge base search query: keep the meaning, make it specific and self-contained, expand obvious abbreviations. Reply with ONLY the rewritten question.`

// Improve rewrites the question for retrieval.
func (g *Generator) Improve(ctx context.Context, question string) (string, engine.Usage, error) {
	comp, err := g.engine.Complete(ctx, g.fastModel, engine.CompletionRequest{
		Messages: []engine.Message{
			{Role: "system", Content: improvePrompt},
			{Role: "user", Content: question},
		},
		Temperature: improveTemperature,
		MaxTokens:   improveMaxTokens,
	})
	if err != nil {
		return "", engine.Usage{}, fmt.Errorf("improving question: %w", err)
	}
	text := strings.Trim(strings.TrimSpace(comp.Text), "\"'`")
	text = strings.TrimSpace(text)
	if text == "" {
		return "", comp.Usage, ErrEmptyRewrite
	}
	return text, comp.Usage, nil
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
