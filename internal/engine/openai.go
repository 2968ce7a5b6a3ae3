package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/BlockchainHB/fbabossdiscord/internal/openai"
)

// OpenAIEngine adapts an OpenAI-compatible HTTP API to the Engine interface.
// Models are hosted remotely, so PullModel is unsupported and HasModel
// consults the /models listing.
type OpenAIEngine struct {
	client *openai.Client
}

// NewOpenAIEngine creates an engine for the given base URL and API key.
func NewOpenAIEngine(baseURL, apiKey string) *OpenAIEngine {
	return &OpenAIEngine{client: openai.NewClient(apiKey, baseURL)}
}

func (e *OpenAIEngine) Complete(ctx context.Context, model string, req CompletionRequest) (Completion, error) {
	msgs := make([]openai.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.Message{Role: m.Role, Content: m.Content}
	}

	temp := req.Temperature
	cr := openai.ChatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: &temp,
		MaxTokens:   req.MaxTokens,
	}
	if req.Schema != nil {
		cr.ResponseFormat = &openai.ResponseFormat{Type: "json_object"}
	}

	resp, err := e.client.ChatCompletion(ctx, cr)
	if err != nil {
		return Completion{}, err
	}
	return Completion{
		Text: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func (e *OpenAIEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return e.client.Embed(ctx, model, text)
}

func (e *OpenAIEngine) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error) {
	return e.client.EmbedBatch(ctx, model, texts)
}

func (e *OpenAIEngine) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := e.client.ListModels(ctx)
	return err == nil
}

func (e *OpenAIEngine) HasModel(ctx context.Context, name string) bool {
	models, err := e.client.ListModels(ctx)
	if err != nil {
		return false
	}
	// Some compatible servers do not list every routable model.
	if len(models) == 0 {
		return true
	}
	for _, m := range models {
		if m.ID == name {
			return true
		}
	}
	return false
}

func (e *OpenAIEngine) PullModel(_ context.Context, name string, _ func(PullProgress)) error {
	return fmt.Errorf("model %s is not available on the remote endpoint and cannot be pulled", name)
}
