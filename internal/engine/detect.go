package engine

import "fmt"

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Backend string // "ollama" or "openai"
	BaseURL string
	APIKey  string
}

// Detect returns the Engine for the configured backend.
func Detect(cfg DetectConfig) (Engine, error) {
	switch cfg.Backend {
	case "", "ollama":
		return NewOllamaEngine(cfg.BaseURL), nil
	case "openai":
		return NewOpenAIEngine(cfg.BaseURL, cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown engine backend %q", cfg.Backend)
	}
}
