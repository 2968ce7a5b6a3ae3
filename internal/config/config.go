package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Engine    EngineConfig
	Storage   StorageConfig
	Log       LogConfig
	Retrieval RetrievalConfig
	QA        QAConfig
	Queue     QueueConfig
	RateLimit RateLimitConfig
	API       APIConfig
}

type ServerConfig struct {
	Port int
}

// EngineConfig selects the Generation Service backend. Backend is "ollama"
// or "openai" (any OpenAI-compatible endpoint, OpenRouter by default).
type EngineConfig struct {
	Backend    string
	BaseURL    string
	APIKey     string
	ChatModel  string
	FastModel  string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type RetrievalConfig struct {
	TopK             int
	MinScore         float64
	NamespacesFile   string
	DefaultNamespace string

	// Rerank enables LLM re-scoring of search matches with the fast model.
	Rerank          bool
	RerankTimeout   time.Duration
	RerankThreshold float64
}

type QAConfig struct {
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffCap      time.Duration
	ImproveAttempts int
	ImproveDelay    time.Duration
	HistoryLimit    int
}

type QueueConfig struct {
	Workers      int
	PollInterval time.Duration
	JobTimeout   time.Duration
}

type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
	ExemptUsers string // comma-separated user IDs
}

// Exempt returns the parsed admission-control allow-list.
func (r RateLimitConfig) Exempt() []string {
	var ids []string
	for _, id := range strings.Split(r.ExemptUsers, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Engine: EngineConfig{
			Backend:    "ollama",
			BaseURL:    "http://localhost:11434",
			ChatModel:  "llama3.1",
			FastModel:  "phi3.5",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Retrieval: RetrievalConfig{
			TopK:             5,
			MinScore:         0.02,
			DefaultNamespace: "general",
			RerankTimeout:    5 * time.Second,
			RerankThreshold:  0.3,
		},
		QA: QAConfig{
			MaxAttempts:     3,
			BackoffBase:     time.Second,
			BackoffCap:      5 * time.Second,
			ImproveAttempts: 2,
			ImproveDelay:    500 * time.Millisecond,
			HistoryLimit:    10,
		},
		Queue: QueueConfig{
			Workers:      1,
			PollInterval: 500 * time.Millisecond,
			JobTimeout:   2 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 3,
			Window:      60 * time.Second,
		},
	}
}

// Load reads configuration from the JSON file backend
// ($XDG_CONFIG_HOME/fbaboss/config.json), the secrets file, and environment
// variables. Environment variables (FBABOSS_*) override file values.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), fileSecrets{})
}

// secretReader abstracts the secret store for testing.
type secretReader interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretReader) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Engine.APIKey == "" {
		if key, err := secrets.Get(secretService, "engine_api_key"); err == nil && key != "" {
			cfg.Engine.APIKey = key
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Engine.Backend {
	case "ollama":
	case "openai":
		if c.Engine.APIKey == "" {
			return fmt.Errorf("missing required config: engine API key. " +
				"Set it via environment variable FBABOSS_ENGINE_API_KEY")
		}
	default:
		return fmt.Errorf("invalid engine.backend %q: want \"ollama\" or \"openai\"", c.Engine.Backend)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.QA.MaxAttempts <= 0 {
		return fmt.Errorf("qa.max_attempts must be positive, got %d", c.QA.MaxAttempts)
	}
	if c.RateLimit.MaxRequests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.max_requests and rate_limit.window must be positive")
	}
	return nil
}
