package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "FBABOSS_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "engine.backend", typ: kString, env: "FBABOSS_ENGINE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Engine.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Backend },
	},
	{
		key: "engine.base_url", typ: kString, env: "FBABOSS_ENGINE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Engine.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.BaseURL },
	},
	{
		key: "engine.api_key", typ: kString, env: "FBABOSS_ENGINE_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Engine.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.APIKey },
	},
	{
		key: "engine.chat_model", typ: kString, env: "FBABOSS_ENGINE_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Engine.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.ChatModel },
	},
	{
		key: "engine.fast_model", typ: kString, env: "FBABOSS_ENGINE_FAST_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Engine.FastModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.FastModel },
	},
	{
		key: "engine.embed_model", typ: kString, env: "FBABOSS_ENGINE_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Engine.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.EmbedModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "FBABOSS_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "FBABOSS_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "FBABOSS_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.min_score", typ: kFloat, env: "FBABOSS_RETRIEVAL_MIN_SCORE",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MinScore = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.MinScore },
	},
	{
		key: "retrieval.namespaces_file", typ: kString, env: "FBABOSS_RETRIEVAL_NAMESPACES_FILE",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.NamespacesFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Retrieval.NamespacesFile },
	},
	{
		key: "retrieval.default_namespace", typ: kString, env: "FBABOSS_RETRIEVAL_DEFAULT_NAMESPACE",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.DefaultNamespace = v.(string) },
		extract: func(cfg Config) any { return cfg.Retrieval.DefaultNamespace },
	},
	{
		key: "retrieval.rerank", typ: kBool, env: "FBABOSS_RETRIEVAL_RERANK",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.Rerank = v.(bool) },
		extract: func(cfg Config) any { return cfg.Retrieval.Rerank },
	},
	{
		key: "retrieval.rerank_timeout", typ: kDuration, env: "FBABOSS_RETRIEVAL_RERANK_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.RerankTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Retrieval.RerankTimeout },
	},
	{
		key: "retrieval.rerank_threshold", typ: kFloat, env: "FBABOSS_RETRIEVAL_RERANK_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.RerankThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.RerankThreshold },
	},
	{
		key: "qa.max_attempts", typ: kInt, env: "FBABOSS_QA_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.QA.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.QA.MaxAttempts },
	},
	{
		key: "qa.backoff_base", typ: kDuration, env: "FBABOSS_QA_BACKOFF_BASE",
		apply:   func(cfg *Config, v any) { cfg.QA.BackoffBase = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.QA.BackoffBase },
	},
	{
		key: "qa.backoff_cap", typ: kDuration, env: "FBABOSS_QA_BACKOFF_CAP",
		apply:   func(cfg *Config, v any) { cfg.QA.BackoffCap = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.QA.BackoffCap },
	},
	{
		key: "qa.improve_attempts", typ: kInt, env: "FBABOSS_QA_IMPROVE_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.QA.ImproveAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.QA.ImproveAttempts },
	},
	{
		key: "qa.improve_delay", typ: kDuration, env: "FBABOSS_QA_IMPROVE_DELAY",
		apply:   func(cfg *Config, v any) { cfg.QA.ImproveDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.QA.ImproveDelay },
	},
	{
		key: "qa.history_limit", typ: kInt, env: "FBABOSS_QA_HISTORY_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.QA.HistoryLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.QA.HistoryLimit },
	},
	{
		key: "queue.workers", typ: kInt, env: "FBABOSS_QUEUE_WORKERS",
		apply:   func(cfg *Config, v any) { cfg.Queue.Workers = v.(int) },
		extract: func(cfg Config) any { return cfg.Queue.Workers },
	},
	{
		key: "queue.poll_interval", typ: kDuration, env: "FBABOSS_QUEUE_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Queue.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Queue.PollInterval },
	},
	{
		key: "queue.job_timeout", typ: kDuration, env: "FBABOSS_QUEUE_JOB_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Queue.JobTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Queue.JobTimeout },
	},
	{
		key: "rate_limit.max_requests", typ: kInt, env: "FBABOSS_RATE_LIMIT_MAX_REQUESTS",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.MaxRequests = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.MaxRequests },
	},
	{
		key: "rate_limit.window", typ: kDuration, env: "FBABOSS_RATE_LIMIT_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.Window = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.RateLimit.Window },
	},
	{
		key: "rate_limit.exempt_users", typ: kString, env: "FBABOSS_RATE_LIMIT_EXEMPT_USERS",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.ExemptUsers = v.(string) },
		extract: func(cfg Config) any { return cfg.RateLimit.ExemptUsers },
	},
	{
		key: "api.token", typ: kString, env: "FBABOSS_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

// parseValue converts a raw string into the Go value for the given key type.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
