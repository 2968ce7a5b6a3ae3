package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/BlockchainHB/fbabossdiscord/internal/conversation"
	"github.com/BlockchainHB/fbabossdiscord/internal/pipeline"
	"github.com/BlockchainHB/fbabossdiscord/internal/queue"
)

type askRequest struct {
	pipeline.QuestionRequest
	JobID        string `json:"job_id,omitempty"`
	HighPriority bool   `json:"high_priority,omitempty"`
}

type askResponse struct {
	JobID string `json:"job_id"`
	*pipeline.QAResult
	ProcessingMS int64 `json:"processing_ms"`
}

func handleAsk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := req.Validate(); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		scope := queue.ScopeKey(req.Scope)
		if st := deps.Queue.CheckRateLimit(req.UserID, scope); !st.Allowed {
			rateLimited(w, st)
			return
		}

		id, err := deps.Queue.Enqueue(req.QuestionRequest, queue.EnqueueOptions{
			JobID:        req.JobID,
			HighPriority: req.HighPriority,
		})
		if errors.Is(err, queue.ErrRateLimited) {
			rateLimited(w, deps.Queue.CheckRateLimit(req.UserID, scope))
			return
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		res, err := deps.Queue.Run(r.Context(), id)
		switch {
		case r.Context().Err() != nil:
			slog.Debug("client went away while waiting", "job_id", id)
			return
		case errors.Is(err, queue.ErrJobTimeout):
			httpError(w, http.StatusGatewayTimeout, "timeout_error", "%v", err)
			return
		case errors.Is(err, pipeline.ErrPipelineExhausted):
			httpError(w, http.StatusBadGateway, "pipeline_error", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		case res == nil:
			httpError(w, http.StatusConflict, "api_error", "job %s finished before its result could be collected", id)
			return
		}

		writeJSON(w, http.StatusOK, askResponse{
			JobID:        id,
			QAResult:     res,
			ProcessingMS: res.ProcessingTime.Milliseconds(),
		})
	}
}

func rateLimited(w http.ResponseWriter, st queue.RateLimitStatus) {
	wait := time.Until(st.ResetAt)
	if wait < 0 {
		wait = 0
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error": map[string]any{
			"message": "rate limit exceeded",
			"type":    "rate_limit_error",
		},
		"rate_limit": st,
	})
}

func handleRateLimit(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		userID := q.Get("user_id")
		if userID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}
		scope := queue.ScopeKey(conversation.Scope{
			GuildID:   q.Get("guild_id"),
			ChannelID: q.Get("channel_id"),
		})
		writeJSON(w, http.StatusOK, deps.Queue.CheckRateLimit(userID, scope))
	}
}

func handleQueueStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Queue.Stats())
	}
}

type usageResponse struct {
	Since            time.Time `json:"since"`
	Questions        int       `json:"questions"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	EmbeddingTokens  int       `json:"embedding_tokens"`
	AvgLatencyMS     float64   `json:"avg_latency_ms"`
	AvgConfidence    float64   `json:"avg_confidence"`
}

func handleUsage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hours := parseIntParam(r, "hours", 24, 24*30)
		since := time.Now().Add(-time.Duration(hours) * time.Hour).UTC()

		sum, err := deps.Store.SummarizeUsage(r.Context(), since)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to summarize usage: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, usageResponse{
			Since:            since,
			Questions:        sum.Questions,
			PromptTokens:     sum.PromptTokens,
			CompletionTokens: sum.CompletionTokens,
			EmbeddingTokens:  sum.EmbeddingTokens,
			AvgLatencyMS:     sum.AvgLatencyMS,
			AvgConfidence:    sum.AvgConfidence,
		})
	}
}
