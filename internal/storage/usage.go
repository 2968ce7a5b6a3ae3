package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// LogUsage persists one telemetry record.
func (s *Store) LogUsage(ctx context.Context, u UsageLog) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	ns := u.Namespaces
	if ns == nil {
		ns = []string{}
	}
	nsJSON, err := json.Marshal(ns)
	if err != nil {
		return fmt.Errorf("encoding namespaces: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO usage_logs (id, created_at, user_id, conversation_id, question, namespaces,
			prompt_tokens, completion_tokens, embedding_tokens, latency_ms, result_count, confidence, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, formatTime(u.CreatedAt), u.UserID, u.ConversationID, u.Question, string(nsJSON),
		u.PromptTokens, u.CompletionTokens, u.EmbeddingTokens, u.LatencyMS, u.ResultCount, u.Confidence, u.Attempts,
	)
	return err
}

// RecentUsage returns the newest usage records, newest first.
func (s *Store) RecentUsage(ctx context.Context, limit int) ([]UsageLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, user_id, conversation_id, question, namespaces,
			prompt_tokens, completion_tokens, embedding_tokens, latency_ms, result_count, confidence, attempts
		FROM usage_logs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UsageLog
	for rows.Next() {
		var u UsageLog
		var createdAt, nsJSON string
		if err := rows.Scan(&u.ID, &createdAt, &u.UserID, &u.ConversationID, &u.Question, &nsJSON,
			&u.PromptTokens, &u.CompletionTokens, &u.EmbeddingTokens, &u.LatencyMS, &u.ResultCount, &u.Confidence, &u.Attempts); err != nil {
			return nil, err
		}
		if u.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if err := json.Unmarshal([]byte(nsJSON), &u.Namespaces); err != nil {
			return nil, fmt.Errorf("decoding namespaces for %s: %w", u.ID, err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SummarizeUsage aggregates usage records created at or after since.
func (s *Store) SummarizeUsage(ctx context.Context, since time.Time) (UsageSummary, error) {
	var sum UsageSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0), COALESCE(SUM(embedding_tokens), 0),
			COALESCE(AVG(latency_ms), 0), COALESCE(AVG(confidence), 0)
		FROM usage_logs WHERE created_at >= ?`, formatTime(since),
	).Scan(&sum.Questions, &sum.PromptTokens, &sum.CompletionTokens, &sum.EmbeddingTokens, &sum.AvgLatencyMS, &sum.AvgConfidence)
	return sum, err
}
