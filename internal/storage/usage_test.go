package storage

import (
	"context"
	"testing"
	"time"
)

func TestLogUsageAndSummarize(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	logs := []UsageLog{
		{ID: "u1", CreatedAt: now.Add(-2 * time.Hour), UserID: "a", Question: "old", PromptTokens: 1000},
		{ID: "u2", CreatedAt: now.Add(-time.Minute), UserID: "a", Question: "q1", Namespaces: []string{"unit-3"},
			PromptTokens: 100, CompletionTokens: 20, EmbeddingTokens: 5, LatencyMS: 300, ResultCount: 2, Confidence: 0.8, Attempts: 1},
		{ID: "u3", CreatedAt: now, UserID: "b", Question: "q2",
			PromptTokens: 50, CompletionTokens: 10, EmbeddingTokens: 3, LatencyMS: 100, ResultCount: 0, Confidence: 0.4, Attempts: 2},
	}
	for _, l := range logs {
		if err := s.LogUsage(ctx, l); err != nil {
			t.Fatalf("LogUsage %s: %v", l.ID, err)
		}
	}

	sum, err := s.SummarizeUsage(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("SummarizeUsage: %v", err)
	}
	if sum.Questions != 2 || sum.PromptTokens != 150 || sum.CompletionTokens != 30 || sum.EmbeddingTokens != 8 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.AvgLatencyMS != 200 {
		t.Errorf("AvgLatencyMS = %v, want 200", sum.AvgLatencyMS)
	}

	recent, err := s.RecentUsage(ctx, 1)
	if err != nil {
		t.Fatalf("RecentUsage: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "u3" {
		t.Fatalf("RecentUsage = %+v", recent)
	}
	if recent[0].Namespaces == nil || len(recent[0].Namespaces) != 0 {
		t.Errorf("Namespaces = %#v, want empty slice", recent[0].Namespaces)
	}
}
