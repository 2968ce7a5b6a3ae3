package pipeline

import (
	"time"

	"github.com/BlockchainHB/fbabossdiscord/internal/retrieval"
)

// snippetRunes bounds the content excerpt carried by each Source.
const snippetRunes = 300

// QAResult is the outcome of a successfully processed question.
type QAResult struct {
	Answer         string        `json:"answer"`
	Confidence     float64       `json:"confidence"`
	Sources        []Source      `json:"sources"`
	Usage          TokenUsage    `json:"usage"`
	ProcessingTime time.Duration `json:"processing_time"`
	ConversationID string        `json:"conversation_id,omitempty"`

	ImprovedQuestion string   `json:"improved_question"`
	Namespaces       []string `json:"namespaces"`
	Attempts         int      `json:"attempts"`
}

// Source is one knowledge-base match that informed the answer.
type Source struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Content   string             `json:"content"`
	Score     float64            `json:"score"`
	Namespace string             `json:"namespace"`
	Metadata  retrieval.Metadata `json:"metadata"`
}

// TokenUsage counts the tokens spent on one question.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	EmbeddingTokens  int `json:"embedding_tokens"`
}

func sourcesFromMatches(matches []retrieval.Match) []Source {
	sources := make([]Source, len(matches))
	for i, m := range matches {
		sources[i] = Source{
			ID:        m.ID,
			Title:     m.Metadata.Title(),
			Content:   snippet(m.Metadata.Body(), snippetRunes),
			Score:     m.Score,
			Namespace: m.Namespace,
			Metadata:  m.Metadata,
		}
	}
	return sources
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
