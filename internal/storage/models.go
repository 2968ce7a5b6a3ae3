package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// timeFormat is fixed-width so stored timestamps sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeFormat) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeFormat, s) }

// ConversationScope locates a conversation on the chat platform. Empty
// fields mean "not applicable" (for example a direct message has no guild).
type ConversationScope struct {
	GuildID   string
	ChannelID string
	ThreadID  string
}

type Conversation struct {
	ID        string
	UserID    string
	Scope     ConversationScope
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	ID             string
	ConversationID string
	Role           string // "user" or "assistant"
	Content        string
	CreatedAt      time.Time
}

// UsageLog is one telemetry record per processed question.
type UsageLog struct {
	ID               string
	CreatedAt        time.Time
	UserID           string
	ConversationID   string
	Question         string
	Namespaces       []string
	PromptTokens     int
	CompletionTokens int
	EmbeddingTokens  int
	LatencyMS        int64
	ResultCount      int
	Confidence       float64
	Attempts         int
}

// UsageSummary aggregates usage_logs over a time range.
type UsageSummary struct {
	Questions        int
	PromptTokens     int
	CompletionTokens int
	EmbeddingTokens  int
	AvgLatencyMS     float64
	AvgConfidence    float64
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Document is a knowledge-base entry awaiting or holding an embedding.
type Document struct {
	ID           string
	Namespace    string
	Type         string // "text", "url", "file"
	Title        string
	Description  string
	Content      string
	Source       string
	MetadataJSON string
	CreatedAt    time.Time
	VectorID     string
}
