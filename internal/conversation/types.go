package conversation

import (
	"context"
	"time"
)

// Scope locates a conversation on the chat platform. Empty fields mean the
// question was asked outside that kind of container.
type Scope struct {
	GuildID   string `json:"guild_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	ThreadID  string `json:"thread_id,omitempty"`
}

// IsZero reports whether no scoping identifiers are set.
func (s Scope) IsZero() bool {
	return s.GuildID == "" && s.ChannelID == "" && s.ThreadID == ""
}

// Message is one stored turn of a conversation.
type Message struct {
	Role      string // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}

// Store persists and retrieves conversation history.
type Store interface {
	// FindRecentConversation returns the most recent conversation of the user
	// in scope, or ok=false when there is none.
	FindRecentConversation(ctx context.Context, userID string, scope Scope) (id string, ok bool, err error)
	// LoadRecentMessages returns up to limit messages, newest first.
	LoadRecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	AppendMessage(ctx context.Context, conversationID, role, content string) error
	CreateConversation(ctx context.Context, userID string, scope Scope, title string) (string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
