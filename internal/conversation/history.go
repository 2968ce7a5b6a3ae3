package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultLimit is the number of recent messages rendered into a prompt.
const DefaultLimit = 10

// maxTitleRunes caps conversation titles derived from the opening question.
const maxTitleRunes = 50

// Context is the rendered conversation history for one question.
type Context struct {
	Text           string
	ConversationID string
}

// History renders and records per-user conversation memory.
type History struct {
	store  Store
	clock  Clock
	limit  int
	logger *slog.Logger
}

// NewHistory creates a History that renders at most limit messages.
// A non-positive limit selects DefaultLimit.
func NewHistory(store Store, limit int) *History {
	return NewHistoryWithClock(store, realClock{}, limit)
}

// NewHistoryWithClock creates a History with a custom clock (for testing).
func NewHistoryWithClock(store Store, clock Clock, limit int) *History {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &History{store: store, clock: clock, limit: limit, logger: slog.Default()}
}

// Build returns the recent history of the user's conversation in scope.
// Memory disabled, no scope, or no prior conversation yield an empty
// Context. Store failures are logged and also yield an empty Context.
func (h *History) Build(ctx context.Context, userID string, scope Scope, enabled bool) Context {
	if !enabled || userID == "" || scope.IsZero() {
		return Context{}
	}

	id, ok, err := h.store.FindRecentConversation(ctx, userID, scope)
	if err != nil {
		h.logger.Warn("conversation lookup failed", "user", userID, "error", err)
		return Context{}
	}
	if !ok {
		return Context{}
	}

	msgs, err := h.store.LoadRecentMessages(ctx, id, h.limit)
	if err != nil {
		h.logger.Warn("loading conversation history failed", "conversation", id, "error", err)
		return Context{ConversationID: id}
	}

	return Context{Text: h.render(msgs), ConversationID: id}
}

// render formats newest-first messages as chronological transcript lines.
func (h *History) render(newestFirst []Message) string {
	if len(newestFirst) == 0 {
		return ""
	}
	now := h.clock.Now()
	var b strings.Builder
	for i := len(newestFirst) - 1; i >= 0; i-- {
		m := newestFirst[i]
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] %s: %s", RelativeTime(now, m.CreatedAt), speaker(m.Role), m.Content)
	}
	return b.String()
}

func speaker(role string) string {
	switch role {
	case "assistant":
		return "Assistant"
	case "user":
		return "User"
	default:
		if role == "" {
			return "Unknown"
		}
		return strings.ToUpper(role[:1]) + role[1:]
	}
}

// Record stores a question/answer exchange. When conversationID is empty a
// new conversation titled after the question is created first. Returns the
// conversation the exchange was stored in.
func (h *History) Record(ctx context.Context, userID string, scope Scope, conversationID, question, answer string) (string, error) {
	if conversationID == "" {
		id, err := h.store.CreateConversation(ctx, userID, scope, Title(question))
		if err != nil {
			return "", fmt.Errorf("creating conversation: %w", err)
		}
		conversationID = id
	}
	if err := h.store.AppendMessage(ctx, conversationID, "user", question); err != nil {
		return conversationID, fmt.Errorf("storing question: %w", err)
	}
	if err := h.store.AppendMessage(ctx, conversationID, "assistant", answer); err != nil {
		return conversationID, fmt.Errorf("storing answer: %w", err)
	}
	return conversationID, nil
}

// Title derives a conversation title from its opening question.
func Title(question string) string {
	q := strings.Join(strings.Fields(question), " ")
	r := []rune(q)
	if len(r) <= maxTitleRunes {
		return q
	}
	return strings.TrimSpace(string(r[:maxTitleRunes])) + "..."
}

// RelativeTime renders t relative to now: "just now", "5m ago", "3h ago",
// "2d ago". Future timestamps render as "just now".
func RelativeTime(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	}
}
