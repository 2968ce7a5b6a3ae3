package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/BlockchainHB/fbabossdiscord/internal/storage"
	"github.com/google/uuid"
)

var _ Store = (*SQLStore)(nil)

// SQLStore implements Store on top of the SQLite storage layer.
type SQLStore struct {
	db *storage.Store
}

func NewSQLStore(db *storage.Store) *SQLStore {
	return &SQLStore{db: db}
}

func toStorageScope(s Scope) storage.ConversationScope {
	return storage.ConversationScope{GuildID: s.GuildID, ChannelID: s.ChannelID, ThreadID: s.ThreadID}
}

func (s *SQLStore) FindRecentConversation(ctx context.Context, userID string, scope Scope) (string, bool, error) {
	c, err := s.db.FindRecentConversation(ctx, userID, toStorageScope(scope))
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return c.ID, true, nil
}

func (s *SQLStore) LoadRecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	rows, err := s.db.LoadRecentMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	out := make([]Message, len(rows))
	for i, m := range rows {
		out[i] = Message{Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt}
	}
	return out, nil
}

func (s *SQLStore) AppendMessage(ctx context.Context, conversationID, role, content string) error {
	return s.db.AppendMessage(ctx, storage.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	})
}

func (s *SQLStore) CreateConversation(ctx context.Context, userID string, scope Scope, title string) (string, error) {
	id := uuid.New().String()
	err := s.db.CreateConversation(ctx, storage.Conversation{
		ID:     id,
		UserID: userID,
		Scope:  toStorageScope(scope),
		Title:  title,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}
