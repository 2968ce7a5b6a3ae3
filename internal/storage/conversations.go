package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const conversationColumns = `id, user_id, guild_id, channel_id, thread_id, title, created_at, updated_at`

func (s *Store) CreateConversation(ctx context.Context, c Conversation) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (`+conversationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Scope.GuildID, c.Scope.ChannelID, c.Scope.ThreadID, c.Title,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	return err
}

func (s *Store) GetConversation(ctx context.Context, id string) (Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

// FindRecentConversation returns the user's most recently active conversation
// for the scope. A conversation in the same thread wins when scope.ThreadID is
// set; otherwise, or when the thread has none, the most recent conversation in
// the guild is returned. ErrNotFound when neither exists.
func (s *Store) FindRecentConversation(ctx context.Context, userID string, scope ConversationScope) (Conversation, error) {
	if scope.ThreadID != "" {
		row := s.db.QueryRowContext(ctx, `
			SELECT `+conversationColumns+` FROM conversations
			WHERE user_id = ? AND thread_id = ?
			ORDER BY updated_at DESC LIMIT 1`, userID, scope.ThreadID)
		c, err := scanConversation(row)
		if err == nil || !errors.Is(err, ErrNotFound) {
			return c, err
		}
	}

	if scope.GuildID == "" {
		// Direct messages have no guild; fall back to the channel.
		row := s.db.QueryRowContext(ctx, `
			SELECT `+conversationColumns+` FROM conversations
			WHERE user_id = ? AND guild_id = '' AND channel_id = ?
			ORDER BY updated_at DESC LIMIT 1`, userID, scope.ChannelID)
		return scanConversation(row)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE user_id = ? AND guild_id = ?
		ORDER BY updated_at DESC LIMIT 1`, userID, scope.GuildID)
	return scanConversation(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (Conversation, error) {
	var c Conversation
	var createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.UserID, &c.Scope.GuildID, &c.Scope.ChannelID, &c.Scope.ThreadID, &c.Title, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return Conversation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Conversation{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return c, nil
}

// AppendMessage stores a message and bumps the conversation's updated_at.
func (s *Store) AppendMessage(ctx context.Context, m Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	ts := formatTime(m.CreatedAt)
	res, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, ts, m.ConversationID)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return fmt.Errorf("conversation %s: %w", m.ConversationID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Role, m.Content, ts,
	); err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	return tx.Commit()
}

// LoadRecentMessages returns up to limit messages of a conversation, newest first.
func (s *Store) LoadRecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at FROM messages
		WHERE conversation_id = ?
		ORDER BY seq DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// ListMessages returns every message of a conversation in chronological order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		m.CreatedAt = t
		out = append(out, m)
	}
	return out, rows.Err()
}
