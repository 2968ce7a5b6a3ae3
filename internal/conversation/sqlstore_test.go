package conversation

import (
	"context"
	"testing"

	"github.com/BlockchainHB/fbabossdiscord/internal/storage"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	st, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewSQLStore(st)
}

func TestSQLStore_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	scope := Scope{GuildID: "g1", ChannelID: "c1"}

	if _, ok, err := s.FindRecentConversation(ctx, "u1", scope); err != nil || ok {
		t.Fatalf("Find before create = %v, %v", ok, err)
	}

	h := NewHistory(s, 10)
	id, err := h.Record(ctx, "u1", scope, "", "first question", "first answer")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	found, ok, err := s.FindRecentConversation(ctx, "u1", scope)
	if err != nil || !ok || found != id {
		t.Fatalf("Find = %q, %v, %v; want %q", found, ok, err, id)
	}

	got := h.Build(ctx, "u1", scope, true)
	want := "[just now] User: first question\n[just now] Assistant: first answer"
	if got.Text != want {
		t.Errorf("Text = %q, want %q", got.Text, want)
	}
}

func TestSQLStore_ThreadPreferred(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	guildID, _ := s.CreateConversation(ctx, "u1", Scope{GuildID: "g1", ChannelID: "c1"}, "guild")
	threadID, _ := s.CreateConversation(ctx, "u1", Scope{GuildID: "g1", ChannelID: "c1", ThreadID: "t1"}, "thread")
	// Make the guild conversation the most recently active.
	if err := s.AppendMessage(ctx, guildID, "user", "later"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	got, ok, _ := s.FindRecentConversation(ctx, "u1", Scope{GuildID: "g1", ThreadID: "t1"})
	if !ok || got != threadID {
		t.Errorf("thread scope = %q, want %q", got, threadID)
	}
	got, ok, _ = s.FindRecentConversation(ctx, "u1", Scope{GuildID: "g1", ThreadID: "t-unknown"})
	if !ok || got != guildID {
		t.Errorf("unknown thread = %q, want guild conversation %q", got, guildID)
	}
}

func TestSQLStore_AppendUnknownConversation(t *testing.T) {
	s := openTestStore(t)
	if err := s.AppendMessage(context.Background(), "missing", "user", "hi"); err == nil {
		t.Fatal("expected error appending to unknown conversation")
	}
}
