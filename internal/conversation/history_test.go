package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// --- Mock store ---

type mockStore struct {
	mu       sync.Mutex
	convs    map[string]Scope // id -> scope
	owner    map[string]string
	messages map[string][]Message // oldest first
	nextID   int

	findErr error
	loadErr error
	lastFind Scope
	lastLimit int
}

func newMockStore() *mockStore {
	return &mockStore{
		convs:    make(map[string]Scope),
		owner:    make(map[string]string),
		messages: make(map[string][]Message),
	}
}

func (m *mockStore) FindRecentConversation(_ context.Context, userID string, scope Scope) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFind = scope
	if m.findErr != nil {
		return "", false, m.findErr
	}
	for id, s := range m.convs {
		if m.owner[id] == userID && s == scope {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (m *mockStore) LoadRecentMessages(_ context.Context, id string, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	all := m.messages[id]
	var out []Message
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *mockStore) AppendMessage(_ context.Context, id, role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.convs[id]; !ok {
		return errors.New("no such conversation")
	}
	m.messages[id] = append(m.messages[id], Message{Role: role, Content: content})
	return nil
}

func (m *mockStore) CreateConversation(_ context.Context, userID string, scope Scope, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := "conv-" + string(rune('0'+m.nextID))
	m.convs[id] = scope
	m.owner[id] = userID
	return id, nil
}

// --- Mock clock ---

type mockClock struct{ now time.Time }

func (c mockClock) Now() time.Time { return c.now }

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedConversation(m *mockStore, id, user string, scope Scope, msgs ...Message) {
	m.convs[id] = scope
	m.owner[id] = user
	m.messages[id] = msgs
}

// --- Tests ---

func TestBuild_RendersChronologically(t *testing.T) {
	store := newMockStore()
	scope := Scope{GuildID: "g1", ChannelID: "c1"}
	seedConversation(store, "c", "u1", scope,
		Message{Role: "user", Content: "What is FBA?", CreatedAt: testNow.Add(-3 * time.Minute)},
		Message{Role: "assistant", Content: "Fulfillment by Amazon.", CreatedAt: testNow.Add(-2 * time.Minute)},
		Message{Role: "user", Content: "Thanks", CreatedAt: testNow.Add(-10 * time.Second)},
	)

	h := NewHistoryWithClock(store, mockClock{testNow}, 0)
	got := h.Build(context.Background(), "u1", scope, true)

	want := "[3m ago] User: What is FBA?\n" +
		"[2m ago] Assistant: Fulfillment by Amazon.\n" +
		"[just now] User: Thanks"
	if got.Text != want {
		t.Errorf("Text =\n%s\nwant\n%s", got.Text, want)
	}
	if got.ConversationID != "c" {
		t.Errorf("ConversationID = %q, want c", got.ConversationID)
	}
	if store.lastLimit != DefaultLimit {
		t.Errorf("limit = %d, want %d", store.lastLimit, DefaultLimit)
	}
}

func TestBuild_LimitKeepsNewest(t *testing.T) {
	store := newMockStore()
	scope := Scope{GuildID: "g1"}
	var msgs []Message
	for i := range 5 {
		msgs = append(msgs, Message{Role: "user", Content: string(rune('a' + i)), CreatedAt: testNow})
	}
	seedConversation(store, "c", "u1", scope, msgs...)

	got := NewHistoryWithClock(store, mockClock{testNow}, 2).Build(context.Background(), "u1", scope, true)
	want := "[just now] User: d\n[just now] User: e"
	if got.Text != want {
		t.Errorf("Text = %q, want %q", got.Text, want)
	}
}

func TestBuild_EmptyCases(t *testing.T) {
	store := newMockStore()
	scope := Scope{GuildID: "g1"}
	seedConversation(store, "c", "u1", scope, Message{Role: "user", Content: "hi", CreatedAt: testNow})
	h := NewHistoryWithClock(store, mockClock{testNow}, 10)
	ctx := context.Background()

	if got := h.Build(ctx, "u1", scope, false); got != (Context{}) {
		t.Errorf("disabled = %+v, want empty", got)
	}
	if got := h.Build(ctx, "u1", Scope{}, true); got != (Context{}) {
		t.Errorf("no scope = %+v, want empty", got)
	}
	if got := h.Build(ctx, "someone-else", scope, true); got != (Context{}) {
		t.Errorf("no conversation = %+v, want empty", got)
	}
}

func TestBuild_StoreFailureDegrades(t *testing.T) {
	store := newMockStore()
	scope := Scope{GuildID: "g1"}
	seedConversation(store, "c", "u1", scope, Message{Role: "user", Content: "hi", CreatedAt: testNow})
	h := NewHistoryWithClock(store, mockClock{testNow}, 10)

	store.loadErr = errors.New("disk on fire")
	got := h.Build(context.Background(), "u1", scope, true)
	if got.Text != "" || got.ConversationID != "c" {
		t.Errorf("load failure = %+v, want empty text with id", got)
	}

	store.findErr = errors.New("locked")
	if got := h.Build(context.Background(), "u1", scope, true); got != (Context{}) {
		t.Errorf("find failure = %+v, want empty", got)
	}
}

func TestRecord_CreatesThenReuses(t *testing.T) {
	store := newMockStore()
	h := NewHistory(store, 10)
	ctx := context.Background()
	scope := Scope{GuildID: "g1", ThreadID: "t1"}

	id, err := h.Record(ctx, "u1", scope, "", "How do I find profitable products?", "Use BSR data.")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id == "" {
		t.Fatal("expected a conversation id")
	}
	again, err := h.Record(ctx, "u1", scope, id, "And then?", "Validate demand.")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if again != id {
		t.Errorf("second Record id = %q, want %q", again, id)
	}
	msgs := store.messages[id]
	if len(msgs) != 4 {
		t.Fatalf("stored %d messages, want 4", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" || msgs[3].Content != "Validate demand." {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestTitle(t *testing.T) {
	if got := Title("  short   question "); got != "short question" {
		t.Errorf("Title = %q", got)
	}
	long := strings.Repeat("word ", 30)
	got := Title(long)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) > maxTitleRunes+3 {
		t.Errorf("Title(long) = %q", got)
	}
}

func TestRelativeTime(t *testing.T) {
	cases := []struct {
		ago  time.Duration
		want string
	}{
		{0, "just now"},
		{59 * time.Second, "just now"},
		{3 * time.Minute, "3m ago"},
		{59 * time.Minute, "59m ago"},
		{2 * time.Hour, "2h ago"},
		{23*time.Hour + 59*time.Minute, "23h ago"},
		{50 * time.Hour, "2d ago"},
		{-time.Hour, "just now"},
	}
	for _, c := range cases {
		if got := RelativeTime(testNow, testNow.Add(-c.ago)); got != c.want {
			t.Errorf("RelativeTime(-%v) = %q, want %q", c.ago, got, c.want)
		}
	}
}
