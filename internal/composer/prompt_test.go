package composer

import (
	"strings"
	"testing"
)

func TestBuildAnswerPrompt_Default(t *testing.T) {
	msgs := BuildAnswerPrompt("How do I find profitable products?", "[Doc] (Relevance: 81.0%)\nbody", "", "", "")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	sys, user := msgs[0], msgs[1]
	if sys.Role != "system" || user.Role != "user" {
		t.Fatalf("roles = %q, %q", sys.Role, user.Role)
	}
	if user.Content != "How do I find profitable products?" {
		t.Errorf("user content = %q", user.Content)
	}
	for _, want := range []string{rolePreamble, "Cite", "Reply in English.", "[Knowledge Base]\n[Doc]"} {
		if !strings.Contains(sys.Content, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if strings.Contains(sys.Content, "[Conversation History]") {
		t.Error("empty conversation should omit the history block")
	}
}

func TestBuildAnswerPrompt_HistoryAndLanguage(t *testing.T) {
	msgs := BuildAnswerPrompt("q", NoRelevantContent, "[2m ago] User: hi", "Spanish", "")
	sys := msgs[0].Content
	if !strings.Contains(sys, "[Conversation History]\n[2m ago] User: hi") {
		t.Errorf("history block missing:\n%s", sys)
	}
	if !strings.Contains(sys, "Reply in Spanish.") {
		t.Error("language instruction missing")
	}
	if strings.Index(sys, "[Conversation History]") > strings.Index(sys, "[Knowledge Base]") {
		t.Error("history should precede document context")
	}
}

func TestBuildAnswerPrompt_Override(t *testing.T) {
	msgs := BuildAnswerPrompt("q", "docs", "history", "", "You are a pirate.")
	sys := msgs[0].Content
	if !strings.HasPrefix(sys, "You are a pirate.") {
		t.Errorf("override not used: %q", sys)
	}
	if strings.Contains(sys, rolePreamble) {
		t.Error("override should replace the default preamble")
	}
	if !strings.Contains(sys, "[Conversation History]\nhistory") || !strings.Contains(sys, "[Knowledge Base]\ndocs") {
		t.Error("context blocks must still be appended under an override")
	}
}
