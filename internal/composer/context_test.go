package composer

import (
	"strings"
	"testing"

	"github.com/BlockchainHB/fbabossdiscord/internal/retrieval"
)

func match(title, text string, score float64) retrieval.Match {
	return retrieval.Match{ID: title, Namespace: "unit-3", Score: score, Metadata: retrieval.NewMetadata(title, "", text)}
}

func TestBuildDocumentContext_Empty(t *testing.T) {
	if got := BuildDocumentContext(nil); got != NoRelevantContent {
		t.Errorf("got %q, want sentinel", got)
	}
	if got, used := New(100).BuildDocumentContext(nil); got != NoRelevantContent || used != nil {
		t.Errorf("budgeted got %q, %v; want sentinel and no matches", got, used)
	}
}

func TestBuildDocumentContext_Format(t *testing.T) {
	matches := []retrieval.Match{
		match("Product Research", "Look for BSR under 5000.", 0.81),
		match("Competition", "Check review counts.", 0.45),
	}
	got := BuildDocumentContext(matches)
	want := "[Product Research] (Relevance: 81.0%)\nLook for BSR under 5000.\n\n" +
		"[Competition] (Relevance: 45.0%)\nCheck review counts."
	if got != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}
	if again := BuildDocumentContext(matches); again != got {
		t.Error("BuildDocumentContext is not deterministic")
	}
}

func TestBuildDocumentContext_FallbacksForMissingFields(t *testing.T) {
	m := retrieval.Match{Score: 0.5, Metadata: retrieval.NewMetadata("", "only a description", "")}
	got := BuildDocumentContext([]retrieval.Match{m})
	if got != "[Untitled] (Relevance: 50.0%)\nonly a description" {
		t.Errorf("got %q", got)
	}
}

func TestComposer_BudgetSkipsOversizedBlocks(t *testing.T) {
	big := match("Big", strings.Repeat("x", 400), 0.9)
	small := match("Small", "tiny", 0.5)

	c := New(50)
	got, used := c.BuildDocumentContext([]retrieval.Match{big, small})
	if strings.Contains(got, "[Big]") {
		t.Error("oversized block should be dropped")
	}
	if !strings.Contains(got, "[Small]") {
		t.Error("small block should be kept")
	}
	if len(used) != 1 || used[0].ID != "Small" {
		t.Errorf("rendered matches = %+v, want only Small", used)
	}

	if got, used := New(1).BuildDocumentContext([]retrieval.Match{small}); got != NoRelevantContent || len(used) != 0 {
		t.Errorf("nothing fits: got %q, %d matches; want sentinel", got, len(used))
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := map[string]int{"": 0, "a": 1, "abcd": 1, "abcde": 2, strings.Repeat("a", 400): 100}
	for in, want := range cases {
		if got := EstimateTokens(in); got != want {
			t.Errorf("EstimateTokens(len %d) = %d, want %d", len(in), got, want)
		}
	}
}
