package composer

import (
	"fmt"
	"strings"

	"github.com/BlockchainHB/fbabossdiscord/internal/retrieval"
)

// NoRelevantContent is the document context rendered for an empty match set.
const NoRelevantContent = "No relevant content was found in the knowledge base for this question."

const defaultMaxContextTokens = 4000

// Composer renders retrieval results and conversation history into answer
// prompts, keeping injected document context under a token budget.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for document context.
// If maxContextTokens <= 0, the default (4000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// BuildDocumentContext renders matches in the given order, one labeled block
// per match, separated by blank lines. An empty input yields NoRelevantContent.
func BuildDocumentContext(matches []retrieval.Match) string {
	if len(matches) == 0 {
		return NoRelevantContent
	}
	blocks := make([]string, len(matches))
	for i, m := range matches {
		blocks[i] = formatMatch(m)
	}
	return strings.Join(blocks, "\n\n")
}

// BuildDocumentContext is like the package-level function but skips blocks
// that would push the rendered context past MaxContextTokens. Input order is
// kept, so callers pass matches best-first. The matches that made it into
// the context are returned alongside it.
func (c *Composer) BuildDocumentContext(matches []retrieval.Match) (string, []retrieval.Match) {
	remaining := c.MaxContextTokens
	var blocks []string
	var rendered []retrieval.Match
	for _, m := range matches {
		block := formatMatch(m)
		tokens := EstimateTokens(block)
		if tokens > remaining {
			continue
		}
		blocks = append(blocks, block)
		rendered = append(rendered, m)
		remaining -= tokens
	}
	if len(blocks) == 0 {
		return NoRelevantContent, nil
	}
	return strings.Join(blocks, "\n\n"), rendered
}

func formatMatch(m retrieval.Match) string {
	title := m.Metadata.Title()
	if title == "" {
		title = "Untitled"
	}
	return fmt.Sprintf("[%s] (Relevance: %.1f%%)\n%s", title, m.Score*100, m.Metadata.Body())
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
