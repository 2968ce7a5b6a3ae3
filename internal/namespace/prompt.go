package namespace

import (
	"fmt"
	"strings"

	"github.com/BlockchainHB/fbabossdiscord/internal/engine"
)

const routerPreamble = `You route student questions to the knowledge base sections most likely to answer them. Your output must be ONLY a single valid JSON object. Do not include any other text, prose, or markdown.

Available namespaces:`

const routerRules = `Rules:
- Choose between 1 and 3 namespaces, most relevant first.
- Use only names from the list above.
- "confidence" is a number between 0 and 1.

Respond as: {"namespaces": ["..."], "reasoning": "...", "confidence": 0.0}`

// BuildPrompt constructs the classification messages for a question.
func BuildPrompt(c *Catalog, question string) []engine.Message {
	var sb strings.Builder
	sb.WriteString(routerPreamble)
	sb.WriteString("\n")
	for _, ns := range c.namespaces {
		fmt.Fprintf(&sb, "- %s: %s\n", ns.Name, ns.Description)
	}
	sb.WriteString("\n")
	sb.WriteString(routerRules)

	return []engine.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: question},
	}
}

func routingSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"namespaces": {Type: "array", Description: "1 to 3 namespace names, most relevant first", Items: &engine.SchemaProperty{Type: "string"}},
			"reasoning":  {Type: "string", Description: "Why these namespaces were chosen"},
			"confidence": {Type: "number", Description: "Confidence between 0 and 1"},
		},
		Required: []string{"namespaces", "reasoning", "confidence"},
	}
}
