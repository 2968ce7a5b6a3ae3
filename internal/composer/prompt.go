package composer

import (
	"strings"

	"github.com/BlockchainHB/fbabossdiscord/internal/engine"
)

const defaultLanguage = "English"

const rolePreamble = `You are the FBA Boss Academy assistant, an expert on selling on Amazon through Fulfillment by Amazon. You answer student questions using the course knowledge base.`

const instructions = `Instructions:
- Be accurate. Base your answer on the knowledge base excerpts below.
- If the excerpts do not contain enough information, say so plainly instead of guessing.
- Structure the answer clearly, using short paragraphs or bullet points.
- Cite the lesson titles you relied on.`

// BuildAnswerPrompt assembles the messages for answer generation. The system
// message carries the role, instructions, conversation history (omitted when
// empty) and document context; the user message is the question as asked.
// A non-empty override replaces the role and instructions, but the context
// blocks are still appended.
func BuildAnswerPrompt(question, documentContext, conversationContext, language, override string) []engine.Message {
	if language == "" {
		language = defaultLanguage
	}

	var sb strings.Builder
	if override != "" {
		sb.WriteString(override)
	} else {
		sb.WriteString(rolePreamble)
		sb.WriteString("\n\n")
		sb.WriteString(instructions)
		sb.WriteString("\n- Reply in ")
		sb.WriteString(language)
		sb.WriteString(".")
	}

	if conversationContext != "" {
		sb.WriteString("\n\n[Conversation History]\n")
		sb.WriteString(conversationContext)
	}

	sb.WriteString("\n\n[Knowledge Base]\n")
	sb.WriteString(documentContext)

	return []engine.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: question},
	}
}
