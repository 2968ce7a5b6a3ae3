package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/BlockchainHB/fbabossdiscord/internal/conversation"
)

// MaxQuestionRunes bounds the length of a submitted question.
const MaxQuestionRunes = 500

// ErrInvalidRequest is returned for requests that fail validation.
var ErrInvalidRequest = errors.New("invalid question request")

// QuestionRequest is one user's question submission.
type QuestionRequest struct {
	Question       string             `json:"question"`
	UserID         string             `json:"user_id"`
	Scope          conversation.Scope `json:"scope"`
	MemoryEnabled  bool               `json:"memory_enabled"`
	Language       string             `json:"language,omitempty"`
	PromptOverride string             `json:"prompt_override,omitempty"`
}

// Validate checks the request invariants.
func (r QuestionRequest) Validate() error {
	q := strings.TrimSpace(r.Question)
	if q == "" {
		return fmt.Errorf("%w: question is empty", ErrInvalidRequest)
	}
	if n := utf8.RuneCountInString(q); n > MaxQuestionRunes {
		return fmt.Errorf("%w: question is %d characters, limit is %d", ErrInvalidRequest, n, MaxQuestionRunes)
	}
	if r.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	return nil
}
