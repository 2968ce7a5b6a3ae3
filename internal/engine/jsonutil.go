package engine

import "strings"

// ExtractJSON returns the JSON object embedded in a model reply. Markdown code
// fences and prose around the object are dropped by taking the span from the
// first '{' to the last '}'. Returns "" when no object is present.
func ExtractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}
