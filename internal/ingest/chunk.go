package ingest

import (
	"strings"
	"unicode"
)

const (
	// chunkRunes keeps each chunk well inside the embedding model's context.
	chunkRunes   = 2000
	chunkOverlap = 200
)

var chunkSeparators = [][]rune{[]rune("\n\n"), []rune("\n"), []rune(". "), []rune(" ")}

// chunkText splits text into pieces of at most size runes. Cuts prefer a
// blank line, then a line break, a sentence end and finally a space, and
// never fall in the first half of a chunk. Consecutive chunks share up to
// overlap runes, starting on a word boundary.
func chunkText(text string, size, overlap int) []string {
	r := []rune(strings.TrimSpace(text))
	if len(r) == 0 {
		return nil
	}
	if len(r) <= size {
		return []string{string(r)}
	}

	var chunks []string
	start := 0
	for start < len(r) {
		end := start + size
		if end >= len(r) {
			end = len(r)
		} else {
			end = breakPoint(r, start+size/2, end)
		}
		if c := strings.TrimSpace(string(r[start:end])); c != "" {
			chunks = append(chunks, c)
		}
		if end == len(r) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		for next < end && !unicode.IsSpace(r[next-1]) {
			next++
		}
		start = next
	}
	return chunks
}

// breakPoint returns the preferred cut in r[lo:hi], or hi when no separator
// is found.
func breakPoint(r []rune, lo, hi int) int {
	for _, sep := range chunkSeparators {
		for i := hi - len(sep); i >= lo; i-- {
			if hasRunes(r[i:], sep) {
				return i + len(sep)
			}
		}
	}
	return hi
}

func hasRunes(r, prefix []rune) bool {
	if len(r) < len(prefix) {
		return false
	}
	for i, c := range prefix {
		if r[i] != c {
			return false
		}
	}
	return true
}
