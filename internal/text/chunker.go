// Package text prepares free text for submission to the workflow engine:
// sentence-bounded chunking for the embeddings pipeline and word filters for
// similarity queries.
package text

import (
	"regexp"
	"unicode/utf8"
)

// DefaultChunkSize is the character budget used when callers pass size <= 0.
const DefaultChunkSize = 500

// A sentence is a (possibly empty) run of non-terminator characters followed
// by one or more of . ? !
var sentenceRE = regexp.MustCompile(`[^.?!]*[.?!]+`)

// Chunk splits text into chunks of at most size characters, preferring
// sentence boundaries. Sentences accumulate into the current chunk until the
// next one would push it past the budget, at which point the chunk is flushed
// and the sentence starts a new one. A single sentence longer than the budget
// is emitted whole; text with no sentence terminators is treated as one
// sentence. Concatenating the returned chunks reproduces text exactly.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if text == "" {
		return nil
	}

	var units []string
	last := 0
	for _, loc := range sentenceRE.FindAllStringIndex(text, -1) {
		units = append(units, text[loc[0]:loc[1]])
		last = loc[1]
	}
	if last < len(text) {
		// trailing fragment with no terminator
		units = append(units, text[last:])
	}

	var chunks []string
	current := ""
	currentLen := 0
	for _, sentence := range units {
		// the budget counts characters, not bytes
		n := utf8.RuneCountInString(sentence)
		if currentLen+n <= size {
			current += sentence
			currentLen += n
		} else {
			if current != "" {
				chunks = append(chunks, current)
			}
			current = sentence
			currentLen = n
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}
