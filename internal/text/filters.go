package text

import "strings"

// stopWords is the fixed list stripped from similarity queries before
// submission. Matching is case-insensitive.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"and", "to", "but", "or", "so", "yet", "for", "nor",
		"a", "an", "the", "in", "on", "at", "with", "by", "of", "as",
		"is", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "do", "does", "did",
		"will", "would", "shall", "should", "can", "could", "may", "might", "must",
	} {
		stopWords[w] = struct{}{}
	}
}

// DedupeWords removes duplicate words, keeping the first occurrence.
// Comparison is case-insensitive; the surviving word keeps its original case.
func DedupeWords(input string) string {
	words := strings.Split(input, " ")
	seen := make(map[string]struct{}, len(words))
	out := words[:0]
	for _, w := range words {
		lower := strings.ToLower(w)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

// StripStopWords removes common function words from the input.
func StripStopWords(input string) string {
	words := strings.Split(input, " ")
	out := words[:0]
	for _, w := range words {
		if _, ok := stopWords[strings.ToLower(w)]; ok {
			continue
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}
