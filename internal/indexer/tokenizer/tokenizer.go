// Package tokenizer provides text tokenisation for the search engine.
// It lower-cases input and splits it into runs of word characters
// (letters, digits, combining marks and underscore). There is no stop-word
// removal and no stemming, so documents and queries tokenize identically.
package tokenizer

import (
	"strings"
	"unicode"
)

// IsWordRune reports whether r belongs inside a token.
func IsWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_'
}

// Tokenize breaks text into lower-cased tokens in order of appearance.
// Duplicates are kept.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !IsWordRune(r)
	})
}

// Unique returns the distinct tokens of text in first-seen order.
func Unique(text string) []string {
	tokens := Tokenize(text)
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// Frequencies counts each token in tokens.
func Frequencies(tokens []string) map[string]int {
	freq := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freq[tok]++
	}
	return freq
}
