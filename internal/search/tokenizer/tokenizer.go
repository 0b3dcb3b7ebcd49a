// Package tokenizer normalises text into search terms. It lower-cases input
// and splits on every rune that is neither a Unicode letter nor a digit.
//
// Index terms and query terms must come out byte-identical for the same
// input, so no stop-word removal or stemming is applied here: the query
// engine's prefix and fuzzy expansion operates on the raw surface forms.
package tokenizer

import (
	"strings"
	"unicode"
)

// Tokenize breaks text into lowercase terms. Empty input yields an empty,
// non-nil slice. The function is pure and deterministic.
func Tokenize(text string) []string {
	if text == "" {
		return []string{}
	}
	text = strings.ToLower(text)
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Unique returns the distinct terms of text in first-seen order.
func Unique(text string) []string {
	terms := Tokenize(text)
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
