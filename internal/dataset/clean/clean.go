// Package clean prepares raw document bodies for the snapshot: markup is
// stripped to plain text and the result is truncated to an excerpt.
package clean

import (
	"strings"

	"golang.org/x/net/html"
)

// Ellipsis marks a truncated excerpt.
const Ellipsis = "…"

// Tags whose text content never belongs in a search excerpt.
var droppedTags = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
}

// StripMarkup reduces an HTML fragment to its visible text: contents of
// script/style-like elements are dropped, all tags are removed, and runs of
// whitespace collapse to single spaces. Plain-text input passes through
// unchanged apart from whitespace collapsing.
func StripMarkup(fragment string) string {
	tok := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	depth := 0
	for {
		switch tok.Next() {
		case html.ErrorToken:
			// io.EOF ends the fragment; malformed input degrades to
			// whatever text was collected before the error.
			return collapse(b.String())
		case html.StartTagToken:
			name, _ := tok.TagName()
			if _, drop := droppedTags[string(name)]; drop {
				depth++
			}
		case html.EndTagToken:
			name, _ := tok.TagName()
			if _, drop := droppedTags[string(name)]; drop && depth > 0 {
				depth--
			}
		case html.TextToken:
			if depth == 0 {
				b.Write(tok.Text())
				b.WriteByte(' ')
			}
		}
	}
}

// Excerpt truncates text to at most max runes, appending the ellipsis marker
// when truncation happened. Text at or under the limit is returned unchanged.
func Excerpt(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + Ellipsis
}

// collapse trims and squeezes runs of whitespace into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
