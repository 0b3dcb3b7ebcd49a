// Package engine answers ranked multi-term queries against an inverted index,
// with exact, prefix, and fuzzy term expansion. The engine never fails: an
// empty query or a query with no matches yields an empty result set.
package engine

import (
	"math"
	"sort"
	"strings"

	"github.com/sitekit/search-assistant/internal/dataset/snapshot"
	"github.com/sitekit/search-assistant/internal/search/index"
	"github.com/sitekit/search-assistant/internal/search/tokenizer"
)

// CombineMode controls how per-term matches combine into the result set.
type CombineMode int

const (
	// CombineAND keeps only documents matched by every distinct query term.
	CombineAND CombineMode = iota
	// CombineOR keeps documents matched by at least one query term.
	CombineOR
)

// Fuzzy terms may differ from a query term by at most this many runes in
// length before edit distance is even computed.
const fuzzyLenDelta = 2

// Options configures a single search call.
//
// Defaults (via DefaultOptions): AND combination, prefix expansion on, fuzzy
// matching with a maximum edit distance of 1, no field boosts.
type Options struct {
	Combine  CombineMode
	Boost    map[string]float64 // field name → additive boost multiplier
	Prefix   bool
	FuzzyMax int // 0 disables fuzzy matching
}

// DefaultOptions returns the documented default search options.
func DefaultOptions() Options {
	return Options{
		Combine:  CombineAND,
		Prefix:   true,
		FuzzyMax: 1,
	}
}

// Result is one scored document.
type Result struct {
	Doc   snapshot.Document
	Score float64
}

// Engine runs queries against one immutable index. It is as goroutine-safe
// as the index it wraps: sessions hold private instances.
type Engine struct {
	ix *index.Index
}

// New creates an Engine over ix.
func New(ix *index.Index) *Engine {
	return &Engine{ix: ix}
}

// Search tokenises query, expands each distinct term, scores candidate
// documents, applies the AND/OR combination, and returns results sorted by
// descending score (ties broken by ascending document id, stable across
// calls). Truncation to a top-K is the caller's responsibility.
func (e *Engine) Search(query string, opts Options) []Result {
	qTerms := tokenizer.Unique(query)
	if len(qTerms) == 0 {
		return []Result{}
	}

	scores := make(map[int64]float64)
	hits := make(map[int64]int)
	n := float64(e.ix.DocCount())

	for _, qt := range qTerms {
		matched := make(map[int64]struct{})
		for _, variant := range e.expand(qt, opts) {
			entry := e.ix.Lookup(variant)
			if entry == nil {
				continue
			}
			weight := idf(n, float64(entry.DF))
			for id, tf := range entry.Postings {
				boost := 1.0
				if doc, ok := e.ix.Doc(id); ok {
					for field, mult := range opts.Boost {
						value := index.FieldValue(doc, field)
						if value != "" && strings.Contains(strings.ToLower(value), variant) {
							boost += mult
						}
					}
				}
				scores[id] += float64(tf) * weight * boost
				matched[id] = struct{}{}
			}
		}
		// A document counts as hit once per query term, no matter how many
		// expansion variants landed on it.
		for id := range matched {
			hits[id]++
		}
	}

	needed := len(qTerms)
	results := make([]Result, 0, len(scores))
	for id, score := range scores {
		if opts.Combine == CombineAND && hits[id] < needed {
			continue
		}
		if hits[id] == 0 {
			continue
		}
		doc, ok := e.ix.Doc(id)
		if !ok {
			continue
		}
		results = append(results, Result{Doc: doc, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Doc.ID < results[j].Doc.ID
	})
	return results
}

// expand computes the expansion set for one query term: the term itself when
// indexed, every indexed term sharing its prefix (when enabled), and every
// indexed term within the fuzzy edit-distance budget. Falls back to the
// literal term when nothing matches, so the term scores zero instead of
// derailing the query.
func (e *Engine) expand(qt string, opts Options) []string {
	set := make(map[string]struct{})
	if e.ix.Lookup(qt) != nil {
		set[qt] = struct{}{}
	}

	if opts.Prefix || opts.FuzzyMax > 0 {
		e.ix.Range(func(term string, _ *index.TermEntry) bool {
			if term == qt {
				return true
			}
			if opts.Prefix && strings.HasPrefix(term, qt) {
				set[term] = struct{}{}
				return true
			}
			if opts.FuzzyMax > 0 && withinLenDelta(term, qt, fuzzyLenDelta) &&
				editDistance(term, qt) <= opts.FuzzyMax {
				set[term] = struct{}{}
			}
			return true
		})
	}

	if len(set) == 0 {
		return []string{qt}
	}
	variants := make([]string, 0, len(set))
	for term := range set {
		variants = append(variants, term)
	}
	return variants
}

// idf computes the inverse-document-frequency weight ln(1 + N/(1+df)).
func idf(totalDocs, docFreq float64) float64 {
	return math.Log(1 + totalDocs/(1+docFreq))
}
