// Package index builds the in-memory inverted index over one snapshot.
//
// An Index maps each term to its document frequency and a posting list of
// per-document term frequencies, plus a side table of stored documents for
// result rendering. It is rebuilt from scratch for every snapshot load; no
// incremental update exists. An Index is not goroutine-safe: each querying
// session owns a private instance, so the query path needs no locking.
package index

import (
	"github.com/sitekit/search-assistant/internal/dataset/snapshot"
	"github.com/sitekit/search-assistant/internal/search/tokenizer"
)

// Default field set indexed when Options.Fields is empty.
var defaultFields = []string{FieldTitle, FieldText}

// Field names understood by the index and by boost configuration.
const (
	FieldTitle = "title"
	FieldText  = "text"
	FieldURL   = "url"
	FieldType  = "type"
)

// TermEntry holds one term's statistics. Invariant: DF == len(Postings).
type TermEntry struct {
	DF       int
	Postings map[int64]int // document id → term frequency
}

// Index is the inverted index plus the stored-document side table.
type Index struct {
	terms    map[string]*TermEntry
	stored   map[int64]snapshot.Document
	docCount int
}

// Options controls which document fields are tokenised into the index.
type Options struct {
	Fields []string
}

// Build constructs an Index over docs. Terms from all configured fields of a
// document are counted together into a single per-document term frequency.
func Build(docs []snapshot.Document, opts Options) *Index {
	fields := opts.Fields
	if len(fields) == 0 {
		fields = defaultFields
	}

	ix := &Index{
		terms:    make(map[string]*TermEntry),
		stored:   make(map[int64]snapshot.Document, len(docs)),
		docCount: len(docs),
	}

	for _, doc := range docs {
		ix.stored[doc.ID] = doc

		counts := make(map[string]int)
		for _, field := range fields {
			for _, term := range tokenizer.Tokenize(FieldValue(doc, field)) {
				counts[term]++
			}
		}

		for term, tf := range counts {
			entry, ok := ix.terms[term]
			if !ok {
				entry = &TermEntry{Postings: make(map[int64]int, 4)}
				ix.terms[term] = entry
			}
			entry.Postings[doc.ID] = tf
			entry.DF = len(entry.Postings)
		}
	}

	return ix
}

// Lookup returns the entry for term, or nil when the term is not indexed.
func (ix *Index) Lookup(term string) *TermEntry {
	return ix.terms[term]
}

// Range calls fn for every indexed term until fn returns false. Iteration
// order is unspecified.
func (ix *Index) Range(fn func(term string, entry *TermEntry) bool) {
	for term, entry := range ix.terms {
		if !fn(term, entry) {
			return
		}
	}
}

// Doc returns the stored document for id.
func (ix *Index) Doc(id int64) (snapshot.Document, bool) {
	doc, ok := ix.stored[id]
	return doc, ok
}

// DocCount returns the number of indexed documents.
func (ix *Index) DocCount() int {
	return ix.docCount
}

// TermCount returns the number of distinct indexed terms.
func (ix *Index) TermCount() int {
	return len(ix.terms)
}

// FieldValue returns the named field of doc, or "" for unknown fields.
func FieldValue(doc snapshot.Document, field string) string {
	switch field {
	case FieldTitle:
		return doc.Title
	case FieldText:
		return doc.Text
	case FieldURL:
		return doc.URL
	case FieldType:
		return doc.Type
	default:
		return ""
	}
}
