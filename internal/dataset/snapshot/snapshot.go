// Package snapshot defines the dataset wire format: a single immutable,
// timestamped JSON export of searchable documents. The snapshot file is the
// only persisted artifact and the payload served by the dataset endpoint.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Document types present in a snapshot.
const (
	TypePost = "post"
	TypePage = "page"
)

// Document is one searchable item. Documents are immutable once placed in a
// snapshot; content changes produce a new snapshot generation instead.
type Document struct {
	ID    int64     `json:"id"`
	Title string    `json:"title"`
	URL   string    `json:"url"`
	Date  time.Time `json:"date"`
	Type  string    `json:"type"`
	Text  string    `json:"text"`
}

// Snapshot is the full export. Invariant: Count == len(Docs).
type Snapshot struct {
	GeneratedAt time.Time  `json:"generated_at"`
	Count       int        `json:"count"`
	Docs        []Document `json:"docs"`
}

// New builds a Snapshot around docs with Count set and the generation
// timestamp taken in UTC.
func New(docs []Document) *Snapshot {
	if docs == nil {
		docs = []Document{}
	}
	return &Snapshot{
		GeneratedAt: time.Now().UTC(),
		Count:       len(docs),
		Docs:        docs,
	}
}

// Validate checks the snapshot invariants: count matches and ids are unique.
func (s *Snapshot) Validate() error {
	if s.Count != len(s.Docs) {
		return fmt.Errorf("snapshot count %d does not match %d docs", s.Count, len(s.Docs))
	}
	seen := make(map[int64]struct{}, len(s.Docs))
	for _, d := range s.Docs {
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("duplicate document id %d", d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}

// Marshal serialises the snapshot with HTML escaping disabled, so URLs and
// Unicode text stay readable on the wire.
func (s *Snapshot) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads a snapshot from r and validates it.
func Decode(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and validates a snapshot file from disk.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}
