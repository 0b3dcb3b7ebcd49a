// Package content reads the site's published documents from the content
// repository. It is purely a data source: markup stripping and excerpt
// truncation happen on the dataset write path, not here.
package content

import (
	"context"
	"time"

	"github.com/sitekit/search-assistant/pkg/config"
)

// RawDocument is one published item as stored in the repository, body
// unstripped.
type RawDocument struct {
	ID    int64
	Title string
	URL   string
	Date  time.Time
	Type  string
	Body  string
}

// Stats summarises the full published set for change detection: how many
// documents exist, when the newest modification happened, and which ids are
// present. Exclusion rules do not filter Stats; they reach the signature
// through their serialised form instead.
type Stats struct {
	Count        int
	LastModified time.Time
	IDs          []int64
}

// Repository is the read interface over the site content.
type Repository interface {
	// Stats returns the change-detection summary of all published documents.
	Stats(ctx context.Context) (Stats, error)
	// Extract returns the eligible documents honoring the exclusion config,
	// newest first. Excluded ids are dropped outright; posts carrying an
	// excluded category or tag are dropped; pages ignore category and tag
	// exclusions.
	Extract(ctx context.Context, excl config.ExclusionConfig) ([]RawDocument, error)
}
