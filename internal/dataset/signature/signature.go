// Package signature computes the content-change fingerprint that drives the
// rebuild-vs-rotate decision. The digest has no semantic meaning beyond
// equality: identical repository state and exclusion rules produce an
// identical signature.
package signature

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sitekit/search-assistant/internal/content"
	"github.com/sitekit/search-assistant/pkg/config"
	apperrors "github.com/sitekit/search-assistant/pkg/errors"
)

// StatsSource supplies the change-detection summary, normally the content
// repository.
type StatsSource interface {
	Stats(ctx context.Context) (content.Stats, error)
}

// Service computes content signatures on demand. It caches nothing: every
// call reflects repository state at call time.
type Service struct {
	src StatsSource
}

// NewService creates a Service over src.
func NewService(src StatsSource) *Service {
	return &Service{src: src}
}

// Compute returns the sha256 hex fingerprint of (document count, newest
// modification time, hash of the sorted id list, canonical exclusion config).
// Changing the exclusion rules alone therefore changes the signature even
// without a content edit.
func (s *Service) Compute(ctx context.Context, excl config.ExclusionConfig) (string, error) {
	stats, err := s.src.Stats(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: reading content stats: %v", apperrors.ErrUpstream, err)
	}

	ids := make([]int64, len(stats.IDs))
	copy(ids, stats.IDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	idHash := sha256.Sum256([]byte(strings.Join(parts, ",")))

	input := fmt.Sprintf("%d|%d|%s|%s",
		stats.Count,
		stats.LastModified.UTC().Unix(),
		hex.EncodeToString(idHash[:]),
		CanonicalExclusions(excl),
	)
	digest := sha256.Sum256([]byte(input))
	return hex.EncodeToString(digest[:]), nil
}

// CanonicalExclusions serialises the exclusion config deterministically:
// each id list sorted and comma-joined, the three sections pipe-joined.
func CanonicalExclusions(excl config.ExclusionConfig) string {
	return strings.Join([]string{
		joinSorted(excl.IDs),
		joinSorted(excl.Categories),
		joinSorted(excl.Tags),
	}, "|")
}

func joinSorted(ids []int64) string {
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
