package content

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/sitekit/search-assistant/pkg/config"
	"github.com/sitekit/search-assistant/pkg/postgres"
)

// PostgresRepository reads documents from the documents, document_categories,
// and document_tags tables (see schema.sql).
type PostgresRepository struct {
	db *postgres.Client
}

// NewPostgresRepository creates a repository over an existing pool.
func NewPostgresRepository(db *postgres.Client) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Stats implements Repository.
func (r *PostgresRepository) Stats(ctx context.Context) (Stats, error) {
	rows, err := r.db.DB.QueryContext(ctx,
		`SELECT id, modified_at FROM documents WHERE status = 'published'`,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("querying document stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var id int64
		var modified sql.NullTime
		if err := rows.Scan(&id, &modified); err != nil {
			return Stats{}, fmt.Errorf("scanning document stats row: %w", err)
		}
		stats.Count++
		stats.IDs = append(stats.IDs, id)
		if modified.Valid && modified.Time.After(stats.LastModified) {
			stats.LastModified = modified.Time
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterating document stats: %w", err)
	}
	return stats, nil
}

// Extract implements Repository.
func (r *PostgresRepository) Extract(ctx context.Context, excl config.ExclusionConfig) ([]RawDocument, error) {
	rows, err := r.db.DB.QueryContext(ctx,
		`SELECT d.id, d.title, d.url, d.published_at, d.type, d.body
		 FROM documents d
		 WHERE d.status = 'published'
		   AND NOT (d.id = ANY($1))
		   AND NOT (d.type = 'post' AND (
		         EXISTS (SELECT 1 FROM document_categories c
		                 WHERE c.document_id = d.id AND c.category_id = ANY($2))
		      OR EXISTS (SELECT 1 FROM document_tags t
		                 WHERE t.document_id = d.id AND t.tag_id = ANY($3))))
		 ORDER BY d.published_at DESC`,
		pq.Array(exclusionList(excl.IDs)),
		pq.Array(exclusionList(excl.Categories)),
		pq.Array(exclusionList(excl.Tags)),
	)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []RawDocument
	for rows.Next() {
		var d RawDocument
		if err := rows.Scan(&d.ID, &d.Title, &d.URL, &d.Date, &d.Type, &d.Body); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// exclusionList returns ids as a non-nil slice. pq.Array serialises a nil
// slice as SQL NULL, and `NOT (x = ANY(NULL))` is NULL rather than true, which
// would filter out every row when no exclusions are configured. An empty array
// keeps the clause a no-op.
func exclusionList(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
