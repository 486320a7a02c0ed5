package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/pgvector/pgvector-go"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PgVectorStore runs cosine-distance search over a pgvector table with
// columns id, tenant_id, content, metadata (jsonb) and embedding (vector).
type PgVectorStore struct {
	db    *sql.DB
	query string
}

func NewPgVectorStore(db *sql.DB, table string) (*PgVectorStore, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid vector table name %q", table)
	}
	return &PgVectorStore{
		db: db,
		query: fmt.Sprintf(`
			SELECT id, content, metadata, 1 - (embedding <=> $2) AS similarity
			FROM %s
			WHERE tenant_id = $1
			ORDER BY embedding <=> $2
			LIMIT $3`, table),
	}, nil
}

// Search satisfies VectorQueryFunc. Score is cosine similarity.
func (s *PgVectorStore) Search(ctx context.Context, tenantID string, embedding []float32, limit int) ([]SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, s.query, tenantID, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			r        SearchResult
			metadata []byte
		)
		if err := rows.Scan(&r.ID, &r.Content, &metadata, &r.Score); err != nil {
			return nil, fmt.Errorf("scan vector hit: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector hits: %w", err)
	}
	return results, nil
}
