package index

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// UpsertDocumentParams holds one chunk ready for insertion.
type UpsertDocumentParams struct {
	ID          string
	IndexHandle string
	Content     string
	Metadata    []byte
	Embedding   *pgvector.Vector
	CreatedAt   pgtype.Timestamptz
}

// SearchDocumentsParams holds a vector search scoped to one index handle.
type SearchDocumentsParams struct {
	IndexHandle    string
	QueryEmbedding *pgvector.Vector
	ResultLimit    int32
}

// SearchDocumentsRow is one vector search match.
type SearchDocumentsRow struct {
	ID         string
	Content    string
	Metadata   []byte
	Similarity float64
}

// MetadataCountRow is one bucket from a metadata breakdown.
type MetadataCountRow struct {
	Value string
	Count int64
}

// Queries runs document SQL against a pgx pool.
type Queries struct {
	pool *pgxpool.Pool
}

// NewQueries wraps a connection pool.
func NewQueries(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

func (q *Queries) UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error {
	const upsert = `
		INSERT INTO documents (id, index_handle, content, metadata, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
		ON CONFLICT (id) DO UPDATE SET
			index_handle = EXCLUDED.index_handle,
			content      = EXCLUDED.content,
			metadata     = EXCLUDED.metadata,
			embedding    = EXCLUDED.embedding`

	var createdAt any
	if arg.CreatedAt.Valid {
		createdAt = arg.CreatedAt
	}
	_, err := q.pool.Exec(ctx, upsert,
		arg.ID, arg.IndexHandle, arg.Content, arg.Metadata, arg.Embedding, createdAt)
	return err
}

func (q *Queries) SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]SearchDocumentsRow, error) {
	// Cosine distance, so similarity = 1 - distance. The index_handle
	// filter is applied in SQL, never after the fact.
	const search = `
		SELECT id, content, metadata,
		       1 - (embedding <=> $1) AS similarity
		FROM documents
		WHERE index_handle = $2
		ORDER BY embedding <=> $1
		LIMIT $3`

	rows, err := q.pool.Query(ctx, search, arg.QueryEmbedding, arg.IndexHandle, arg.ResultLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SearchDocumentsRow
	for rows.Next() {
		var r SearchDocumentsRow
		if err := rows.Scan(&r.ID, &r.Content, &r.Metadata, &r.Similarity); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *Queries) CountDocuments(ctx context.Context, indexHandle string) (int64, error) {
	var count int64
	err := q.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE index_handle = $1`, indexHandle).Scan(&count)
	return count, err
}

// CountByMetadataKey groups documents under an index handle by one
// metadata value. Chunks without the key are skipped.
func (q *Queries) CountByMetadataKey(ctx context.Context, indexHandle, key string) ([]MetadataCountRow, error) {
	const breakdown = `
		SELECT metadata->>$2 AS value, COUNT(*) AS count
		FROM documents
		WHERE index_handle = $1 AND metadata ? $2
		GROUP BY 1
		ORDER BY 2 DESC, 1`

	rows, err := q.pool.Query(ctx, breakdown, indexHandle, key)
	if err != nil {
		return nil, fmt.Errorf("metadata breakdown for %q: %w", key, err)
	}
	defer rows.Close()

	var out []MetadataCountRow
	for rows.Next() {
		var r MetadataCountRow
		if err := rows.Scan(&r.Value, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *Queries) DeleteDocument(ctx context.Context, id string) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}
