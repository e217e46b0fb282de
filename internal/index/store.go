package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"

	"github.com/genius-labs/insight/internal/log"
	"github.com/genius-labs/insight/internal/retrieval"
)

// Querier defines the database operations Store needs. The interface
// lives with its consumer so tests can swap in a mock without a
// database (similar to http.RoundTripper, io.Reader).
type Querier interface {
	// UpsertDocument inserts or updates a chunk
	UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error

	// SearchDocuments performs vector search within one index handle
	SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]SearchDocumentsRow, error)

	// CountDocuments counts chunks under an index handle
	CountDocuments(ctx context.Context, indexHandle string) (int64, error)

	// CountByMetadataKey groups chunks by a metadata value
	CountByMetadataKey(ctx context.Context, indexHandle, key string) ([]MetadataCountRow, error)

	// DeleteDocument deletes a chunk by ID
	DeleteDocument(ctx context.Context, id string) error
}

// Store manages document chunks with vector search.
// It generates embeddings on write and on query, and satisfies the
// retrieval search contract.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   log.Logger
}

// New creates a Store. logger may be nil.
func New(querier Querier, embedder ai.Embedder, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger,
	}
}

// Add embeds a document chunk and upserts it under its index handle.
func (s *Store) Add(ctx context.Context, doc Document) error {
	if doc.IndexHandle == "" {
		return fmt.Errorf("document %q has no index handle", doc.ID)
	}

	vec, err := s.embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("failed to embed document %q: %w", doc.ID, err)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	createdAt := pgtype.Timestamptz{
		Time:  doc.CreatedAt,
		Valid: !doc.CreatedAt.IsZero(),
	}

	err = s.queries.UpsertDocument(ctx, UpsertDocumentParams{
		ID:          doc.ID,
		IndexHandle: doc.IndexHandle,
		Content:     doc.Content,
		Metadata:    metadataJSON,
		Embedding:   &vec,
		CreatedAt:   createdAt,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert document %q: %w", doc.ID, err)
	}

	s.logger.Debug("indexed document",
		"id", doc.ID, "index_handle", doc.IndexHandle, "content_length", len(doc.Content))
	return nil
}

// Search embeds the query and returns the topK nearest chunks under
// indexHandle, ordered by similarity.
func (s *Store) Search(ctx context.Context, indexHandle, query string, topK int) ([]retrieval.Hit, error) {
	if topK <= 0 || topK > math.MaxInt32 {
		return nil, fmt.Errorf("invalid topK %d", topK)
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := s.queries.SearchDocuments(ctx, SearchDocumentsParams{
		IndexHandle:    indexHandle,
		QueryEmbedding: &vec,
		ResultLimit:    int32(topK),
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]retrieval.Hit, 0, len(rows))
	for _, row := range rows {
		var metadata map[string]string
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			s.logger.Warn("failed to parse metadata", "document_id", row.ID, "error", err)
			metadata = make(map[string]string)
		}
		hits = append(hits, retrieval.Hit{
			DocumentID: row.ID,
			Content:    row.Content,
			Score:      row.Similarity,
			Metadata:   metadata,
		})
	}
	return hits, nil
}

// Stats aggregates the corpus behind one index handle: total chunk
// count plus breakdowns by study type, year, and brand.
func (s *Store) Stats(ctx context.Context, indexHandle string) (Stats, error) {
	total, err := s.queries.CountDocuments(ctx, indexHandle)
	if err != nil {
		return Stats{}, fmt.Errorf("count failed: %w", err)
	}
	if total > math.MaxInt {
		return Stats{}, fmt.Errorf("document count %d exceeds platform int capacity", total)
	}

	stats := Stats{
		IndexHandle:    indexHandle,
		TotalDocuments: int(total),
		StudyTypes:     make(map[string]int),
		Years:          make(map[string]int),
		Brands:         make(map[string]int),
	}
	for key, dest := range map[string]map[string]int{
		MetaStudyType: stats.StudyTypes,
		MetaYear:      stats.Years,
		MetaBrand:     stats.Brands,
	} {
		rows, err := s.queries.CountByMetadataKey(ctx, indexHandle, key)
		if err != nil {
			return Stats{}, err
		}
		for _, row := range rows {
			if row.Value != "" {
				dest[row.Value] = int(row.Count)
			}
		}
	}
	return stats, nil
}

// Delete removes a chunk by ID.
func (s *Store) Delete(ctx context.Context, docID string) error {
	if err := s.queries.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("failed to delete document %q: %w", docID, err)
	}
	s.logger.Debug("deleted document", "id", docID)
	return nil
}

// embed generates a fixed-width embedding for text. The requested
// dimensionality always matches the vector column.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	dim := int32(VectorDimension)
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			ai.DocumentFromText(text, nil),
		},
		Options: &genai.EmbedContentConfig{
			OutputDimensionality: &dim,
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return pgvector.Vector{}, fmt.Errorf("embedding timeout: %w", err)
		}
		return pgvector.Vector{}, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding returned")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}
