// Package vector persists chunk embeddings in PostgreSQL with pgvector and
// serves cosine similarity queries over them.
//
// Chunk text is stored as an opaque payload next to the embedding so
// retrieval can hand grounded context to the model without re-reading the
// source document. Identifiers follow the {docID}#chunk{n} convention, which
// makes re-processing a document idempotent.
package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// Dimension is the embedding vector width. The document_chunks column and
// the embedding model output must both match it.
const Dimension = 1024

// queryTimeout bounds similarity searches so a slow index scan cannot block
// a retrieval request indefinitely.
const queryTimeout = 10 * time.Second

// ChunkID builds the storage identifier for a chunk.
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s#chunk%d", docID, index)
}

// Record is one indexed chunk.
type Record struct {
	ID         string
	DocID      string
	ChunkIndex int
	PageRange  string
	Text       string
	Embedding  []float32
}

// Result is a retrieved record with its similarity score in [0, 1].
type Result struct {
	Record
	Score float64
}

// DB is the subset of pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads and writes chunk embeddings.
type Store struct {
	db       DB
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a Store.
func New(db DB, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, embedder: embedder, logger: logger}
}

// Embed generates embeddings for a batch of texts, one vector per text in
// input order.
func (s *Store) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	docs := make([]*ai.Document, len(texts))
	for i, text := range texts {
		docs[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d texts", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) != Dimension {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(emb.Embedding), Dimension)
		}
		out[i] = emb.Embedding
	}
	return out, nil
}

// Put upserts one record keyed by its chunk identifier, so re-processing a
// page batch overwrites rather than duplicates. A missing ID is derived from
// DocID and ChunkIndex.
func (s *Store) Put(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = ChunkID(rec.DocID, rec.ChunkIndex)
	}
	if len(rec.Embedding) != Dimension {
		return fmt.Errorf("record %q has embedding dimension %d, want %d", rec.ID, len(rec.Embedding), Dimension)
	}

	embedding := pgvector.NewVector(rec.Embedding)
	_, err := s.db.Exec(ctx, `
		INSERT INTO document_chunks (id, doc_id, chunk_index, page_range, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			page_range = EXCLUDED.page_range,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`,
		rec.ID, rec.DocID, rec.ChunkIndex, rec.PageRange, rec.Text, embedding)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %q: %w", rec.ID, err)
	}
	return nil
}

// Query embeds the query text once and returns the most similar chunks by
// cosine similarity, ordered best first.
//
// Example:
//
//	results, err := store.Query(ctx, prompt,
//	    vector.WithTopK(5),
//	    vector.WithDocument(docID))
func (s *Store) Query(ctx context.Context, text string, opts ...QueryOption) ([]Result, error) {
	cfg := buildQueryConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	embeddings, err := s.Embed(queryCtx, []string{text})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query embedding timeout: %w", err)
		}
		return nil, err
	}
	queryEmbedding := pgvector.NewVector(embeddings[0])

	// Filters are appended in a fixed order so the placeholder numbering
	// stays stable.
	args := []any{queryEmbedding}
	var conds []string
	if cfg.docID != "" {
		args = append(args, cfg.docID)
		conds = append(conds, fmt.Sprintf("doc_id = $%d", len(args)))
	}
	if !cfg.createdAfter.IsZero() {
		args = append(args, cfg.createdAfter)
		conds = append(conds, fmt.Sprintf("created_at > $%d", len(args)))
	}
	args = append(args, cfg.topK)

	sql := `
		SELECT id, doc_id, chunk_index, page_range, content, 1 - (embedding <=> $1) AS score
		FROM document_chunks`
	if len(conds) > 0 {
		sql += "\n\t\tWHERE " + strings.Join(conds, " AND ")
	}
	sql += fmt.Sprintf("\n\t\tORDER BY embedding <=> $1\n\t\tLIMIT $%d", len(args))

	rows, err := s.db.Query(queryCtx, sql, args...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("similarity search timeout: %w", err)
		}
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.DocID, &r.ChunkIndex, &r.PageRange, &r.Text, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}

	s.logger.Debug("similarity search", "doc_id", cfg.docID, "top_k", cfg.topK, "results", len(results))
	return results, nil
}

// DeleteByDocument removes every chunk of a document. Used when the source
// object is deleted and before a re-ingestion overwrites stale chunks.
func (s *Store) DeleteByDocument(ctx context.Context, docID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM document_chunks WHERE doc_id = $1`, docID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks for %q: %w", docID, err)
	}
	return tag.RowsAffected(), nil
}

// CountByDocument returns the number of indexed chunks for a document.
func (s *Store) CountByDocument(ctx context.Context, docID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM document_chunks WHERE doc_id = $1`, docID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks for %q: %w", docID, err)
	}
	return count, nil
}
