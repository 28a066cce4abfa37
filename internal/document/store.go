package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no status record exists for a document.
var ErrNotFound = errors.New("document not found")

// DB is the subset of pgxpool.Pool the store needs. Defined here so tests
// can substitute a fake, the same way io.Reader consumers do.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StatusStore persists document status records in PostgreSQL.
//
// The ingestion coordinator is the only writer for a given document, so no
// row locking is needed; concurrent documents write disjoint rows.
type StatusStore struct {
	db     DB
	logger *slog.Logger
}

// NewStatusStore creates a StatusStore.
func NewStatusStore(db DB, logger *slog.Logger) *StatusStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusStore{db: db, logger: logger}
}

// Create writes a fresh status record for a document. Re-ingesting an
// existing document resets its counters and returns it to uploaded.
func (s *StatusStore) Create(ctx context.Context, id, name string, byteSize int64, totalPages int) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO documents (id, name, byte_size, total_pages, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			byte_size = EXCLUDED.byte_size,
			total_pages = EXCLUDED.total_pages,
			status = EXCLUDED.status,
			current_page = 0,
			total_chunks = 0,
			error_count = 0,
			error_message = '',
			updated_at = now()`,
		id, name, byteSize, totalPages, StatusUploaded)
	if err != nil {
		return fmt.Errorf("failed to create status record for %q: %w", id, err)
	}

	s.logger.Debug("created status record", "doc_id", id, "total_pages", totalPages)
	return nil
}

// UpdateProgress advances the page cursor and chunk count and moves the
// document to in_progress.
func (s *StatusStore) UpdateProgress(ctx context.Context, id string, currentPage, totalChunks int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE documents
		SET status = $2, current_page = $3, total_chunks = $4, updated_at = now()
		WHERE id = $1 AND status IN ($5, $2)`,
		id, StatusInProgress, currentPage, totalChunks, StatusUploaded)
	if err != nil {
		return fmt.Errorf("failed to update progress for %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return nil
}

// AddPageError increments the recoverable error tally and records the
// latest message. Processing continues; the document can still complete.
func (s *StatusStore) AddPageError(ctx context.Context, id string, pageNum int, msg string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE documents
		SET error_count = error_count + 1,
		    error_message = $2,
		    updated_at = now()
		WHERE id = $1`,
		id, fmt.Sprintf("page %d: %s", pageNum, msg))
	if err != nil {
		return fmt.Errorf("failed to record page error for %q: %w", id, err)
	}

	s.logger.Debug("recorded page error", "doc_id", id, "page", pageNum)
	return nil
}

// MarkCompleted finalizes a successful ingestion.
func (s *StatusStore) MarkCompleted(ctx context.Context, id string, totalChunks int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE documents
		SET status = $2, current_page = total_pages, total_chunks = $3, updated_at = now()
		WHERE id = $1 AND status IN ($4, $5)`,
		id, StatusCompleted, totalChunks, StatusUploaded, StatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to mark %q completed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return nil
}

// MarkFailed records an unrecoverable failure.
func (s *StatusStore) MarkFailed(ctx context.Context, id string, msg string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE documents
		SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1`,
		id, StatusFailed, msg)
	if err != nil {
		return fmt.Errorf("failed to mark %q failed: %w", id, err)
	}
	return nil
}

// Get returns the status record for a document.
func (s *StatusStore) Get(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := s.db.QueryRow(ctx, `
		SELECT id, name, byte_size, total_pages, status, current_page,
		       total_chunks, error_count, error_message, created_at, updated_at
		FROM documents
		WHERE id = $1`, id).Scan(
		&doc.ID, &doc.Name, &doc.ByteSize, &doc.TotalPages, &doc.Status,
		&doc.CurrentPage, &doc.TotalChunks, &doc.ErrorCount, &doc.ErrorMessage,
		&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load status record for %q: %w", id, err)
	}
	return &doc, nil
}

// List returns all status records, newest first.
func (s *StatusStore) List(ctx context.Context) ([]Document, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, byte_size, total_pages, status, current_page,
		       total_chunks, error_count, error_message, created_at, updated_at
		FROM documents
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list status records: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(
			&doc.ID, &doc.Name, &doc.ByteSize, &doc.TotalPages, &doc.Status,
			&doc.CurrentPage, &doc.TotalChunks, &doc.ErrorCount, &doc.ErrorMessage,
			&doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status record: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read status records: %w", err)
	}
	return docs, nil
}

// Delete removes the status record, used when the source object is deleted.
func (s *StatusStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete status record for %q: %w", id, err)
	}
	return nil
}
