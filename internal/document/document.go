// Package document defines the document status record and its lifecycle.
//
// One status record exists per document. It is created when an upload
// notification arrives and mutated exclusively by the ingestion coordinator.
// Progress events broadcast over the notification channel are at-most-once;
// this record is the authoritative source of truth for late joiners.
package document

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a document.
type Status string

const (
	// StatusUploaded means the upload notification was received but no page
	// has been processed yet.
	StatusUploaded Status = "uploaded"

	// StatusInProgress means at least one page has been processed.
	StatusInProgress Status = "in_progress"

	// StatusCompleted means all pages were processed and the final batch
	// flushed. A completed document may still carry page-level errors.
	StatusCompleted Status = "completed"

	// StatusFailed means an unrecoverable error aborted processing.
	StatusFailed Status = "failed"
)

// CanTransition reports whether moving from s to next is a legal lifecycle
// transition. in_progress -> in_progress is legal (batch progress).
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusUploaded:
		return next == StatusInProgress || next == StatusFailed
	case StatusInProgress:
		return next == StatusInProgress || next == StatusCompleted || next == StatusFailed
	default:
		// completed and failed are terminal
		return false
	}
}

// Document is the persisted status record for one ingested document.
type Document struct {
	ID           string    `json:"docId"`
	Name         string    `json:"name"`
	ByteSize     int64     `json:"byteSize"`
	TotalPages   int       `json:"totalPages"`
	Status       Status    `json:"status"`
	CurrentPage  int       `json:"currentPage"`
	TotalChunks  int       `json:"totalChunks"`
	ErrorCount   int       `json:"errorCount"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DocumentID derives the document identifier from a storage key.
//
// Upload keys follow the {uuid}_{display name}.pdf convention; the uuid
// prefix is the identifier. Keys without a parseable uuid prefix fall back
// to the base name without extension, so the derivation is deterministic
// either way.
func DocumentID(key string) string {
	name := key
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}

	if before, _, ok := strings.Cut(name, "_"); ok {
		if _, err := uuid.Parse(before); err == nil {
			return before
		}
	}

	if idx := strings.LastIndex(name, "."); idx > 0 {
		return name[:idx]
	}
	return name
}

// DisplayName extracts the human-readable file name from a storage key,
// stripping any uuid prefix.
func DisplayName(key string) string {
	name := key
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}

	if before, after, ok := strings.Cut(name, "_"); ok {
		if _, err := uuid.Parse(before); err == nil {
			return after
		}
	}
	return name
}
