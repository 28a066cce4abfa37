package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/doculake/doculake/internal/document"
)

// StatusReader resolves document status records.
type StatusReader interface {
	Get(ctx context.Context, id string) (*document.Document, error)
	List(ctx context.Context) ([]document.Document, error)
}

// DocumentsResponse is the payload of the document listing endpoint.
type DocumentsResponse struct {
	Documents []document.Document `json:"documents"`
}

// DocumentHandler serves document status queries.
type DocumentHandler struct {
	status StatusReader
	logger *slog.Logger
}

// getStatus handles GET /api/documents/{docID}/status.
func (h *DocumentHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("docID")

	doc, err := h.status.Get(r.Context(), docID)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			writeError(w, http.StatusNotFound, "DOCUMENT_NOT_FOUND", "no document with id "+docID)
			return
		}
		h.logger.Error("status lookup failed", "doc_id", docID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "status lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// list handles GET /api/documents.
func (h *DocumentHandler) list(w http.ResponseWriter, r *http.Request) {
	docs, err := h.status.List(r.Context())
	if err != nil {
		h.logger.Error("document listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "document listing failed")
		return
	}
	if docs == nil {
		docs = []document.Document{}
	}
	writeJSON(w, http.StatusOK, DocumentsResponse{Documents: docs})
}
