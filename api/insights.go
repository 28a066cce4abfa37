package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/doculake/doculake/internal/cache"
	"github.com/doculake/doculake/internal/document"
	"github.com/doculake/doculake/internal/insight"
)

// InsightExtractor runs one insight extraction.
type InsightExtractor interface {
	Extract(ctx context.Context, docID, prompt string) (*insight.Result, error)
}

// CacheLister reads a document's cached insights.
type CacheLister interface {
	ListByDocument(ctx context.Context, docID string) ([]cache.Entry, error)
}

// InsightHandler serves insight extraction and cached insight listing.
type InsightHandler struct {
	service InsightExtractor
	cache   CacheLister
	logger  *slog.Logger
}

// ExtractRequest is the extraction request body.
type ExtractRequest struct {
	DocID  string `json:"docId"`
	Prompt string `json:"prompt"`
}

// extract handles POST /api/insights/extract.
func (h *InsightHandler) extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON with docId and prompt")
		return
	}
	req.DocID = strings.TrimSpace(req.DocID)
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.DocID == "" || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "docId and prompt are required")
		return
	}

	result, err := h.service.Extract(r.Context(), req.DocID, req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, document.ErrNotFound):
			writeError(w, http.StatusNotFound, "DOCUMENT_NOT_FOUND", "no document with id "+req.DocID)
		case errors.Is(err, insight.ErrGeneration):
			h.logger.Error("insight generation failed", "doc_id", req.DocID, "error", err)
			writeError(w, http.StatusBadGateway, "GENERATION_FAILED", "the model could not produce a valid insight")
		default:
			h.logger.Error("insight extraction failed", "doc_id", req.DocID, "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "insight extraction failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// CachedInsightsResponse is the cached insight listing body.
type CachedInsightsResponse struct {
	DocID   string        `json:"docId"`
	Entries []cache.Entry `json:"entries"`
}

// listCached handles GET /api/documents/{docID}/insights.
func (h *InsightHandler) listCached(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("docID")

	entries, err := h.cache.ListByDocument(r.Context(), docID)
	if err != nil {
		h.logger.Error("cached insight listing failed", "doc_id", docID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list cached insights")
		return
	}
	if entries == nil {
		entries = []cache.Entry{}
	}

	writeJSON(w, http.StatusOK, CachedInsightsResponse{DocID: docID, Entries: entries})
}
