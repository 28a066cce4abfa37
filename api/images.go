package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/doculake/doculake/internal/insight"
)

// ImageAnalyzer runs ad-hoc image analysis.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, image []byte, prompt string) (*insight.ImageAnalysis, error)
}

// ImageHandler serves one-off image analysis requests.
type ImageHandler struct {
	images ImageAnalyzer
	logger *slog.Logger
}

// AnalyzeImageRequest is the image analysis request body. Image carries the
// base64 payload, with or without a data URL prefix.
type AnalyzeImageRequest struct {
	Image  string `json:"image"`
	Prompt string `json:"prompt,omitempty"`
}

// analyze handles POST /api/images/analyze.
func (h *ImageHandler) analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON with a base64 image field")
		return
	}
	req.Image = strings.TrimSpace(req.Image)
	if req.Image == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "image is required")
		return
	}

	// Accept data URLs by dropping everything up to the first comma.
	if strings.HasPrefix(req.Image, "data:") {
		if _, payload, found := strings.Cut(req.Image, ","); found {
			req.Image = payload
		}
	}

	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "image must be base64 encoded")
		return
	}

	analysis, err := h.images.Analyze(r.Context(), image, req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, insight.ErrNotImage):
			writeError(w, http.StatusBadRequest, "INVALID_IMAGE", "the payload does not decode to a supported image")
		case errors.Is(err, insight.ErrGeneration):
			h.logger.Error("image analysis generation failed", "error", err)
			writeError(w, http.StatusBadGateway, "GENERATION_FAILED", "the model could not analyze the image")
		default:
			h.logger.Error("image analysis failed", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "image analysis failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}
