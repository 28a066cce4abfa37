package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/doculake/doculake/internal/notify"
)

// ProgressHandler streams ingestion progress events over SSE.
type ProgressHandler struct {
	broker *notify.Broker[notify.ProgressEvent]
	logger *slog.Logger
}

// stream handles GET /api/progress. Each broker event becomes one SSE event
// named by its status. The optional docId query parameter filters to a
// single document. The stream ends when the client disconnects or the
// broker shuts down.
func (h *ProgressHandler) stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	docFilter := r.URL.Query().Get("docId")
	events := h.broker.Subscribe(r.Context())

	// Tell the client the stream is live before the first event arrives.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			if docFilter != "" && event.DocID != docFilter {
				continue
			}

			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to encode progress event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Status, data)
			flusher.Flush()
		}
	}
}
