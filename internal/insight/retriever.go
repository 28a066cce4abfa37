package insight

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/doculake/doculake/internal/vector"
)

// Searcher is the similarity search surface the retriever needs.
type Searcher interface {
	Query(ctx context.Context, text string, opts ...vector.QueryOption) ([]vector.Result, error)
}

// Retriever pulls the context chunks most relevant to a prompt from one
// document's index.
type Retriever struct {
	store  Searcher
	topK   int
	logger *slog.Logger
}

// NewRetriever creates a Retriever returning at most topK chunks.
func NewRetriever(store Searcher, topK int, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: store, topK: topK, logger: logger}
}

// Retrieve returns ranked context chunks for a prompt, scoped to docID.
// Zero results is not an error; it means the document has no relevant
// content for this prompt.
func (r *Retriever) Retrieve(ctx context.Context, docID, prompt string) ([]vector.Result, error) {
	results, err := r.store.Query(ctx, prompt,
		vector.WithTopK(r.topK),
		vector.WithDocument(docID))
	if err != nil {
		return nil, fmt.Errorf("context retrieval for %q failed: %w", docID, err)
	}

	r.logger.Debug("retrieved context", "doc_id", docID, "chunks", len(results))
	return results, nil
}
