package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doculake/doculake/internal/cache"
	"github.com/doculake/doculake/internal/document"
	"github.com/doculake/doculake/internal/vector"
)

// Source says where a result came from.
type Source string

const (
	SourceCache     Source = "cache"
	SourceGenerated Source = "generated"
)

// Result is one insight extraction with its provenance.
type Result struct {
	Insight    *Insight  `json:"insights"`
	Source     Source    `json:"source"`
	ChunkCount int       `json:"chunkCount"`
	ModelID    string    `json:"modelId"`
	CreatedAt  time.Time `json:"timestamp"`
}

// ContextRetriever supplies ranked context chunks for a prompt.
type ContextRetriever interface {
	Retrieve(ctx context.Context, docID, prompt string) ([]vector.Result, error)
}

// InsightGenerator produces an insight from a prompt and context chunks.
type InsightGenerator interface {
	Generate(ctx context.Context, prompt string, contexts []string) (*Insight, error)
	ModelID() string
}

// Gate is the cache surface the service uses.
type Gate interface {
	Lookup(ctx context.Context, docID, prompt string) (*cache.Entry, error)
	Store(ctx context.Context, docID, prompt string, entry cache.Entry) error
}

// StatusReader resolves document identifiers to status records.
type StatusReader interface {
	Get(ctx context.Context, id string) (*document.Document, error)
}

// Service coordinates one insight extraction: cache lookup, context
// retrieval, generation, cache population.
//
// The service is stateless across calls. Concurrent requests for the same
// document and prompt may both generate; the last cache write wins, which
// is harmless because generation is deterministic at temperature zero.
type Service struct {
	status    StatusReader
	gate      Gate
	retriever ContextRetriever
	generator InsightGenerator
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(status StatusReader, gate Gate, retriever ContextRetriever, generator InsightGenerator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		status:    status,
		gate:      gate,
		retriever: retriever,
		generator: generator,
		logger:    logger,
	}
}

// Extract answers a prompt against one document. Unknown documents return
// document.ErrNotFound; generation failures return ErrGeneration.
func (s *Service) Extract(ctx context.Context, docID, prompt string) (*Result, error) {
	if _, err := s.status.Get(ctx, docID); err != nil {
		return nil, err
	}

	entry, err := s.gate.Lookup(ctx, docID, prompt)
	if err == nil {
		var ins Insight
		if err := json.Unmarshal(entry.Insight, &ins); err == nil {
			s.logger.Debug("insight served from cache", "doc_id", docID)
			return &Result{
				Insight:    &ins,
				Source:     SourceCache,
				ChunkCount: entry.ChunkCount,
				ModelID:    entry.ModelID,
				CreatedAt:  entry.CreatedAt,
			}, nil
		}
		s.logger.Warn("dropping undecodable cache entry", "doc_id", docID)
	} else if !errors.Is(err, cache.ErrMiss) {
		// A broken cache must not block generation.
		s.logger.Warn("cache lookup failed, generating", "doc_id", docID, "error", err)
	}

	results, err := s.retriever.Retrieve(ctx, docID, prompt)
	if err != nil {
		return nil, err
	}
	contexts := make([]string, 0, len(results))
	for _, r := range results {
		contexts = append(contexts, r.Text)
	}

	ins, err := s.generator.Generate(ctx, prompt, contexts)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Insight:    ins,
		Source:     SourceGenerated,
		ChunkCount: len(contexts),
		ModelID:    s.generator.ModelID(),
		CreatedAt:  time.Now().UTC(),
	}

	payload, err := json.Marshal(ins)
	if err != nil {
		return nil, fmt.Errorf("failed to encode insight: %w", err)
	}
	if err := s.gate.Store(ctx, docID, prompt, cache.Entry{
		Insight:    payload,
		ModelID:    result.ModelID,
		ChunkCount: result.ChunkCount,
		CreatedAt:  result.CreatedAt,
	}); err != nil {
		// Cache population is best effort; the caller still gets the result.
		s.logger.Warn("failed to cache insight", "doc_id", docID, "error", err)
	}

	return result, nil
}
