// Package ingest coordinates the document ingestion pipeline: fetch,
// extract, chunk, embed, index, with progress reporting along the way.
//
// Failures are split into two classes. Page-scoped errors are recoverable:
// they are tallied on the status record and processing continues, so one bad
// page never discards the rest of the document. Everything else fails the
// document as a whole.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/doculake/doculake/internal/chunk"
	"github.com/doculake/doculake/internal/document"
	"github.com/doculake/doculake/internal/extract"
	"github.com/doculake/doculake/internal/notify"
	"github.com/doculake/doculake/internal/vector"
)

// ObjectStore fetches uploaded documents.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// PageIterator walks extracted pages in order.
type PageIterator interface {
	Total() int
	Seek(n int)
	Next(ctx context.Context) (extract.Page, error)
}

// Extractor opens a document for page extraction.
type Extractor interface {
	Pages(data []byte) (PageIterator, int, error)
}

// Splitter chunks a page batch's text.
type Splitter interface {
	Chunks(docID, pageRange string, startIndex int, text string) []chunk.Chunk
}

// VectorStore embeds and indexes chunks.
type VectorStore interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Put(ctx context.Context, rec vector.Record) error
	DeleteByDocument(ctx context.Context, docID string) (int64, error)
}

// StatusStore records document lifecycle state.
type StatusStore interface {
	Create(ctx context.Context, id, name string, byteSize int64, totalPages int) error
	UpdateProgress(ctx context.Context, id string, currentPage, totalChunks int) error
	AddPageError(ctx context.Context, id string, pageNum int, msg string) error
	MarkCompleted(ctx context.Context, id string, totalChunks int) error
	MarkFailed(ctx context.Context, id string, msg string) error
	Delete(ctx context.Context, id string) error
}

// CacheInvalidator drops cached insights for a document.
type CacheInvalidator interface {
	InvalidateDocument(ctx context.Context, docID string) (int64, error)
}

// Publisher broadcasts progress events.
type Publisher interface {
	Publish(event notify.ProgressEvent)
}

// Config tunes the pipeline.
type Config struct {
	// PageBatchSize is how many pages accumulate before a chunk/embed/index
	// flush.
	PageBatchSize int

	// RetryAttempts is the total number of embedding attempts per batch.
	RetryAttempts int

	// RetryBase is the first backoff delay; subsequent delays double, with
	// jitter, capped at RetryCap.
	RetryBase time.Duration
	RetryCap  time.Duration

	// DocumentTimeout bounds the processing of one document end to end.
	DocumentTimeout time.Duration

	// EmbedRateLimit caps embedding calls per second. Zero means unlimited.
	EmbedRateLimit rate.Limit
}

func (c *Config) applyDefaults() {
	if c.PageBatchSize <= 0 {
		c.PageBatchSize = 10
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryCap <= 0 {
		c.RetryCap = 5 * time.Second
	}
	if c.DocumentTimeout <= 0 {
		c.DocumentTimeout = 10 * time.Minute
	}
}

// Deps are the pipeline collaborators.
type Deps struct {
	Objects   ObjectStore
	Extractor Extractor
	Splitter  Splitter
	Vectors   VectorStore
	Status    StatusStore
	Cache     CacheInvalidator
	Events    Publisher
}

func (d *Deps) validate() error {
	switch {
	case d.Objects == nil:
		return errors.New("ingest: nil ObjectStore")
	case d.Extractor == nil:
		return errors.New("ingest: nil Extractor")
	case d.Splitter == nil:
		return errors.New("ingest: nil Splitter")
	case d.Vectors == nil:
		return errors.New("ingest: nil VectorStore")
	case d.Status == nil:
		return errors.New("ingest: nil StatusStore")
	case d.Cache == nil:
		return errors.New("ingest: nil CacheInvalidator")
	case d.Events == nil:
		return errors.New("ingest: nil Publisher")
	}
	return nil
}

// Coordinator runs the ingestion pipeline for one document at a time per
// call. Calls for different documents may run concurrently; they touch
// disjoint records.
type Coordinator struct {
	deps    Deps
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Coordinator.
func New(deps Deps, cfg Config, logger *slog.Logger) (*Coordinator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.EmbedRateLimit > 0 {
		limiter = rate.NewLimiter(cfg.EmbedRateLimit, 1)
	}
	return &Coordinator{deps: deps, cfg: cfg, limiter: limiter, logger: logger}, nil
}

// HandleEvent dispatches one storage notification.
func (c *Coordinator) HandleEvent(ctx context.Context, event StorageEvent) error {
	switch event.Type {
	case EventCreated:
		return c.Process(ctx, event.Bucket, event.Key)
	case EventRemoved:
		return c.Remove(ctx, event.Key)
	default:
		return fmt.Errorf("unknown storage event type %q", event.Type)
	}
}

// Process ingests one document end to end.
func (c *Coordinator) Process(ctx context.Context, bucket, key string) error {
	docID := document.DocumentID(key)
	name := document.DisplayName(key)
	logger := c.logger.With("doc_id", docID, "key", key)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.DocumentTimeout)
	defer cancel()

	data, err := c.deps.Objects.Get(ctx, bucket, key)
	if err != nil {
		return c.failNew(ctx, docID, name, 0, CodeObjectFetch,
			fmt.Errorf("failed to fetch %q: %w", key, err))
	}

	it, total, err := c.deps.Extractor.Pages(data)
	if err != nil {
		return c.failNew(ctx, docID, name, int64(len(data)), CodeCorruptDocument, err)
	}

	if err := c.deps.Status.Create(ctx, docID, name, int64(len(data)), total); err != nil {
		return c.fail(ctx, docID, CodeStorage, err)
	}

	// A re-ingested document invalidates everything derived from its
	// previous contents before any new chunk lands.
	if _, err := c.deps.Cache.InvalidateDocument(ctx, docID); err != nil {
		logger.Warn("cache invalidation failed", "error", err)
	}
	if _, err := c.deps.Vectors.DeleteByDocument(ctx, docID); err != nil {
		return c.fail(ctx, docID, CodeStorage,
			fmt.Errorf("failed to clear stale chunks: %w", err))
	}

	c.deps.Events.Publish(notify.Started(docID, total))
	logger.Info("processing started", "pages", total, "bytes", len(data))

	var (
		batch      []extract.Page
		processed  int
		chunkCount int
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		added, err := c.flushBatch(ctx, docID, batch, chunkCount)
		if err != nil {
			return err
		}
		chunkCount += added
		batch = batch[:0]

		if err := c.deps.Status.UpdateProgress(ctx, docID, processed, chunkCount); err != nil {
			logger.Warn("progress update failed", "error", err)
		}
		c.deps.Events.Publish(notify.Progress(docID, processed, total))
		return nil
	}

	for {
		page, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}

		var pageErr *extract.PageError
		switch {
		case errors.As(err, &pageErr):
			// Recoverable: record it, keep whatever text survived, move on.
			if serr := c.deps.Status.AddPageError(ctx, docID, pageErr.Page, pageErr.Err.Error()); serr != nil {
				logger.Warn("failed to record page error", "error", serr)
			}
			c.deps.Events.Publish(notify.Error(docID, CodePageExtraction, pageErr.Error(), true))
			logger.Warn("page extraction error", "page", pageErr.Page, "error", pageErr.Err)
		case err != nil:
			return c.fail(ctx, docID, errorCode(err), err)
		}

		processed++
		batch = append(batch, page)
		if processed%c.cfg.PageBatchSize == 0 {
			if err := flush(); err != nil {
				return c.fail(ctx, docID, errorCode(err), err)
			}
		}
	}
	if err := flush(); err != nil {
		return c.fail(ctx, docID, errorCode(err), err)
	}

	if err := c.deps.Status.MarkCompleted(ctx, docID, chunkCount); err != nil {
		return c.fail(ctx, docID, CodeStorage, err)
	}
	c.deps.Events.Publish(notify.Completed(docID, total))
	logger.Info("processing complete", "pages", total, "chunks", chunkCount)
	return nil
}

// Remove drops everything derived from a deleted object: chunks, cached
// insights, and the status record.
func (c *Coordinator) Remove(ctx context.Context, key string) error {
	docID := document.DocumentID(key)

	deleted, err := c.deps.Vectors.DeleteByDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to remove chunks for %q: %w", docID, err)
	}
	if _, err := c.deps.Cache.InvalidateDocument(ctx, docID); err != nil {
		c.logger.Warn("cache invalidation failed", "doc_id", docID, "error", err)
	}
	if err := c.deps.Status.Delete(ctx, docID); err != nil {
		return err
	}

	c.logger.Info("document removed", "doc_id", docID, "chunks_deleted", deleted)
	return nil
}

// flushBatch chunks the batch text, embeds it, and indexes the chunks.
// startChunk keeps chunk indices unique across batches of one document.
func (c *Coordinator) flushBatch(ctx context.Context, docID string, pages []extract.Page, startChunk int) (int, error) {
	pageRange := fmt.Sprintf("%d-%d", pages[0].Number, pages[len(pages)-1].Number)

	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			texts = append(texts, p.Text)
		}
	}
	chunks := c.deps.Splitter.Chunks(docID, pageRange, startChunk, strings.Join(texts, "\n\n"))
	if len(chunks) == 0 {
		return 0, nil
	}

	chunkTexts := make([]string, len(chunks))
	for i, ch := range chunks {
		chunkTexts[i] = ch.Text
	}

	embeddings, err := c.embedWithRetry(ctx, chunkTexts)
	if err != nil {
		return 0, &codedError{code: CodeEmbedding, err: fmt.Errorf("failed to embed pages %s: %w", pageRange, err)}
	}

	for i, ch := range chunks {
		rec := vector.Record{
			DocID:      ch.DocID,
			ChunkIndex: ch.Index,
			PageRange:  ch.PageRange,
			Text:       ch.Text,
			Embedding:  embeddings[i],
		}
		if err := c.deps.Vectors.Put(ctx, rec); err != nil {
			return 0, &codedError{code: CodeStorage, err: err}
		}
	}
	return len(chunks), nil
}

// embedWithRetry calls the embedding service with exponential backoff and
// jitter. Context errors are terminal; everything else retries up to the
// configured attempt count.
func (c *Coordinator) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	backoff := retry.NewExponential(c.cfg.RetryBase)
	backoff = retry.WithCappedDuration(c.cfg.RetryCap, backoff)
	backoff = retry.WithJitter(c.cfg.RetryBase/2, backoff)
	backoff = retry.WithMaxRetries(uint64(c.cfg.RetryAttempts-1), backoff)

	var embeddings [][]float32
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		result, err := c.deps.Vectors.Embed(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		embeddings = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return embeddings, nil
}

// codedError attaches a stable error code to a pipeline failure.
type codedError struct {
	code string
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }

func (e *codedError) Unwrap() error { return e.err }

func errorCode(err error) string {
	var coded *codedError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.As(err, &coded):
		return coded.code
	case errors.Is(err, extract.ErrCorruptPDF):
		return CodeCorruptDocument
	default:
		return CodeInternal
	}
}

// fail marks the document failed and broadcasts an unrecoverable error
// event. The status write uses a fresh deadline because the document
// context may already be expired.
func (c *Coordinator) fail(ctx context.Context, docID, code string, err error) error {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if serr := c.deps.Status.MarkFailed(sctx, docID, err.Error()); serr != nil {
		c.logger.Warn("failed to mark document failed", "doc_id", docID, "error", serr)
	}
	c.deps.Events.Publish(notify.Error(docID, code, err.Error(), false))
	c.logger.Error("processing failed", "doc_id", docID, "code", code, "error", err)
	return err
}

// failNew is fail for documents that never got a status record, so late
// status queries still find a failed record instead of nothing.
func (c *Coordinator) failNew(ctx context.Context, docID, name string, byteSize int64, code string, err error) error {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if cerr := c.deps.Status.Create(sctx, docID, name, byteSize, 0); cerr != nil {
		c.logger.Warn("failed to create status record", "doc_id", docID, "error", cerr)
	}
	return c.fail(ctx, docID, code, err)
}
