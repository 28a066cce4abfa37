// Package cache is the Redis-backed insight cache.
//
// Entries are keyed by document and a digest of the normalized prompt, so
// trivially different phrasings of the same prompt share one entry. A
// per-document key set tracks live entries for bulk invalidation when the
// document is re-ingested or deleted.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix   = "insight:"
	indexPrefix = "insight-keys:"

	// DefaultTTL is how long a cached insight stays valid.
	DefaultTTL = 24 * time.Hour

	// maxEntrySize is the serialized size limit above which an entry is not
	// cached at all.
	maxEntrySize = 380 * 1024
)

// ErrMiss is returned by Lookup when no live entry exists.
var ErrMiss = errors.New("cache miss")

// Entry is one cached insight. The insight payload is kept as raw JSON so
// the cache stays independent of the response schema.
type Entry struct {
	Prompt     string          `json:"prompt"`
	Insight    json.RawMessage `json:"insight"`
	ModelID    string          `json:"modelId"`
	ChunkCount int             `json:"chunkCount"`
	CreatedAt  time.Time       `json:"createdAt"`
	ExpiresAt  time.Time       `json:"expiresAt"`
}

// Gate fronts insight generation with a Redis lookup.
type Gate struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a Gate. A non-positive ttl falls back to DefaultTTL.
func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{client: client, ttl: ttl, logger: logger}
}

// Key builds the cache key for a document and prompt. The prompt is
// normalized first, so casing and whitespace differences hit the same entry.
func Key(docID, prompt string) string {
	sum := sha256.Sum256([]byte(normalizePrompt(prompt)))
	return keyPrefix + docID + ":" + hex.EncodeToString(sum[:])
}

// normalizePrompt lowercases and collapses runs of whitespace.
func normalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
}

func indexKey(docID string) string {
	return indexPrefix + docID
}

// Lookup returns the cached entry for a document and prompt, or ErrMiss.
func (g *Gate) Lookup(ctx context.Context, docID, prompt string) (*Entry, error) {
	data, err := g.client.Get(ctx, Key(docID, prompt)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cached entry: %w", err)
	}
	return &entry, nil
}

// Store caches an entry under the document and prompt and registers the key
// in the document's key set. Entries above the size limit are skipped
// without error; generation already succeeded, only reuse is lost.
func (g *Gate) Store(ctx context.Context, docID, prompt string, entry Entry) error {
	entry.Prompt = prompt
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.ExpiresAt = entry.CreatedAt.Add(g.ttl)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if len(data) > maxEntrySize {
		g.logger.Warn("insight too large to cache", "doc_id", docID, "size", len(data))
		return nil
	}

	key := Key(docID, prompt)
	_, err = g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, g.ttl)
		pipe.SAdd(ctx, indexKey(docID), key)
		pipe.Expire(ctx, indexKey(docID), g.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	g.logger.Debug("cached insight", "doc_id", docID, "key", key, "size", len(data))
	return nil
}

// InvalidateDocument removes every cached insight for a document. It
// returns the number of entries dropped.
func (g *Gate) InvalidateDocument(ctx context.Context, docID string) (int64, error) {
	keys, err := g.client.SMembers(ctx, indexKey(docID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list cache keys for %q: %w", docID, err)
	}

	var dropped int64
	if len(keys) > 0 {
		dropped, err = g.client.Del(ctx, keys...).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to invalidate cache for %q: %w", docID, err)
		}
	}
	if err := g.client.Del(ctx, indexKey(docID)).Err(); err != nil {
		return dropped, fmt.Errorf("failed to drop cache key set for %q: %w", docID, err)
	}

	g.logger.Debug("invalidated document cache", "doc_id", docID, "entries", dropped)
	return dropped, nil
}

// ListByDocument returns the live cached entries for a document. Keys whose
// values already expired are skipped.
func (g *Gate) ListByDocument(ctx context.Context, docID string) ([]Entry, error) {
	keys, err := g.client.SMembers(ctx, indexKey(docID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys for %q: %w", docID, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := g.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load cached entries for %q: %w", docID, err)
	}

	var entries []Entry
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(s), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
