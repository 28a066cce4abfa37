// Package watch turns filesystem activity in the upload directory into
// storage events for the ingestion pipeline.
//
// It fills the role of bucket notifications in a cloud deployment: dropping
// a PDF into the watched directory triggers ingestion, deleting it removes
// the derived state. Each event is handled in its own goroutine so multiple
// documents ingest concurrently.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/doculake/doculake/internal/ingest"
)

// defaultSettleDelay is how long a freshly created file gets to finish
// being written before ingestion starts.
const defaultSettleDelay = 500 * time.Millisecond

// Handler consumes storage events.
type Handler interface {
	HandleEvent(ctx context.Context, event ingest.StorageEvent) error
}

// Watcher maps filesystem events under one root to storage events.
type Watcher struct {
	root    string
	handler Handler
	settle  time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// New creates a Watcher over root. A non-positive settle falls back to the
// default write-settle delay.
func New(root string, handler Handler, settle time.Duration, logger *slog.Logger) *Watcher {
	if settle <= 0 {
		settle = defaultSettleDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{root: root, handler: handler, settle: settle, logger: logger}
}

// Run watches until ctx is done. It waits for in-flight event handlers
// before returning.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.root); err != nil {
		return fmt.Errorf("failed to watch %q: %w", w.root, err)
	}
	w.logger.Info("watching upload directory", "root", w.root)

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				w.wg.Wait()
				return nil
			}
			if !isPDF(event.Name) {
				continue
			}

			key := filepath.Base(event.Name)
			switch {
			case event.Op.Has(fsnotify.Create):
				w.dispatch(ctx, ingest.StorageEvent{Bucket: w.root, Key: key, Type: ingest.EventCreated})
			case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
				w.dispatch(ctx, ingest.StorageEvent{Bucket: w.root, Key: key, Type: ingest.EventRemoved})
			}

		case err, ok := <-fw.Errors:
			if !ok {
				w.wg.Wait()
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// dispatch hands one event to the handler on its own goroutine. Created
// objects wait out the settle delay first so partially written files are
// not ingested.
func (w *Watcher) dispatch(ctx context.Context, event ingest.StorageEvent) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		if event.Type == ingest.EventCreated {
			timer := time.NewTimer(w.settle)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}

		if err := w.handler.HandleEvent(ctx, event); err != nil {
			w.logger.Error("storage event handling failed",
				"key", event.Key, "type", event.Type, "error", err)
		}
	}()
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// DirStore serves uploaded objects from a local directory, implementing the
// object store surface the pipeline fetches from. The bucket argument is
// ignored; the root plays that role.
type DirStore struct {
	root string
}

// NewDirStore creates a DirStore over root.
func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

// Get reads an object by key.
func (s *DirStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %q: %w", key, err)
	}
	return data, nil
}

// Stat returns an object's size in bytes.
func (s *DirStore) Stat(ctx context.Context, bucket, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	path, err := s.path(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat object %q: %w", key, err)
	}
	return info.Size(), nil
}

// path resolves a key inside the root, rejecting traversal outside it.
func (s *DirStore) path(key string) (string, error) {
	clean := filepath.Clean(string(os.PathSeparator) + key)
	full := filepath.Join(s.root, clean)

	root := filepath.Clean(s.root)
	if full != root && !strings.HasPrefix(full, root+string(os.PathSeparator)) {
		return "", errors.New("object key escapes store root")
	}
	return full, nil
}
