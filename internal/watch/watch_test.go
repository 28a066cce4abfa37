package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/doculake/doculake/internal/ingest"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []ingest.StorageEvent
	notify chan ingest.StorageEvent
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{notify: make(chan ingest.StorageEvent, 16)}
}

func (h *recordingHandler) HandleEvent(ctx context.Context, event ingest.StorageEvent) error {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()
	h.notify <- event
	return nil
}

func (h *recordingHandler) wait(t *testing.T) ingest.StorageEvent {
	t.Helper()
	select {
	case event := <-h.notify:
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("no storage event arrived")
		return ingest.StorageEvent{}
	}
}

func startWatcher(t *testing.T, root string, handler Handler) context.CancelFunc {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	w := New(root, handler, 10*time.Millisecond, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})

	// Give the watcher a moment to register before the test writes files.
	time.Sleep(50 * time.Millisecond)
	return cancel
}

func TestWatcher_CreateTriggersIngestion(t *testing.T) {
	root := t.TempDir()
	handler := newRecordingHandler()
	startWatcher(t, root, handler)

	path := filepath.Join(root, "report.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatal(err)
	}

	event := handler.wait(t)
	if event.Type != ingest.EventCreated {
		t.Errorf("event type = %q, want created", event.Type)
	}
	if event.Key != "report.pdf" {
		t.Errorf("event key = %q, want report.pdf", event.Key)
	}
	if event.Bucket != root {
		t.Errorf("event bucket = %q, want %q", event.Bucket, root)
	}
}

func TestWatcher_RemoveTriggersCleanup(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "old.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatal(err)
	}

	handler := newRecordingHandler()
	startWatcher(t, root, handler)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	event := handler.wait(t)
	if event.Type != ingest.EventRemoved || event.Key != "old.pdf" {
		t.Errorf("event = %+v, want removal of old.pdf", event)
	}
}

func TestWatcher_IgnoresNonPDF(t *testing.T) {
	root := t.TempDir()
	handler := newRecordingHandler()
	startWatcher(t, root, handler)

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "scan.pdf"), []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatal(err)
	}

	// Only the PDF produces an event.
	event := handler.wait(t)
	if event.Key != "scan.pdf" {
		t.Errorf("event key = %q, want scan.pdf", event.Key)
	}

	select {
	case extra := <-handler.notify:
		t.Errorf("unexpected extra event %+v", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDirStore_GetAndStat(t *testing.T) {
	root := t.TempDir()
	content := []byte("%PDF-1.4 test payload")
	if err := os.WriteFile(filepath.Join(root, "doc.pdf"), content, 0o600); err != nil {
		t.Fatal(err)
	}

	store := NewDirStore(root)
	ctx := context.Background()

	data, err := store.Get(ctx, root, "doc.pdf")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(data) != string(content) {
		t.Errorf("Get() = %q", data)
	}

	size, err := store.Stat(ctx, root, "doc.pdf")
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("Stat() = %d, want %d", size, len(content))
	}
}

func TestDirStore_MissingObject(t *testing.T) {
	store := NewDirStore(t.TempDir())

	if _, err := store.Get(context.Background(), "", "absent.pdf"); err == nil {
		t.Error("Get() on a missing object should error")
	}
}

func TestDirStore_RejectsTraversal(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(filepath.Dir(root), "secret.pdf")
	if err := os.WriteFile(outside, []byte("secret"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Remove(outside) })

	store := NewDirStore(root)
	data, err := store.Get(context.Background(), "", "../secret.pdf")
	if err == nil || data != nil {
		// Cleaned keys stay inside the root, so the traversal target is
		// unreachable even when the read itself succeeds.
		t.Errorf("Get(../secret.pdf) = %q, %v", data, err)
	}
}
