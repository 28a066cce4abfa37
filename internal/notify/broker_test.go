package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestBroker_PublishReachesAllSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroker[ProgressEvent]()
	defer b.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := b.Subscribe(ctx)
	second := b.Subscribe(ctx)
	if got := b.Subscribers(); got != 2 {
		t.Fatalf("Subscribers() = %d, want 2", got)
	}

	want := Started("doc-1", 25)
	b.Publish(want)

	for name, ch := range map[string]<-chan ProgressEvent{"first": first, "second": second} {
		select {
		case got := <-ch:
			if got != want {
				t.Errorf("%s subscriber got %+v, want %+v", name, got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s subscriber received nothing", name)
		}
	}
}

func TestBroker_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroker[ProgressEvent]()
	defer b.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Never drained: the buffer fills and further events are skipped.
	b.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < bufferSize*3; i++ {
			b.Publish(Progress("doc-1", i, 100))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
}

func TestBroker_ContextCancelUnsubscribes(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroker[ProgressEvent]()
	defer b.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)
	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Error("expected channel closed after context cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}

	// The subscriber set eventually drops to zero.
	deadline := time.After(time.Second)
	for b.Subscribers() != 0 {
		select {
		case <-deadline:
			t.Fatalf("Subscribers() = %d after cancel, want 0", b.Subscribers())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestBroker_ShutdownClosesSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroker[ProgressEvent]()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx)
	b.Shutdown()
	b.Shutdown() // idempotent

	if _, open := <-ch; open {
		t.Error("subscriber channel should be closed after Shutdown")
	}

	// Publish and Subscribe after shutdown are safe no-ops.
	b.Publish(Completed("doc-1", 10))
	if _, open := <-b.Subscribe(ctx); open {
		t.Error("Subscribe after Shutdown should return a closed channel")
	}
}

func TestProgressEvent_WireFormat(t *testing.T) {
	tests := []struct {
		name  string
		event ProgressEvent
		want  map[string]any
	}{
		{
			name:  "started",
			event: Started("doc-1", 25),
			want: map[string]any{
				"status": "processing_started", "docId": "doc-1",
				"totalPages": float64(25), "recoverable": false,
			},
		},
		{
			name:  "progress",
			event: Progress("doc-1", 10, 25),
			want: map[string]any{
				"status": "progress", "docId": "doc-1",
				"pagesProcessed": float64(10), "totalPages": float64(25), "recoverable": false,
			},
		},
		{
			name:  "complete",
			event: Completed("doc-1", 25),
			want: map[string]any{
				"status": "processing_complete", "docId": "doc-1",
				"pagesProcessed": float64(25), "totalPages": float64(25), "recoverable": false,
			},
		},
		{
			name:  "recoverable error",
			event: Error("doc-1", "PAGE_EXTRACTION_FAILED", "page 3: boom", true),
			want: map[string]any{
				"status": "error", "docId": "doc-1", "errorCode": "PAGE_EXTRACTION_FAILED",
				"message": "page 3: boom", "recoverable": true,
			},
		},
		{
			name:  "unrecoverable error",
			event: Error("doc-1", "CORRUPT_DOCUMENT", "bad xref", false),
			want: map[string]any{
				"status": "error", "docId": "doc-1", "errorCode": "CORRUPT_DOCUMENT",
				"message": "bad xref", "recoverable": false,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var got map[string]any
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			for key, want := range tt.want {
				if got[key] != want {
					t.Errorf("field %q = %v, want %v", key, got[key], want)
				}
			}
			for key := range got {
				if _, ok := tt.want[key]; !ok {
					t.Errorf("unexpected field %q in wire event", key)
				}
			}
		})
	}
}
