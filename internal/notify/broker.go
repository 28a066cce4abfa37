// Package notify fans ingestion progress events out to in-process
// subscribers.
//
// Delivery is at-most-once: a subscriber with a full buffer skips the event
// rather than blocking the publisher. The document status record remains the
// authoritative state for consumers that join late or miss events.
package notify

import (
	"context"
	"sync"
)

// bufferSize is the per-subscriber channel buffer.
const bufferSize = 64

// Broker is an in-memory publish/subscribe hub, generic over the event
// payload type.
type Broker[T any] struct {
	mu   sync.RWMutex
	subs map[chan T]struct{}
	done chan struct{}
}

// NewBroker creates a Broker ready for use.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subs: make(map[chan T]struct{}),
		done: make(chan struct{}),
	}
}

// Subscribe registers a subscriber and returns its event channel. The
// channel is unregistered and closed when ctx is done or the broker shuts
// down.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		// Already shut down: hand back a closed channel so the caller's
		// receive loop exits immediately.
		ch := make(chan T)
		close(ch)
		return ch
	default:
	}

	sub := make(chan T, bufferSize)
	b.subs[sub] = struct{}{}

	go func() {
		<-ctx.Done()

		b.mu.Lock()
		defer b.mu.Unlock()

		select {
		case <-b.done:
			return
		default:
		}

		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(sub)
		}
	}()

	return sub
}

// Publish delivers an event to all current subscribers without blocking.
// Subscribers with full buffers miss the event.
func (b *Broker[T]) Publish(event T) {
	b.mu.RLock()

	select {
	case <-b.done:
		b.mu.RUnlock()
		return
	default:
	}

	targets := make([]chan T, 0, len(b.subs))
	for sub := range b.subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub <- event:
		default:
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Broker[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Shutdown closes every subscriber channel and stops accepting publishes.
// Safe to call more than once.
func (b *Broker[T]) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return
	default:
		close(b.done)
	}

	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub)
	}
}
