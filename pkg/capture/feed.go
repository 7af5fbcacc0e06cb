package capture

import (
	"context"
	"sync"
)

// Feed is an in-process Source for stores that do not sit on a write-ahead
// log: the store emits a change in the same call that commits the write. Used
// by the billing service (direct publish path) and by the in-memory stores in
// tests and the demo binary.
//
// A full buffer applies backpressure: Emit blocks the writing store until the
// relay drains the feed, the same way a stalled bus would eventually stall
// the upstream writes. Close always unblocks pending emitters.
type Feed struct {
	mu       sync.RWMutex
	emitters sync.WaitGroup
	ch       chan Change
	done     chan struct{}
	closed   bool
}

// NewFeed creates a feed with the given buffer size.
func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = 256
	}
	return &Feed{
		ch:   make(chan Change, buffer),
		done: make(chan struct{}),
	}
}

// Emit queues one change. It blocks while the buffer is full and drops the
// change if the feed is closed before the change was queued.
func (f *Feed) Emit(change Change) {
	f.mu.RLock()
	if f.closed {
		f.mu.RUnlock()
		return
	}
	f.emitters.Add(1)
	f.mu.RUnlock()
	defer f.emitters.Done()

	select {
	case f.ch <- change:
	case <-f.done:
	}
}

// Changes returns the change stream.
func (f *Feed) Changes(ctx context.Context) (<-chan Change, error) {
	return f.ch, nil
}

// Ack is a no-op: the feed has no durable position.
func (f *Feed) Ack(pos string) {}

// Close releases any blocked emitters, then closes the change stream.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	close(f.done)
	f.emitters.Wait()
	close(f.ch)
	return nil
}
