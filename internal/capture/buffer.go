// Package capture collects raw input events between processing cycles.
//
// The buffer is the only place raw keystrokes are held in memory, so it
// is bounded: when a consumer stalls, the oldest events are dropped
// rather than letting unredacted input accumulate without limit.
package capture

import (
	"sync"

	"redactd/internal/event"
	"redactd/internal/logging"
)

// DefaultCapacity bounds the buffer when no size is configured.
const DefaultCapacity = 4096

// Buffer is a bounded, thread-safe accumulator of input events. Append
// never blocks; once full the oldest events are evicted first.
type Buffer struct {
	mu      sync.Mutex
	events  []event.InputEvent
	cap     int
	dropped uint64
	log     *logging.Logger
}

// NewBuffer creates a buffer holding at most capacity events. A
// non-positive capacity falls back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		events: make([]event.InputEvent, 0, capacity),
		cap:    capacity,
		log:    logging.Default().WithComponent("capture"),
	}
}

// Append adds one event, evicting the oldest event when full.
func (b *Buffer) Append(ev event.InputEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) >= b.cap {
		over := len(b.events) - b.cap + 1
		b.events = b.events[over:]
		b.dropped += uint64(over)
		b.log.Warn("capture buffer full, dropping oldest", "dropped_total", b.dropped)
	}
	b.events = append(b.events, ev)
}

// Drain atomically removes and returns all buffered events in arrival
// order. It returns nil when the buffer is empty.
func (b *Buffer) Drain() []event.InputEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 {
		return nil
	}
	batch := b.events
	b.events = make([]event.InputEvent, 0, b.cap)
	return batch
}

// Peek returns a copy of the buffered events without clearing them.
func (b *Buffer) Peek() []event.InputEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 {
		return nil
	}
	out := make([]event.InputEvent, len(b.events))
	copy(out, b.events)
	return out
}

// Requeue puts a failed batch back at the front of the buffer so the
// next cycle retries it. Events newer than the batch stay behind it;
// eviction rules still apply.
func (b *Buffer) Requeue(batch []event.InputEvent) {
	if len(batch) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	merged := make([]event.InputEvent, 0, len(batch)+len(b.events))
	merged = append(merged, batch...)
	merged = append(merged, b.events...)
	if len(merged) > b.cap {
		over := len(merged) - b.cap
		merged = merged[over:]
		b.dropped += uint64(over)
		b.log.Warn("capture buffer full on requeue, dropping oldest", "dropped_total", b.dropped)
	}
	b.events = merged
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Dropped reports how many events have been evicted since creation.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
