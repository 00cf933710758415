// Package queue buffers normalized message fragments per sender so that
// rapid-fire messages coalesce into a single agent turn. The queue is
// passive storage: the debouncer decides when a sender's buffer drains.
package queue

import (
	"sync"
	"time"

	"github.com/atendezap/atendezap/internal/media"
)

// Fragment is one normalized unit of inbound content awaiting aggregation.
type Fragment struct {
	Content    string
	Kind       media.Kind
	EnqueuedAt time.Time
}

// SenderQueue is an ordered, keyed buffer of fragments. Enqueue is
// append-only; Drain atomically claims everything buffered for a sender,
// so of two racing drains exactly one gets the fragments and the other
// sees an empty result.
type SenderQueue struct {
	mu      sync.Mutex
	pending map[string][]Fragment
}

// NewSenderQueue creates an empty queue.
func NewSenderQueue() *SenderQueue {
	return &SenderQueue{pending: make(map[string][]Fragment)}
}

// Enqueue appends a fragment to the sender's buffer in arrival order.
func (q *SenderQueue) Enqueue(senderID string, f Fragment) {
	if f.EnqueuedAt.IsZero() {
		f.EnqueuedAt = time.Now()
	}
	q.mu.Lock()
	q.pending[senderID] = append(q.pending[senderID], f)
	q.mu.Unlock()
}

// Drain removes and returns all buffered fragments for the sender in
// FIFO order. Returns nil when the buffer is empty.
func (q *SenderQueue) Drain(senderID string) []Fragment {
	q.mu.Lock()
	defer q.mu.Unlock()
	frags := q.pending[senderID]
	if len(frags) == 0 {
		return nil
	}
	delete(q.pending, senderID)
	return frags
}

// Count returns the number of fragments buffered for the sender.
func (q *SenderQueue) Count(senderID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[senderID])
}

// Clear discards the sender's buffer without returning it.
func (q *SenderQueue) Clear(senderID string) {
	q.mu.Lock()
	delete(q.pending, senderID)
	q.mu.Unlock()
}
