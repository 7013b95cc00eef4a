package engine

import (
	"context"
	"sync"

	"github.com/roach88/vaultguard/internal/ir"
)

// submission is one queued transaction awaiting the Run loop.
type submission struct {
	ctx   context.Context
	tx    ir.Transaction
	reply chan result // Buffered, size 1
}

// result is the Run loop's answer to a submission.
type result struct {
	outcome *Outcome
	err     error
}

// submissionQueue is a thread-safe FIFO queue of submissions.
//
// The queue is unbounded so Submit never blocks on enqueue; callers block on
// their reply channel instead.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type submissionQueue struct {
	mu     sync.Mutex
	items  []submission
	closed bool
	signal chan struct{} // Signals availability (buffered, size 1)
}

// newSubmissionQueue creates an empty queue.
func newSubmissionQueue() *submissionQueue {
	return &submissionQueue{
		items:  make([]submission, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a submission to the back of the queue.
// Returns false if the queue is closed.
func (q *submissionQueue) Enqueue(s submission) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, s)

	// Non-blocking: buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front submission without blocking.
// Returns (submission{}, false) if the queue is empty.
func (q *submissionQueue) TryDequeue() (submission, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return submission{}, false
	}

	s := q.items[0]

	// Clear the slot so the backing array does not pin the reply channel.
	q.items[0] = submission{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return s, true
}

// Wait returns a channel that signals when submissions may be available.
// The channel is closed when the queue closes.
func (q *submissionQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *submissionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *submissionQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting submissions and wakes any waiter.
// Returns the submissions still queued so the caller can fail them.
func (q *submissionQueue) Close() []submission {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.signal)

	pending := q.items
	q.items = nil
	return pending
}
