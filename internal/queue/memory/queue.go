// Package memory provides the bounded in-process work queue between the crawler and fetchers.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = archive.ErrQueueClosed

// Queue is a bounded in-memory queue with context-aware operations and
// completion tracking: every enqueued item must be acknowledged with Done.
type Queue struct {
	ch chan archive.QueueItem

	mu      sync.Mutex
	pending int
	idle    chan struct{}
	closed  bool
	// sending counts Enqueue calls between the closed check and the send.
	sending sync.WaitGroup
}

var _ archive.Queue = (*Queue)(nil)

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		ch:   make(chan archive.QueueItem, capacity),
		idle: idle,
	}
}

// Enqueue pushes an item into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item archive.QueueItem) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.addPendingLocked(1)
	q.sending.Add(1)
	q.mu.Unlock()
	defer q.sending.Done()

	select {
	case <-ctx.Done():
		q.Done()
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (archive.QueueItem, error) {
	select {
	case <-ctx.Done():
		return archive.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return archive.QueueItem{}, ErrClosed
		}
		return item, nil
	}
}

// Done marks one dequeued item as fully handled.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending > 0 {
		q.addPendingLocked(-1)
	}
}

// Join blocks until every enqueued item has been marked Done or ctx ends.
func (q *Queue) Join(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	select {
	case <-ctx.Done():
		return fmt.Errorf("join canceled: %w", ctx.Err())
	case <-idle:
		return nil
	}
}

// Pending reports how many items are enqueued but not yet Done.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Close stops accepting items; workers drain what is buffered and then see ErrClosed.
// It waits for Enqueue calls already past the closed check to send or give up.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.sending.Wait()
	close(q.ch)
}

func (q *Queue) addPendingLocked(delta int) {
	before := q.pending
	q.pending += delta
	switch {
	case before == 0 && q.pending > 0:
		q.idle = make(chan struct{})
	case before > 0 && q.pending == 0:
		close(q.idle)
	}
}
