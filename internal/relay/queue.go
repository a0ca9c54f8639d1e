package relay

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var (
	// ErrQueueFull is returned when the queue is at capacity. The producing
	// HTTP call answers with an error status; the game client owns resends.
	ErrQueueFull = errors.New("relay queue full")
)

// Queue is the bounded, ordered buffer between the ingress listener and the
// dispatcher. Any goroutine may enqueue; only the dispatcher pops. A message
// being retried is never returned to the queue — the dispatcher keeps it in
// hand, so nothing behind it can overtake.
type Queue struct {
	ch  chan *Message
	seq atomic.Uint64
}

// NewQueue creates a queue holding at most capacity pending messages.
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan *Message, capacity)}
}

// Enqueue assigns the next sequence number and appends the message. It never
// blocks: a full queue fails fast with ErrQueueFull.
func (q *Queue) Enqueue(content string) (*Message, error) {
	msg := &Message{
		Seq:        q.seq.Add(1),
		Content:    content,
		EnqueuedAt: time.Now(),
	}
	select {
	case q.ch <- msg:
		return msg, nil
	default:
		return nil, ErrQueueFull
	}
}

// Pop removes and returns the head of the queue, blocking until a message
// arrives or ctx is cancelled. Cancellation wins over pending messages so
// shutdown abandons the queue instead of racing to drain it.
func (q *Queue) Pop(ctx context.Context) (*Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	select {
	case msg := <-q.ch:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	return len(q.ch)
}
