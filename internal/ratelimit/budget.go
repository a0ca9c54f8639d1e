// Package ratelimit tracks the outbound send budget for the destination
// webhook: how many sends remain in the current window and when that window
// resets. The destination's own signals (429 retry-after, rate-limit reset
// headers) are authoritative over the locally tracked window.
package ratelimit

import (
	"sync"
	"time"
)

// Budget is the process-wide rate state. The dispatcher consults Delay
// before every send and feeds back every outcome through RecordSend or
// Throttle. Safe for concurrent use, though in practice only the
// dispatcher's single loop touches it.
type Budget struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	remaining int
	resetAt   time.Time

	now func() time.Time // stubbed in tests
}

// NewBudget creates a budget of limit sends per window.
func NewBudget(limit int, window time.Duration) *Budget {
	return &Budget{
		limit:     limit,
		window:    window,
		remaining: limit,
		now:       time.Now,
	}
}

// Delay returns how long the caller must wait before the next send is
// permitted: zero if budget remains in the current window, otherwise the
// time until the window resets.
func (b *Budget) Delay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if !now.Before(b.resetAt) {
		// Window has rolled over; budget is fresh.
		return 0
	}
	if b.remaining > 0 {
		return 0
	}
	return b.resetAt.Sub(now)
}

// RecordSend accounts for one counted send. remaining and resetAfter carry
// the destination's rate-limit feedback; remaining < 0 and resetAfter <= 0
// mean the respective header was absent and the local estimate is kept.
func (b *Budget) RecordSend(remaining int, resetAfter time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if !now.Before(b.resetAt) {
		// First send of a new window.
		b.remaining = b.limit
		b.resetAt = now.Add(b.window)
	}

	if remaining >= 0 {
		b.remaining = remaining
	} else if b.remaining > 0 {
		b.remaining--
	}
	if resetAfter > 0 {
		b.resetAt = now.Add(resetAfter)
	}
}

// Throttle zeroes the budget until retryAfter has elapsed. The
// server-supplied wait overrides whatever the local window predicted.
func (b *Budget) Throttle(retryAfter time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.remaining = 0
	b.resetAt = b.now().Add(retryAfter)
}

// Remaining reports the sends left in the current window.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.now().Before(b.resetAt) {
		return b.limit
	}
	return b.remaining
}
