// Package dispatch runs the single delivery loop: pop the head of the
// queue, wait out the rate budget, attempt delivery, and apply retry policy.
// One loop means enqueue order is delivery order with no locking between
// senders.
package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/kyralis/chatrelay-go/internal/ratelimit"
	"github.com/kyralis/chatrelay-go/internal/relay"
)

// Sender performs a single delivery attempt for one message.
type Sender interface {
	Send(ctx context.Context, content string) relay.Outcome
}

// Config holds the retry policy. Zero fields take the documented defaults.
type Config struct {
	MaxAttempts int           // failed attempts before a message is dropped (default 5)
	BackoffBase time.Duration // first retry delay (default 1s, doubles per attempt)
	BackoffCap  time.Duration // retry delay ceiling (default 30s)
	Grace       time.Duration // shutdown grace for an in-flight attempt (default 5s)
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap == 0 {
		c.BackoffCap = 30 * time.Second
	}
	if c.Grace == 0 {
		c.Grace = 5 * time.Second
	}
	return c
}

// Dispatcher owns the queue's consuming side. Exactly one Run loop drains
// it, so a retried message blocks everything behind it until it is
// delivered or dropped.
type Dispatcher struct {
	queue  *relay.Queue
	budget *ratelimit.Budget
	sender Sender
	log    *zap.Logger
	cfg    Config

	running atomic.Bool
}

// New creates a dispatcher. Run must be called before the queue is drained.
func New(queue *relay.Queue, budget *ratelimit.Budget, sender Sender, logger *zap.Logger, cfg Config) *Dispatcher {
	return &Dispatcher{
		queue:  queue,
		budget: budget,
		sender: sender,
		log:    logger,
		cfg:    cfg.withDefaults(),
	}
}

// Running reports whether the delivery loop is accepting work.
func (d *Dispatcher) Running() bool {
	return d.running.Load()
}

// Run drains the queue until ctx is cancelled. On shutdown the in-flight
// attempt gets a bounded grace period and whatever is still queued is
// abandoned with a structured log event.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.running.Store(true)
	defer d.running.Store(false)

	for {
		msg, err := d.queue.Pop(ctx)
		if err != nil {
			d.abandon(0)
			return nil
		}
		if !d.deliver(ctx, msg) {
			d.abandon(1)
			return nil
		}
	}
}

// deliver drives one message through its lifecycle: send, and on throttle
// or transient failure retry the same message from the head until it is
// delivered or dropped. Returns false if shutdown interrupted the message.
func (d *Dispatcher) deliver(ctx context.Context, msg *relay.Message) bool {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.BackoffBase
	bo.MaxInterval = d.cfg.BackoffCap
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		if wait := d.budget.Delay(); wait > 0 {
			if !d.sleep(ctx, wait) {
				return false
			}
		}

		sendCtx, cancel := sendContext(ctx, d.cfg.Grace)
		out := d.sender.Send(sendCtx, msg.Content)
		cancel()

		switch out.Status {
		case relay.StatusDelivered:
			d.budget.RecordSend(out.Remaining, out.ResetAfter)
			d.log.Debug("message delivered",
				zap.Uint64("seq", msg.Seq),
				zap.Int("attempts", msg.Attempts))
			return true

		case relay.StatusThrottled:
			// Not a failure: the budget absorbs the wait and the same
			// message goes again once the gate reopens.
			d.budget.Throttle(out.RetryAfter)
			d.log.Info("delivery throttled",
				zap.Uint64("seq", msg.Seq),
				zap.Duration("retryAfter", out.RetryAfter))

		case relay.StatusFailed:
			msg.Attempts++
			if out.Permanent {
				d.drop(msg, "rejected", out.Err)
				return true
			}
			if msg.Attempts >= d.cfg.MaxAttempts {
				d.drop(msg, "retries_exhausted", out.Err)
				return true
			}
			wait := bo.NextBackOff()
			d.log.Warn("delivery failed, retrying",
				zap.Uint64("seq", msg.Seq),
				zap.Int("attempts", msg.Attempts),
				zap.Duration("backoff", wait),
				zap.Error(out.Err))
			if !d.sleep(ctx, wait) {
				return false
			}
		}

		if ctx.Err() != nil {
			return false
		}
	}
}

// drop surfaces a permanently failed message exactly once and discards it.
func (d *Dispatcher) drop(msg *relay.Message, reason string, err error) {
	d.log.Warn("message dropped",
		zap.Uint64("seq", msg.Seq),
		zap.Int("attempts", msg.Attempts),
		zap.String("reason", reason),
		zap.Error(err))
}

// abandon logs what shutdown left behind: the queue plus any interrupted
// in-flight message.
func (d *Dispatcher) abandon(inFlight int) {
	pending := d.queue.Len() + inFlight
	if pending == 0 {
		return
	}
	d.log.Info("shutdown abandoned pending messages", zap.Int("pending", pending))
}

// sleep waits out d, returning false if ctx was cancelled first.
func (d *Dispatcher) sleep(ctx context.Context, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// sendContext derives a context that outlives parent cancellation by up to
// grace, so an in-flight attempt can finish during shutdown instead of
// being cut off in an ambiguous half-sent state.
func sendContext(parent context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(parent, func() {
		time.AfterFunc(grace, cancel)
	})
	return ctx, func() {
		stop()
		cancel()
	}
}
