// Package relay defines the message types and the ordered delivery queue
// shared between the ingress listener and the dispatcher.
package relay

import "time"

// Event is a raw chat event received from the game client.
type Event struct {
	Sender     string
	Body       string
	ReceivedAt time.Time
}

// Message is one unit of work in the delivery queue: the formatted text
// ready for the destination platform plus its position and retry state.
type Message struct {
	// Seq is assigned at enqueue time and is strictly increasing.
	Seq uint64

	// Content is the fully formatted text to post to the webhook.
	Content string

	// Attempts counts failed delivery attempts so far. Throttled attempts
	// do not count; only real failures advance it.
	Attempts int

	EnqueuedAt time.Time
}

// Status classifies the result of a single delivery attempt.
type Status int

const (
	StatusDelivered Status = iota
	StatusThrottled
	StatusFailed
)

// Outcome is the result of one send attempt, produced by the outbound
// client and consumed immediately by the dispatcher.
type Outcome struct {
	Status Status

	// RetryAfter is the server-requested wait. Set when Status is
	// StatusThrottled.
	RetryAfter time.Duration

	// Err describes the failure. Set when Status is StatusFailed.
	Err error

	// Permanent marks a failure that must not be retried (the destination
	// rejected the request outright).
	Permanent bool

	// Remaining and ResetAfter carry the destination's rate-limit headers
	// on a successful send. Remaining is -1 when the header was absent.
	Remaining  int
	ResetAfter time.Duration
}

// Delivered builds a success outcome carrying rate-limit feedback.
func Delivered(remaining int, resetAfter time.Duration) Outcome {
	return Outcome{Status: StatusDelivered, Remaining: remaining, ResetAfter: resetAfter}
}

// Throttled builds a rate-limited outcome with the wait the server asked for.
func Throttled(retryAfter time.Duration) Outcome {
	return Outcome{Status: StatusThrottled, RetryAfter: retryAfter}
}

// FailedTransient builds a retryable failure outcome.
func FailedTransient(err error) Outcome {
	return Outcome{Status: StatusFailed, Err: err}
}

// FailedPermanent builds a non-retryable failure outcome.
func FailedPermanent(err error) Outcome {
	return Outcome{Status: StatusFailed, Err: err, Permanent: true}
}
