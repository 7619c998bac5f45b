package queue

import "context"

// Job consumes one kind of queued message. A queue routes each dequeued
// message to the job registered for its kind.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Kind returns the message kind this job consumes.
	Kind() string

	// Handle processes one message payload. A returned error triggers the
	// queue's retry and dead-letter handling.
	Handle(ctx context.Context, payload interface{}) error
}
