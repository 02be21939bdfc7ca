// Package bus provides the partitioned, at-least-once event bus the
// pipeline stages communicate through. Topics are Redis streams named
// {env}.{tenant}.{service}.{event}; each stage reads through its own
// consumer group and commits explicitly by acknowledging the entry after a
// successful publish of its outputs.
package bus

import (
	"context"
	"time"
)

// Message is one delivered bus entry. ID is the stream entry id (the
// partition-local offset); acknowledging the message requires both the
// topic and the id.
type Message struct {
	Topic string
	ID    string
	Key   string
	Value []byte
}

// Bus is the stage-facing interface over the event bus.
//
// The consumer side is single-threaded: only the stage's poll goroutine may
// call Poll. Ack is safe to call from completion goroutines; Publish is
// safe for concurrent use.
type Bus interface {
	// Subscribe declares the topics this consumer reads, creating the
	// consumer group on each if needed.
	Subscribe(ctx context.Context, topics []string, group, consumer string) error

	// Poll fetches at most one message, blocking up to timeout. A nil
	// message with a nil error means the timeout elapsed with no delivery.
	Poll(ctx context.Context, timeout time.Duration) (*Message, error)

	// Ack marks the message processed for this consumer group.
	Ack(ctx context.Context, msg *Message) error

	// Publish appends an entry to the topic with the given key.
	Publish(ctx context.Context, topic, key string, value []byte) error

	// Close releases the underlying connection.
	Close() error
}
