// Package notify queues alert messages and delivers them to a sink from a
// single background sender.
//
// Producers call Channel.Enqueue, which never blocks on delivery. The
// sender drains the queue in FIFO order and hands each message (or, with
// grouping enabled, each batch of messages) to a Sink. Delivery is
// at-most-once: failed messages are logged and dropped.
package notify

import "context"

// Tag marks a message with the outcome it reports.
type Tag int

const (
	// TagNone leaves the message unadorned.
	TagNone Tag = iota
	// TagOK marks a recovery.
	TagOK
	// TagWarn marks a warning.
	TagWarn
	// TagError marks a failure.
	TagError
)

// String returns the tag name.
func (t Tag) String() string {
	switch t {
	case TagOK:
		return "ok"
	case TagWarn:
		return "warn"
	case TagError:
		return "error"
	default:
		return "none"
	}
}

// TagFor maps a check status to its tag.
func TagFor(status bool) Tag {
	if status {
		return TagOK
	}
	return TagError
}

// Message is one queued notification.
type Message struct {
	Text string
	Tag  Tag
}

// Sink performs the outbound call for a message or a batch of grouped
// messages.
type Sink interface {
	Deliver(ctx context.Context, text string) error
}

// MessageLimiter is implemented by sinks that reject messages over a fixed
// size.
type MessageLimiter interface {
	MaxMessageBytes() int
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, text string) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, text string) error {
	return f(ctx, text)
}
