// Package queue defines the broker the pipeline stages pass messages through.
// Implementations live in the memory and pubsub subpackages.
package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned by Publish after the broker is closed.
var ErrClosed = errors.New("broker closed")

// Handler processes one message payload. A nil return acknowledges the
// message; an error asks the broker to redeliver it where supported.
type Handler func(ctx context.Context, data []byte) error

// Broker moves opaque payloads between producers and consumers by topic.
type Broker interface {
	// Publish sends data to topic and returns once the broker accepted it.
	Publish(ctx context.Context, topic string, data []byte) error

	// Subscribe delivers the topic's messages to handler until ctx ends.
	// Deliveries may run concurrently.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close releases broker resources.
	Close() error
}
