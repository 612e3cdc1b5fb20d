package messaging

import (
	"context"
	"errors"
)

// ErrClosed is returned by a broker after Close
var ErrClosed = errors.New("broker closed")

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Publisher publishes messages to one fixed channel
type Publisher interface {
	Publish(ctx context.Context, message interface{}) error
}
