// Package mqtt is a reconnecting MQTT v5 client built on autopaho. Filters
// are remembered and re-sent on every reconnection, and inbound messages
// reach their handlers one at a time in arrival order.
package mqtt

import (
	"context"
	"errors"
)

// ErrNotStarted is returned by operations that need Start to have run.
var ErrNotStarted = errors.New("mqtt client not started")

// MessageHandler receives one inbound message.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is the broker connection used by the tracker transport.
type Client interface {
	// Start launches the connection manager and returns without waiting for
	// the first CONNACK.
	Start(ctx context.Context) error

	// Disconnect sends DISCONNECT and stops delivery.
	Disconnect(ctx context.Context)

	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe records handler for filter. While offline the filter is only
	// recorded and goes out with the next connection.
	Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error

	Unsubscribe(ctx context.Context, filter string) error

	// AwaitConnection blocks until connected or ctx is done.
	AwaitConnection(ctx context.Context) error

	IsConnected() bool
}
