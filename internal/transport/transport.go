// Package transport defines how the reconciler talks to a vehicle: a live
// MQTT broker or the offline simulator, both behind Adapter.
package transport

import (
	"context"
	"errors"
)

// Status is the connection state an adapter reports.
type Status string

const (
	StatusConnecting   Status = "CONNECTING"
	StatusConnected    Status = "CONNECTED"
	StatusReconnecting Status = "RECONNECTING"
	StatusDisconnected Status = "DISCONNECTED"
	StatusError        Status = "ERROR"
	StatusSimulated    Status = "SIMULATED"
)

func (s Status) String() string { return string(s) }

// Live reports whether frames arriving under this status come from real
// hardware.
func (s Status) Live() bool { return s == StatusConnected }

var (
	// ErrClosed is returned by operations on a closed adapter.
	ErrClosed = errors.New("transport closed")
	// ErrNotConnected is returned by Publish before Connect.
	ErrNotConnected = errors.New("transport not connected")
)

// Adapter is a publish/subscribe channel to one tracker.
//
// onStatus is invoked on every status transition. Inbound handlers get one
// call per raw frame. Publish is fire-and-forget: the device acknowledges
// with a later inbound frame, never through the return value. After Close
// returns no callback fires.
type Adapter interface {
	Connect(ctx context.Context, onStatus func(Status)) error
	OnMessage(handler func(payload []byte)) (unsubscribe func())
	Publish(ctx context.Context, cmd Command) error
	Close(ctx context.Context)
}
