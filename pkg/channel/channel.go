// Package channel is the publish/subscribe hop between the producer and the
// consumer. Brokers are NATS JetStream (default) and Redis Streams; a local sink
// stands in when no broker is configured.
package channel

import (
	"context"
	"errors"
	"fmt"
)

//go:generate mockgen -source=channel.go -destination=mocks/mock_channel.go -package=mocks

var (
	ErrClosed    = errors.New("channel publisher closed")
	ErrQueueFull = errors.New("channel publish queue full")
)

// Publisher hands payloads to the broker without waiting for its acknowledgement.
// Failures after hand-off are logged by the publisher, not returned.
type Publisher interface {
	Publish(payload []byte) error
	// Close flushes pending publishes until ctx expires.
	Close(ctx context.Context) error
}

// Message is one delivery. Ack suppresses redelivery, Nak requests it.
type Message interface {
	Data() []byte
	Ack() error
	Nak() error
}

type Handler func(ctx context.Context, msg Message)

type Subscriber interface {
	// Subscribe runs workers concurrent handler loops until ctx is done.
	Subscribe(ctx context.Context, workers int, handler Handler) error
	Close() error
}

// AuthError is a broker credential problem. It is fatal at startup.
type AuthError struct {
	Broker string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %v", e.Broker, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
