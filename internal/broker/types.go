package broker

import (
	"context"
	"encoding/json"
	"time"
)

// Envelope is the wire format for every message this service produces
// or consumes. Payload stays raw so each topic owns its own schema.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type Producer interface {
	Publish(ctx context.Context, topic string, msg Envelope) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
}

type HandlerFunc func(ctx context.Context, msg Envelope) error
