package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrInvalidConfig = errors.New("invalid outbox configuration")

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Message is what a producer enqueues. EventID is the idempotency key: a
// second enqueue with the same ID is absorbed by the table.
type Message struct {
	Topic   string
	EventID uuid.UUID
	Payload json.RawMessage
}

func (m Message) validate() error {
	if m.EventID == uuid.Nil {
		return invalidConfig("event_id is required")
	}
	if m.Topic == "" {
		return invalidConfig("topic is required")
	}
	return nil
}

// Meta describes one delivery attempt. Attempts counts the current one.
type Meta struct {
	Table    pgx.Identifier
	Topic    string
	EventID  uuid.UUID
	Sequence int64
	Attempts int
}

type DispatchedMessage struct {
	Meta    Meta
	Payload json.RawMessage
}

// Dispatcher receives claimed messages. Returning an error schedules a retry.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg DispatchedMessage) error
}

type DispatcherFunc func(ctx context.Context, msg DispatchedMessage) error

func (f DispatcherFunc) Dispatch(ctx context.Context, msg DispatchedMessage) error {
	return f(ctx, msg)
}
