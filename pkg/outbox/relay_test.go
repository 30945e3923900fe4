package outbox

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

func TestNewRelay_Validates(t *testing.T) {
	t.Parallel()

	noop := DispatcherFunc(func(context.Context, DispatchedMessage) error { return nil })

	_, err := NewRelay(nil, pgx.Identifier{"t"}, noop, RelayOptions{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPublisher_Validates(t *testing.T) {
	t.Parallel()
	p := NewPublisher()

	_, err := p.Enqueue(context.Background(), nil, pgx.Identifier{"t"}, Message{Topic: "x"})
	require.ErrorContains(t, err, "event_id is required")
}
