//go:build integration

package outbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

type stubDispatcher struct {
	failTopic string
	calls     []DispatchedMessage
}

func (d *stubDispatcher) Dispatch(_ context.Context, msg DispatchedMessage) error {
	d.calls = append(d.calls, msg)
	if msg.Meta.Topic == d.failTopic {
		return errors.New("poison")
	}
	return nil
}

func TestRelay_Integration_DrainAndPrune(t *testing.T) {
	dsn := os.Getenv("WHOLESALE_TEST_DSN")
	if dsn == "" {
		t.Skip("WHOLESALE_TEST_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	tableName := "outbox_it_" + uuid.NewString()[:8]
	table, err := ParseTable("public." + tableName)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE %s (
  id           UUID        NOT NULL DEFAULT gen_random_uuid() PRIMARY KEY,
  topic        TEXT        NOT NULL,
  payload      JSONB       NOT NULL,
  event_id     UUID        NOT NULL UNIQUE,
  sequence     BIGSERIAL   NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
  published_at TIMESTAMPTZ NULL,
  attempts     INT         NOT NULL DEFAULT 0,
  available_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  locked_at    TIMESTAMPTZ NULL,
  last_error   TEXT        NULL
)`, table.Sanitize()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s", table.Sanitize()))
	})

	p := NewPublisher()
	eventFail, eventOK := uuid.New(), uuid.New()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	_, err = p.Enqueue(ctx, tx, table, Message{Topic: "test.fail", EventID: eventFail, Payload: []byte(`{"x":1}`)})
	require.NoError(t, err)
	seq1, err := p.Enqueue(ctx, tx, table, Message{Topic: "test.ok", EventID: eventOK, Payload: []byte(`{"y":2}`)})
	require.NoError(t, err)
	seq2, err := p.Enqueue(ctx, tx, table, Message{Topic: "test.ok", EventID: eventOK, Payload: []byte(`{"y":2}`)})
	require.NoError(t, err)
	require.Equal(t, seq1, seq2)
	require.NoError(t, tx.Commit(ctx))

	dispatcher := &stubDispatcher{failTopic: "test.fail"}
	relay, err := NewRelay(pool, table, dispatcher, RelayOptions{
		BatchSize:   10,
		LockTTL:     time.Second,
		MaxAttempts: 1,
		Retention:   time.Nanosecond,
	})
	require.NoError(t, err)

	delivered, err := relay.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, delivered)
	require.Len(t, dispatcher.calls, 2)

	var attempts int
	var lastErr *string
	require.NoError(t, pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT attempts, last_error FROM %s WHERE event_id = $1`, table.Sanitize()), eventFail,
	).Scan(&attempts, &lastErr))
	require.Equal(t, 1, attempts)
	require.NotNil(t, lastErr)
	require.Equal(t, "poison", *lastErr)

	pruned, err := relay.Prune(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), pruned)
}
