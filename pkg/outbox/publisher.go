package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/wholesale/pkg/repo"
)

type Publisher interface {
	// Enqueue writes msg inside tx and returns its sequence. An EventID that
	// is already in the table returns the existing row's sequence.
	Enqueue(ctx context.Context, tx repo.Tx, table pgx.Identifier, msg Message) (sequence int64, err error)
}

type publisher struct {
	m *metrics
}

func NewPublisher() Publisher {
	return &publisher{m: getMetrics()}
}

const enqueueSQL = `INSERT INTO %s (topic, payload, event_id, available_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (event_id) DO UPDATE SET event_id = EXCLUDED.event_id
RETURNING sequence`

func (p *publisher) Enqueue(ctx context.Context, tx repo.Tx, table pgx.Identifier, msg Message) (int64, error) {
	if err := msg.validate(); err != nil {
		return 0, err
	}
	if len(table) == 0 {
		return 0, invalidConfig("table is required")
	}
	if tx == nil {
		return 0, invalidConfig("tx is required")
	}

	var sequence int64
	err := tx.QueryRow(ctx, fmt.Sprintf(enqueueSQL, table.Sanitize()), msg.Topic, []byte(msg.Payload), msg.EventID).Scan(&sequence)
	if err != nil {
		return 0, fmt.Errorf("outbox enqueue %s: %w", TableLabel(table), err)
	}
	p.m.enqueued.WithLabelValues(TableLabel(table), msg.Topic).Inc()
	return sequence, nil
}
