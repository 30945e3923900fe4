package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sirupsen/logrus"
)

// DB is the part of *pgxpool.Pool the relay needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Relay delivers unpublished rows of one outbox table to a Dispatcher. A
// delivery that fails is retried with exponential backoff until MaxAttempts.
type Relay struct {
	db         DB
	table      pgx.Identifier
	dispatcher Dispatcher
	opts       RelayOptions

	m          *metrics
	tableLabel string
}

func NewRelay(db DB, table pgx.Identifier, dispatcher Dispatcher, opts RelayOptions) (*Relay, error) {
	if db == nil {
		return nil, invalidConfig("db is required")
	}
	if len(table) == 0 {
		return nil, invalidConfig("table is required")
	}
	if dispatcher == nil {
		return nil, invalidConfig("dispatcher is required")
	}
	opts.setDefaults()
	return &Relay{
		db:         db,
		table:      table,
		dispatcher: dispatcher,
		opts:       opts,
		m:          getMetrics(),
		tableLabel: TableLabel(table),
	}, nil
}

// Run drains the table every PollInterval until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if _, err := r.Drain(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.opts.Logger.WithError(err).Warn("outbox: drain failed")
		}
		if _, err := r.Prune(ctx); err != nil {
			r.opts.Logger.WithError(err).Warn("outbox: prune failed")
		}
	}
}

// Drain dispatches batches until no message is due and returns how many
// were delivered.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	delivered := 0
	for {
		n, ok, err := r.processOnce(ctx)
		delivered += ok
		if err != nil || n == 0 {
			return delivered, err
		}
	}
}

type claimed struct {
	ID       uuid.UUID
	Topic    string
	Payload  []byte
	EventID  uuid.UUID
	Sequence int64
	Attempts int
}

func (c claimed) fields(table string) logrus.Fields {
	return logrus.Fields{
		"table":    table,
		"topic":    c.Topic,
		"event_id": c.EventID.String(),
		"sequence": c.Sequence,
		"attempts": c.Attempts,
	}
}

func (r *Relay) processOnce(ctx context.Context) (int, int, error) {
	now := time.Now()
	batch, err := r.claim(ctx, now, now.Add(-r.opts.LockTTL))
	if err != nil {
		return 0, 0, err
	}

	delivered := 0
	for _, c := range batch {
		dispatchCtx, cancel := context.WithTimeout(ctx, r.opts.DispatchTimeout)
		err := r.dispatcher.Dispatch(dispatchCtx, DispatchedMessage{
			Meta: Meta{
				Table:    r.table,
				Topic:    c.Topic,
				EventID:  c.EventID,
				Sequence: c.Sequence,
				Attempts: c.Attempts,
			},
			Payload: c.Payload,
		})
		cancel()

		if err == nil {
			r.m.dispatched.WithLabelValues(r.tableLabel, c.Topic, "success").Inc()
			delivered++
			if ackErr := r.settle(ctx, `published_at = now(), locked_at = NULL, last_error = NULL`, c.ID); ackErr != nil {
				r.opts.Logger.WithError(ackErr).WithFields(c.fields(r.tableLabel)).Warn("outbox: ack failed")
			}
			continue
		}

		r.m.dispatched.WithLabelValues(r.tableLabel, c.Topic, "failure").Inc()
		lastErr := lastError(err, r.opts.LastErrorMaxLen)
		logger := r.opts.Logger.WithError(err).WithFields(c.fields(r.tableLabel))

		if c.Attempts >= r.opts.MaxAttempts {
			r.m.dead.WithLabelValues(r.tableLabel, c.Topic).Inc()
			logger.Error("outbox: message ran out of attempts")
			if deadErr := r.settle(ctx, `locked_at = NULL, last_error = $2`, c.ID, lastErr); deadErr != nil {
				logger.WithError(deadErr).Warn("outbox: dead update failed")
			}
			continue
		}

		next := time.Now().Add(r.opts.retryDelay(c.Attempts))
		logger.WithField("next", next).Warn("outbox: dispatch failed")
		if nackErr := r.settle(ctx, `locked_at = NULL, last_error = $2, available_at = $3`, c.ID, lastErr, next); nackErr != nil {
			logger.WithError(nackErr).Warn("outbox: nack failed")
		}
	}
	return len(batch), delivered, nil
}

// claim locks up to BatchSize due messages and bumps their attempts.
func (r *Relay) claim(ctx context.Context, now, lockCutoff time.Time) ([]claimed, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("outbox claim begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tableName := r.table.Sanitize()
	rows, err := tx.Query(ctx, fmt.Sprintf(
		`SELECT id, topic, payload, event_id, sequence, attempts
		   FROM %s
		  WHERE published_at IS NULL
		    AND available_at <= $1
		    AND attempts < $2
		    AND (locked_at IS NULL OR locked_at < $3)
		  ORDER BY available_at, sequence
		  LIMIT $4
		  FOR UPDATE SKIP LOCKED`,
		tableName,
	), now, r.opts.MaxAttempts, lockCutoff, r.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("outbox claim select: %w", err)
	}

	var items []claimed
	var ids []uuid.UUID
	for rows.Next() {
		var c claimed
		if err := rows.Scan(&c.ID, &c.Topic, &c.Payload, &c.EventID, &c.Sequence, &c.Attempts); err != nil {
			rows.Close()
			return nil, fmt.Errorf("outbox claim scan: %w", err)
		}
		c.Attempts++
		items = append(items, c)
		ids = append(ids, c.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox claim rows: %w", err)
	}

	if len(ids) > 0 {
		update := fmt.Sprintf(`UPDATE %s SET locked_at = $1, attempts = attempts + 1 WHERE id = ANY($2)`, tableName)
		if _, err := tx.Exec(ctx, update, now, pgtype.FlatArray[uuid.UUID](ids)); err != nil {
			return nil, fmt.Errorf("outbox claim update: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("outbox claim commit: %w", err)
	}
	return items, nil
}

func (r *Relay) settle(ctx context.Context, set string, id uuid.UUID, args ...any) error {
	q := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $1 AND published_at IS NULL`, r.table.Sanitize(), set)
	if _, err := r.db.Exec(ctx, q, append([]any{id}, args...)...); err != nil {
		return fmt.Errorf("outbox settle: %w", err)
	}
	return nil
}

// Prune deletes published messages older than Retention.
func (r *Relay) Prune(ctx context.Context) (int64, error) {
	if r.opts.Retention <= 0 {
		return 0, nil
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE published_at IS NOT NULL AND published_at < $1`, r.table.Sanitize())
	tag, err := r.db.Exec(ctx, q, time.Now().Add(-r.opts.Retention))
	if err != nil {
		return 0, fmt.Errorf("outbox prune: %w", err)
	}
	r.m.pruned.WithLabelValues(r.tableLabel).Add(float64(tag.RowsAffected()))
	return tag.RowsAffected(), nil
}
