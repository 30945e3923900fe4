package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/importjob"
	"github.com/iota-uz/wholesale/pkg/composables"
	"github.com/iota-uz/wholesale/pkg/outbox"
)

const TopicJobEnded = "wholesale.job_ended.v1"

var OutboxTable = pgx.Identifier{"wholesale_outbox"}

// JobEnded is the payload published when an import job reaches its
// terminal state.
type JobEnded struct {
	JobID        int64     `json:"job_id"`
	UUID         uuid.UUID `json:"uuid"`
	Action       string    `json:"action"`
	Status       string    `json:"status"`
	Models       []string  `json:"models"`
	ImportedRows uint      `json:"imported_rows"`
	ErrorRows    uint      `json:"error_rows"`
	ImportErrors string    `json:"import_errors,omitempty"`
	EndedAt      time.Time `json:"ended_at"`
}

// JobEventSink enqueues job events into the outbox table in the caller's
// transaction.
type JobEventSink struct {
	publisher outbox.Publisher
	table     pgx.Identifier
}

func NewJobEventSink(publisher outbox.Publisher, table pgx.Identifier) *JobEventSink {
	if len(table) == 0 {
		table = OutboxTable
	}
	return &JobEventSink{publisher: publisher, table: table}
}

// JobEventID is stable per job so a re-published end event is deduplicated.
func JobEventID(job *importjob.ImportJob) uuid.UUID {
	return uuid.NewSHA1(job.UUID, []byte(TopicJobEnded))
}

func (s *JobEventSink) JobEnded(ctx context.Context, job *importjob.ImportJob) error {
	if job.EndedAt == nil {
		return errors.Wrapf(importjob.ErrNotStarted, "job %s has not ended", job.UUID)
	}
	payload, err := json.Marshal(JobEnded{
		JobID:        job.ID,
		UUID:         job.UUID,
		Action:       string(job.Action),
		Status:       job.Status(),
		Models:       job.ImportModels,
		ImportedRows: job.ImportedRows,
		ErrorRows:    job.ErrorRows,
		ImportErrors: job.ImportErrors,
		EndedAt:      *job.EndedAt,
	})
	if err != nil {
		return errors.Wrap(err, "marshal job event")
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = s.publisher.Enqueue(ctx, tx, s.table, outbox.Message{
		Topic:   TopicJobEnded,
		EventID: JobEventID(job),
		Payload: payload,
	})
	return err
}
