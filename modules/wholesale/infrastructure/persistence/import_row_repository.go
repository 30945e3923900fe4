package persistence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/importjob"
	"github.com/iota-uz/wholesale/modules/wholesale/infrastructure/persistence/models"
	"github.com/iota-uz/wholesale/pkg/composables"
)

type ImportRowRepository struct{}

func NewImportRowRepository() importjob.RowRepository {
	return &ImportRowRepository{}
}

func (r *ImportRowRepository) CreateMany(ctx context.Context, jobID int64, rows []importjob.RowRecord) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	src := make([][]any, 0, len(rows))
	for _, row := range rows {
		src = append(src, []any{jobID, int32(row.RowNumber), row.ModelName, row.PK, row.Errors}) //nolint:gosec
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"wholesale_import_records"},
		[]string{"import_id", "row_number", "model_name", "pk", "errors"},
		pgx.CopyFromRows(src),
	)
	return errors.Wrap(err, "copy import records")
}

func (r *ImportRowRepository) ListByJob(ctx context.Context, jobID int64) ([]importjob.RowRecord, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT id, import_id, row_number, model_name, pk, errors
		  FROM wholesale_import_records
		 WHERE import_id = $1
		 ORDER BY row_number, id`, jobID)
	if err != nil {
		return nil, errors.Wrap(err, "list import records")
	}
	defer rows.Close()

	var out []importjob.RowRecord
	for rows.Next() {
		var rec models.ImportRecord
		if err := rows.Scan(&rec.ID, &rec.ImportID, &rec.RowNumber, &rec.ModelName, &rec.PK, &rec.Errors); err != nil {
			return nil, errors.Wrap(err, "scan import record")
		}
		out = append(out, toDomainRowRecord(&rec))
	}
	return out, errors.Wrap(rows.Err(), "list import records")
}
