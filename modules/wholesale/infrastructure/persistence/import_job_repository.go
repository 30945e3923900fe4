package persistence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/importjob"
	"github.com/iota-uz/wholesale/modules/wholesale/infrastructure/persistence/models"
	"github.com/iota-uz/wholesale/pkg/composables"
	"github.com/iota-uz/wholesale/pkg/repo"
)

const importJobColumns = `id, uuid, created_at, started_at, ended_at, action, source_file,
		submitting_user, import_models, import_errors, imported_rows, error_rows`

type ImportJobRepository struct{}

func NewImportJobRepository() importjob.Repository {
	return &ImportJobRepository{}
}

func (r *ImportJobRepository) Create(ctx context.Context, job *importjob.ImportJob) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	row := toDBImportJob(job)
	err = tx.QueryRow(ctx, `
		INSERT INTO wholesale_imports (uuid, created_at, started_at, ended_at, action, source_file,
			submitting_user, import_models, import_errors, imported_rows, error_rows)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		row.UUID, row.CreatedAt, row.StartedAt, row.EndedAt, row.Action, row.SourceFile,
		row.SubmittingUser, row.ImportModels, row.ImportErrors, row.ImportedRows, row.ErrorRows,
	).Scan(&job.ID)
	return errors.Wrap(err, "insert import job")
}

func (r *ImportJobRepository) GetByID(ctx context.Context, id int64) (*importjob.ImportJob, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	row, err := scanImportJob(tx.QueryRow(ctx, `SELECT `+importJobColumns+` FROM wholesale_imports WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(importjob.ErrNotFound, "id %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select import job")
	}
	return toDomainImportJob(row), nil
}

func (r *ImportJobRepository) List(ctx context.Context, params *importjob.FindParams) ([]*importjob.ImportJob, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + importJobColumns + ` FROM wholesale_imports ORDER BY created_at DESC, id DESC`
	if params != nil {
		query += " " + repo.FormatLimitOffset(params.Limit, params.Offset)
	}
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list import jobs")
	}
	defer rows.Close()

	var out []*importjob.ImportJob
	for rows.Next() {
		row, err := scanImportJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan import job")
		}
		out = append(out, toDomainImportJob(row))
	}
	return out, errors.Wrap(rows.Err(), "list import jobs")
}

func (r *ImportJobRepository) Update(ctx context.Context, job *importjob.ImportJob) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	row := toDBImportJob(job)
	tag, err := tx.Exec(ctx, `
		UPDATE wholesale_imports
		   SET started_at = $2, ended_at = $3, source_file = $4, import_models = $5,
		       import_errors = $6, imported_rows = $7, error_rows = $8
		 WHERE id = $1`,
		row.ID, row.StartedAt, row.EndedAt, row.SourceFile, row.ImportModels,
		row.ImportErrors, row.ImportedRows, row.ErrorRows,
	)
	if err != nil {
		return errors.Wrap(err, "update import job")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(importjob.ErrNotFound, "id %d", job.ID)
	}
	return nil
}

func scanImportJob(row pgx.Row) (*models.ImportJob, error) {
	var j models.ImportJob
	err := row.Scan(
		&j.ID, &j.UUID, &j.CreatedAt, &j.StartedAt, &j.EndedAt, &j.Action, &j.SourceFile,
		&j.SubmittingUser, &j.ImportModels, &j.ImportErrors, &j.ImportedRows, &j.ErrorRows,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
