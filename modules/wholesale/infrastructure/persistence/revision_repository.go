package persistence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/revision"
	"github.com/iota-uz/wholesale/modules/wholesale/infrastructure/persistence/models"
	"github.com/iota-uz/wholesale/pkg/composables"
)

type RevisionRepository struct{}

func NewRevisionRepository() revision.Repository {
	return &RevisionRepository{}
}

func (r *RevisionRepository) Create(ctx context.Context, rev *revision.Revision, versions []revision.Version) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	row := toDBRevision(rev)
	if err := tx.QueryRow(ctx, `
		INSERT INTO wholesale_revisions (created_at, user_name, comment, import_uuid)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		row.CreatedAt, row.UserName, row.Comment, row.ImportUUID,
	).Scan(&rev.ID); err != nil {
		return errors.Wrap(err, "insert revision")
	}
	if len(versions) == 0 {
		return nil
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"wholesale_versions"},
		[]string{"revision_id", "model_name", "object_pk", "snapshot", "revert"},
		pgx.CopyFromSlice(len(versions), func(i int) ([]any, error) {
			v := versions[i]
			var revert []byte
			if len(v.Revert) > 0 {
				revert = v.Revert
			}
			return []any{rev.ID, v.Model, v.ObjectPK, []byte(v.Snapshot), revert}, nil
		}),
	)
	return errors.Wrap(err, "copy versions")
}

func (r *RevisionRepository) ListByObject(ctx context.Context, model string, pk int64) ([]revision.Version, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT v.id, v.revision_id, v.model_name, v.object_pk, v.snapshot, v.revert
		  FROM wholesale_versions v
		  JOIN wholesale_revisions r ON r.id = v.revision_id
		 WHERE v.model_name = $1 AND v.object_pk = $2
		 ORDER BY r.created_at, v.id`, model, pk)
	if err != nil {
		return nil, errors.Wrapf(err, "list versions of %s %d", model, pk)
	}
	defer rows.Close()

	var out []revision.Version
	for rows.Next() {
		var v models.Version
		if err := rows.Scan(&v.ID, &v.RevisionID, &v.ModelName, &v.ObjectPK, &v.Snapshot, &v.Revert); err != nil {
			return nil, errors.Wrap(err, "scan version")
		}
		out = append(out, toDomainVersion(&v))
	}
	return out, errors.Wrapf(rows.Err(), "list versions of %s %d", model, pk)
}
