package persistence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/externalid"
	"github.com/iota-uz/wholesale/modules/wholesale/infrastructure/persistence/models"
	"github.com/iota-uz/wholesale/pkg/composables"
)

type ExternalIDRepository struct{}

func NewExternalIDRepository() externalid.Repository {
	return &ExternalIDRepository{}
}

func (r *ExternalIDRepository) Lookup(ctx context.Context, model string, ids []string) ([]externalid.Mapping, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT id, model_name, external_id, pk, import_uuid, created_at
		  FROM wholesale_bulk_imports
		 WHERE model_name = $1 AND external_id = ANY($2)
		 ORDER BY id`, model, ids)
	if err != nil {
		return nil, errors.Wrapf(err, "look up %s external ids", model)
	}
	defer rows.Close()

	var out []externalid.Mapping
	for rows.Next() {
		var b models.BulkImport
		if err := rows.Scan(&b.ID, &b.ModelName, &b.ExternalID, &b.PK, &b.ImportUUID, &b.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan external id")
		}
		out = append(out, toDomainMapping(&b))
	}
	return out, errors.Wrapf(rows.Err(), "look up %s external ids", model)
}

func (r *ExternalIDRepository) CreateMany(ctx context.Context, mappings []externalid.Mapping) error {
	if len(mappings) == 0 {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"wholesale_bulk_imports"},
		[]string{"model_name", "external_id", "pk", "import_uuid"},
		pgx.CopyFromSlice(len(mappings), func(i int) ([]any, error) {
			m := mappings[i]
			return []any{m.Model, m.ExternalID, m.PK, m.ImportUUID}, nil
		}),
	)
	return errors.Wrap(err, "copy external ids")
}
