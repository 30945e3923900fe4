package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/record"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/registry"
	"github.com/iota-uz/wholesale/pkg/composables"
)

// RecordStore writes catalog rows using the column and table names the
// registry declares for each model.
type RecordStore struct{}

func NewRecordStore() record.Store {
	return &RecordStore{}
}

func (s *RecordStore) CreateBulk(ctx context.Context, model *registry.Model, rows []record.Values) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	batch := &pgx.Batch{}
	for i, values := range rows {
		cols, args, err := assignments(model, values)
		if err != nil {
			return nil, errors.Wrapf(err, "%s row %d", model.Name, i)
		}
		if len(cols) == 0 {
			batch.Queue(fmt.Sprintf(`INSERT INTO %s DEFAULT VALUES RETURNING id`, ident(model.Table)))
			continue
		}
		batch.Queue(fmt.Sprintf(
			`INSERT INTO %s (%s) VALUES (%s) RETURNING id`,
			ident(model.Table), strings.Join(cols, ", "), placeholders(1, len(cols)),
		), args...)
	}

	br := tx.SendBatch(ctx, batch)
	pks := make([]int64, 0, len(rows))
	for range rows {
		var pk int64
		if err := br.QueryRow().Scan(&pk); err != nil {
			_ = br.Close()
			return nil, errors.Wrapf(err, "insert %s", model.Name)
		}
		pks = append(pks, pk)
	}
	return pks, errors.Wrapf(br.Close(), "insert %s", model.Name)
}

func (s *RecordStore) UpdateBulk(ctx context.Context, model *registry.Model, fields []string, rows []record.Update) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	declared := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		declared[f] = struct{}{}
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		values := make(record.Values, len(row.Values))
		for k, v := range row.Values {
			if _, ok := declared[k]; ok {
				values[k] = v
			}
		}
		cols, args, err := assignments(model, values)
		if err != nil {
			return errors.Wrapf(err, "%s %d", model.Name, row.PK)
		}
		if len(cols) == 0 {
			continue
		}
		set := make([]string, len(cols))
		for i, c := range cols {
			set[i] = fmt.Sprintf("%s = $%d", c, i+1)
		}
		batch.Queue(fmt.Sprintf(
			`UPDATE %s SET %s WHERE id = $%d`,
			ident(model.Table), strings.Join(set, ", "), len(cols)+1,
		), append(args, row.PK)...)
	}
	if batch.Len() == 0 {
		return nil
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return errors.Wrapf(err, "update %s", model.Name)
		}
	}
	return errors.Wrapf(br.Close(), "update %s", model.Name)
}

func (s *RecordStore) Snapshots(ctx context.Context, model *registry.Model, pks []int64) (map[int64]json.RawMessage, error) {
	out := make(map[int64]json.RawMessage, len(pks))
	if len(pks) == 0 {
		return out, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, fmt.Sprintf(
		`SELECT t.id, to_jsonb(t) FROM %s t WHERE t.id = ANY($1)`, ident(model.Table),
	), pks)
	if err != nil {
		return nil, errors.Wrapf(err, "snapshot %s", model.Name)
	}
	defer rows.Close()
	for rows.Next() {
		var pk int64
		var snap []byte
		if err := rows.Scan(&pk, &snap); err != nil {
			return nil, errors.Wrapf(err, "scan %s snapshot", model.Name)
		}
		out[pk] = json.RawMessage(snap)
	}
	return out, errors.Wrapf(rows.Err(), "snapshot %s", model.Name)
}

func (s *RecordStore) FindByName(ctx context.Context, model *registry.Model, names []string) ([]record.NameMatch, error) {
	if model.NameField == "" {
		return nil, errors.Errorf("%s has no name field", model.Name)
	}
	if len(names) == 0 {
		return nil, nil
	}
	f, _ := model.Field(model.NameField)
	lowered := make([]string, len(names))
	for i, n := range names {
		lowered[i] = record.NameKey(n)
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, fmt.Sprintf(
		`SELECT id, %[1]s FROM %[2]s WHERE lower(%[1]s) = ANY($1) ORDER BY id`,
		ident(f.Column), ident(model.Table),
	), lowered)
	if err != nil {
		return nil, errors.Wrapf(err, "find %s by name", model.Name)
	}
	defer rows.Close()

	var out []record.NameMatch
	for rows.Next() {
		var m record.NameMatch
		if err := rows.Scan(&m.PK, &m.Name); err != nil {
			return nil, errors.Wrapf(err, "scan %s name", model.Name)
		}
		out = append(out, m)
	}
	return out, errors.Wrapf(rows.Err(), "find %s by name", model.Name)
}

func (s *RecordStore) ClearMembers(ctx context.Context, model *registry.Model, field string, pks []int64) error {
	through, err := throughOf(model, field)
	if err != nil || len(pks) == 0 {
		return err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE %s = ANY($1)`, ident(through.Table), ident(through.SourceColumn),
	), pks)
	return errors.Wrapf(err, "clear %s.%s", model.Name, field)
}

func (s *RecordStore) AddMembers(ctx context.Context, model *registry.Model, field string, links []record.Link) error {
	through, err := throughOf(model, field)
	if err != nil || len(links) == 0 {
		return err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{through.Table},
		[]string{through.SourceColumn, through.TargetColumn},
		pgx.CopyFromSlice(len(links), func(i int) ([]any, error) {
			return []any{links[i].Source, links[i].Target}, nil
		}),
	)
	return errors.Wrapf(err, "add %s.%s", model.Name, field)
}

// assignments lists the sanitized columns and arguments for values in
// declaration order.
func assignments(model *registry.Model, values record.Values) ([]string, []any, error) {
	cols := make([]string, 0, len(values))
	args := make([]any, 0, len(values))
	for _, f := range model.Forward() {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		if f.Name == registry.PrimaryKey || f.Kind == registry.KindManyToMany {
			return nil, nil, errors.Errorf("field %s cannot be written directly", f.Name)
		}
		cols = append(cols, ident(f.Column))
		args = append(args, v)
	}
	if len(cols) != len(values) {
		for k := range values {
			if _, ok := model.Field(k); !ok {
				return nil, nil, errors.Wrapf(registry.ErrUnknownField, "%s.%s", model.Name, k)
			}
		}
		return nil, nil, errors.Errorf("%s values name reverse fields", model.Name)
	}
	return cols, args, nil
}

func throughOf(model *registry.Model, field string) (*registry.Through, error) {
	f, ok := model.Field(field)
	if !ok || f.Kind != registry.KindManyToMany || f.Reverse || f.Through == nil {
		return nil, errors.Errorf("%s.%s is not a many-to-many field", model.Name, field)
	}
	return f.Through, nil
}

func placeholders(from, n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(out, ", ")
}
