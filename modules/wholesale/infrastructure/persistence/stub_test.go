package persistence

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/wholesale/pkg/constants"
)

type copyCall struct {
	table   pgx.Identifier
	columns []string
	rows    [][]any
}

type stubTx struct {
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	batchFunc    func(b *pgx.Batch) pgx.BatchResults
	copies       []copyCall
}

func withStubTx(tx *stubTx) context.Context {
	return context.WithValue(context.Background(), constants.TxKey, tx)
}

func (s *stubTx) CopyFrom(_ context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	call := copyCall{table: tableName, columns: columnNames}
	for rowSrc.Next() {
		values, err := rowSrc.Values()
		if err != nil {
			return 0, err
		}
		call.rows = append(call.rows, values)
	}
	s.copies = append(s.copies, call)
	return int64(len(call.rows)), rowSrc.Err()
}

func (s *stubTx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	if s.batchFunc == nil {
		return &stubBatch{err: errors.New("batch not implemented")}
	}
	return s.batchFunc(b)
}

func (s *stubTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if s.execFunc == nil {
		return pgconn.CommandTag{}, errors.New("exec not implemented")
	}
	return s.execFunc(ctx, sql, arguments...)
}

func (s *stubTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if s.queryFunc == nil {
		return nil, errors.New("query not implemented")
	}
	return s.queryFunc(ctx, sql, args...)
}

func (s *stubTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if s.queryRowFunc == nil {
		return stubRow{scan: func(dest ...any) error { return errors.New("query row not implemented") }}
	}
	return s.queryRowFunc(ctx, sql, args...)
}

// assign copies src into the pointer dest, leaving the zero value for nil.
func assign(dest, src any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("scan target %T is not a pointer", dest)
	}
	target := dv.Elem()
	if src == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	sv := reflect.ValueOf(src)
	if !sv.Type().AssignableTo(target.Type()) {
		return fmt.Errorf("cannot scan %T into %T", src, dest)
	}
	target.Set(sv)
	return nil
}

func scanInto(row []any, dest []any) error {
	if len(dest) != len(row) {
		return fmt.Errorf("destination length %d does not match row length %d", len(dest), len(row))
	}
	for i := range dest {
		if err := assign(dest[i], row[i]); err != nil {
			return err
		}
	}
	return nil
}

type stubRows struct {
	data [][]any
	idx  int
	err  error
}

func (r *stubRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.data) {
		return errors.New("no current row to scan")
	}
	return scanInto(r.data[r.idx-1], dest)
}

func (r *stubRows) Values() ([]any, error) {
	if r.idx == 0 || r.idx > len(r.data) {
		return nil, errors.New("no current row")
	}
	return r.data[r.idx-1], nil
}

func (r *stubRows) RawValues() [][]byte { return nil }
func (r *stubRows) Err() error          { return r.err }
func (r *stubRows) Close()              {}
func (r *stubRows) CommandTag() pgconn.CommandTag {
	return pgconn.CommandTag{}
}
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return errors.New("scan not implemented")
	}
	return r.scan(dest...)
}

func rowOf(values ...any) stubRow {
	return stubRow{scan: func(dest ...any) error { return scanInto(values, dest) }}
}

// stubBatch answers queued statements in order from ids.
type stubBatch struct {
	ids  []int64
	idx  int
	err  error
	tags int
}

func (b *stubBatch) Exec() (pgconn.CommandTag, error) {
	b.tags++
	return pgconn.NewCommandTag("UPDATE 1"), b.err
}

func (b *stubBatch) Query() (pgx.Rows, error) {
	return nil, errors.New("batch query not implemented")
}

func (b *stubBatch) QueryRow() pgx.Row {
	if b.err != nil {
		return stubRow{scan: func(...any) error { return b.err }}
	}
	if b.idx >= len(b.ids) {
		return stubRow{scan: func(...any) error { return errors.New("batch exhausted") }}
	}
	id := b.ids[b.idx]
	b.idx++
	return rowOf(id)
}

func (b *stubBatch) Close() error { return nil }
