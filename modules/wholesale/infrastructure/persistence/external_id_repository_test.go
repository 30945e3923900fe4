package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/externalid"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/revision"
)

func TestExternalIDRepository(t *testing.T) {
	t.Parallel()
	job := uuid.New()
	now := time.Now()
	tx := &stubTx{
		queryFunc: func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
			require.Contains(t, sql, "external_id = ANY($2)")
			require.Equal(t, "Person", args[0])
			require.Equal(t, []string{"p-1", "p-2"}, args[1])
			return &stubRows{data: [][]any{
				{int64(1), "Person", "p-1", int64(10), job, now},
				{int64(2), "Person", "p-1", int64(11), job, now},
			}}, nil
		},
	}
	repo := NewExternalIDRepository()
	ctx := withStubTx(tx)

	got, err := repo.Lookup(ctx, "Person", []string{"p-1", "p-2"})
	require.NoError(t, err)
	require.Len(t, externalid.GroupByID(got)["p-1"], 2)

	none, err := repo.Lookup(ctx, "Person", nil)
	require.NoError(t, err)
	require.Empty(t, none)

	require.NoError(t, repo.CreateMany(ctx, []externalid.Mapping{{Model: "Person", ExternalID: "p-3", PK: 12, ImportUUID: job}}))
	require.Equal(t, [][]any{{"Person", "p-3", int64(12), job}}, tx.copies[0].rows)
}

func TestRevisionRepository(t *testing.T) {
	t.Parallel()
	job := uuid.New()
	tx := &stubTx{
		queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
			require.Contains(t, sql, "INSERT INTO wholesale_revisions")
			require.Equal(t, "alice", args[1])
			require.Equal(t, &job, args[3])
			return rowOf(int64(8))
		},
		queryFunc: func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
			require.Contains(t, sql, "ORDER BY r.created_at, v.id")
			return &stubRows{data: [][]any{
				{int64(1), int64(8), "Person", int64(3), []byte(`{"name":"Ann"}`), []byte(nil)},
				{int64(2), int64(9), "Person", int64(3), []byte(`{"name":"Anne"}`), []byte(`[{"op":"replace","path":"/name","value":"Ann"}]`)},
			}}, nil
		},
	}
	repo := NewRevisionRepository()
	ctx := withStubTx(tx)

	rev := &revision.Revision{CreatedAt: time.Now(), User: "alice", Comment: "c", ImportUUID: job}
	updated, err := revision.Updated("Person", 3, json.RawMessage(`{"name":"Ann"}`), json.RawMessage(`{"name":"Anne"}`))
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, rev, []revision.Version{
		revision.Created("Person", 4, json.RawMessage(`{"name":"Bob"}`)),
		updated,
	}))
	require.Equal(t, int64(8), rev.ID)
	require.Equal(t, pgx.Identifier{"wholesale_versions"}, tx.copies[0].table)
	require.Nil(t, tx.copies[0].rows[0][4])
	require.NotNil(t, tx.copies[0].rows[1][4])

	history, err := repo.ListByObject(ctx, "Person", 3)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Nil(t, history[0].Revert)
	prev, err := history[1].Previous()
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"Ann"}`, string(prev))
}
