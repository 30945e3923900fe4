package outbox

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

func TestParseTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    pgx.Identifier
		wantErr bool
	}{
		{in: "wholesale_outbox", want: pgx.Identifier{"wholesale_outbox"}},
		{in: " public.wholesale_outbox ", want: pgx.Identifier{"public", "wholesale_outbox"}},
		{in: "", wantErr: true},
		{in: "a.b.c", wantErr: true},
		{in: "public.", wantErr: true},
		{in: `drop"table`, wantErr: true},
		{in: "outbox-1", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTable(tc.in)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
	require.Equal(t, "public.wholesale_outbox", TableLabel(pgx.Identifier{"public", "wholesale_outbox"}))
}
