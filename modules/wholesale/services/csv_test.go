package services

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadTable(t *testing.T) {
	t.Parallel()

	in := "\xEF\xBB\xBF Person.name ,Person.notes\r\nAnn,\"a, b\"\r\nBob\r\n"
	tbl, err := ReadTable(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, []string{"Person.name", "Person.notes"}, tbl.Header)
	require.Equal(t, [][]string{{"Ann", "a, b"}, {"Bob", ""}}, tbl.Rows)
	require.Equal(t, "", tbl.Cell(1, 1))
}

func TestReadTable_HardStops(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "\xEF\xBB\xBF", "Person.name\r\n\"unterminated\r\n"} {
		_, err := ReadTable(strings.NewReader(in))
		require.True(t, IsStop(err), "%q: %v", in, err)
	}
}

func TestWriteTable_UsesCRLF(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, &Table{
		Header: []string{"Person.name", "Person.notes"},
		Rows:   [][]string{{"Ann", "said \"hi\""}},
	}))
	require.Equal(t, "Person.name,Person.notes\r\nAnn,\"said \"\"hi\"\"\"\r\n", buf.String())
}
