package services

import (
	"bufio"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Table is a parsed import file: the header row plus data rows. Data rows are
// padded to the header width.
type Table struct {
	Header []string
	Rows   [][]string
}

// Cell returns row r, column c, or "" when the row is short.
func (t *Table) Cell(r, c int) string {
	row := t.Rows[r]
	if c >= len(row) {
		return ""
	}
	return row[c]
}

func newCSVReader(r io.Reader) *csv.Reader {
	br := stripUTF8BOM(bufio.NewReader(r))
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = false
	return cr
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}

func readHeader(r *csv.Reader) ([]string, error) {
	h, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, stopf("The file has no columns")
		}
		return nil, stopf("The file is not a valid CSV: %v", err)
	}
	for i := range h {
		h[i] = strings.TrimSpace(h[i])
		if !utf8.ValidString(h[i]) {
			return nil, stopf("The header is not valid UTF-8")
		}
	}
	if len(h) == 1 && h[0] == "" {
		return nil, stopf("The file has no columns")
	}
	return h, nil
}

// ReadHeader reads only the header row.
func ReadHeader(r io.Reader) ([]string, error) {
	return readHeader(newCSVReader(r))
}

// ReadTable reads a whole import file. Malformed CSV is a hard stop.
func ReadTable(r io.Reader) (*Table, error) {
	cr := newCSVReader(r)
	header, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	t := &Table{Header: header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stopf("The file is not a valid CSV: %v", err)
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// WriteTable writes t in the import dialect: comma separated, CRLF terminated.
func WriteTable(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.Write(t.Header); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "failed to write row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "failed to flush csv")
}
