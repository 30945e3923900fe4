package services

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var ErrUnsupportedUpload = errors.New("unsupported upload type")

// normalizeUpload returns the upload as CSV together with its .csv file name.
// Spreadsheets are converted from their first sheet.
func normalizeUpload(name string, content []byte) (string, []byte, error) {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." {
		base = "import"
	}
	csvName := base + ".csv"

	mime := mimetype.Detect(content)
	switch {
	case mime.Is(xlsxMIME):
		data, err := xlsxToCSV(content)
		if err != nil {
			return "", nil, err
		}
		return csvName, data, nil
	case mime.Is("text/csv"), strings.HasPrefix(mime.String(), "text/"):
		return csvName, content, nil
	default:
		return "", nil, errors.Wrapf(ErrUnsupportedUpload, "%s is %s", name, mime.String())
	}
}

func xlsxToCSV(content []byte) ([]byte, error) {
	file, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open spreadsheet")
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.Wrap(ErrUnsupportedUpload, "spreadsheet has no sheets")
	}
	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrap(err, "failed to read spreadsheet rows")
	}
	if len(rows) == 0 {
		return nil, errors.Wrap(ErrUnsupportedUpload, "spreadsheet is empty")
	}

	t := &Table{Header: rows[0]}
	for _, r := range rows[1:] {
		for len(r) < len(t.Header) {
			r = append(r, "")
		}
		t.Rows = append(t.Rows, r)
	}
	var buf bytes.Buffer
	if err := WriteTable(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
