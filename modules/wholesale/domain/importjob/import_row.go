package importjob

// FirstDataRow is the CSV row number of the first data row; the header is row 1.
const FirstDataRow = 2

// RowRecord logs the outcome of one CSV row for one model.
type RowRecord struct {
	ID        int64  `json:"id"`
	JobID     int64  `json:"job_id"`
	RowNumber int    `json:"row_number"`
	ModelName string `json:"model_name"`
	PK        *int64 `json:"pk,omitempty"`
	Errors    string `json:"errors,omitempty"`
}

func RowNumber(index int) int {
	return index + FirstDataRow
}

func SuccessRow(index int, model string, pk int64) RowRecord {
	return RowRecord{RowNumber: RowNumber(index), ModelName: model, PK: &pk}
}

func ErrorRow(index int, model, errs string) RowRecord {
	return RowRecord{RowNumber: RowNumber(index), ModelName: model, Errors: errs}
}
