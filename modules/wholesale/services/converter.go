package services

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/importjob"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/registry"
)

// AutoExternalID is the generated external id of an earlier model's row when
// the file links two models only by sharing a row. Mappings are keyed per
// model, so ids of different models on the same row may be equal.
func AutoExternalID(jobUUID uuid.UUID, group string, rowNumber int) string {
	return fmt.Sprintf("__AUTO_%s_%s_%d", jobUUID, group, rowNumber)
}

type splice struct {
	header string
	values []string
}

// Converter makes implicit same-row references explicit by splicing
// external id columns into an Add file.
type Converter struct {
	classifier *Classifier
	meta       *Metadata
	policy     Policy
}

func NewConverter(classifier *Classifier, meta *Metadata, policy Policy) *Converter {
	return &Converter{classifier: classifier, meta: meta, policy: policy}
}

// Convert returns the rewritten table and whether anything was spliced. For
// every relation field of a later model that targets an earlier model and
// has no column, a reference column is added that copies the earlier
// model's id or external id, synthesizing the external id when needed.
func (c *Converter) Convert(t *Table, jobUUID uuid.UUID) (*Table, bool, error) {
	cols, err := c.classifier.BuildColumns(t.Header)
	if err != nil {
		return nil, false, err
	}
	blocks := blocksOf(cols)
	extras := make([][]splice, len(blocks))
	// keys[i] holds block i's per-row external ids once known.
	keys := make([][]string, len(blocks))
	keyIsPK := make([]bool, len(blocks))

	present := map[string]struct{}{}
	for _, col := range cols {
		present[col.Model+"."+col.Actual] = struct{}{}
	}

	for li, late := range blocks {
		lateModel, err := c.meta.Model(late.model)
		if err != nil {
			return nil, false, err
		}
		for ei := 0; ei < li; ei++ {
			early := blocks[ei]
			for _, f := range lateModel.Forward() {
				if !c.meta.IsRelationField(lateModel, f) || f.Target != early.model {
					continue
				}
				if _, ok := present[late.model+"."+f.Name]; ok {
					continue
				}
				if !c.policy.FieldAllowed(late.model, f.Name) {
					continue
				}
				if keys[ei] == nil {
					keys[ei], keyIsPK[ei] = c.earlyKeys(t, cols, early, jobUUID, &extras[ei])
				}
				header := late.model + "." + f.Name + ExternalSuffix
				if keyIsPK[ei] {
					header = late.model + "." + f.Name
				}
				extras[li] = append(extras[li], splice{header: header, values: c.lateValues(t, late, keys[ei])})
				present[late.model+"."+f.Name] = struct{}{}
			}
		}
	}

	changed := false
	for _, e := range extras {
		if len(e) > 0 {
			changed = true
		}
	}
	if !changed {
		return t, false, nil
	}
	return spliceTable(t, blocks, extras), true, nil
}

// earlyKeys returns the values later models should copy to reference rows of
// block b, and whether they are raw pks.
func (c *Converter) earlyKeys(t *Table, cols []Column, b block, jobUUID uuid.UUID, extra *[]splice) ([]string, bool) {
	pkCol := -1
	for i := b.start; i < b.end; i++ {
		if cols[i].Category == CategoryExternalPK {
			return column(t, i), false
		}
		if cols[i].Actual == registry.PrimaryKey {
			pkCol = i
		}
	}
	if pkCol >= 0 {
		return column(t, pkCol), true
	}
	values := make([]string, len(t.Rows))
	for r := range t.Rows {
		if blankCells(t, r, b.start, b.end-b.start) {
			continue
		}
		values[r] = AutoExternalID(jobUUID, c.meta.Group(), importjob.RowNumber(r))
	}
	*extra = append(*extra, splice{header: b.model + "." + ExternalPK, values: values})
	return values, false
}

// lateValues copies keys into the late block, leaving rows where the late
// model has no cells blank so they still produce no record.
func (c *Converter) lateValues(t *Table, late block, keys []string) []string {
	out := make([]string, len(keys))
	for r := range keys {
		if !blankCells(t, r, late.start, late.end-late.start) {
			out[r] = keys[r]
		}
	}
	return out
}

func column(t *Table, c int) []string {
	out := make([]string, len(t.Rows))
	for r := range t.Rows {
		out[r] = t.Cell(r, c)
	}
	return out
}

// spliceTable appends each block's extra columns at the end of that block.
func spliceTable(t *Table, blocks []block, extras [][]splice) *Table {
	out := &Table{}
	for bi, b := range blocks {
		out.Header = append(out.Header, t.Header[b.start:b.end]...)
		for _, s := range extras[bi] {
			out.Header = append(out.Header, s.header)
		}
	}
	tail := 0
	if len(blocks) > 0 {
		tail = blocks[len(blocks)-1].end
	}
	out.Header = append(out.Header, t.Header[tail:]...)

	out.Rows = make([][]string, len(t.Rows))
	for r := range t.Rows {
		row := make([]string, 0, len(out.Header))
		for bi, b := range blocks {
			for c := b.start; c < b.end; c++ {
				row = append(row, t.Cell(r, c))
			}
			for _, s := range extras[bi] {
				row = append(row, s.values[r])
			}
		}
		row = append(row, t.Rows[r][min(tail, len(t.Rows[r])):]...)
		out.Rows[r] = row
	}
	return out
}
