package services

import (
	"strings"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/importjob"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/record"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/registry"
)

// entry is one row of one model: either a pending record or, once errors
// is non-empty, an error record.
type entry struct {
	values     record.Values
	externalID string
	// m2m holds the target pks of every many-to-many column in the header.
	m2m    map[string][]int64
	errors []string
	// blank marks an Add row whose cells for this model were all empty.
	blank bool
	row   int
	pk    int64
}

func (e *entry) failed() bool { return len(e.errors) > 0 }

func (e *entry) fail(msg string) { e.errors = append(e.errors, msg) }

func (e *entry) clean() bool { return !e.blank && !e.failed() }

// modelBatch is the arena of one model's CSV block; entries[i] is data row i.
type modelBatch struct {
	model       *registry.Model
	cols        []Column
	entries     []*entry
	hasPK       bool
	hasExternal bool
}

func (b *modelBatch) name() string { return b.model.Name }

// fields lists the declared non-m2m fields the block writes, in header order.
func (b *modelBatch) fields() []string {
	var out []string
	for _, c := range b.cols {
		if c.Category == CategoryExternalPK || c.Category == CategoryManyToMany || c.Actual == registry.PrimaryKey {
			continue
		}
		out = append(out, c.Actual)
	}
	return out
}

func (b *modelBatch) m2mFields() []string {
	var out []string
	for _, c := range b.cols {
		if c.Category == CategoryManyToMany {
			out = append(out, c.Actual)
		}
	}
	return out
}

func (b *modelBatch) cleanEntries() []*entry {
	out := make([]*entry, 0, len(b.entries))
	for _, e := range b.entries {
		if e.clean() {
			out = append(out, e)
		}
	}
	return out
}

// backRef points at the field of one entry waiting for a resolved pk.
type backRef struct {
	model  string
	row    int
	field  string
	header string
	many   bool
}

type pendingKey struct {
	value string
	refs  []backRef
}

// targetRefs holds the pending keys of one relation target in first-seen order.
type targetRefs struct {
	keys  map[string]*pendingKey
	order []string
}

// refIndex maps (target model, key) to every entry field referencing it.
// With fold set, keys are record.NameKey of the value.
type refIndex struct {
	fold    bool
	targets map[string]*targetRefs
	order   []string
}

func newRefIndex(fold bool) *refIndex {
	return &refIndex{fold: fold, targets: map[string]*targetRefs{}}
}

func (ix *refIndex) key(value string) string {
	if ix.fold {
		return record.NameKey(value)
	}
	return value
}

func (ix *refIndex) add(target, value string, ref backRef) {
	t, ok := ix.targets[target]
	if !ok {
		t = &targetRefs{keys: map[string]*pendingKey{}}
		ix.targets[target] = t
		ix.order = append(ix.order, target)
	}
	k := ix.key(value)
	p, ok := t.keys[k]
	if !ok {
		p = &pendingKey{value: value}
		t.keys[k] = p
		t.order = append(t.order, k)
	}
	p.refs = append(p.refs, ref)
}

// take removes and returns the pending keys of target in first-seen order.
func (ix *refIndex) take(target string) []*pendingKey {
	t, ok := ix.targets[target]
	if !ok {
		return nil
	}
	delete(ix.targets, target)
	out := make([]*pendingKey, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.keys[k])
	}
	return out
}

// pendingTargets lists the targets that still have references, in first-seen order.
func (ix *refIndex) pendingTargets() []string {
	out := make([]string, 0, len(ix.targets))
	for _, t := range ix.order {
		if _, ok := ix.targets[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// assembly is the parsed form of an import file.
type assembly struct {
	batches    []*modelBatch
	byModel    map[string]*modelBatch
	byName     *refIndex
	byExternal *refIndex
}

func (a *assembly) entry(ref backRef) *entry {
	return a.byModel[ref.model].entries[ref.row]
}

func (a *assembly) inJob(model string) bool {
	_, ok := a.byModel[model]
	return ok
}

// assemble parses every data row into per-model batches and records the
// references that need resolving.
func assemble(meta *Metadata, parser CellParser, cols []Column, t *Table, action importjob.Action) (*assembly, error) {
	a := &assembly{
		byModel:    map[string]*modelBatch{},
		byName:     newRefIndex(true),
		byExternal: newRefIndex(false),
	}
	blocks := blocksOf(cols)
	for _, bl := range blocks {
		model, err := meta.Model(bl.model)
		if err != nil {
			return nil, err
		}
		b := &modelBatch{model: model, cols: cols[bl.start:bl.end]}
		for _, c := range b.cols {
			switch {
			case c.Category == CategoryExternalPK:
				b.hasExternal = true
			case c.Actual == registry.PrimaryKey:
				b.hasPK = true
			}
		}
		if action == importjob.ActionAdd && b.hasPK {
			return nil, stopf("%s.id cannot be used when adding records; use %s.%s to name new rows", b.name(), b.name(), ExternalPK)
		}
		if action == importjob.ActionUpdate && !b.hasPK && !b.hasExternal {
			return nil, stopf("Updating %s requires a %s.id or %s.%s column", b.name(), b.name(), b.name(), ExternalPK)
		}
		a.batches = append(a.batches, b)
		a.byModel[b.name()] = b
	}

	for i := range t.Rows {
		for bi, bl := range blocks {
			b := a.batches[bi]
			b.entries = append(b.entries, a.parseRow(parser, b, t, i, bl.start, action))
		}
	}
	return a, nil
}

func (a *assembly) parseRow(parser CellParser, b *modelBatch, t *Table, row, offset int, action importjob.Action) *entry {
	e := &entry{values: record.Values{}, m2m: map[string][]int64{}, row: row}
	if action == importjob.ActionAdd && blankCells(t, row, offset, len(b.cols)) {
		e.blank = true
		return e
	}
	for ci, col := range b.cols {
		res := parser.Parse(col, t.Cell(row, offset+ci), action)
		if res.Skipped() {
			e.fail(res.Skip)
			continue
		}
		if res.Omit {
			continue
		}
		ref := backRef{model: b.name(), row: row, field: col.Actual, header: col.Header}
		switch col.Category {
		case CategoryExternalPK:
			e.externalID = res.Value.(string)
		case CategoryManyToMany:
			if _, ok := e.m2m[col.Actual]; !ok {
				e.m2m[col.Actual] = make([]int64, 0)
			}
			ref.many = true
			for _, r := range res.Value.([]Reference) {
				a.pend(e, col, r, ref)
			}
		case CategorySingleRelation:
			r := res.Value.(*Reference)
			if r == nil {
				if !e.failed() {
					e.values[col.Actual] = nil
				}
				continue
			}
			a.pend(e, col, *r, ref)
		default:
			if !e.failed() {
				e.values[col.Actual] = res.Value
			}
		}
	}
	return e
}

// pend applies a direct pk reference or records a pending one. Errored
// entries are still indexed so their unresolved references get reported.
func (a *assembly) pend(e *entry, col Column, r Reference, ref backRef) {
	switch r.Kind {
	case RefPK:
		if e.failed() {
			return
		}
		if ref.many {
			e.m2m[col.Actual] = append(e.m2m[col.Actual], r.PK)
			return
		}
		e.values[col.Actual] = r.PK
	case RefName:
		a.byName.add(col.Related, r.Value, ref)
	case RefExternal:
		a.byExternal.add(col.Related, r.Value, ref)
	}
}

func blankCells(t *Table, row, offset, width int) bool {
	for c := offset; c < offset+width; c++ {
		if strings.TrimSpace(t.Cell(row, c)) != "" {
			return false
		}
	}
	return true
}
