package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/externalid"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/importjob"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/record"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/registry"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/revision"
	"github.com/iota-uz/wholesale/pkg/composables"
)

var tracer = otel.Tracer("wholesale-services")

// TxRunner runs fn inside one transaction carried by the context passed to fn.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Outcome is the result of a job that was not hard-stopped.
type Outcome struct {
	Rows     []importjob.RowRecord
	Imported uint
	Errored  uint
}

type ExecutorDeps struct {
	Metadata   *Metadata
	Classifier *Classifier
	Parser     CellParser
	Policy     Policy
	Store      record.Store
	Mappings   externalid.Repository
	Revisions  revision.Repository
	InTx       TxRunner
}

type Executor struct {
	meta       *Metadata
	classifier *Classifier
	parser     CellParser
	policy     Policy
	store      record.Store
	mappings   externalid.Repository
	revisions  revision.Repository
	inTx       TxRunner
	now        func() time.Time
	m          *metrics
}

func NewExecutor(deps ExecutorDeps) *Executor {
	inTx := deps.InTx
	if inTx == nil {
		inTx = composables.InTx
	}
	return &Executor{
		meta:       deps.Metadata,
		classifier: deps.Classifier,
		parser:     deps.Parser,
		policy:     deps.Policy,
		store:      deps.Store,
		mappings:   deps.Mappings,
		revisions:  deps.Revisions,
		inTx:       inTx,
		now:        time.Now,
		m:          getMetrics(),
	}
}

// Execute imports t for job. A *StopError means nothing was written.
func (x *Executor) Execute(ctx context.Context, job *importjob.ImportJob, t *Table) (*Outcome, error) {
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{"job": job.UUID, "action": job.Action})

	parsed, err := x.parse(ctx, job, t)
	if err != nil {
		return nil, err
	}
	logger.WithField("rows", len(t.Rows)).Info("parsed import file")

	res := &resolver{
		meta:     x.meta,
		policy:   x.policy,
		store:    x.store,
		mappings: x.mappings,
		versions: &versionBatch{},
		parsed:   parsed,
		created:  map[string]int{},
	}
	err = x.inTx(ctx, func(ctx context.Context) error {
		if err := res.resolveOutside(ctx); err != nil {
			return err
		}
		for _, b := range parsed.batches {
			if err := x.importModel(ctx, job, b, res.versions); err != nil {
				return err
			}
			if err := res.resolve(ctx, b.name()); err != nil {
				return err
			}
		}
		return x.flush(ctx, job, res.versions)
	})
	if err != nil {
		return nil, err
	}

	for model, n := range res.created {
		x.m.referencesTotal.WithLabelValues(model).Add(float64(n))
		logger.WithFields(logrus.Fields{"model": model, "created": n}).Info("created relation targets by name")
	}
	out := collect(parsed, len(t.Rows))
	for _, r := range out.Rows {
		result := "imported"
		if r.Errors != "" {
			result = "error"
		}
		x.m.rowsTotal.WithLabelValues(r.ModelName, result).Inc()
	}
	return out, nil
}

func (x *Executor) parse(ctx context.Context, job *importjob.ImportJob, t *Table) (*assembly, error) {
	_, span := tracer.Start(ctx, "wholesale.parse", trace.WithAttributes(attribute.String("job", job.UUID.String())))
	defer span.End()

	cols, err := x.classifier.BuildColumns(t.Header)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	parsed, err := assemble(x.meta, x.parser, cols, t, job.Action)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return parsed, nil
}

func (x *Executor) importModel(ctx context.Context, job *importjob.ImportJob, b *modelBatch, versions *versionBatch) error {
	ctx, span := tracer.Start(ctx, "wholesale.import_model", trace.WithAttributes(
		attribute.String("model", b.name()),
		attribute.String("action", string(job.Action)),
	))
	defer span.End()

	clean := b.cleanEntries()
	if err := duplicateExternalIDs(b, clean); err != nil {
		return err
	}
	if len(clean) == 0 {
		return nil
	}

	var err error
	if job.Action == importjob.ActionAdd {
		err = x.add(ctx, job, b, clean, versions)
	} else {
		err = x.update(ctx, b, clean, versions)
	}
	if err != nil {
		span.RecordError(err)
		return err
	}
	composables.UseLogger(ctx).WithFields(logrus.Fields{
		"job":   job.UUID,
		"model": b.name(),
		"rows":  len(clean),
	}).Info("imported model")
	return nil
}

func (x *Executor) add(ctx context.Context, job *importjob.ImportJob, b *modelBatch, clean []*entry, versions *versionBatch) error {
	if ids := externalIDs(clean); len(ids) > 0 {
		existing, err := x.mappings.Lookup(ctx, b.name(), ids)
		if err != nil {
			return errors.Wrapf(err, "failed to look up %s external ids", b.name())
		}
		if len(existing) > 0 {
			taken := make([]string, 0, len(existing))
			for id := range externalid.GroupByID(existing) {
				taken = append(taken, id)
			}
			sort.Strings(taken)
			return stopf("External ids already imported for %s: %s", b.name(), strings.Join(taken, ", "))
		}
	}

	rows := make([]record.Values, len(clean))
	for i, e := range clean {
		rows[i] = e.values
	}
	pks, err := x.store.CreateBulk(ctx, b.model, rows)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s rows", b.name())
	}
	if len(pks) != len(rows) {
		return stopf("Created %d of %d %s rows", len(pks), len(rows), b.name())
	}
	for i, e := range clean {
		e.pk = pks[i]
	}

	snaps, err := x.store.Snapshots(ctx, b.model, pks)
	if err != nil {
		return errors.Wrapf(err, "failed to snapshot %s rows", b.name())
	}
	versions.created(b.name(), pks, snaps)

	var mappings []externalid.Mapping
	for _, e := range clean {
		if e.externalID == "" {
			continue
		}
		mappings = append(mappings, externalid.Mapping{
			Model:      b.name(),
			ExternalID: e.externalID,
			PK:         e.pk,
			ImportUUID: job.UUID,
		})
	}
	if len(mappings) > 0 {
		if err := x.mappings.CreateMany(ctx, mappings); err != nil {
			return errors.Wrapf(err, "failed to save %s external ids", b.name())
		}
	}
	return x.writeMembers(ctx, b, clean, false)
}

func (x *Executor) update(ctx context.Context, b *modelBatch, clean []*entry, versions *versionBatch) error {
	if err := x.resolvePKs(ctx, b, clean); err != nil {
		return err
	}
	pks := make([]int64, len(clean))
	rows := make([]record.Update, len(clean))
	seen := map[int64]struct{}{}
	var dups []string
	for i, e := range clean {
		if _, dup := seen[e.pk]; dup {
			dups = append(dups, fmt.Sprint(e.pk))
		}
		seen[e.pk] = struct{}{}
		pks[i] = e.pk
		rows[i] = record.Update{PK: e.pk, Values: e.values}
	}
	if len(dups) > 0 {
		return stopf("%s rows are updated more than once: %s", b.name(), strings.Join(dups, ", "))
	}

	before, err := x.store.Snapshots(ctx, b.model, pks)
	if err != nil {
		return errors.Wrapf(err, "failed to snapshot %s rows", b.name())
	}
	if len(before) != len(pks) {
		var missing []string
		for _, pk := range pks {
			if _, ok := before[pk]; !ok {
				missing = append(missing, fmt.Sprint(pk))
			}
		}
		return stopf("%s has no rows with id %s", b.name(), strings.Join(missing, ", "))
	}

	if fields := b.fields(); len(fields) > 0 {
		if err := x.store.UpdateBulk(ctx, b.model, fields, rows); err != nil {
			return errors.Wrapf(err, "failed to update %s rows", b.name())
		}
	}
	after, err := x.store.Snapshots(ctx, b.model, pks)
	if err != nil {
		return errors.Wrapf(err, "failed to snapshot %s rows", b.name())
	}
	if err := versions.updated(b.name(), pks, before, after); err != nil {
		return err
	}
	return x.writeMembers(ctx, b, clean, true)
}

// resolvePKs sets the pk of every clean Update entry, from its id cell or
// through the external id mapping.
func (x *Executor) resolvePKs(ctx context.Context, b *modelBatch, clean []*entry) error {
	if b.hasPK {
		for _, e := range clean {
			pk, ok := e.values[registry.PrimaryKey].(int64)
			if !ok {
				return stopf("A %s record was missing a primary key (row %d)", b.name(), importjob.RowNumber(e.row))
			}
			delete(e.values, registry.PrimaryKey)
			e.pk = pk
		}
		return nil
	}

	ids := externalIDs(clean)
	mappings, err := x.mappings.Lookup(ctx, b.name(), ids)
	if err != nil {
		return errors.Wrapf(err, "failed to look up %s external ids", b.name())
	}
	byID := externalid.GroupByID(mappings)
	var unresolved []string
	for _, e := range clean {
		m := byID[e.externalID]
		if len(m) != 1 {
			unresolved = append(unresolved, e.externalID)
			continue
		}
		e.pk = m[0].PK
	}
	if len(unresolved) > 0 {
		return stopf(
			"Could not resolve %d of %d %s external ids: %s",
			len(unresolved), len(clean), b.name(), strings.Join(unresolved, ", "),
		)
	}
	return nil
}

// writeMembers inserts the through rows of every m2m column, clearing the
// existing membership first when replace is set.
func (x *Executor) writeMembers(ctx context.Context, b *modelBatch, clean []*entry, replace bool) error {
	for _, field := range b.m2mFields() {
		var pks []int64
		var links []record.Link
		for _, e := range clean {
			targets, ok := e.m2m[field]
			if !ok {
				continue
			}
			pks = append(pks, e.pk)
			for _, t := range dedupe(targets) {
				links = append(links, record.Link{Source: e.pk, Target: t})
			}
		}
		if replace && len(pks) > 0 {
			if err := x.store.ClearMembers(ctx, b.model, field, pks); err != nil {
				return errors.Wrapf(err, "failed to clear %s.%s", b.name(), field)
			}
		}
		if len(links) > 0 {
			if err := x.store.AddMembers(ctx, b.model, field, links); err != nil {
				return errors.Wrapf(err, "failed to add %s.%s members", b.name(), field)
			}
		}
	}
	return nil
}

func (x *Executor) flush(ctx context.Context, job *importjob.ImportJob, versions *versionBatch) error {
	if len(versions.versions) == 0 {
		return nil
	}
	rev := &revision.Revision{
		CreatedAt:  x.now().UTC(),
		User:       job.SubmittingUser,
		Comment:    job.RevisionComment(),
		ImportUUID: job.UUID,
	}
	return errors.Wrap(x.revisions.Create(ctx, rev, versions.versions), "failed to save revision")
}

func duplicateExternalIDs(b *modelBatch, clean []*entry) error {
	counts := map[string]int{}
	var order []string
	for _, e := range clean {
		if e.externalID == "" {
			continue
		}
		if counts[e.externalID] == 0 {
			order = append(order, e.externalID)
		}
		counts[e.externalID]++
	}
	var dups []string
	for _, id := range order {
		if counts[id] > 1 {
			dups = append(dups, id)
		}
	}
	if len(dups) > 0 {
		return stopf("Duplicate external ids for %s: %s", b.name(), strings.Join(dups, ", "))
	}
	return nil
}

func externalIDs(entries []*entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.externalID != "" {
			out = append(out, e.externalID)
		}
	}
	return out
}

func dedupe(xs []int64) []int64 {
	seen := make(map[int64]struct{}, len(xs))
	out := xs[:0:0]
	for _, v := range xs {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// collect builds the row log, row by row and model by model within a row.
func collect(parsed *assembly, rows int) *Outcome {
	out := &Outcome{}
	for i := 0; i < rows; i++ {
		for _, b := range parsed.batches {
			e := b.entries[i]
			switch {
			case e.blank:
			case e.failed():
				out.Rows = append(out.Rows, importjob.ErrorRow(i, b.name(), strings.Join(e.errors, "; ")))
				out.Errored++
			default:
				out.Rows = append(out.Rows, importjob.SuccessRow(i, b.name(), e.pk))
				out.Imported++
			}
		}
	}
	return out
}
