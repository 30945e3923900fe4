package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/externalid"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/record"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/revision"
)

// versionBatch collects the audit versions of one job until they are flushed
// as a single revision.
type versionBatch struct {
	versions []revision.Version
}

func (v *versionBatch) created(model string, pks []int64, snaps map[int64]json.RawMessage) {
	for _, pk := range pks {
		v.versions = append(v.versions, revision.Created(model, pk, snaps[pk]))
	}
}

func (v *versionBatch) updated(model string, pks []int64, before, after map[int64]json.RawMessage) error {
	for _, pk := range pks {
		ver, err := revision.Updated(model, pk, before[pk], after[pk])
		if err != nil {
			return errors.Wrapf(err, "failed to diff %s %d", model, pk)
		}
		v.versions = append(v.versions, ver)
	}
	return nil
}

// resolver back-patches pending by-name and by-external-id references.
type resolver struct {
	meta     *Metadata
	policy   Policy
	store    record.Store
	mappings externalid.Repository
	versions *versionBatch
	parsed   *assembly
	// created counts rows created by name, per target model.
	created map[string]int
}

// resolveOutside runs both passes for every target that is not imported by
// this job.
func (r *resolver) resolveOutside(ctx context.Context) error {
	targets := map[string]struct{}{}
	var order []string
	for _, ix := range []*refIndex{r.parsed.byName, r.parsed.byExternal} {
		for _, t := range ix.pendingTargets() {
			if r.parsed.inJob(t) {
				continue
			}
			if _, ok := targets[t]; !ok {
				targets[t] = struct{}{}
				order = append(order, t)
			}
		}
	}
	for _, t := range order {
		if err := r.resolve(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) resolve(ctx context.Context, target string) error {
	ctx, span := tracer.Start(ctx, "wholesale.resolve", trace.WithAttributes(attribute.String("target", target)))
	defer span.End()

	if err := r.resolveByName(ctx, target); err != nil {
		span.RecordError(err)
		return err
	}
	if err := r.resolveByExternal(ctx, target); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (r *resolver) patch(p *pendingKey, pk int64) {
	for _, ref := range p.refs {
		e := r.parsed.entry(ref)
		if e.failed() {
			continue
		}
		if ref.many {
			e.m2m[ref.field] = append(e.m2m[ref.field], pk)
			continue
		}
		e.values[ref.field] = pk
	}
}

func (r *resolver) failAll(p *pendingKey, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	for _, ref := range p.refs {
		r.parsed.entry(ref).fail(ref.header + ": " + msg)
	}
}

func (r *resolver) live(p *pendingKey) bool {
	for _, ref := range p.refs {
		if !r.parsed.entry(ref).failed() {
			return true
		}
	}
	return false
}

func (r *resolver) resolveByName(ctx context.Context, target string) error {
	pending := r.parsed.byName.take(target)
	if len(pending) == 0 {
		return nil
	}
	model, err := r.meta.Model(target)
	if err != nil {
		return err
	}
	if model.NameField == "" {
		for _, p := range pending {
			r.failAll(p, "%s cannot be referenced by name (%q)", target, p.value)
		}
		return nil
	}

	names := make([]string, 0, len(pending))
	for _, p := range pending {
		names = append(names, p.value)
	}
	matches, err := r.store.FindByName(ctx, model, names)
	if err != nil {
		return errors.Wrapf(err, "failed to look up %s by name", target)
	}
	found := map[string][]int64{}
	for _, m := range matches {
		k := record.NameKey(m.Name)
		found[k] = append(found[k], m.PK)
	}

	var missing []*pendingKey
	for _, p := range pending {
		pks := found[record.NameKey(p.value)]
		switch {
		case len(pks) == 1:
			r.patch(p, pks[0])
		case len(pks) > 1:
			r.failAll(p, "%d %s rows are named %q", len(pks), target, p.value)
		case !r.live(p):
		case !r.policy.ModelAllowed(target):
			r.failAll(p, "no %s named %q", target, p.value)
		default:
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	rows := make([]record.Values, 0, len(missing))
	for _, p := range missing {
		rows = append(rows, record.Values{model.NameField: p.value})
	}
	pks, err := r.store.CreateBulk(ctx, model, rows)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s by name", target)
	}
	if len(pks) < len(missing) {
		var values []string
		for _, p := range missing[len(pks):] {
			values = append(values, p.value)
		}
		return stopf("Could not create %s rows named: %s", target, strings.Join(values, ", "))
	}
	snaps, err := r.store.Snapshots(ctx, model, pks)
	if err != nil {
		return errors.Wrapf(err, "failed to snapshot created %s", target)
	}
	r.versions.created(target, pks, snaps)
	r.created[target] += len(pks)
	for i, p := range missing {
		r.patch(p, pks[i])
	}
	return nil
}

func (r *resolver) resolveByExternal(ctx context.Context, target string) error {
	pending := r.parsed.byExternal.take(target)
	if len(pending) == 0 {
		return nil
	}
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.value)
	}
	mappings, err := r.mappings.Lookup(ctx, target, ids)
	if err != nil {
		return errors.Wrapf(err, "failed to look up %s external ids", target)
	}
	byID := externalid.GroupByID(mappings)
	for _, p := range pending {
		switch m := byID[p.value]; len(m) {
		case 1:
			r.patch(p, m[0].PK)
		case 0:
			r.failAll(p, "no %s with external id %q", target, p.value)
		default:
			r.failAll(p, "external id %q matches %d %s rows", p.value, len(m), target)
		}
	}
	return nil
}
