package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/wholesale/modules/wholesale/catalog"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/externalid"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/importjob"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/policy"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/record"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/registry"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/revision"
)

// memState is everything the fakes persist; inTx restores a copy of it when
// the transaction function fails.
type memState struct {
	nextID    int64
	records   map[string]map[int64]record.Values
	members   map[string]map[int64][]int64
	mappings  []externalid.Mapping
	revisions []revision.Revision
	versions  []revision.Version
	jobs      map[int64]importjob.ImportJob
	rows      []importjob.RowRecord
	events    []int64
	artifacts map[string][]byte
}

func (s *memState) clone() *memState {
	out := &memState{
		nextID:    s.nextID,
		records:   make(map[string]map[int64]record.Values, len(s.records)),
		members:   make(map[string]map[int64][]int64, len(s.members)),
		mappings:  append([]externalid.Mapping(nil), s.mappings...),
		revisions: append([]revision.Revision(nil), s.revisions...),
		versions:  append([]revision.Version(nil), s.versions...),
		jobs:      make(map[int64]importjob.ImportJob, len(s.jobs)),
		rows:      append([]importjob.RowRecord(nil), s.rows...),
		events:    append([]int64(nil), s.events...),
		artifacts: make(map[string][]byte, len(s.artifacts)),
	}
	for model, rows := range s.records {
		cp := make(map[int64]record.Values, len(rows))
		for pk, v := range rows {
			cp[pk] = copyValues(v)
		}
		out.records[model] = cp
	}
	for key, m := range s.members {
		cp := make(map[int64][]int64, len(m))
		for pk, targets := range m {
			cp[pk] = append([]int64(nil), targets...)
		}
		out.members[key] = cp
	}
	for id, j := range s.jobs {
		out.jobs[id] = j
	}
	for k, v := range s.artifacts {
		out.artifacts[k] = v
	}
	return out
}

func copyValues(v record.Values) record.Values {
	out := make(record.Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

type memDB struct {
	mu    sync.Mutex
	state *memState
	// panicOn makes CreateBulk panic for the named model.
	panicOn string
	// shortOn makes CreateBulk of the named model return one pk too few.
	shortOn string
}

func newMemDB() *memDB {
	return &memDB{state: (&memState{}).clone()}
}

func (db *memDB) inTx(ctx context.Context, fn func(context.Context) error) error {
	db.mu.Lock()
	saved := db.state.clone()
	db.mu.Unlock()
	if err := fn(ctx); err != nil {
		db.mu.Lock()
		db.state = saved
		db.mu.Unlock()
		return err
	}
	return nil
}

func (db *memDB) id() int64 {
	db.state.nextID++
	return db.state.nextID
}

func (db *memDB) count(model string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.state.records[model])
}

func (db *memDB) all(model string) map[int64]record.Values {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := map[int64]record.Values{}
	for pk, v := range db.state.records[model] {
		out[pk] = copyValues(v)
	}
	return out
}

func (db *memDB) byName(t *testing.T, model, name string) (int64, record.Values) {
	t.Helper()
	for pk, v := range db.all(model) {
		if v["name"] == name {
			return pk, v
		}
	}
	t.Fatalf("no %s named %q", model, name)
	return 0, nil
}

func (db *memDB) membersOf(model, field string, pk int64) []int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := append([]int64(nil), db.state.members[model+"."+field][pk]...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// record.Store

type memStore struct{ db *memDB }

func (s memStore) CreateBulk(_ context.Context, model *registry.Model, rows []record.Values) ([]int64, error) {
	if s.db.panicOn == model.Name {
		panic("boom: " + model.Name)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.state.records[model.Name] == nil {
		s.db.state.records[model.Name] = map[int64]record.Values{}
	}
	pks := make([]int64, 0, len(rows))
	for _, r := range rows {
		pk := s.db.id()
		s.db.state.records[model.Name][pk] = copyValues(r)
		pks = append(pks, pk)
	}
	if s.db.shortOn == model.Name && len(pks) > 0 {
		pks = pks[:len(pks)-1]
	}
	return pks, nil
}

func (s memStore) UpdateBulk(_ context.Context, model *registry.Model, fields []string, rows []record.Update) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, r := range rows {
		cur := s.db.state.records[model.Name][r.PK]
		if cur == nil {
			continue
		}
		for _, f := range fields {
			if v, ok := r.Values[f]; ok {
				cur[f] = v
			}
		}
	}
	return nil
}

func (s memStore) Snapshots(_ context.Context, model *registry.Model, pks []int64) (map[int64]json.RawMessage, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := map[int64]json.RawMessage{}
	for _, pk := range pks {
		cur, ok := s.db.state.records[model.Name][pk]
		if !ok {
			continue
		}
		img := map[string]any{"id": pk}
		for k, v := range cur {
			img[k] = v
		}
		raw, err := json.Marshal(img)
		if err != nil {
			return nil, err
		}
		out[pk] = raw
	}
	return out, nil
}

func (s memStore) FindByName(_ context.Context, model *registry.Model, names []string) ([]record.NameMatch, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []record.NameMatch
	for pk, v := range s.db.state.records[model.Name] {
		current, _ := v[model.NameField].(string)
		for _, n := range names {
			if record.NameKey(current) == record.NameKey(n) {
				out = append(out, record.NameMatch{PK: pk, Name: current})
				break
			}
		}
	}
	return out, nil
}

func (s memStore) ClearMembers(_ context.Context, model *registry.Model, field string, pks []int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, pk := range pks {
		delete(s.db.state.members[model.Name+"."+field], pk)
	}
	return nil
}

func (s memStore) AddMembers(_ context.Context, model *registry.Model, field string, links []record.Link) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	key := model.Name + "." + field
	if s.db.state.members[key] == nil {
		s.db.state.members[key] = map[int64][]int64{}
	}
	for _, l := range links {
		s.db.state.members[key][l.Source] = append(s.db.state.members[key][l.Source], l.Target)
	}
	return nil
}

// externalid.Repository

type memMappings struct{ db *memDB }

func (m memMappings) Lookup(_ context.Context, model string, ids []string) ([]externalid.Mapping, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	want := map[string]struct{}{}
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []externalid.Mapping
	for _, mp := range m.db.state.mappings {
		if _, ok := want[mp.ExternalID]; ok && mp.Model == model {
			out = append(out, mp)
		}
	}
	return out, nil
}

func (m memMappings) CreateMany(_ context.Context, mappings []externalid.Mapping) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.state.mappings = append(m.db.state.mappings, mappings...)
	return nil
}

// revision.Repository

type memRevisions struct{ db *memDB }

func (r memRevisions) Create(_ context.Context, rev *revision.Revision, versions []revision.Version) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rev.ID = r.db.id()
	r.db.state.revisions = append(r.db.state.revisions, *rev)
	for _, v := range versions {
		v.ID = r.db.id()
		v.RevisionID = rev.ID
		r.db.state.versions = append(r.db.state.versions, v)
	}
	return nil
}

func (r memRevisions) ListByObject(_ context.Context, model string, pk int64) ([]revision.Version, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []revision.Version
	for _, v := range r.db.state.versions {
		if v.Model == model && v.ObjectPK == pk {
			out = append(out, v)
		}
	}
	return out, nil
}

// importjob.Repository and importjob.RowRepository

type memJobs struct{ db *memDB }

func (j memJobs) Create(_ context.Context, job *importjob.ImportJob) error {
	j.db.mu.Lock()
	defer j.db.mu.Unlock()
	job.ID = j.db.id()
	j.db.state.jobs[job.ID] = *job
	return nil
}

func (j memJobs) GetByID(_ context.Context, id int64) (*importjob.ImportJob, error) {
	j.db.mu.Lock()
	defer j.db.mu.Unlock()
	job, ok := j.db.state.jobs[id]
	if !ok {
		return nil, importjob.ErrNotFound
	}
	return &job, nil
}

func (j memJobs) List(_ context.Context, params *importjob.FindParams) ([]*importjob.ImportJob, error) {
	j.db.mu.Lock()
	defer j.db.mu.Unlock()
	out := make([]*importjob.ImportJob, 0, len(j.db.state.jobs))
	for _, job := range j.db.state.jobs {
		job := job
		out = append(out, &job)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID > out[b].ID })
	return out, nil
}

func (j memJobs) Update(_ context.Context, job *importjob.ImportJob) error {
	j.db.mu.Lock()
	defer j.db.mu.Unlock()
	if _, ok := j.db.state.jobs[job.ID]; !ok {
		return importjob.ErrNotFound
	}
	j.db.state.jobs[job.ID] = *job
	return nil
}

type memRows struct{ db *memDB }

func (r memRows) CreateMany(_ context.Context, jobID int64, rows []importjob.RowRecord) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, row := range rows {
		row.ID = r.db.id()
		row.JobID = jobID
		r.db.state.rows = append(r.db.state.rows, row)
	}
	return nil
}

func (r memRows) ListByJob(_ context.Context, jobID int64) ([]importjob.RowRecord, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []importjob.RowRecord
	for _, row := range r.db.state.rows {
		if row.JobID == jobID {
			out = append(out, row)
		}
	}
	return out, nil
}

// ArtifactStore and EventSink

type memArtifacts struct{ db *memDB }

func (a memArtifacts) Save(_ context.Context, key string, data []byte) error {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	a.db.state.artifacts[key] = append([]byte(nil), data...)
	return nil
}

func (a memArtifacts) Open(_ context.Context, key string) (io.ReadCloser, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	data, ok := a.db.state.artifacts[key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type memEvents struct{ db *memDB }

func (e memEvents) JobEnded(_ context.Context, job *importjob.ImportJob) error {
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	e.db.state.events = append(e.db.state.events, job.ID)
	return nil
}

// harness wires an ImportService over the catalog and the in-memory fakes.
type harness struct {
	db   *memDB
	meta *Metadata
	svc  *ImportService
}

func testPolicy(t *testing.T, reg *registry.Registry) *policy.Policy {
	t.Helper()
	p, err := policy.New(reg.Names(), []string{"created_at", "Grouping.updated_at"})
	require.NoError(t, err)
	return p
}

func testMetadata(t *testing.T) *Metadata {
	t.Helper()
	reg, err := catalog.Registry()
	require.NoError(t, err)
	return NewMetadata(reg, catalog.GroupCore)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg, err := catalog.Registry()
	require.NoError(t, err)
	meta := NewMetadata(reg, catalog.GroupCore)
	pol := testPolicy(t, reg)
	classifier := NewClassifier(meta, pol)
	db := newMemDB()

	executor := NewExecutor(ExecutorDeps{
		Metadata:   meta,
		Classifier: classifier,
		Parser:     NewCellParser(DefaultM2MDelimiter),
		Policy:     pol,
		Store:      memStore{db},
		Mappings:   memMappings{db},
		Revisions:  memRevisions{db},
		InTx:       db.inTx,
	})
	svc := NewImportService(ServiceDeps{
		Jobs:      memJobs{db},
		Rows:      memRows{db},
		Revisions: memRevisions{db},
		Artifacts: memArtifacts{db},
		Events:    memEvents{db},
		Executor:  executor,
		Converter: NewConverter(classifier, meta, pol),
		Templates: NewTemplateBuilder(meta, pol),
		InTx:      db.inTx,
	})
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	executor.now = svc.now
	return &harness{db: db, meta: meta, svc: svc}
}

func (h *harness) create(t *testing.T, action importjob.Action, csv string) *importjob.ImportJob {
	t.Helper()
	job, err := h.svc.Create(context.Background(), &CreateParams{
		Action:   string(action),
		FileName: "people.csv",
		User:     "alice",
		Content:  []byte(csv),
	})
	require.NoError(t, err)
	return job
}

func (h *harness) run(t *testing.T, action importjob.Action, csv string) *importjob.ImportJob {
	t.Helper()
	job := h.create(t, action, csv)
	ended, err := h.svc.Run(context.Background(), job.ID)
	require.NoError(t, err)
	return ended
}

func (h *harness) rows(t *testing.T, job *importjob.ImportJob) []importjob.RowRecord {
	t.Helper()
	rows, err := h.svc.Rows(context.Background(), job.ID)
	require.NoError(t, err)
	return rows
}
