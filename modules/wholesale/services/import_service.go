package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/importjob"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/revision"
	"github.com/iota-uz/wholesale/pkg/composables"
	"github.com/iota-uz/wholesale/pkg/constants"
)

var ErrInvalidParams = errors.New("invalid import parameters")

// ArtifactStore keeps uploaded import files.
type ArtifactStore interface {
	Save(ctx context.Context, key string, data []byte) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// EventSink is told about every ended job inside the transaction that
// saves the terminal state.
type EventSink interface {
	JobEnded(ctx context.Context, job *importjob.ImportJob) error
}

type CreateParams struct {
	Action   string `validate:"required,oneof=add update"`
	FileName string `validate:"required"`
	User     string `validate:"required"`
	Content  []byte `validate:"required"`
}

// ArtifactKey is where the CSV of job id is stored.
func ArtifactKey(id uuid.UUID, fileName string) string {
	return fmt.Sprintf("wholesale/%s/%s", id, fileName)
}

type ServiceDeps struct {
	Jobs      importjob.Repository
	Rows      importjob.RowRepository
	Revisions revision.Repository
	Artifacts ArtifactStore
	Events    EventSink
	Executor  *Executor
	Converter *Converter
	Templates *TemplateBuilder
	InTx      TxRunner
}

type ImportService struct {
	jobs      importjob.Repository
	rows      importjob.RowRepository
	revisions revision.Repository
	artifacts ArtifactStore
	events    EventSink
	executor  *Executor
	converter *Converter
	templates *TemplateBuilder
	inTx      TxRunner
	now       func() time.Time
	m         *metrics
}

func NewImportService(deps ServiceDeps) *ImportService {
	inTx := deps.InTx
	if inTx == nil {
		inTx = composables.InTx
	}
	return &ImportService{
		jobs:      deps.Jobs,
		rows:      deps.Rows,
		revisions: deps.Revisions,
		artifacts: deps.Artifacts,
		events:    deps.Events,
		executor:  deps.Executor,
		converter: deps.Converter,
		templates: deps.Templates,
		inTx:      inTx,
		now:       time.Now,
		m:         getMetrics(),
	}
}

// Create stores the upload as CSV, records a new unstarted job and, for Add
// jobs, makes implicit same-row references explicit.
func (s *ImportService) Create(ctx context.Context, params *CreateParams) (*importjob.ImportJob, error) {
	if err := constants.Validate.Struct(params); err != nil {
		return nil, errors.Wrap(ErrInvalidParams, err.Error())
	}
	action, err := importjob.ParseAction(params.Action)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidParams, err.Error())
	}
	name, data, err := normalizeUpload(params.FileName, params.Content)
	if err != nil {
		return nil, err
	}

	var models []string
	if header, err := ReadHeader(bytes.NewReader(data)); err == nil {
		models = ModelsOf(header)
	}
	job := importjob.New(action, "", params.User, models, s.now())
	job.SourceFile = ArtifactKey(job.UUID, name)

	if err := s.artifacts.Save(ctx, job.SourceFile, data); err != nil {
		return nil, errors.Wrap(err, "failed to store upload")
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, errors.Wrap(err, "failed to create import job")
	}

	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{"job": job.UUID, "action": job.Action})
	if job.Action == importjob.ActionAdd {
		if _, err := s.Convert(ctx, job.ID); err != nil {
			if !IsStop(err) {
				return nil, err
			}
			logger.WithError(err).Warn("skipped reference conversion")
		}
	}
	logger.WithField("models", job.ImportModels).Info("created import job")
	return job, nil
}

// Convert rewrites the stored file of an unstarted Add job when it links
// models only by row adjacency. It reports whether the file changed.
func (s *ImportService) Convert(ctx context.Context, jobID int64) (bool, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return false, err
	}
	if !job.IsReadyForImport() {
		return false, importjob.ErrNotReady
	}
	if job.Action != importjob.ActionAdd {
		return false, nil
	}
	t, err := s.readArtifact(ctx, job)
	if err != nil {
		return false, err
	}
	converted, changed, err := s.converter.Convert(t, job.UUID)
	if err != nil || !changed {
		return false, err
	}
	var buf bytes.Buffer
	if err := WriteTable(&buf, converted); err != nil {
		return false, err
	}
	if err := s.artifacts.Save(ctx, job.SourceFile, buf.Bytes()); err != nil {
		return false, errors.Wrap(err, "failed to store converted upload")
	}
	composables.UseLogger(ctx).WithField("job", job.UUID).Info("made implicit references explicit")
	return true, nil
}

// Run executes an unstarted job. Import failures end the job and are
// reported through its ImportErrors and ErrorRows; only failures to load or
// save the job are returned.
func (s *ImportService) Run(ctx context.Context, jobID int64) (*importjob.ImportJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.Start(s.now()); err != nil {
		return job, err
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, errors.Wrap(err, "failed to start import job")
	}

	ctx = context.WithoutCancel(ctx)
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{"job": job.UUID, "action": job.Action})
	logger.Info("started import job")
	began := time.Now()

	outcome, runErr := s.execute(ctx, job)
	importErrors := ""
	if runErr != nil {
		if msg, ok := StopMessage(runErr); ok {
			importErrors = msg
		} else {
			importErrors = SummarizeUnexpected(runErr)
			logger.WithError(runErr).Error("import job failed unexpectedly")
		}
		outcome = &Outcome{}
	}
	if err := job.End(s.now(), importErrors, outcome.Imported, outcome.Errored); err != nil {
		return job, err
	}

	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.jobs.Update(ctx, job); err != nil {
			return errors.Wrap(err, "failed to end import job")
		}
		if len(outcome.Rows) > 0 {
			if err := s.rows.CreateMany(ctx, job.ID, outcome.Rows); err != nil {
				return errors.Wrap(err, "failed to save import rows")
			}
		}
		if s.events != nil {
			if err := s.events.JobEnded(ctx, job); err != nil {
				return errors.Wrap(err, "failed to publish job event")
			}
		}
		return nil
	})
	if err != nil {
		return job, err
	}

	s.m.jobsTotal.WithLabelValues(string(job.Action), job.Status()).Inc()
	s.m.jobDuration.WithLabelValues(string(job.Action)).Observe(time.Since(began).Seconds())
	logger.WithFields(logrus.Fields{
		"status":   job.Status(),
		"imported": job.ImportedRows,
		"errors":   job.ErrorRows,
	}).Info("ended import job")
	return job, nil
}

func (s *ImportService) execute(ctx context.Context, job *importjob.ImportJob) (out *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, panicError(r)
		}
	}()
	t, err := s.readArtifact(ctx, job)
	if err != nil {
		return nil, err
	}
	return s.executor.Execute(ctx, job, t)
}

func (s *ImportService) readArtifact(ctx context.Context, job *importjob.ImportJob) (*Table, error) {
	rc, err := s.artifacts.Open(ctx, job.SourceFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", job.SourceFile)
	}
	defer rc.Close()
	return ReadTable(rc)
}

func (s *ImportService) Template(_ context.Context, models []string) (*Template, error) {
	return s.templates.Build(models)
}

func (s *ImportService) Get(ctx context.Context, jobID int64) (*importjob.ImportJob, error) {
	return s.jobs.GetByID(ctx, jobID)
}

func (s *ImportService) List(ctx context.Context, params *importjob.FindParams) ([]*importjob.ImportJob, error) {
	return s.jobs.List(ctx, params)
}

func (s *ImportService) Rows(ctx context.Context, jobID int64) ([]importjob.RowRecord, error) {
	return s.rows.ListByJob(ctx, jobID)
}

// History lists the audit versions of one row, oldest first.
func (s *ImportService) History(ctx context.Context, model string, pk int64) ([]revision.Version, error) {
	return s.revisions.ListByObject(ctx, model, pk)
}
