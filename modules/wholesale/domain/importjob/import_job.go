package importjob

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
)

func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionAdd:
		return ActionAdd, nil
	case ActionUpdate:
		return ActionUpdate, nil
	default:
		return "", fmt.Errorf("invalid action %q (expected add|update)", s)
	}
}

const (
	StatusUnstarted  = "unstarted"
	StatusStarted    = "started"
	StatusEndedOK    = "ended_ok"
	StatusEndedError = "ended_error"
)

var (
	ErrNotFound     = errors.New("import job not found")
	ErrNotReady     = errors.New("import job is not ready for import")
	ErrNotStarted   = errors.New("import job has not been started")
	ErrAlreadyEnded = errors.New("import job has already ended")
)

// ImportJob is one wholesale import run. Jobs move Unstarted -> Started -> Ended
// and never leave Ended; a failed job is corrected and resubmitted as a new one.
type ImportJob struct {
	ID             int64      `json:"id"`
	UUID           uuid.UUID  `json:"uuid"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Action         Action     `json:"action"`
	SourceFile     string     `json:"source_file"`
	SubmittingUser string     `json:"submitting_user"`
	ImportModels   []string   `json:"import_models"`
	ImportErrors   string     `json:"import_errors"`
	ImportedRows   uint       `json:"imported_rows"`
	ErrorRows      uint       `json:"error_rows"`
}

func New(action Action, sourceFile, user string, models []string, now time.Time) *ImportJob {
	return &ImportJob{
		UUID:           uuid.New(),
		CreatedAt:      now.UTC(),
		Action:         action,
		SourceFile:     sourceFile,
		SubmittingUser: user,
		ImportModels:   append([]string(nil), models...),
	}
}

func (j *ImportJob) IsReadyForImport() bool {
	return j.StartedAt == nil && j.EndedAt == nil && j.ImportErrors == ""
}

func (j *ImportJob) HasErrors() bool {
	return j.ImportErrors != "" || j.ErrorRows > 0
}

func (j *ImportJob) Status() string {
	switch {
	case j.EndedAt != nil && j.HasErrors():
		return StatusEndedError
	case j.EndedAt != nil:
		return StatusEndedOK
	case j.StartedAt != nil:
		return StatusStarted
	default:
		return StatusUnstarted
	}
}

// Start is the only transition out of Unstarted.
func (j *ImportJob) Start(now time.Time) error {
	if !j.IsReadyForImport() {
		return ErrNotReady
	}
	t := now.UTC()
	j.StartedAt = &t
	return nil
}

// End records the terminal state. A non-empty importErrors means the job was
// stopped and nothing was imported.
func (j *ImportJob) End(now time.Time, importErrors string, imported, errored uint) error {
	if j.EndedAt != nil {
		return ErrAlreadyEnded
	}
	if j.StartedAt == nil {
		return ErrNotStarted
	}
	t := now.UTC()
	j.EndedAt = &t
	j.ImportErrors = importErrors
	if importErrors != "" {
		imported = 0
	}
	j.ImportedRows = imported
	j.ErrorRows = errored
	return nil
}

// RevisionComment is the free-text comment attached to the job's audit revision.
func (j *ImportJob) RevisionComment() string {
	return fmt.Sprintf("Wholesale import %s", j.UUID)
}
