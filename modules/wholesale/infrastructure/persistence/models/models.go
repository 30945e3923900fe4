package models

import (
	"time"

	"github.com/google/uuid"
)

type ImportJob struct {
	ID             int64
	UUID           uuid.UUID
	CreatedAt      time.Time
	StartedAt      *time.Time
	EndedAt        *time.Time
	Action         string
	SourceFile     string
	SubmittingUser string
	ImportModels   []string
	ImportErrors   string
	ImportedRows   int32
	ErrorRows      int32
}

type ImportRecord struct {
	ID        int64
	ImportID  int64
	RowNumber int32
	ModelName string
	PK        *int64
	Errors    string
}

type BulkImport struct {
	ID         int64
	ModelName  string
	ExternalID string
	PK         int64
	ImportUUID uuid.UUID
	CreatedAt  time.Time
}

type Revision struct {
	ID         int64
	CreatedAt  time.Time
	UserName   string
	Comment    string
	ImportUUID *uuid.UUID
}

type Version struct {
	ID         int64
	RevisionID int64
	ModelName  string
	ObjectPK   int64
	Snapshot   []byte
	Revert     []byte
}
