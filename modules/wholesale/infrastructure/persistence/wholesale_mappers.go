package persistence

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/externalid"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/importjob"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/revision"
	"github.com/iota-uz/wholesale/modules/wholesale/infrastructure/persistence/models"
)

func toDBImportJob(job *importjob.ImportJob) *models.ImportJob {
	importModels := job.ImportModels
	if importModels == nil {
		importModels = []string{}
	}
	return &models.ImportJob{
		ID:             job.ID,
		UUID:           job.UUID,
		CreatedAt:      job.CreatedAt,
		StartedAt:      job.StartedAt,
		EndedAt:        job.EndedAt,
		Action:         string(job.Action),
		SourceFile:     job.SourceFile,
		SubmittingUser: job.SubmittingUser,
		ImportModels:   importModels,
		ImportErrors:   job.ImportErrors,
		ImportedRows:   int32(job.ImportedRows), //nolint:gosec
		ErrorRows:      int32(job.ErrorRows),    //nolint:gosec
	}
}

func toDomainImportJob(dbJob *models.ImportJob) *importjob.ImportJob {
	return &importjob.ImportJob{
		ID:             dbJob.ID,
		UUID:           dbJob.UUID,
		CreatedAt:      dbJob.CreatedAt.UTC(),
		StartedAt:      utcPtr(dbJob.StartedAt),
		EndedAt:        utcPtr(dbJob.EndedAt),
		Action:         importjob.Action(dbJob.Action),
		SourceFile:     dbJob.SourceFile,
		SubmittingUser: dbJob.SubmittingUser,
		ImportModels:   dbJob.ImportModels,
		ImportErrors:   dbJob.ImportErrors,
		ImportedRows:   uint(max(dbJob.ImportedRows, 0)),
		ErrorRows:      uint(max(dbJob.ErrorRows, 0)),
	}
}

func toDomainRowRecord(r *models.ImportRecord) importjob.RowRecord {
	return importjob.RowRecord{
		ID:        r.ID,
		JobID:     r.ImportID,
		RowNumber: int(r.RowNumber),
		ModelName: r.ModelName,
		PK:        r.PK,
		Errors:    r.Errors,
	}
}

func toDomainMapping(b *models.BulkImport) externalid.Mapping {
	return externalid.Mapping{
		Model:      b.ModelName,
		ExternalID: b.ExternalID,
		PK:         b.PK,
		ImportUUID: b.ImportUUID,
	}
}

func toDBRevision(rev *revision.Revision) *models.Revision {
	out := &models.Revision{
		ID:        rev.ID,
		CreatedAt: rev.CreatedAt,
		UserName:  rev.User,
		Comment:   rev.Comment,
	}
	if rev.ImportUUID != uuid.Nil {
		id := rev.ImportUUID
		out.ImportUUID = &id
	}
	return out
}

func toDomainVersion(v *models.Version) revision.Version {
	out := revision.Version{
		ID:         v.ID,
		RevisionID: v.RevisionID,
		Model:      v.ModelName,
		ObjectPK:   v.ObjectPK,
		Snapshot:   json.RawMessage(v.Snapshot),
	}
	if len(v.Revert) > 0 {
		out.Revert = json.RawMessage(v.Revert)
	}
	return out
}
