package importjob

import "context"

type FindParams struct {
	Limit  int
	Offset int
}

type Repository interface {
	Create(ctx context.Context, job *ImportJob) error
	GetByID(ctx context.Context, id int64) (*ImportJob, error)
	List(ctx context.Context, params *FindParams) ([]*ImportJob, error)
	Update(ctx context.Context, job *ImportJob) error
}

type RowRepository interface {
	CreateMany(ctx context.Context, jobID int64, rows []RowRecord) error
	ListByJob(ctx context.Context, jobID int64) ([]RowRecord, error)
}
