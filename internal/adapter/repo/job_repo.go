package repo

import (
	"context"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	db infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(db infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{db: db}
}

func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.GenerationJob) error {
	_, err := r.db.Exec(ctx, sqlinline.QInsertJob, job.ID, job.UserID, job.StoryID, job.TotalScenes)
	return err
}

func (r *JobRepositoryPG) GetByID(ctx context.Context, id string) (*domain.GenerationJob, error) {
	row := r.db.QueryRow(ctx, sqlinline.QSelectJob, id)
	var job domain.GenerationJob
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.StoryID,
		&job.Status,
		&job.Progress,
		&job.TotalScenes,
		&job.ImagesGenerated,
		&job.AudioGenerated,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *JobRepositoryPG) UpdateProgress(ctx context.Context, id string, progress, images, audio int) error {
	_, err := r.db.Exec(ctx, sqlinline.QUpdateJobProgress, id, progress, images, audio)
	return err
}

func (r *JobRepositoryPG) MarkCompleted(ctx context.Context, id string, images, audio int) error {
	_, err := r.db.Exec(ctx, sqlinline.QMarkJobCompleted, id, images, audio)
	return err
}

func (r *JobRepositoryPG) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := r.db.Exec(ctx, sqlinline.QMarkJobFailed, id, errMsg)
	return err
}

func (r *JobRepositoryPG) MarkCancelled(ctx context.Context, id string) (string, string, error) {
	row := r.db.QueryRow(ctx, sqlinline.QMarkJobCancelled, id)
	var userID, storyID string
	if err := row.Scan(&userID, &storyID); err != nil {
		if infra.IsNoRows(err) {
			// Job missing or already terminal; nothing to cancel.
			return "", "", domain.ErrNotFound
		}
		return "", "", err
	}
	return userID, storyID, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
