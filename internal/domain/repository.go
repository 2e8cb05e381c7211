package domain

import "context"

// JobRepository defines persistence for generation jobs.
type JobRepository interface {
	Create(ctx context.Context, job *GenerationJob) error
	GetByID(ctx context.Context, id string) (*GenerationJob, error)
	UpdateProgress(ctx context.Context, id string, progress, images, audio int) error
	MarkCompleted(ctx context.Context, id string, images, audio int) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	// MarkCancelled flips a processing job to cancelled and reports its owner
	// and story so the cancellation can fan out.
	MarkCancelled(ctx context.Context, id string) (userID, storyID string, err error)
}

// StoryRepository defines persistence for story documents.
type StoryRepository interface {
	Create(ctx context.Context, story *Story) error
	GetByID(ctx context.Context, id string) (*Story, error)
	UpdateScenes(ctx context.Context, id string, scenes []Scene, status StoryStatus) error
	MarkCancelled(ctx context.Context, id string) error
}

// UserRepository defines access methods for users.
type UserRepository interface {
	Upsert(ctx context.Context, user *User) (*User, error)
	GetTier(ctx context.Context, id string) (string, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateTier(ctx context.Context, id, tier string) (*User, error)
}
