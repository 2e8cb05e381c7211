package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/sqlinline"
)

// StoryRepositoryPG implements domain.StoryRepository. Scenes live in a jsonb
// column; the coordinator's finalize is the only writer of a ready story's
// scene list, so plain update semantics are enough.
type StoryRepositoryPG struct {
	db infra.SQLExecutor
}

func NewStoryRepository(db infra.SQLExecutor) *StoryRepositoryPG {
	return &StoryRepositoryPG{db: db}
}

func (r *StoryRepositoryPG) Create(ctx context.Context, story *domain.Story) error {
	scenes, err := json.Marshal(story.Scenes)
	if err != nil {
		return fmt.Errorf("encode scenes: %w", err)
	}
	_, err = r.db.Exec(ctx, sqlinline.QInsertStory,
		story.ID, story.UserID, story.Title, string(story.MediaType), scenes)
	return err
}

func (r *StoryRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Story, error) {
	row := r.db.QueryRow(ctx, sqlinline.QSelectStory, id)
	var (
		story     domain.Story
		mediaType string
		status    string
		scenesRaw []byte
	)
	if err := row.Scan(
		&story.ID,
		&story.UserID,
		&story.Title,
		&mediaType,
		&status,
		&scenesRaw,
		&story.CreatedAt,
		&story.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	story.MediaType = domain.MediaType(mediaType)
	story.Status = domain.StoryStatus(status)
	if len(scenesRaw) > 0 {
		if err := json.Unmarshal(scenesRaw, &story.Scenes); err != nil {
			return nil, fmt.Errorf("decode scenes: %w", err)
		}
	}
	return &story, nil
}

func (r *StoryRepositoryPG) UpdateScenes(ctx context.Context, id string, scenes []domain.Scene, status domain.StoryStatus) error {
	raw, err := json.Marshal(scenes)
	if err != nil {
		return fmt.Errorf("encode scenes: %w", err)
	}
	_, err = r.db.Exec(ctx, sqlinline.QUpdateStoryScenes, id, raw, string(status))
	return err
}

func (r *StoryRepositoryPG) MarkCancelled(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, sqlinline.QMarkStoryCancelled, id)
	return err
}

var _ domain.StoryRepository = (*StoryRepositoryPG)(nil)
