// Package finalize commits a completed story's actor state into the durable
// story document and closes out the job. The commit happens at most once:
// the coordinator's destructive read removes the state before the merge, so
// a concurrent or retried finalize finds nothing and settles as a no-op.
package finalize

import (
	"context"
	"fmt"

	"storyreel/internal/coordinator"
	"storyreel/internal/domain"
	"storyreel/internal/infra"
)

type Finalizer struct {
	coord   *coordinator.Coordinator
	stories domain.StoryRepository
	jobs    domain.JobRepository
	log     infra.Logger
}

func New(coord *coordinator.Coordinator, stories domain.StoryRepository, jobs domain.JobRepository, log infra.Logger) *Finalizer {
	return &Finalizer{coord: coord, stories: stories, jobs: jobs, log: log}
}

// TryFinalize attempts the one-time commit for a story. It returns true when
// this call performed the merge; false means the story was not ready, was
// cancelled, or another caller already committed it.
func (f *Finalizer) TryFinalize(ctx context.Context, jobID, storyID string) (bool, error) {
	res, err := f.coord.Finalize(ctx, storyID)
	if err != nil {
		return false, fmt.Errorf("finalize read: %w", err)
	}
	if !res.Success {
		return false, nil
	}

	story, err := f.stories.GetByID(ctx, storyID)
	if err != nil {
		return false, f.commitFailed(ctx, jobID, storyID, fmt.Errorf("load story: %w", err))
	}

	merged := mergeScenes(story.Scenes, res.Scenes)
	if err := f.stories.UpdateScenes(ctx, storyID, merged, domain.StoryStatusReady); err != nil {
		return false, f.commitFailed(ctx, jobID, storyID, fmt.Errorf("commit scenes: %w", err))
	}
	if err := f.jobs.MarkCompleted(ctx, jobID, res.ImagesCompleted, res.AudioCompleted); err != nil {
		// The story committed; losing the job update is recoverable noise.
		f.log.Error().Err(err).Str("jobId", jobID).Msg("job completion update failed")
	}

	f.log.Info().
		Str("jobId", jobID).
		Str("storyId", storyID).
		Int("scenes", len(merged)).
		Msg("story finalized")
	return true, nil
}

// commitFailed records the persistence failure on the job. The actor state is
// already gone at this point, so the job cannot be silently retried into a
// second commit; failing it loudly is the honest outcome.
func (f *Finalizer) commitFailed(ctx context.Context, jobID, storyID string, cause error) error {
	f.log.Error().Err(cause).Str("jobId", jobID).Str("storyId", storyID).Msg("finalize commit failed")
	if err := f.jobs.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		f.log.Error().Err(err).Str("jobId", jobID).Msg("marking job failed also failed")
	}
	return cause
}

// mergeScenes lays the actor's generated fields over the stored scene list.
// Stored text (prompts, narration) wins; generated artifacts and errors from
// the actor win. The actor list grows the stored list when needed.
func mergeScenes(stored, generated []domain.Scene) []domain.Scene {
	out := make([]domain.Scene, len(stored))
	copy(out, stored)
	for i, g := range generated {
		if i >= len(out) {
			out = append(out, g)
			continue
		}
		s := &out[i]
		if g.ImageURL != "" {
			s.ImageURL = g.ImageURL
		}
		if g.VideoURL != "" {
			s.VideoURL = g.VideoURL
		}
		if g.MediaError != "" {
			s.MediaError = g.MediaError
		}
		if g.AudioURL != "" {
			s.AudioURL = g.AudioURL
		}
		if g.AudioDuration > 0 {
			s.AudioDuration = g.AudioDuration
		}
		if len(g.Captions) > 0 {
			s.Captions = g.Captions
		}
		if g.AudioError != "" {
			s.AudioError = g.AudioError
		}
	}
	return out
}
