package finalize

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyreel/internal/coordinator"
	"storyreel/internal/domain"
)

type fakeStories struct {
	stories   map[string]*domain.Story
	updateErr error
	updated   []domain.Scene
	status    domain.StoryStatus
}

func (f *fakeStories) Create(context.Context, *domain.Story) error { return nil }

func (f *fakeStories) GetByID(_ context.Context, id string) (*domain.Story, error) {
	s, ok := f.stories[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeStories) UpdateScenes(_ context.Context, _ string, scenes []domain.Scene, status domain.StoryStatus) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = scenes
	f.status = status
	return nil
}

func (f *fakeStories) MarkCancelled(context.Context, string) error { return nil }

type fakeJobs struct {
	completed bool
	failed    bool
	failMsg   string
	images    int
	audio     int
}

func (f *fakeJobs) Create(context.Context, *domain.GenerationJob) error { return nil }
func (f *fakeJobs) GetByID(context.Context, string) (*domain.GenerationJob, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeJobs) UpdateProgress(context.Context, string, int, int, int) error { return nil }

func (f *fakeJobs) MarkCompleted(_ context.Context, _ string, images, audio int) error {
	f.completed = true
	f.images = images
	f.audio = audio
	return nil
}

func (f *fakeJobs) MarkFailed(_ context.Context, _ string, msg string) error {
	f.failed = true
	f.failMsg = msg
	return nil
}

func (f *fakeJobs) MarkCancelled(context.Context, string) (string, string, error) {
	return "", "", domain.ErrNotFound
}

func completedCoordinator(t *testing.T, storyID string) *coordinator.Coordinator {
	t.Helper()
	c := coordinator.New(coordinator.NewMemoryCheckpointStore(), zerolog.Nop())
	ctx := context.Background()
	_, err := c.Init(ctx, coordinator.InitParams{
		StoryID:   storyID,
		MediaType: domain.MediaTypeImage,
		Scenes: []domain.Scene{
			{Index: 0, Prompt: "a fox", Narration: "The fox ran."},
		},
	})
	require.NoError(t, err)
	_, err = c.UpdateImage(ctx, storyID, 0, "blob://img-0", "")
	require.NoError(t, err)
	_, err = c.UpdateAudio(ctx, storyID, coordinator.AudioUpdate{
		SceneIndex: 0, URL: "blob://aud-0", Duration: 2.0,
		Captions: []domain.Caption{{Word: "The", Start: 0, End: 0.2}},
	})
	require.NoError(t, err)
	return c
}

func TestTryFinalizeCommitsOnce(t *testing.T) {
	coord := completedCoordinator(t, "story-1")
	stories := &fakeStories{stories: map[string]*domain.Story{
		"story-1": {ID: "story-1", Scenes: []domain.Scene{{Index: 0, Prompt: "a fox", Narration: "The fox ran."}}},
	}}
	jobs := &fakeJobs{}
	f := New(coord, stories, jobs, zerolog.Nop())

	done, err := f.TryFinalize(context.Background(), "job-1", "story-1")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, domain.StoryStatusReady, stories.status)
	require.Len(t, stories.updated, 1)
	assert.Equal(t, "blob://img-0", stories.updated[0].ImageURL)
	assert.Equal(t, "blob://aud-0", stories.updated[0].AudioURL)
	assert.Equal(t, "a fox", stories.updated[0].Prompt, "stored text survives the merge")
	assert.True(t, jobs.completed)
	assert.Equal(t, 1, jobs.images)

	// The state is consumed: a second finalize is a no-op.
	done, err = f.TryFinalize(context.Background(), "job-1", "story-1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestTryFinalizeIncompleteStoryIsNoop(t *testing.T) {
	coord := coordinator.New(coordinator.NewMemoryCheckpointStore(), zerolog.Nop())
	_, err := coord.Init(context.Background(), coordinator.InitParams{
		StoryID:   "story-1",
		MediaType: domain.MediaTypeImage,
		Scenes:    []domain.Scene{{Index: 0}, {Index: 1}},
	})
	require.NoError(t, err)

	jobs := &fakeJobs{}
	f := New(coord, &fakeStories{}, jobs, zerolog.Nop())
	done, err := f.TryFinalize(context.Background(), "job-1", "story-1")
	require.NoError(t, err)
	assert.False(t, done)
	assert.False(t, jobs.completed)
	assert.False(t, jobs.failed)
}

func TestTryFinalizeCommitFailureFailsJob(t *testing.T) {
	coord := completedCoordinator(t, "story-1")
	stories := &fakeStories{
		stories:   map[string]*domain.Story{"story-1": {ID: "story-1"}},
		updateErr: errors.New("db down"),
	}
	jobs := &fakeJobs{}
	f := New(coord, stories, jobs, zerolog.Nop())

	_, err := f.TryFinalize(context.Background(), "job-1", "story-1")
	require.Error(t, err)
	assert.True(t, jobs.failed)
	assert.Contains(t, jobs.failMsg, "db down")
}

func TestMergeScenesGrowsAndOverlays(t *testing.T) {
	stored := []domain.Scene{{Index: 0, Prompt: "keep me"}}
	generated := []domain.Scene{
		{Index: 0, ImageURL: "blob://i0", AudioDuration: 1.5},
		{Index: 1, Prompt: "new scene", VideoURL: "blob://v1"},
	}

	out := mergeScenes(stored, generated)
	require.Len(t, out, 2)
	assert.Equal(t, "keep me", out[0].Prompt)
	assert.Equal(t, "blob://i0", out[0].ImageURL)
	assert.Equal(t, 1.5, out[0].AudioDuration)
	assert.Equal(t, "blob://v1", out[1].VideoURL)
}
