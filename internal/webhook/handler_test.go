package webhook

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyreel/internal/coordinator"
	"storyreel/internal/domain"
	"storyreel/internal/finalize"
	"storyreel/internal/providers/media"
)

type memLedger struct {
	seen map[string]bool
}

func (l *memLedger) Record(_ context.Context, predictionID, storyID string, sceneIndex int, webhookType string) error {
	key := fmt.Sprintf("%s|%s|%d|%s", predictionID, storyID, sceneIndex, webhookType)
	if l.seen[key] {
		return domain.ErrDuplicateNotification
	}
	l.seen[key] = true
	return nil
}

type fakeArtifacts struct {
	data     []byte
	fetchErr error
	pred     *media.Prediction
	predErr  error
	fetched  []string
}

func (f *fakeArtifacts) FetchArtifact(_ context.Context, url string) ([]byte, string, error) {
	f.fetched = append(f.fetched, url)
	if f.fetchErr != nil {
		return nil, "", f.fetchErr
	}
	return f.data, "video/mp4", nil
}

func (f *fakeArtifacts) GetPrediction(context.Context, string) (*media.Prediction, error) {
	return f.pred, f.predErr
}

type fakeBlobs struct {
	putErr error
	keys   []string
}

func (f *fakeBlobs) Put(_ context.Context, key, _ string, _ []byte) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	f.keys = append(f.keys, key)
	return "blob://" + key, nil
}

func (f *fakeBlobs) Get(context.Context, string) ([]byte, error) {
	return nil, domain.ErrNotFound
}

type fakeJobs struct {
	progress  int
	completed bool
	failedMsg string
}

func (f *fakeJobs) Create(context.Context, *domain.GenerationJob) error { return nil }
func (f *fakeJobs) GetByID(context.Context, string) (*domain.GenerationJob, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeJobs) UpdateProgress(_ context.Context, _ string, pct, _, _ int) error {
	f.progress = pct
	return nil
}

func (f *fakeJobs) MarkCompleted(context.Context, string, int, int) error {
	f.completed = true
	return nil
}
func (f *fakeJobs) MarkFailed(_ context.Context, _ string, msg string) error {
	f.failedMsg = msg
	return nil
}
func (f *fakeJobs) MarkCancelled(context.Context, string) (string, string, error) {
	return "", "", domain.ErrNotFound
}

type fakeStories struct{ ready bool }

func (f *fakeStories) Create(context.Context, *domain.Story) error { return nil }
func (f *fakeStories) GetByID(_ context.Context, id string) (*domain.Story, error) {
	return &domain.Story{ID: id}, nil
}

func (f *fakeStories) UpdateScenes(context.Context, string, []domain.Scene, domain.StoryStatus) error {
	f.ready = true
	return nil
}
func (f *fakeStories) MarkCancelled(context.Context, string) error { return nil }

type fakeUsage struct{ events int }

func (f *fakeUsage) RecordGeneration(context.Context, string, string, domain.Modality, int) {
	f.events++
}

type harness struct {
	handler   *Handler
	coord     *coordinator.Coordinator
	artifacts *fakeArtifacts
	blobs     *fakeBlobs
	jobs      *fakeJobs
	stories   *fakeStories
	usage     *fakeUsage
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	coord := coordinator.New(coordinator.NewMemoryCheckpointStore(), zerolog.Nop())
	artifacts := &fakeArtifacts{data: []byte("mp4-bytes")}
	blobs := &fakeBlobs{}
	jobs := &fakeJobs{}
	stories := &fakeStories{}
	usage := &fakeUsage{}
	fin := finalize.New(coord, stories, jobs, zerolog.Nop())
	h := NewHandler(&memLedger{seen: map[string]bool{}}, coord, fin, jobs, blobs, artifacts, usage, nil, zerolog.Nop())
	return &harness{handler: h, coord: coord, artifacts: artifacts, blobs: blobs, jobs: jobs, stories: stories, usage: usage}
}

func (h *harness) initStory(t *testing.T, scenes int) {
	t.Helper()
	sc := make([]domain.Scene, scenes)
	for i := range sc {
		sc[i] = domain.Scene{Index: i}
	}
	_, err := h.coord.Init(context.Background(), coordinator.InitParams{
		StoryID: "story-1", UserID: "user-1", MediaType: domain.MediaTypeVideo, Scenes: sc,
	})
	require.NoError(t, err)
}

func videoRouting(idx int) Routing {
	return Routing{JobID: "job-1", UserID: "user-1", StoryID: "story-1", SceneIndex: idx, Modality: domain.ModalityVideo}
}

func TestProcessStoresArtifactAndAdvances(t *testing.T) {
	h := newHarness(t)
	h.initStory(t, 2)

	err := h.handler.Process(context.Background(), videoRouting(0), Notification{
		PredictionID: "pred-1", Status: "succeeded", OutputURL: "https://cdn.example.com/v.mp4",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://cdn.example.com/v.mp4"}, h.artifacts.fetched)
	require.Len(t, h.blobs.keys, 1)
	assert.Equal(t, "stories/story-1/scene-0/video.mp4", h.blobs.keys[0])
	assert.Equal(t, 1, h.usage.events)
	assert.Equal(t, 25, h.jobs.progress)

	p, err := h.coord.GetProgress(context.Background(), "story-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.ImagesCompleted)
}

func TestProcessDuplicateIsNoop(t *testing.T) {
	h := newHarness(t)
	h.initStory(t, 2)
	n := Notification{PredictionID: "pred-1", Status: "succeeded", OutputURL: "https://cdn.example.com/v.mp4"}

	require.NoError(t, h.handler.Process(context.Background(), videoRouting(0), n))
	require.NoError(t, h.handler.Process(context.Background(), videoRouting(0), n))

	assert.Len(t, h.artifacts.fetched, 1, "duplicate must not refetch")
	assert.Equal(t, 1, h.usage.events)

	p, err := h.coord.GetProgress(context.Background(), "story-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.ImagesCompleted)
}

func TestProcessFailedPredictionRecordsError(t *testing.T) {
	h := newHarness(t)
	h.initStory(t, 2)

	err := h.handler.Process(context.Background(), videoRouting(0), Notification{
		PredictionID: "pred-1", Status: "failed", Error: "content policy",
	})
	require.NoError(t, err)

	assert.Empty(t, h.artifacts.fetched)
	p, err := h.coord.GetProgress(context.Background(), "story-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.ImagesCompleted, "failed scenes still count")
}

func TestProcessArtifactFailureStillAdvances(t *testing.T) {
	h := newHarness(t)
	h.initStory(t, 2)
	h.artifacts.fetchErr = errors.New("cdn 500")

	err := h.handler.Process(context.Background(), videoRouting(0), Notification{
		PredictionID: "pred-1", Status: "succeeded", OutputURL: "https://cdn.example.com/v.mp4",
	})
	require.NoError(t, err)

	p, err := h.coord.GetProgress(context.Background(), "story-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.ImagesCompleted)
}

func TestProcessCompletionFinalizes(t *testing.T) {
	h := newHarness(t)
	h.initStory(t, 1)

	// The story's audio already completed through the consumer.
	_, err := h.coord.UpdateAudio(context.Background(), "story-1", coordinator.AudioUpdate{SceneIndex: 0, URL: "blob://aud"})
	require.NoError(t, err)

	err = h.handler.Process(context.Background(), videoRouting(0), Notification{
		PredictionID: "pred-1", Status: "succeeded", OutputURL: "https://cdn.example.com/v.mp4",
	})
	require.NoError(t, err)

	assert.True(t, h.stories.ready, "last webhook must commit the story")
	assert.True(t, h.jobs.completed)
}

type faultyCheckpoints struct {
	coordinator.CheckpointStore
	failSaves bool
}

func (f *faultyCheckpoints) Save(ctx context.Context, st *coordinator.State) error {
	if f.failSaves {
		return errors.New("checkpoint store down")
	}
	return f.CheckpointStore.Save(ctx, st)
}

func TestSubmitMergeFailureMarksJobFailed(t *testing.T) {
	store := &faultyCheckpoints{CheckpointStore: coordinator.NewMemoryCheckpointStore()}
	coord := coordinator.New(store, zerolog.Nop())
	jobs := &fakeJobs{}
	stories := &fakeStories{}
	fin := finalize.New(coord, stories, jobs, zerolog.Nop())
	h := NewHandler(&memLedger{seen: map[string]bool{}}, coord, fin, jobs, &fakeBlobs{}, &fakeArtifacts{data: []byte("mp4")}, &fakeUsage{}, nil, zerolog.Nop())

	_, err := coord.Init(context.Background(), coordinator.InitParams{
		StoryID: "story-1", UserID: "user-1", MediaType: domain.MediaTypeVideo,
		Scenes: []domain.Scene{{Index: 0}},
	})
	require.NoError(t, err)
	store.failSaves = true

	// The caller was already acked when processing runs, so a merge failure
	// must land on the job record instead of vanishing into the logs.
	h.Submit(videoRouting(0), Notification{
		PredictionID: "pred-1", Status: "succeeded", OutputURL: "https://cdn.example.com/v.mp4",
	})

	require.NotEmpty(t, jobs.failedMsg)
	assert.Contains(t, jobs.failedMsg, "webhook processing failed")
}

func TestRecoverReplaysThroughLedger(t *testing.T) {
	h := newHarness(t)
	h.initStory(t, 2)
	task := domain.SceneTask{JobID: "job-1", UserID: "user-1", StoryID: "story-1", SceneIndex: 1, Type: domain.ModalityVideo}
	h.artifacts.pred = &media.Prediction{
		ID:      "pred-9",
		Status:  "succeeded",
		Output:  []string{"https://cdn.example.com/v9.mp4"},
		Webhook: CallbackURL("https://api.example.com", task),
	}

	require.NoError(t, h.handler.Recover(context.Background(), "pred-9"))

	p, err := h.coord.GetProgress(context.Background(), "story-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.ImagesCompleted)

	// Replaying a second time hits the ledger and changes nothing.
	require.NoError(t, h.handler.Recover(context.Background(), "pred-9"))
	p, _ = h.coord.GetProgress(context.Background(), "story-1")
	assert.Equal(t, 1, p.ImagesCompleted)
}

func TestRecoverRejectsRunningPrediction(t *testing.T) {
	h := newHarness(t)
	h.artifacts.pred = &media.Prediction{ID: "pred-9", Status: "processing"}

	err := h.handler.Recover(context.Background(), "pred-9")
	require.Error(t, err)
}
