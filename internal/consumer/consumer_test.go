package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyreel/internal/admission"
	"storyreel/internal/coordinator"
	"storyreel/internal/domain"
	"storyreel/internal/finalize"
	"storyreel/internal/queue"
)

type fakeQueue struct {
	batch    []queue.Message
	acked    []string
	requeued []string
	retried  []string
}

func (f *fakeQueue) ClaimBatch(context.Context, int) ([]queue.Message, error) {
	b := f.batch
	f.batch = nil
	return b, nil
}

func (f *fakeQueue) Ack(_ context.Context, m queue.Message) error {
	f.acked = append(f.acked, m.ID)
	return nil
}

func (f *fakeQueue) Requeue(_ context.Context, m queue.Message) error {
	f.requeued = append(f.requeued, m.ID)
	return nil
}

func (f *fakeQueue) Retry(_ context.Context, m queue.Message, _ int) error {
	f.retried = append(f.retried, m.ID)
	return nil
}

func (f *fakeQueue) Recover(context.Context) (int, error) { return 0, nil }

type fakeAdmitter struct {
	deferred map[string]bool
}

func (f *fakeAdmitter) AllowConsumption(_ context.Context, t domain.SceneTask) admission.Decision {
	if f.deferred[t.UserID] {
		return admission.Defer
	}
	return admission.Admit
}

type fakeRunner struct {
	ran []domain.SceneTask
	res RunResult
	err error
}

func (f *fakeRunner) Run(_ context.Context, t domain.SceneTask) (RunResult, error) {
	f.ran = append(f.ran, t)
	return f.res, f.err
}

type fakeJobs struct {
	progress  []int
	completed bool
	failedMsg string
}

func (f *fakeJobs) Create(context.Context, *domain.GenerationJob) error { return nil }
func (f *fakeJobs) GetByID(context.Context, string) (*domain.GenerationJob, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeJobs) UpdateProgress(_ context.Context, _ string, pct, _, _ int) error {
	f.progress = append(f.progress, pct)
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

type fakeStories struct {
	updated bool
}

func (f *fakeStories) Create(context.Context, *domain.Story) error { return nil }
func (f *fakeStories) GetByID(_ context.Context, id string) (*domain.Story, error) {
	return &domain.Story{ID: id}, nil
}

func (f *fakeStories) UpdateScenes(context.Context, string, []domain.Scene, domain.StoryStatus) error {
	f.updated = true
	return nil
}

func (f *fakeStories) MarkCancelled(context.Context, string) error { return nil }

type fakeUsage struct {
	events int
}

func (f *fakeUsage) RecordGeneration(context.Context, string, string, domain.Modality, int) {
	f.events++
}

type harness struct {
	consumer *Consumer
	queue    *fakeQueue
	coord    *coordinator.Coordinator
	jobs     *fakeJobs
	stories  *fakeStories
	usage    *fakeUsage
	admitter *fakeAdmitter
	runners  map[domain.Modality]*fakeRunner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	coord := coordinator.New(coordinator.NewMemoryCheckpointStore(), zerolog.Nop())
	q := &fakeQueue{}
	jobs := &fakeJobs{}
	stories := &fakeStories{}
	usage := &fakeUsage{}
	admitter := &fakeAdmitter{deferred: map[string]bool{}}
	runners := map[domain.Modality]*fakeRunner{
		domain.ModalityImage: {res: RunResult{MediaURL: "blob://img"}},
		domain.ModalityVideo: {res: RunResult{Pending: true}},
		domain.ModalityAudio: {res: RunResult{Audio: &coordinator.AudioUpdate{URL: "blob://aud"}}},
	}
	runnerIfaces := map[domain.Modality]Runner{}
	for k, v := range runners {
		runnerIfaces[k] = v
	}
	fin := finalize.New(coord, stories, jobs, zerolog.Nop())
	c := New(q, admitter, coord, fin, jobs, runnerIfaces, usage, Config{MaxBatch: 10}, zerolog.Nop())
	return &harness{consumer: c, queue: q, coord: coord, jobs: jobs, stories: stories, usage: usage, admitter: admitter, runners: runners}
}

func (h *harness) initStory(t *testing.T, storyID string, scenes int) {
	t.Helper()
	sc := make([]domain.Scene, scenes)
	for i := range sc {
		sc[i] = domain.Scene{Index: i}
	}
	_, err := h.coord.Init(context.Background(), coordinator.InitParams{
		StoryID: storyID, UserID: "user-1", MediaType: domain.MediaTypeImage, Scenes: sc,
	})
	require.NoError(t, err)
}

func msg(id string, t domain.SceneTask) queue.Message {
	return queue.Message{Envelope: queue.Envelope{ID: id, Task: t}}
}

func TestBatchSortsByPriorityStable(t *testing.T) {
	h := newHarness(t)
	h.initStory(t, "s1", 10)

	h.queue.batch = []queue.Message{
		msg("m1", domain.SceneTask{JobID: "j1", UserID: "user-1", StoryID: "s1", SceneIndex: 0, Type: domain.ModalityImage, Priority: 1}),
		msg("m2", domain.SceneTask{JobID: "j1", UserID: "user-1", StoryID: "s1", SceneIndex: 1, Type: domain.ModalityImage, Priority: 4}),
		msg("m3", domain.SceneTask{JobID: "j1", UserID: "user-1", StoryID: "s1", SceneIndex: 2, Type: domain.ModalityImage, Priority: 2}),
		msg("m4", domain.SceneTask{JobID: "j1", UserID: "user-1", StoryID: "s1", SceneIndex: 3, Type: domain.ModalityImage, Priority: 2}),
	}
	require.NoError(t, h.consumer.ProcessBatch(context.Background()))

	ran := h.runners[domain.ModalityImage].ran
	require.Len(t, ran, 4)
	got := []int{ran[0].SceneIndex, ran[1].SceneIndex, ran[2].SceneIndex, ran[3].SceneIndex}
	// 4 first, then the two 2s in original order, then 1.
	assert.Equal(t, []int{1, 2, 3, 0}, got)
}

func TestCancelledStoryTasksAreDropped(t *testing.T) {
	h := newHarness(t)
	h.initStory(t, "s1", 2)
	require.NoError(t, h.coord.Cancel(context.Background(), "s1"))

	h.queue.batch = []queue.Message{
		msg("m1", domain.SceneTask{JobID: "j1", UserID: "user-1", StoryID: "s1", Type: domain.ModalityImage}),
	}
	require.NoError(t, h.consumer.ProcessBatch(context.Background()))

	assert.Empty(t, h.runners[domain.ModalityImage].ran, "cancelled work must not run")
	assert.Equal(t, []string{"m1"}, h.queue.acked)
	assert.Zero(t, h.usage.events)
}

func TestAdmissionDeferRequeuesWithoutAttempt(t *testing.T) {
	h := newHarness(t)
	h.initStory(t, "s1", 2)
	h.admitter.deferred["user-1"] = true

	h.queue.batch = []queue.Message{
		msg("m1", domain.SceneTask{JobID: "j1", UserID: "user-1", StoryID: "s1", Type: domain.ModalityImage}),
	}
	require.NoError(t, h.consumer.ProcessBatch(context.Background()))

	assert.Equal(t, []string{"m1"}, h.queue.requeued)
	assert.Empty(t, h.queue.retried, "deferral must not burn an attempt")
	assert.Empty(t, h.queue.acked)
	assert.Empty(t, h.runners[domain.ModalityImage].ran)

	p, err := h.coord.GetProgress(context.Background(), "s1")
	require.NoError(t, err)
	assert.Zero(t, p.ImagesCompleted, "deferral must not move counters")
}

func TestGenerationErrorAdvancesCounter(t *testing.T) {
	h := newHarness(t)
	h.initStory(t, "s1", 2)
	h.runners[domain.ModalityImage].err = errors.New("provider timeout")
	h.runners[domain.ModalityImage].res = RunResult{}

	h.queue.batch = []queue.Message{
		msg("m1", domain.SceneTask{JobID: "j1", UserID: "user-1", StoryID: "s1", SceneIndex: 0, Type: domain.ModalityImage}),
	}
	require.NoError(t, h.consumer.ProcessBatch(context.Background()))

	assert.Equal(t, []string{"m1"}, h.queue.acked)
	assert.Empty(t, h.jobs.failedMsg, "a scene failure is not a job failure")

	p, err := h.coord.GetProgress(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.ImagesCompleted, "failed generations still count")
	assert.Equal(t, 1, h.usage.events)
}

func TestPendingVideoAcksWithoutMerge(t *testing.T) {
	h := newHarness(t)
	h.initStory(t, "s1", 2)

	h.queue.batch = []queue.Message{
		msg("m1", domain.SceneTask{JobID: "j1", UserID: "user-1", StoryID: "s1", SceneIndex: 0, Type: domain.ModalityVideo}),
	}
	require.NoError(t, h.consumer.ProcessBatch(context.Background()))

	assert.Equal(t, []string{"m1"}, h.queue.acked)
	assert.Zero(t, h.usage.events, "usage is recorded on completion, not submission")

	p, err := h.coord.GetProgress(context.Background(), "s1")
	require.NoError(t, err)
	assert.Zero(t, p.ImagesCompleted, "pending work must not advance counters")
}

func TestLastResultTriggersFinalize(t *testing.T) {
	h := newHarness(t)
	h.initStory(t, "s1", 1)

	h.queue.batch = []queue.Message{
		msg("m1", domain.SceneTask{JobID: "j1", UserID: "user-1", StoryID: "s1", SceneIndex: 0, Type: domain.ModalityImage}),
		msg("m2", domain.SceneTask{JobID: "j1", UserID: "user-1", StoryID: "s1", SceneIndex: 0, Type: domain.ModalityAudio}),
	}
	require.NoError(t, h.consumer.ProcessBatch(context.Background()))

	assert.True(t, h.stories.updated, "completion must commit the story")
	assert.True(t, h.jobs.completed)
	assert.ElementsMatch(t, []string{"m1", "m2"}, h.queue.acked)
}

func TestProgressPercentReported(t *testing.T) {
	h := newHarness(t)
	h.initStory(t, "s1", 2)

	h.queue.batch = []queue.Message{
		msg("m1", domain.SceneTask{JobID: "j1", UserID: "user-1", StoryID: "s1", SceneIndex: 0, Type: domain.ModalityImage}),
	}
	require.NoError(t, h.consumer.ProcessBatch(context.Background()))

	require.Len(t, h.jobs.progress, 1)
	// 1 of 4 total units (2 scenes x 2 modalities).
	assert.Equal(t, 25, h.jobs.progress[0])
}
