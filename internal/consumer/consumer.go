package consumer

import (
	"context"
	"sort"
	"time"

	"storyreel/internal/admission"
	"storyreel/internal/coordinator"
	"storyreel/internal/domain"
	"storyreel/internal/finalize"
	"storyreel/internal/infra"
	"storyreel/internal/queue"
)

// TaskQueue is the slice of the queue the consumer drives.
type TaskQueue interface {
	ClaimBatch(ctx context.Context, max int) ([]queue.Message, error)
	Ack(ctx context.Context, m queue.Message) error
	Requeue(ctx context.Context, m queue.Message) error
	Retry(ctx context.Context, m queue.Message, maxRetries int) error
	Recover(ctx context.Context) (int, error)
}

// Admitter decides whether a claimed task may run now.
type Admitter interface {
	AllowConsumption(ctx context.Context, t domain.SceneTask) admission.Decision
}

// UsageRecorder logs one generation for cost accounting.
type UsageRecorder interface {
	RecordGeneration(ctx context.Context, jobID, userID string, modality domain.Modality, units int)
}

type Config struct {
	MaxBatch   int
	PollEvery  time.Duration
	MaxRetries int
}

type Consumer struct {
	queue     TaskQueue
	admit     Admitter
	coord     *coordinator.Coordinator
	finalizer *finalize.Finalizer
	jobs      domain.JobRepository
	runners   map[domain.Modality]Runner
	usage     UsageRecorder
	cfg       Config
	log       infra.Logger
}

func New(
	q TaskQueue,
	admit Admitter,
	coord *coordinator.Coordinator,
	finalizer *finalize.Finalizer,
	jobs domain.JobRepository,
	runners map[domain.Modality]Runner,
	usage UsageRecorder,
	cfg Config,
	log infra.Logger,
) *Consumer {
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 10
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &Consumer{
		queue:     q,
		admit:     admit,
		coord:     coord,
		finalizer: finalizer,
		jobs:      jobs,
		runners:   runners,
		usage:     usage,
		cfg:       cfg,
		log:       log,
	}
}

// Start recovers tasks orphaned by a previous crash of this consumer, then
// polls until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if n, err := c.queue.Recover(ctx); err != nil {
		c.log.Error().Err(err).Msg("queue recovery failed")
	} else if n > 0 {
		c.log.Info().Int("tasks", n).Msg("recovered orphaned tasks")
	}

	ticker := time.NewTicker(c.cfg.PollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.ProcessBatch(ctx); err != nil {
				c.log.Error().Err(err).Msg("batch processing failed")
			}
		}
	}
}

// ProcessBatch claims one batch and works through it sequentially in
// descending priority order. The sort is stable, so equal-priority tasks keep
// their queue order; the ordering holds within this batch only.
func (c *Consumer) ProcessBatch(ctx context.Context) error {
	msgs, err := c.queue.ClaimBatch(ctx, c.cfg.MaxBatch)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Task.Priority > msgs[j].Task.Priority
	})

	for _, m := range msgs {
		c.handle(ctx, m)
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, m queue.Message) {
	t := m.Task
	log := c.log.With().
		Str("jobId", t.JobID).
		Str("storyId", t.StoryID).
		Int("sceneIndex", t.SceneIndex).
		Str("modality", string(t.Type)).
		Logger()

	progress, err := c.coord.GetProgress(ctx, t.StoryID)
	if err != nil {
		log.Error().Err(err).Msg("progress lookup failed")
		c.retry(ctx, m, log)
		return
	}
	if progress.Cancelled {
		log.Debug().Msg("dropping task for cancelled story")
		c.ack(ctx, m, log)
		return
	}

	if c.admit.AllowConsumption(ctx, t) == admission.Defer {
		log.Debug().Msg("deferring task, user at concurrency cap")
		if err := c.queue.Requeue(ctx, m); err != nil {
			log.Error().Err(err).Msg("requeue failed")
		}
		return
	}

	runner, ok := c.runners[t.Type]
	if !ok {
		log.Error().Msg("no runner for modality, parking task")
		c.retry(ctx, m, log)
		return
	}

	res, runErr := runner.Run(ctx, t)
	if runErr == nil && res.Pending {
		// The provider owns the scene now; its webhook completes it.
		log.Debug().Msg("generation submitted, awaiting webhook")
		c.ack(ctx, m, log)
		return
	}

	// Provider failures are recorded per scene and the counter still
	// advances, so one bad scene cannot stall the story.
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		log.Warn().Err(runErr).Msg("generation failed, recording scene error")
	}

	progress, err = c.applyResult(ctx, t, res, errMsg)
	if err != nil {
		log.Error().Err(err).Msg("result merge failed")
		if mfErr := c.jobs.MarkFailed(ctx, t.JobID, err.Error()); mfErr != nil {
			log.Error().Err(mfErr).Msg("marking job failed also failed")
		}
		c.retry(ctx, m, log)
		return
	}

	c.usage.RecordGeneration(ctx, t.JobID, t.UserID, t.Type, 1)
	c.reportProgress(ctx, t.JobID, progress, log)

	if progress.Complete {
		if _, err := c.finalizer.TryFinalize(ctx, t.JobID, t.StoryID); err != nil {
			log.Error().Err(err).Msg("finalize failed")
			c.retry(ctx, m, log)
			return
		}
	}
	c.ack(ctx, m, log)
}

func (c *Consumer) applyResult(ctx context.Context, t domain.SceneTask, res RunResult, errMsg string) (coordinator.Progress, error) {
	switch t.Type {
	case domain.ModalityImage:
		return c.coord.UpdateImage(ctx, t.StoryID, t.SceneIndex, res.MediaURL, errMsg)
	case domain.ModalityVideo:
		return c.coord.UpdateVideo(ctx, t.StoryID, t.SceneIndex, res.MediaURL, errMsg)
	case domain.ModalityAudio:
		u := coordinator.AudioUpdate{SceneIndex: t.SceneIndex, Err: errMsg}
		if res.Audio != nil {
			u = *res.Audio
			u.Err = errMsg
		}
		return c.coord.UpdateAudio(ctx, t.StoryID, u)
	}
	return coordinator.Progress{}, domain.ErrValidation
}

func (c *Consumer) reportProgress(ctx context.Context, jobID string, p coordinator.Progress, log infra.Logger) {
	if p.TotalScenes == 0 {
		return
	}
	pct := (p.ImagesCompleted + p.AudioCompleted) * 100 / (2 * p.TotalScenes)
	if err := c.jobs.UpdateProgress(ctx, jobID, pct, p.ImagesCompleted, p.AudioCompleted); err != nil {
		log.Warn().Err(err).Msg("job progress update failed")
	}
}

func (c *Consumer) ack(ctx context.Context, m queue.Message, log infra.Logger) {
	if err := c.queue.Ack(ctx, m); err != nil {
		log.Error().Err(err).Msg("ack failed")
	}
}

func (c *Consumer) retry(ctx context.Context, m queue.Message, log infra.Logger) {
	if err := c.queue.Retry(ctx, m, c.cfg.MaxRetries); err != nil {
		log.Error().Err(err).Msg("retry scheduling failed")
	}
}
