// Package webhook applies asynchronous completion notifications from the
// media provider. Delivery is at-least-once and unordered; the idempotency
// ledger makes application exactly-once, and a recovery sweep replays
// predictions whose webhooks never arrived.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"

	"storyreel/internal/coordinator"
	"storyreel/internal/domain"
	"storyreel/internal/finalize"
	"storyreel/internal/infra"
	"storyreel/internal/providers/media"
	"storyreel/internal/storage"
)

const processTimeout = 2 * time.Minute

// Notification is the provider payload relevant to completion handling.
type Notification struct {
	PredictionID string
	Status       string
	OutputURL    string
	Error        string
}

// Ledger gates each notification on a first-writer-wins record.
type Ledger interface {
	Record(ctx context.Context, predictionID, storyID string, sceneIndex int, webhookType string) error
}

// ArtifactClient fetches generated assets and looks up predictions for the
// recovery path.
type ArtifactClient interface {
	FetchArtifact(ctx context.Context, url string) ([]byte, string, error)
	GetPrediction(ctx context.Context, id string) (*media.Prediction, error)
}

// UsageRecorder logs one completed generation.
type UsageRecorder interface {
	RecordGeneration(ctx context.Context, jobID, userID string, modality domain.Modality, units int)
}

type Handler struct {
	ledger    Ledger
	coord     *coordinator.Coordinator
	finalizer *finalize.Finalizer
	jobs      domain.JobRepository
	blobs     storage.Store
	artifacts ArtifactClient
	usage     UsageRecorder
	pool      *ants.Pool
	log       infra.Logger
}

func NewHandler(
	ledger Ledger,
	coord *coordinator.Coordinator,
	finalizer *finalize.Finalizer,
	jobs domain.JobRepository,
	blobs storage.Store,
	artifacts ArtifactClient,
	usage UsageRecorder,
	pool *ants.Pool,
	log infra.Logger,
) *Handler {
	return &Handler{
		ledger:    ledger,
		coord:     coord,
		finalizer: finalizer,
		jobs:      jobs,
		blobs:     blobs,
		artifacts: artifacts,
		usage:     usage,
		pool:      pool,
		log:       log,
	}
}

// Submit acks the notification to the caller immediately and processes it on
// the worker pool. If the pool is saturated the notification is processed
// inline rather than dropped.
func (h *Handler) Submit(r Routing, n Notification) {
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		if err := h.Process(ctx, r, n); err != nil {
			h.log.Error().Err(err).
				Str("predictionId", n.PredictionID).
				Str("storyId", r.StoryID).
				Msg("webhook processing failed")
			// The provider has already been acked, so the failure has to
			// land on the job record for the operator to see.
			if mErr := h.jobs.MarkFailed(ctx, r.JobID, fmt.Sprintf("webhook processing failed: %v", err)); mErr != nil {
				h.log.Error().Err(mErr).Str("jobId", r.JobID).Msg("marking job failed")
			}
		}
	}
	if h.pool == nil || h.pool.Submit(run) != nil {
		run()
	}
}

// Process applies one completion notification end to end. Duplicates are
// detected by the ledger and settle as successful no-ops.
func (h *Handler) Process(ctx context.Context, r Routing, n Notification) error {
	log := h.log.With().
		Str("predictionId", n.PredictionID).
		Str("jobId", r.JobID).
		Str("storyId", r.StoryID).
		Int("sceneIndex", r.SceneIndex).
		Logger()

	err := h.ledger.Record(ctx, n.PredictionID, r.StoryID, r.SceneIndex, string(r.Modality))
	if errors.Is(err, domain.ErrDuplicateNotification) {
		log.Debug().Msg("duplicate notification, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	url, errMsg := "", n.Error
	if n.Status == "succeeded" && n.OutputURL != "" {
		url, err = h.persistArtifact(ctx, r, n.OutputURL)
		if err != nil {
			// The generation itself succeeded; record the persistence
			// problem on the scene so the story can still complete.
			log.Error().Err(err).Msg("artifact persistence failed")
			errMsg = fmt.Sprintf("artifact persistence failed: %v", err)
		}
	} else if errMsg == "" && n.Status != "succeeded" {
		errMsg = fmt.Sprintf("prediction ended %s", n.Status)
	}

	progress, err := h.applyUpdate(ctx, r, url, errMsg)
	if err != nil {
		return fmt.Errorf("merge notification: %w", err)
	}

	h.usage.RecordGeneration(ctx, r.JobID, r.UserID, r.Modality, 1)
	h.reportProgress(ctx, r.JobID, progress, log)

	if progress.Complete {
		if _, err := h.finalizer.TryFinalize(ctx, r.JobID, r.StoryID); err != nil {
			return err
		}
	}
	return nil
}

// Recover replays a prediction whose webhook may have been lost. The routing
// metadata is reparsed from the webhook URL the provider has on record, then
// the prediction's terminal state flows through the normal processing path,
// where the ledger suppresses anything already applied.
func (h *Handler) Recover(ctx context.Context, predictionID string) error {
	pred, err := h.artifacts.GetPrediction(ctx, predictionID)
	if err != nil {
		return err
	}
	switch pred.Status {
	case "succeeded", "failed", "canceled":
	default:
		return fmt.Errorf("prediction %s still %s, nothing to recover", predictionID, pred.Status)
	}
	r, err := ParseRoutingFromURL(pred.Webhook)
	if err != nil {
		return fmt.Errorf("prediction %s: %w", predictionID, err)
	}
	n := Notification{PredictionID: pred.ID, Status: pred.Status, Error: pred.Error}
	if len(pred.Output) > 0 {
		n.OutputURL = pred.Output[0]
	}
	return h.Process(ctx, r, n)
}

func (h *Handler) persistArtifact(ctx context.Context, r Routing, outputURL string) (string, error) {
	data, contentType, err := h.artifacts.FetchArtifact(ctx, outputURL)
	if err != nil {
		return "", err
	}
	ext := "mp4"
	if r.Modality == domain.ModalityImage {
		ext = "png"
	}
	key := storage.SceneKey(r.StoryID, r.SceneIndex, string(r.Modality), ext)
	return h.blobs.Put(ctx, key, contentType, data)
}

func (h *Handler) applyUpdate(ctx context.Context, r Routing, url, errMsg string) (coordinator.Progress, error) {
	switch r.Modality {
	case domain.ModalityImage:
		return h.coord.UpdateImage(ctx, r.StoryID, r.SceneIndex, url, errMsg)
	case domain.ModalityVideo:
		return h.coord.UpdateVideo(ctx, r.StoryID, r.SceneIndex, url, errMsg)
	case domain.ModalityAudio:
		return h.coord.UpdateAudio(ctx, r.StoryID, coordinator.AudioUpdate{SceneIndex: r.SceneIndex, URL: url, Err: errMsg})
	}
	return coordinator.Progress{}, fmt.Errorf("%w: unroutable modality %q", domain.ErrValidation, r.Modality)
}

func (h *Handler) reportProgress(ctx context.Context, jobID string, p coordinator.Progress, log infra.Logger) {
	if p.TotalScenes == 0 {
		return
	}
	pct := (p.ImagesCompleted + p.AudioCompleted) * 100 / (2 * p.TotalScenes)
	if err := h.jobs.UpdateProgress(ctx, jobID, pct, p.ImagesCompleted, p.AudioCompleted); err != nil {
		log.Warn().Err(err).Msg("job progress update failed")
	}
}
