// Package consumer drains scene task batches from the queue, applies tier
// priority and admission control, dispatches generation, and feeds results
// into the story coordinator.
package consumer

import (
	"context"

	"storyreel/internal/coordinator"
	"storyreel/internal/domain"
	"storyreel/internal/providers/speech"
	"storyreel/internal/storage"
	"storyreel/internal/webhook"
)

// RunResult is the outcome of one generation attempt. Pending means the
// provider accepted the work and will complete it through a webhook; nothing
// is merged into the coordinator yet.
type RunResult struct {
	Pending  bool
	MediaURL string
	Audio    *coordinator.AudioUpdate
}

// Runner executes one modality's generation for a scene task.
type Runner interface {
	Run(ctx context.Context, t domain.SceneTask) (RunResult, error)
}

// MediaClient is the slice of the predictions client the runners need.
type MediaClient interface {
	GenerateImage(ctx context.Context, model, prompt string) ([]byte, string, error)
	SubmitVideo(ctx context.Context, model, prompt, webhookURL string) (string, error)
}

// ImageRunner generates a scene image synchronously and persists it.
type ImageRunner struct {
	client MediaClient
	blobs  storage.Store
	model  string
}

func NewImageRunner(client MediaClient, blobs storage.Store, model string) *ImageRunner {
	return &ImageRunner{client: client, blobs: blobs, model: model}
}

func (r *ImageRunner) Run(ctx context.Context, t domain.SceneTask) (RunResult, error) {
	model := t.Model
	if model == "" {
		model = r.model
	}
	data, contentType, err := r.client.GenerateImage(ctx, model, t.Prompt)
	if err != nil {
		return RunResult{}, err
	}
	key := storage.SceneKey(t.StoryID, t.SceneIndex, "image", extForContentType(contentType, "png"))
	url, err := r.blobs.Put(ctx, key, contentType, data)
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{MediaURL: url}, nil
}

// VideoRunner submits an asynchronous video prediction. The provider calls
// the completion webhook; until then the scene stays pending.
type VideoRunner struct {
	client MediaClient
	model  string
}

func NewVideoRunner(client MediaClient, model string) *VideoRunner {
	return &VideoRunner{client: client, model: model}
}

func (r *VideoRunner) Run(ctx context.Context, t domain.SceneTask) (RunResult, error) {
	model := t.Model
	if model == "" {
		model = r.model
	}
	if _, err := r.client.SubmitVideo(ctx, model, t.Prompt, webhook.CallbackURL(t.CallbackBase, t)); err != nil {
		return RunResult{}, err
	}
	return RunResult{Pending: true}, nil
}

// AudioRunner synthesizes narration and persists the clip. Scenes without
// narration complete immediately with an empty result so they still count.
type AudioRunner struct {
	tts   speech.Synthesizer
	blobs storage.Store
}

func NewAudioRunner(tts speech.Synthesizer, blobs storage.Store) *AudioRunner {
	return &AudioRunner{tts: tts, blobs: blobs}
}

func (r *AudioRunner) Run(ctx context.Context, t domain.SceneTask) (RunResult, error) {
	if t.Narration == "" {
		return RunResult{Audio: &coordinator.AudioUpdate{SceneIndex: t.SceneIndex}}, nil
	}
	res, err := r.tts.Synthesize(ctx, t.VoiceID, t.Narration)
	if err != nil {
		return RunResult{}, err
	}
	key := storage.SceneKey(t.StoryID, t.SceneIndex, "audio", "mp3")
	url, err := r.blobs.Put(ctx, key, "audio/mpeg", res.Audio)
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{Audio: &coordinator.AudioUpdate{
		SceneIndex: t.SceneIndex,
		URL:        url,
		Duration:   res.Duration,
		Captions:   res.Captions,
	}}, nil
}

// Runners builds the full modality dispatch table for a worker.
func Runners(client MediaClient, tts speech.Synthesizer, blobs storage.Store, imageModel, videoModel string) map[domain.Modality]Runner {
	return map[domain.Modality]Runner{
		domain.ModalityImage: NewImageRunner(client, blobs, imageModel),
		domain.ModalityVideo: NewVideoRunner(client, videoModel),
		domain.ModalityAudio: NewAudioRunner(tts, blobs),
	}
}

func extForContentType(contentType, fallback string) string {
	switch contentType {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "video/mp4":
		return "mp4"
	case "audio/mpeg":
		return "mp3"
	}
	return fallback
}

var (
	_ Runner = (*ImageRunner)(nil)
	_ Runner = (*VideoRunner)(nil)
	_ Runner = (*AudioRunner)(nil)
)
