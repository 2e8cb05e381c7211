package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"storyreel/internal/coordinator"
	"storyreel/internal/domain"
)

type sceneRequest struct {
	Prompt    string `json:"prompt" validate:"required"`
	Narration string `json:"narration"`
	VoiceID   string `json:"voiceId"`
}

type createStoryRequest struct {
	UserID    string         `json:"userId"`
	Title     string         `json:"title" validate:"required"`
	MediaType string         `json:"mediaType" validate:"required,oneof=image video"`
	Scenes    []sceneRequest `json:"scenes" validate:"required,min=1,dive"`
	Model     string         `json:"model"`
	VoiceID   string         `json:"voiceId"`
}

type generateStoryRequest struct {
	UserID     string `json:"userId"`
	Topic      string `json:"topic" validate:"required"`
	SceneCount int    `json:"sceneCount" validate:"omitempty,min=1"`
	MediaType  string `json:"mediaType" validate:"required,oneof=image video"`
	Model      string `json:"model"`
	VoiceID    string `json:"voiceId"`
}

type submitResponse struct {
	JobID   string `json:"jobId"`
	StoryID string `json:"storyId"`
	Status  string `json:"status"`
}

// CreateStory submits a generation job for an explicit, caller-authored scene
// list.
func (a *App) CreateStory(w http.ResponseWriter, r *http.Request) {
	var req createStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	userID := a.userID(r, req.UserID)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	scenes := make([]domain.Scene, len(req.Scenes))
	for i, s := range req.Scenes {
		voice := s.VoiceID
		if voice == "" {
			voice = req.VoiceID
		}
		scenes[i] = domain.Scene{Index: i, Prompt: s.Prompt, Narration: s.Narration, VoiceID: voice}
	}
	a.submit(w, r, userID, req.Title, domain.MediaType(req.MediaType), scenes, req.Model)
}

// GenerateAndCreateStory drafts the scene list from a topic via the script
// generator, then submits it through the same pipeline as CreateStory.
func (a *App) GenerateAndCreateStory(w http.ResponseWriter, r *http.Request) {
	var req generateStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	userID := a.userID(r, req.UserID)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if a.Scripts == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "script generation is not configured")
		return
	}
	sceneCount := req.SceneCount
	if sceneCount <= 0 {
		sceneCount = 3
	}
	script, err := a.Scripts.Generate(r.Context(), req.Topic, sceneCount)
	if err != nil {
		a.Log.Error().Err(err).Msg("script generation failed")
		a.error(w, http.StatusBadGateway, "provider_error", "script generation failed")
		return
	}
	scenes := make([]domain.Scene, len(script.Scenes))
	for i, s := range script.Scenes {
		scenes[i] = domain.Scene{Index: i, Prompt: s.ImagePrompt, Narration: s.Narration, VoiceID: req.VoiceID}
	}
	a.submit(w, r, userID, script.Title, domain.MediaType(req.MediaType), scenes, req.Model)
}

// submit is the shared admission-and-fanout tail of both submission paths. The
// scene list is already validated and indexed when it arrives here.
func (a *App) submit(w http.ResponseWriter, r *http.Request, userID, title string, mediaType domain.MediaType, scenes []domain.Scene, model string) {
	ctx := r.Context()

	tierName, err := a.Users.GetTier(ctx, userID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to resolve user tier")
		return
	}
	policy := a.Policies.Get(tierName)
	if len(scenes) > policy.MaxBatchSize {
		a.error(w, http.StatusBadRequest, "bad_request",
			fmt.Sprintf("scene count %d exceeds the %s tier limit of %d", len(scenes), tierName, policy.MaxBatchSize))
		return
	}

	if err := a.Admission.CheckSubmission(ctx, userID, tierName); err != nil {
		if errors.Is(err, domain.ErrAdmissionRejected) {
			a.error(w, http.StatusTooManyRequests, "too_many_jobs", err.Error())
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "admission check failed")
		return
	}

	story := &domain.Story{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		MediaType: mediaType,
		Status:    domain.StoryStatusGenerating,
		Scenes:    scenes,
	}
	if err := a.Stories.Create(ctx, story); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to create story")
		return
	}
	job := &domain.GenerationJob{
		ID:          uuid.NewString(),
		UserID:      userID,
		StoryID:     story.ID,
		Status:      domain.JobStatusProcessing,
		TotalScenes: len(scenes),
	}
	if err := a.Jobs.Create(ctx, job); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
		return
	}

	if _, err := a.Coordinator.Init(ctx, coordinator.InitParams{
		StoryID:     story.ID,
		UserID:      userID,
		MediaType:   mediaType,
		Scenes:      scenes,
		TotalScenes: len(scenes),
	}); err != nil {
		a.failSubmission(ctx, job.ID, "failed to initialize story progress")
		a.error(w, http.StatusInternalServerError, "internal", "failed to initialize story progress")
		return
	}

	if err := a.Queue.Enqueue(ctx, a.sceneTasks(job, story, policy.PriorityWeight, tierName, model)...); err != nil {
		a.failSubmission(ctx, job.ID, "failed to enqueue generation tasks")
		a.error(w, http.StatusInternalServerError, "internal", "failed to enqueue generation tasks")
		return
	}

	a.json(w, http.StatusAccepted, submitResponse{JobID: job.ID, StoryID: story.ID, Status: string(domain.JobStatusProcessing)})
}

// sceneTasks fans a story out into one visual and one audio task per scene.
func (a *App) sceneTasks(job *domain.GenerationJob, story *domain.Story, priority int, tierName, model string) []domain.SceneTask {
	visual := domain.ModalityImage
	if story.MediaType == domain.MediaTypeVideo {
		visual = domain.ModalityVideo
	}
	tasks := make([]domain.SceneTask, 0, 2*len(story.Scenes))
	for _, s := range story.Scenes {
		base := domain.SceneTask{
			JobID:        job.ID,
			UserID:       story.UserID,
			StoryID:      story.ID,
			SceneIndex:   s.Index,
			Tier:         tierName,
			Priority:     priority,
			CallbackBase: a.PublicBaseURL,
		}
		media := base
		media.Type = visual
		media.Prompt = s.Prompt
		media.Model = model
		tasks = append(tasks, media)

		audio := base
		audio.Type = domain.ModalityAudio
		audio.Narration = s.Narration
		audio.VoiceID = s.VoiceID
		tasks = append(tasks, audio)
	}
	return tasks
}

func (a *App) failSubmission(ctx context.Context, jobID, reason string) {
	if err := a.Jobs.MarkFailed(ctx, jobID, reason); err != nil {
		a.Log.Error().Err(err).Str("jobId", jobID).Msg("failed to mark job failed")
	}
}
