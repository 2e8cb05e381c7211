package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"storyreel/internal/domain"
	"storyreel/internal/telemetry"
)

type jobStatusResponse struct {
	JobID           string                    `json:"jobId"`
	StoryID         string                    `json:"storyId"`
	Status          string                    `json:"status"`
	Progress        int                       `json:"progress"`
	TotalScenes     int                       `json:"totalScenes"`
	ImagesGenerated int                       `json:"imagesGenerated"`
	AudioGenerated  int                       `json:"audioGenerated"`
	Error           string                    `json:"error,omitempty"`
	Usage           []telemetry.ModalityUsage `json:"usage,omitempty"`
}

// JobStatus reports a job's progress plus its per-modality usage rollup.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.userID(r, r.URL.Query().Get("userId"))
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "jobId required")
		return
	}
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	if job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}

	resp := jobStatusResponse{
		JobID:           job.ID,
		StoryID:         job.StoryID,
		Status:          string(job.Status),
		Progress:        job.Progress,
		TotalScenes:     job.TotalScenes,
		ImagesGenerated: job.ImagesGenerated,
		AudioGenerated:  job.AudioGenerated,
		Error:           job.ErrorMessage,
	}
	if a.Usage != nil {
		usage, err := a.Usage.JobUsage(r.Context(), jobID)
		if err != nil {
			a.Log.Warn().Err(err).Str("jobId", jobID).Msg("usage rollup failed")
		} else {
			resp.Usage = usage
		}
	}
	a.json(w, http.StatusOK, resp)
}

type cancelRequest struct {
	UserID string `json:"userId"`
	JobID  string `json:"jobId" validate:"required"`
}

// CancelGeneration cooperatively cancels a processing job: the job row flips
// to cancelled first, then the actor and story follow. In-flight scene tasks
// observe the cancelled flag and drop their results.
func (a *App) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
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

	job, err := a.Jobs.GetByID(r.Context(), req.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	if job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if job.Status.Terminal() {
		a.error(w, http.StatusConflict, "conflict", "job is already "+string(job.Status))
		return
	}

	ownerID, storyID, err := a.Jobs.MarkCancelled(r.Context(), req.JobID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to cancel job")
		return
	}
	if err := a.Coordinator.Cancel(r.Context(), storyID); err != nil {
		a.Log.Error().Err(err).Str("storyId", storyID).Msg("coordinator cancel failed")
	}
	if err := a.Stories.MarkCancelled(r.Context(), storyID); err != nil {
		a.Log.Error().Err(err).Str("storyId", storyID).Msg("story cancel failed")
	}
	a.Log.Info().Str("jobId", req.JobID).Str("userId", ownerID).Msg("generation cancelled")
	a.json(w, http.StatusOK, map[string]string{"jobId": req.JobID, "status": string(domain.JobStatusCancelled)})
}
