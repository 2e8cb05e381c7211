package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"storyreel/internal/admission"
	"storyreel/internal/coordinator"
	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/middleware"
	"storyreel/internal/providers/script"
	"storyreel/internal/storage"
	"storyreel/internal/telemetry"
	"storyreel/internal/tier"
	"storyreel/internal/webhook"
)

// TaskEnqueuer is the queue surface the submission handlers need.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, tasks ...domain.SceneTask) error
}

// App carries the wired dependencies for all HTTP handlers.
type App struct {
	Jobs        domain.JobRepository
	Stories     domain.StoryRepository
	Users       domain.UserRepository
	Coordinator *coordinator.Coordinator
	Queue       TaskEnqueuer
	Admission   *admission.Controller
	Policies    tier.Policies
	Scripts     script.Generator
	Webhooks    *webhook.Handler
	Usage       *telemetry.Recorder
	Blobs       storage.Store

	PublicBaseURL string
	Validate      *validator.Validate
	Log           infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}

// userID resolves the acting user: the auth middleware wins; without auth
// configured, the caller-supplied id is trusted.
func (a *App) userID(r *http.Request, fromBody string) string {
	if id := middleware.UserIDFromContext(r.Context()); id != "" {
		return id
	}
	return fromBody
}
