package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"storyreel/internal/http/handlers"
	"storyreel/internal/infra"
	"storyreel/internal/middleware"
)

// Options selects the cross-cutting behavior wired around the route table.
type Options struct {
	// JWTSecret enables bearer auth on user-facing routes when non-empty.
	JWTSecret string
	// AllowedOrigins feeds the CORS layer; empty allows no cross-origin caller.
	AllowedOrigins []string
	// RateLimitPerMin caps requests per client IP per minute; zero disables.
	RateLimitPerMin int
	Log             infra.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Log),
		middleware.CORS(opts.AllowedOrigins),
	)
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)

	// Provider callbacks authenticate by routing metadata and the idempotency
	// ledger, not by user token.
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/replicate", app.ReplicateWebhook)
		r.Post("/replicate/recover", app.RecoverWebhooks)
	})

	r.Group(func(r chi.Router) {
		if opts.JWTSecret != "" {
			r.Use(middleware.AuthJWT(opts.JWTSecret))
		}
		r.Post("/create-story", app.CreateStory)
		r.Post("/generate-and-create-story", app.GenerateAndCreateStory)
		r.Post("/cancel-generation", app.CancelGeneration)
		r.Get("/status", app.JobStatus)
		r.Get("/stories/{id}/archive", app.StoryArchive)
	})

	r.Get("/metrics/usage-24h", app.Usage24h)

	return r
}
