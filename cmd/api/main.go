package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/panjf2000/ants/v2"

	"storyreel/internal/adapter/repo"
	"storyreel/internal/admission"
	"storyreel/internal/coordinator"
	"storyreel/internal/finalize"
	"storyreel/internal/http/handlers"
	"storyreel/internal/http/httpapi"
	"storyreel/internal/infra"
	"storyreel/internal/infra/credentials"
	"storyreel/internal/ledger"
	"storyreel/internal/providers/media"
	"storyreel/internal/providers/script"
	"storyreel/internal/queue"
	"storyreel/internal/storage"
	"storyreel/internal/telemetry"
	"storyreel/internal/tier"
	"storyreel/internal/webhook"
)

const webhookPoolSize = 32

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer rdb.Close()

	blobs, err := storage.NewFromConfig(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage configuration failed")
	}

	jobs := repo.NewJobRepository(runner)
	stories := repo.NewStoryRepository(runner)
	users := repo.NewUserRepository(runner)
	policies := tier.Load()

	coord := coordinator.New(coordinator.NewPgCheckpointStore(runner), logger)
	finalizer := finalize.New(coord, stories, jobs, logger)
	usage := telemetry.NewRecorder(runner, logger)

	creds := credentials.NewStore(runner)
	replicateToken, err := creds.TokenOr(ctx, credentials.ProviderReplicate, cfg.ReplicateToken)
	if err != nil {
		logger.Warn().Err(err).Msg("replicate token lookup failed, using env value")
		replicateToken = cfg.ReplicateToken
	}

	var artifacts webhook.ArtifactClient
	if replicateToken != "" {
		client, err := media.NewClient(media.Options{Token: replicateToken, BaseURL: cfg.ReplicateBaseURL})
		if err != nil {
			logger.Fatal().Err(err).Msg("replicate client configuration failed")
		}
		artifacts = client
	} else {
		logger.Warn().Msg("replicate token missing, webhook artifact fetch disabled")
		artifacts = unavailableArtifacts{}
	}

	hookPool, err := ants.NewPool(webhookPoolSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("webhook pool configuration failed")
	}
	defer hookPool.Release()
	hooks := webhook.NewHandler(
		ledger.New(runner), coord, finalizer, jobs, blobs, artifacts, usage, hookPool, logger,
	)

	var scripts script.Generator
	openAIKey, err := creds.TokenOr(ctx, credentials.ProviderOpenAI, cfg.OpenAIAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("openai key lookup failed, using env value")
		openAIKey = cfg.OpenAIAPIKey
	}
	if openAIKey != "" {
		gen, err := script.NewOpenAIGenerator(script.Options{
			APIKey:  openAIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("openai client configuration failed")
		}
		scripts = gen
	} else {
		logger.Warn().Msg("openai key missing, generate-and-create-story disabled")
	}

	app := &handlers.App{
		Jobs:          jobs,
		Stories:       stories,
		Users:         users,
		Coordinator:   coord,
		Queue:         queue.New(rdb, cfg.ConsumerName, logger),
		Admission:     admission.New(runner, policies, logger),
		Policies:      policies,
		Scripts:       scripts,
		Webhooks:      hooks,
		Usage:         usage,
		Blobs:         blobs,
		PublicBaseURL: cfg.PublicBaseURL,
		Validate:      validator.New(),
		Log:           logger,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Log:             logger,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("api listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
}

// unavailableArtifacts stands in when no provider token is configured, so the
// server still starts and rejects artifact work explicitly instead of panicking.
type unavailableArtifacts struct{}

var errNoProviderToken = errors.New("replicate token not configured")

func (unavailableArtifacts) FetchArtifact(context.Context, string) ([]byte, string, error) {
	return nil, "", errNoProviderToken
}

func (unavailableArtifacts) GetPrediction(context.Context, string) (*media.Prediction, error) {
	return nil, errNoProviderToken
}
