package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"storyreel/internal/adapter/repo"
	"storyreel/internal/admission"
	"storyreel/internal/consumer"
	"storyreel/internal/coordinator"
	"storyreel/internal/finalize"
	"storyreel/internal/infra"
	"storyreel/internal/infra/credentials"
	"storyreel/internal/providers/media"
	"storyreel/internal/providers/speech"
	"storyreel/internal/queue"
	"storyreel/internal/storage"
	"storyreel/internal/telemetry"
	"storyreel/internal/tier"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

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

	creds := credentials.NewStore(runner)
	replicateToken, err := creds.TokenOr(ctx, credentials.ProviderReplicate, cfg.ReplicateToken)
	if err != nil {
		logger.Warn().Err(err).Msg("replicate token lookup failed, using env value")
		replicateToken = cfg.ReplicateToken
	}
	if replicateToken == "" {
		logger.Fatal().Msg("no replicate token configured")
	}
	mediaClient, err := media.NewClient(media.Options{Token: replicateToken, BaseURL: cfg.ReplicateBaseURL})
	if err != nil {
		logger.Fatal().Err(err).Msg("replicate client configuration failed")
	}

	elevenKey, err := creds.TokenOr(ctx, credentials.ProviderElevenLabs, cfg.ElevenLabsKey)
	if err != nil {
		logger.Warn().Err(err).Msg("elevenlabs key lookup failed, using env value")
		elevenKey = cfg.ElevenLabsKey
	}
	if elevenKey == "" {
		logger.Fatal().Msg("no elevenlabs key configured")
	}
	tts, err := speech.NewElevenLabsClient(speech.Options{
		APIKey:       elevenKey,
		BaseURL:      cfg.ElevenLabsURL,
		DefaultVoice: cfg.ElevenLabsVoice,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("elevenlabs client configuration failed")
	}

	jobs := repo.NewJobRepository(runner)
	stories := repo.NewStoryRepository(runner)
	coord := coordinator.New(coordinator.NewPgCheckpointStore(runner), logger)
	finalizer := finalize.New(coord, stories, jobs, logger)

	runners := consumer.Runners(mediaClient, tts, blobs, cfg.ReplicateImage, cfg.ReplicateVideo)
	tasks := queue.New(rdb, cfg.ConsumerName, logger)

	worker := consumer.New(
		tasks,
		admission.New(runner, tier.Load(), logger),
		coord,
		finalizer,
		jobs,
		runners,
		telemetry.NewRecorder(runner, logger),
		consumer.Config{
			MaxBatch:   cfg.QueueMaxBatch,
			PollEvery:  cfg.QueuePollEvery,
			MaxRetries: cfg.QueueMaxRetries,
		},
		logger,
	)

	logger.Info().Str("consumer", cfg.ConsumerName).Msg("worker started")
	if err := worker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker stopped unexpectedly")
	}
	logger.Info().Msg("worker stopped")
}
