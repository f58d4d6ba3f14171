package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"aiprofile/internal/adapter/repo"
	"aiprofile/internal/compose"
	"aiprofile/internal/imagegen"
	"aiprofile/internal/infra"
	"aiprofile/internal/notify"
	"aiprofile/internal/pipeline"
	"aiprofile/internal/preprocess"
	"aiprofile/internal/queue"
	"aiprofile/internal/status"
	"aiprofile/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	}
	defer redisClient.Close()

	service, err := buildService(cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: wiring failed")
	}

	statusStore := status.NewStore(redisClient, 0)
	consumer := queue.NewConsumer(cfg.AMQPURL, cfg.QueueName, service, statusStore, logger)

	logger.Info().Str("queue", cfg.QueueName).Msg("worker started")
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: consumer stopped")
	}
	logger.Info().Msg("worker stopped")
}

func buildService(cfg *infra.Config, pool *pgxpool.Pool, logger infra.Logger) (*pipeline.Service, error) {
	blobs, err := newBlobStore(cfg)
	if err != nil {
		return nil, err
	}

	detector, err := preprocess.NewDetectorClient(preprocess.ModelClientOptions{BaseURL: cfg.DetectorBaseURL})
	if err != nil {
		return nil, err
	}
	segmenter, err := preprocess.NewSegmenterClient(preprocess.ModelClientOptions{BaseURL: cfg.SegmenterBaseURL})
	if err != nil {
		return nil, err
	}
	pre := preprocess.New(detector, segmenter, logger)
	if cfg.DebugDump {
		debugStore, err := storage.NewFileStore(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		pre = pre.WithDebugStore(debugStore)
	}

	gen, err := imagegen.NewClient(imagegen.Options{
		BaseURL:        cfg.WebUIBaseURL,
		Timeout:        cfg.WebUITimeout,
		PositivePrompt: cfg.PositivePrompt,
		NegativePrompt: cfg.NegativePrompt,
		Presets:        imagegen.NewDirPresets(cfg.PresetDir),
	})
	if err != nil {
		return nil, err
	}

	comp := compose.New(compose.NewDirFrameSource(cfg.FrameDir))
	runner := pipeline.NewRunner(blobs, pre, gen, comp, logger)

	notifier := notify.NewWebhook(cfg.NotifyURL, logger)
	return pipeline.NewService(
		runner,
		blobs,
		repo.NewResponseRepository(pool),
		repo.NewErrorRepository(pool),
		notifier,
		logger,
	), nil
}

func newBlobStore(cfg *infra.Config) (storage.BlobStore, error) {
	if cfg.SupabaseURL != "" {
		return storage.NewSupabaseStore(storage.SupabaseOptions{
			ProjectURL: cfg.SupabaseURL,
			ServiceKey: cfg.SupabaseServiceKey,
			Bucket:     cfg.SupabaseBucket,
		})
	}
	return storage.NewFileStore(cfg.StoragePath)
}
