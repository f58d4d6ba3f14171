package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"aiprofile/internal/adapter/repo"
	"aiprofile/internal/compose"
	"aiprofile/internal/http/handlers"
	"aiprofile/internal/http/httpapi"
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

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
	}
	defer pool.Close()

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: redis connection failed")
	}
	defer redisClient.Close()

	service, gen, err := buildService(cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: wiring failed")
	}

	publisher, err := queue.NewPublisher(cfg.AMQPURL, cfg.QueueName)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: queue connection failed")
	}
	defer publisher.Close()

	app := &handlers.App{
		Jobs:      service,
		Queue:     publisher,
		Status:    status.NewStore(redisClient, 0),
		Backend:   gen,
		Responses: repo.NewResponseRepository(pool),
		Logger:    logger,
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app))

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// buildService wires the synchronous processing path. The generation client
// is returned separately so the status endpoint can ping the backend.
func buildService(cfg *infra.Config, pool *pgxpool.Pool, logger infra.Logger) (*pipeline.Service, *imagegen.Client, error) {
	blobs, err := newBlobStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	detector, err := preprocess.NewDetectorClient(preprocess.ModelClientOptions{BaseURL: cfg.DetectorBaseURL})
	if err != nil {
		return nil, nil, err
	}
	segmenter, err := preprocess.NewSegmenterClient(preprocess.ModelClientOptions{BaseURL: cfg.SegmenterBaseURL})
	if err != nil {
		return nil, nil, err
	}
	pre := preprocess.New(detector, segmenter, logger)

	gen, err := imagegen.NewClient(imagegen.Options{
		BaseURL:        cfg.WebUIBaseURL,
		Timeout:        cfg.WebUITimeout,
		PositivePrompt: cfg.PositivePrompt,
		NegativePrompt: cfg.NegativePrompt,
		Presets:        imagegen.NewDirPresets(cfg.PresetDir),
	})
	if err != nil {
		return nil, nil, err
	}

	comp := compose.New(compose.NewDirFrameSource(cfg.FrameDir))
	runner := pipeline.NewRunner(blobs, pre, gen, comp, logger)

	notifier := notify.NewWebhook(cfg.NotifyURL, logger)
	service := pipeline.NewService(
		runner,
		blobs,
		repo.NewResponseRepository(pool),
		repo.NewErrorRepository(pool),
		notifier,
		logger,
	)
	return service, gen, nil
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
