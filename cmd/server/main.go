package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vidgen-backend/internal/config"
	"vidgen-backend/internal/database"
	"vidgen-backend/internal/handlers"
	"vidgen-backend/internal/middleware"
	"vidgen-backend/internal/queue"
	"vidgen-backend/internal/repository"
	"vidgen-backend/internal/router"
	"vidgen-backend/internal/services"
	"vidgen-backend/internal/storage"
	"vidgen-backend/internal/websocket"
	"vidgen-backend/internal/worker"
	"vidgen-backend/migrations"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	setupLogging(cfg)
	log.Info().Str("env", cfg.Env).Msg("starting vidgen backend")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("PostgreSQL connection failed")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	if err := database.RunMigrations(pool, migrations.FS); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL, cfg.AIRedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClients.Close()
	log.Info().Msg("Redis connected")

	// ──── Step 4: Object Storage ────
	objectStore, err := storage.NewObjectStore(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL)
	if err != nil {
		log.Fatal().Err(err).Msg("object storage initialization failed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err = objectStore.EnsureBucket(ctx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("bucket", cfg.MinIOBucket).Msg("object storage bucket unavailable")
	}
	log.Info().Str("bucket", objectStore.Bucket()).Msg("object storage ready")

	if err := os.MkdirAll(cfg.ScratchDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.ScratchDir).Msg("scratch directory unavailable")
	}

	// ──── Initialize Repositories ────
	taskRepo := repository.NewTaskRepo(redisClients.Tasks, cfg.TaskTTL)
	finalVideoRepo := repository.NewFinalVideoRepo(pool)
	opLogRepo := repository.NewOperationLogRepo(pool)
	tokenRepo := repository.NewOAuthTokenRepo(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	generator := services.NewVeoClient(cfg.KIEAPIURL, cfg.KIEAPIKey, cfg.KIEModel, cfg.KIEAspectRatio, cfg.CallbackURL)
	publisher := queue.NewPublisher(redisClients.Jobs, cfg.AIRedisQueue)
	notifier := services.NewRedisNotifier(redisClients.PubSub)

	coordinator := services.NewCoordinator(generator, taskRepo, objectStore, publisher, opLogRepo, notifier, cfg.ScratchDir)

	credentials := services.NewCredentialProvider(tokenRepo, cfg.GoogleClientID, cfg.GoogleClientSecret)
	youtube := services.NewYouTubePublisher(cfg.YouTubeCategoryID, cfg.YouTubePrivacy)
	thumbnailer := services.NewFFmpegThumbnailer(cfg.FFmpegPath)
	videoService := services.NewVideoService(objectStore, credentials, youtube, finalVideoRepo, opLogRepo, thumbnailer, cfg.ScratchDir)

	// ──── Step 5: Start Callback Worker Pool ────
	inbox := worker.NewInbox(redisClients.Tasks)
	workerPool := worker.NewPool(redisClients.Tasks, coordinator, cfg.CallbackWorkers)
	workerPool.Start()

	// ──── Step 6: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth)

	// ──── Step 7: Start HTTP Server ────
	videoHandler := handlers.NewVideoHandler(coordinator, videoService, inbox)
	generateLimiter := middleware.NewUserRateLimiter(cfg.GenerateRateMin, time.Minute)
	r := router.New(jwtAuth, videoHandler, wsHub.HandleWebSocket, router.Options{
		CallbackSecret:  cfg.CallbackSecret,
		FrontendURL:     cfg.FrontendURL,
		GenerateLimiter: generateLimiter,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP shutdown incomplete")
		}
		wsHub.Close()
		workerPool.Stop()
		generateLimiter.Stop()
	}()

	log.Info().Str("port", cfg.Port).Msg("vidgen backend ready, API under /api/video")

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}
	<-done
}

func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}
