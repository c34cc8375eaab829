package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/umadex/umadex-backend/internal/bypass"
	"github.com/umadex/umadex-backend/internal/config"
	"github.com/umadex/umadex-backend/internal/database"
	"github.com/umadex/umadex-backend/internal/evaluator"
	"github.com/umadex/umadex-backend/internal/handler"
	"github.com/umadex/umadex-backend/internal/llm"
	"github.com/umadex/umadex-backend/internal/logger"
	"github.com/umadex/umadex-backend/internal/metrics"
	"github.com/umadex/umadex-backend/internal/middleware"
	"github.com/umadex/umadex-backend/internal/repository"
	"github.com/umadex/umadex-backend/internal/router"
	"github.com/umadex/umadex-backend/internal/scoring"
	"github.com/umadex/umadex-backend/internal/service"
	"github.com/umadex/umadex-backend/internal/validator"
	"github.com/umadex/umadex-backend/internal/worker"
)

const limiterCleanupInterval = time.Minute

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("llm_provider", cfg.LLM.Provider).
		Msg("Starting UmaDex Backend")

	// ─── Initialize Validator and Metrics ──────────────────────────────
	validator.Setup()
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── AI Gateway ────────────────────────────────────────────────────
	provider, err := llm.New(ctx, cfg.LLM, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize LLM provider")
	}
	gateway := evaluator.NewGateway(provider, log)
	engine := scoring.NewEngine(gateway, log)

	// ─── Initialize Repositories ───────────────────────────────────────
	readingRepo := repository.NewReadingRepository(pool)
	testRepo := repository.NewTestRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	debateRepo := repository.NewDebateRepository(pool)
	bypassRepo := repository.NewBypassRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool)

	bypassValidator := bypass.NewValidator(
		bypassRepo,
		bypass.NewRedisLimiter(rdb, cfg.BypassMaxFailures, cfg.BypassWindow),
		log,
	)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	monitorService := service.NewMonitorService(monitorRepo, testRepo, rdb, log)
	scheduleService := service.NewScheduleService(pool, testRepo, attemptRepo, bypassRepo, bypassValidator, log)
	bypassService := service.NewBypassService(bypassRepo, bypassValidator, cfg.BcryptCost, cfg.OverrideCodeTTL, cfg.OverrideCodeMaxUses, log)
	readingService := service.NewReadingService(pool, readingRepo, bypassRepo, bypassValidator, gateway, log)
	testService := service.NewTestService(pool, testRepo, attemptRepo, bypassRepo, scheduleService, monitorService,
		bypassValidator, rdb, cfg.SecurityViolationLimit, log)
	gradingService := service.NewGradingService(pool, testRepo, attemptRepo, engine, monitorService, log)
	debateService := service.NewDebateService(pool, debateRepo, gateway, log)
	generationService := service.NewQuestionGenerationService(pool, testRepo, gateway, rdb, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Reading:     handler.NewReadingHandler(readingService),
		Test:        handler.NewTestHandler(testService, gradingService, scheduleService),
		TeacherTest: handler.NewTeacherTestHandler(scheduleService, gradingService, generationService),
		Debate:      handler.NewDebateHandler(debateService),
		Bypass:      handler.NewBypassHandler(bypassService),
		WS:          handler.NewWSHandler(testService, log, cfg.AllowedOrigins),
		Monitor:     handler.NewMonitorHandler(monitorService, log),
		Pipeline:    handler.NewPipelineHandler(monitorService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	for range cfg.GradingWorkers {
		w := worker.NewGradingWorker(gradingService, rdb, log)
		workers.Go(func() { w.Start(workerCtx) })
	}
	for range cfg.GenerationWorkers {
		w := worker.NewGenerationWorker(generationService, rdb, log)
		workers.Go(func() { w.Start(workerCtx) })
	}

	bypassLimiter := middleware.NewRateLimiter(cfg.BypassRequestsPerSecond, cfg.BypassRequestBurst)
	workers.Go(func() {
		ticker := time.NewTicker(limiterCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				bypassLimiter.Cleanup()
			}
		}
	})

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, bypassLimiter, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers. In-flight jobs finish on their own timeout.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
