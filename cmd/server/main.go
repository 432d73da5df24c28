package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stemsi/exstem-proctor/internal/auth"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/router"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/validator"
	"github.com/stemsi/exstem-proctor/internal/worker"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
)

const (
	examCacheTTL    = 10 * time.Minute
	studentRate     = 120 // requests per minute per student
	shutdownTimeout = 5 * time.Second
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("warning_count_mode", cfg.Engine.WarningCountMode).
		Msg("Starting ExStem Proctor")

	// ─── Initialize Validator & Metrics ────────────────────────────────
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

	clk := clock.RealClock{}

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool)
	answerRepo := repository.NewAnswerRepository(pool)
	resultRepo := repository.NewResultRepository(pool)
	cheatRepo := repository.NewCheatRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool)
	examCache := repository.NewExamCache(rdb, examRepo, questionRepo, examCacheTTL, log)

	// ─── Session Engine ────────────────────────────────────────────────
	broker := worker.NewRedisBroker(rdb)
	publisher := worker.NewPublisher(broker)
	store := repository.NewStore(examCache, sessionRepo, answerRepo)
	manager := session.NewManager(store, publisher, publisher, engineOptions(cfg.Engine, clk), log)

	// ─── Initialize Services ──────────────────────────────────────────
	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTExpiry)
	examService := service.NewExamService(examRepo, questionRepo, sessionRepo, examCache, log)
	sessionService := service.NewExamSessionService(manager, examRepo, sessionRepo, monitorRepo, clk, log)
	gradingService := service.NewGradingService(examRepo, questionRepo, sessionRepo, answerRepo, resultRepo, cheatRepo, clk, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	checks := map[string]handler.Check{
		"postgres": pool.Ping,
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	}
	handlers := &router.Handlers{
		StudentPortal: handler.NewStudentPortalHandler(sessionService, gradingService),
		WS:            handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		Exam:          handler.NewExamHandler(examService, sessionService),
		Grading:       handler.NewGradingHandler(gradingService),
		Monitor:       handler.NewMonitorHandler(sessionService, log),
		System:        handler.NewSystemHandler(checks, broker, manager.Active, log),
	}

	limiter := middleware.NewRateLimiter(clk, studentRate, time.Minute)

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workers, workerCtx := errgroup.WithContext(workerCtx)

	cheatWorker := worker.NewCheatWorker(broker, cheatRepo, clk, log)
	scoringWorker := worker.NewScoringWorker(broker, gradingService, clk, log)
	expiryWorker := worker.NewExpiryWorker(manager, clk, cfg.Engine.ExpirySweep, log)

	for _, run := range []func(context.Context){
		cheatWorker.Start,
		scoringWorker.Start,
		expiryWorker.Start,
		limiter.Run,
	} {
		workers.Go(func() error {
			run(workerCtx)
			return nil
		})
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(verifier, handlers, limiter, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests. Hijacked WebSocket connections are not
	// tracked by Shutdown; closing the runtimes below sends each view a closed event
	// and the handler then closes the connection.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Flush unsaved answers of every live session. Runtimes enqueue cheat events
	// and grade jobs, so the workers stop after them.
	manager.Shutdown()

	// 3. Stop background workers; the cheat worker flushes its buffer on the way out.
	workerCancel()
	if err := workers.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}
