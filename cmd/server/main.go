package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dcict/exam-backend/internal/config"
	"github.com/dcict/exam-backend/internal/database"
	"github.com/dcict/exam-backend/internal/exam"
	"github.com/dcict/exam-backend/internal/handler"
	"github.com/dcict/exam-backend/internal/logger"
	"github.com/dcict/exam-backend/internal/repository"
	"github.com/dcict/exam-backend/internal/router"
	"github.com/dcict/exam-backend/internal/service"
	"github.com/dcict/exam-backend/internal/validator"
	"github.com/dcict/exam-backend/internal/worker"
	"github.com/rs/zerolog"
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
		Msg("Starting Exam Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

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

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	settingRepo := repository.NewSettingRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)
	violationRepo := repository.NewViolationEventRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool, rdb)
	draftRepo := repository.NewDraftRepository(rdb)
	pendingQueue := repository.NewPendingSubmissionQueue(rdb)
	violationQueue := repository.NewViolationQueue(rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb, userRepo, log)
	scheduleService := service.NewScheduleService(settingRepo, rdb, log)
	questionService := service.NewQuestionService(questionRepo, rdb, log)
	journal := service.NewSessionJournal(draftRepo, violationQueue, monitorRepo, log)

	// ─── Exam Session Controller ──────────────────────────────────────
	registry := exam.NewRegistry()
	gate := exam.NewGate(scheduleService, questionService, submissionRepo,
		exam.WithRedirects("/login", cfg.DashboardPath),
	)
	finalizer := exam.NewFinalizer(submissionRepo, pendingQueue, log,
		exam.WithRetry(cfg.AutoSubmitRetries, cfg.AutoSubmitBackoff),
	)
	examService := service.NewExamService(cfg, gate, registry, finalizer,
		scheduleService, submissionRepo, draftRepo, journal, log)
	isLive := func(studentID int) bool {
		_, ok := examService.Session(studentID)
		return ok
	}
	submissionService := service.NewSubmissionService(submissionRepo, userRepo, questionService,
		draftRepo, journal, isLive, log)
	monitorService := service.NewMonitorService(monitorRepo, registry, scheduleService, log)

	// ─── Load Schedule & Prewarm Caches ───────────────────────────────
	// Both are read on every entry, so load them BEFORE accepting traffic.
	if err := scheduleService.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("Schedule load failed, exam is closed until it is set")
	}
	questionService.Prewarm(ctx)
	scheduleService.OnChange(examService.ScheduleChanged)
	go scheduleService.Listen(ctx)

	// ─── Recover Orphaned Drafts ──────────────────────────────────────
	// Sessions of the previous process resume here so expiry still auto-submits them.
	recovery := service.NewDraftRecovery(examService, draftRepo, userRepo, questionService, submissionRepo, log)
	if n, err := recovery.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Draft recovery failed, unrecovered drafts stay in Redis")
	} else if n > 0 {
		log.Info().Int("sessions", n).Msg("Recovered exam sessions from drafts")
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(authService),
		StudentPortal: handler.NewStudentPortalHandler(examService, log),
		StudentMgmt:   handler.NewStudentManagementHandler(submissionService, authService),
		WS:            handler.NewWSHandler(examService, cfg.DashboardPath, log, cfg.AllowedOrigins),
		Schedule:      handler.NewScheduleHandler(scheduleService),
		Question:      handler.NewQuestionHandler(questionService, log),
		Submission:    handler.NewSubmissionHandler(submissionService),
		Monitor:       handler.NewMonitorHandler(monitorService, log),
		System:        handler.NewSystemHandler(pool, rdb, registry.Len, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	violationWorker := worker.NewViolationWorker(violationRepo, rdb, log)
	retryWorker := worker.NewSubmissionRetryWorker(submissionRepo, journal, rdb, log)

	workers.Add(2)
	go func() {
		defer workers.Done()
		violationWorker.Start(workerCtx)
	}()
	go func() {
		defer workers.Done()
		retryWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg)

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

	// 2. Tear down live sessions. Drafts stay in Redis for the next process.
	examService.Shutdown()
	cancel()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
