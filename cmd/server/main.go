package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/journal"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/router"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/snapshot"
	"github.com/stemsi/exstem-proctor/internal/validator"
	"github.com/stemsi/exstem-proctor/internal/worker"
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
		Str("snapshot_backend", string(cfg.SnapshotBackend)).
		Msg("Starting ExStem Proctor")

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
	templateRepo := repository.NewTemplateRepository(pool)
	serialRepo := repository.NewSerialRepository(pool)
	enrollmentRepo := repository.NewEnrollmentRepository(pool)
	resultRepo := repository.NewResultRepository(pool)

	// ─── Session Store ─────────────────────────────────────────────────
	answerJournal := journal.NewRedisJournal(rdb, log)
	snapshots, recovery := snapshotLogs(cfg, rdb, log)

	store := session.NewStore(session.Deps{
		Eligibility: enrollmentRepo,
		Realizer:    templateRepo,
		Serials:     serialRepo,
		Journal:     answerJournal,
		Grader:      grading.NewEngine(grading.NewExprEvaluator(), resultRepo, log),
		Log:         log,
		PurgeWindow: cfg.PurgeWindow,
		GracePeriod: cfg.GracePeriod,
		CodeCost:    cfg.BcryptCost,
	}, recovery)

	// Sessions persisted by the previous shutdown are restored before any
	// request is accepted, then the snapshot is cleared so a crash cannot
	// resurrect them twice.
	if n, err := store.RestoreAll(ctx, snapshots); err != nil {
		log.Error().Err(err).Msg("Session restore failed")
	} else {
		log.Info().Int("restored", n).Msg("Sessions restored")
		if err := snapshots.WriteAll(ctx, nil); err != nil {
			log.Warn().Err(err).Msg("Session snapshot could not be cleared")
		}
	}

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	sessionService := service.NewExamSessionService(store, answerJournal, resultRepo, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session:      handler.NewSessionHandler(sessionService),
		AdminSession: handler.NewAdminSessionHandler(sessionService),
		WS:           handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		System:       handler.NewSystemHandler(sessionService, rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	autosaveWorker := worker.NewAutosaveWorker(pool, rdb, log)
	purgeWorker := worker.NewPurgeWorker(store, cfg.PurgeInterval, log)

	go autosaveWorker.Start(workerCtx)
	go purgeWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	limiter := middleware.NewRateLimiter(rdb, cfg.StudentRateLimit, time.Minute, log)
	r := router.SetupRouter(authService, limiter, handlers, cfg)

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

	// 2. Stop the purge sweep, then settle expired sessions and persist the rest.
	workerCancel()

	persistCtx, persistCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer persistCancel()

	if n := store.PurgeExpired(persistCtx); n > 0 {
		log.Info().Int("purged", n).Msg("Expired sessions purged before shutdown")
	}
	if n, err := store.PersistAll(persistCtx, snapshots); err != nil {
		log.Error().Err(err).Msg("Session persist failed")
	} else {
		log.Info().Int("persisted", n).Msg("Sessions persisted")
	}

	// 3. Give the autosave worker time to flush queued answers.
	time.Sleep(2 * time.Second)

	log.Info().Msg("Shutdown complete")
}

// snapshotLogs returns the session snapshot log and the purge recovery log
// for the configured backend.
func snapshotLogs(cfg *config.Config, rdb *redis.Client, log zerolog.Logger) (session.SnapshotLog, session.SnapshotLog) {
	switch cfg.SnapshotBackend {
	case config.SnapshotBackendFile:
		log.Info().
			Str("snapshot_path", cfg.SnapshotPath).
			Str("recovery_path", cfg.RecoveryPath).
			Msg("Using file session snapshots")
		return snapshot.NewFileLog(cfg.SnapshotPath), snapshot.NewFileLog(cfg.RecoveryPath)
	case config.SnapshotBackendRedis:
	default:
		log.Warn().Str("backend", string(cfg.SnapshotBackend)).Msg("Unknown snapshot backend, using redis")
	}
	return snapshot.NewRedisLog(rdb, config.CacheKey.SessionSnapshotKey()),
		snapshot.NewRedisLog(rdb, config.CacheKey.SessionRecoveryKey())
}

