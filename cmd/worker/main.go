// Package main is the entry point for the Growth Activity Hub worker.
//
// The worker owns the background concerns of the hub:
//   - Syncing completed progress from the record store into the local mirror
//   - Refreshing the cached activity catalog
//   - Running cycle prescriptions on demand (one-shot mode)
//
// The session engine and save pipeline are library packages embedded by
// the front-end; the worker keeps the data they depend on fresh.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/growthpath-hub/growth-activity-hub/config"
	"github.com/growthpath-hub/growth-activity-hub/internal/application/command"
	"github.com/growthpath-hub/growth-activity-hub/internal/application/engine"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/prescription"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
	"github.com/growthpath-hub/growth-activity-hub/internal/infrastructure/messaging"
	"github.com/growthpath-hub/growth-activity-hub/internal/infrastructure/persistence/postgres"
	"github.com/growthpath-hub/growth-activity-hub/internal/infrastructure/persistence/redis"
	"github.com/growthpath-hub/growth-activity-hub/internal/infrastructure/recordstore"
	"github.com/growthpath-hub/growth-activity-hub/internal/infrastructure/scheduler"
	"github.com/growthpath-hub/growth-activity-hub/internal/infrastructure/scheduler/jobs"
	"github.com/growthpath-hub/growth-activity-hub/pkg/circuitbreaker"
	"github.com/growthpath-hub/growth-activity-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	prescribeStudent := flag.String("prescribe", "", "run a one-shot prescription for this student ID, then exit")
	prescribeCycle := flag.Int("cycle", 0, "cycle number for -prescribe")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, *prescribeStudent, *prescribeCycle); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, prescribeStudent string, prescribeCycle int) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required for the worker")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting Growth Activity Hub worker",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

	// The application layer carries its own structured logger.
	appLog := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  appLogLevel(cfg.Observability.LogLevel),
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (local progress mirror)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	mirrorRepo := postgres.NewProgressMirrorRepository(dbConn)
	assignmentRepo := postgres.NewAssignmentRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. RECORD STORE CLIENT
	// ─────────────────────────────────────────────────────────────────────────
	storeClient := recordstore.NewClient(recordStoreClientConfig(cfg, log))
	profileSource := recordstore.NewProfileSource(storeClient, recordstore.DefaultProfileSourceConfig())
	assignmentWriter := recordstore.NewAssignmentWriter(storeClient, recordstore.DefaultProfileSourceConfig())

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS CACHE (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var profiles engine.ProfileSource = profileSource
	var catalogInvalidator jobs.CatalogInvalidator

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCache, err := redis.NewCache(redisCacheConfig(cfg))
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
		} else {
			defer redisCache.Close()
			cached := redis.NewCachedProfileSource(profileSource, redisCache)
			profiles = cached
			catalogInvalidator = cached
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	busConfig.AsyncMode = true
	eventBus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	if err := eventBus.SubscribeAll(messaging.NewAuditLogHandler(log)); err != nil {
		return fmt.Errorf("failed to subscribe audit handler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. PRESCRIBE COMMAND
	// ─────────────────────────────────────────────────────────────────────────
	// Assignments go to the record store, where the next cycle's history
	// query reads them back, and to the local table for reporting.
	prescriber := command.NewPrescribeHandler(
		profiles,
		assignmentFanout{assignmentWriter, assignmentRepo},
		prescription.NewEngine(),
		eventBus,
		appLog.With(logger.Component("prescribe")),
	)

	if prescribeStudent != "" {
		return runOneShotPrescription(ctx, prescriber, log, prescribeStudent, prescribeCycle)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler is disabled, worker has nothing to do")
		return nil
	}

	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:        log,
		Timezone:      cfg.App.Location,
		EnableMetrics: true,
	})

	syncJob := jobs.NewSyncProgressMirrorJob(storeClient, mirrorRepo, eventBus, log, jobs.SyncProgressMirrorConfig{
		Overlap:         cfg.Scheduler.MirrorSyncOverlap,
		InitialLookback: cfg.Scheduler.MirrorInitialLookback,
		Timeout:         cfg.Scheduler.JobTimeout,
	})
	if err := sched.Register(syncJob, scheduler.NewIntervalSchedule(cfg.Scheduler.MirrorSyncInterval)); err != nil {
		return fmt.Errorf("failed to register mirror sync job: %w", err)
	}

	if catalogInvalidator != nil {
		refreshJob := jobs.NewRefreshCatalogJob(catalogInvalidator, log)
		refreshSchedule, err := catalogRefreshSchedule(cfg.Scheduler)
		if err != nil {
			return fmt.Errorf("invalid catalog refresh time: %w", err)
		}
		if err := sched.Register(refreshJob, refreshSchedule); err != nil {
			return fmt.Errorf("failed to register catalog refresh job: %w", err)
		}
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	log.Info("scheduler started",
		"mirror_sync_interval", cfg.Scheduler.MirrorSyncInterval.String(),
		"catalog_refresh_interval", cfg.Scheduler.CatalogRefreshInterval.String(),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		if err := sched.Stop(); err != nil {
			log.Error("scheduler stop failed", "error", err)
		}
	}()

	select {
	case <-shutdownDone:
		log.Info("shutdown completed successfully")
	case <-time.After(cfg.App.ShutdownTimeout):
		log.Error("shutdown timed out", "timeout", cfg.App.ShutdownTimeout.String())
	}

	return nil
}

// assignmentFanout persists a prescription to every configured sink.
type assignmentFanout []command.AssignmentSink

func (f assignmentFanout) SaveAssignments(ctx context.Context, studentID shared.StudentID, cycle shared.Cycle, activityIDs []shared.ActivityID) error {
	for _, sink := range f {
		if err := sink.SaveAssignments(ctx, studentID, cycle, activityIDs); err != nil {
			return err
		}
	}
	return nil
}

// runOneShotPrescription computes and persists a single prescription,
// prints the assignment set, and exits.
func runOneShotPrescription(ctx context.Context, prescriber *command.PrescribeHandler, log *slog.Logger, studentID string, cycle int) error {
	log.Info("running one-shot prescription", "student_id", studentID, "cycle", cycle)

	result, err := prescriber.Handle(ctx, command.PrescribeCommand{
		StudentID: studentID,
		Cycle:     cycle,
	})
	if err != nil {
		return fmt.Errorf("prescription failed: %w", err)
	}

	for i, id := range result.ActivityIDs {
		fmt.Printf("%d. %s\n", i+1, id.String())
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRING HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// recordStoreClientConfig maps app configuration onto the client's
// rate limiter and circuit breaker.
func recordStoreClientConfig(cfg *config.Config, log *slog.Logger) recordstore.ClientConfig {
	clientCfg := recordstore.DefaultClientConfig(cfg.RecordStore.BaseURL, cfg.RecordStore.APIKey)
	clientCfg.ResponsesTable = cfg.RecordStore.ResponsesTable
	clientCfg.ProgressTable = cfg.RecordStore.ProgressTable
	clientCfg.Timeout = cfg.RecordStore.RequestTimeout
	clientCfg.Logger = log
	clientCfg.Debug = cfg.App.Debug

	// RateLimit is expressed in requests per minute.
	clientCfg.RateLimiterConfig.RequestsPerSecond = float64(cfg.RecordStore.RateLimit) / 60.0
	clientCfg.RateLimiterConfig.BurstSize = cfg.RecordStore.RateLimitBurst

	clientCfg.CircuitBreakerConfig = circuitbreaker.Config{
		Name:                "recordstore",
		FailureThreshold:    cfg.RecordStore.CircuitBreakerThreshold,
		SuccessThreshold:    2,
		Timeout:             cfg.RecordStore.CircuitBreakerTimeout,
		MaxHalfOpenRequests: cfg.RecordStore.CircuitBreakerHalfOpenMax,
	}

	return clientCfg
}

// catalogRefreshSchedule picks between a once-a-day refresh at a fixed
// local time and the default interval refresh.
func catalogRefreshSchedule(cfg config.SchedulerConfig) (scheduler.Schedule, error) {
	if cfg.CatalogRefreshAt == "" {
		return scheduler.NewIntervalSchedule(cfg.CatalogRefreshInterval), nil
	}
	at, err := time.Parse("15:04", cfg.CatalogRefreshAt)
	if err != nil {
		return nil, fmt.Errorf("parse %q as HH:MM: %w", cfg.CatalogRefreshAt, err)
	}
	return scheduler.NewDailySchedule(at.Hour(), at.Minute()), nil
}

func redisCacheConfig(cfg *config.Config) redis.Config {
	redisCfg := redis.DefaultConfig()
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout
	return redisCfg
}

// setupLogger configures process-wide structured logging.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Observability.LogLevel)}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

func slogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func appLogLevel(level string) logger.Level {
	switch level {
	case "debug":
		return logger.LevelDebug
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}
