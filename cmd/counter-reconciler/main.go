package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/mediconnect/internal/auth"
	"github.com/hackgods/mediconnect/internal/config"
	"github.com/hackgods/mediconnect/internal/consultation"
	"github.com/hackgods/mediconnect/internal/db"
	"github.com/hackgods/mediconnect/internal/doctor"
	"github.com/hackgods/mediconnect/internal/events"
	"github.com/hackgods/mediconnect/internal/logger"
	redisclient "github.com/hackgods/mediconnect/internal/redis"
)

// counterRepairer is the part of the consultation service the worker drives.
type counterRepairer interface {
	ReconcileCounters(ctx context.Context) (int64, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load error", logger.Err(err))
		os.Exit(1)
	}

	log := logger.New(cfg.Env, cfg.LogLevel)
	log.Info("counter-reconciler starting up",
		slog.String("env", cfg.Env),
		slog.Duration("interval", cfg.ReconcileEvery),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgPool, err := db.ConnectPostgresWithRetry(rootCtx, cfg.PostgresDSN, db.RetryPolicy{
		Attempts: cfg.DBConnectRetries,
		Backoff:  cfg.DBConnectBackoff,
		Log:      log,
	})
	if err != nil {
		log.Error("postgres connection error", logger.Err(err))
		os.Exit(1)
	}
	defer pgPool.Close()
	log.Info("connected to postgres")

	// the listing cache is dropped after a repair; without redis it simply expires
	var cache doctor.Cache
	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Warn("redis unavailable, doctor cache will not be invalidated", logger.Err(err))
	} else {
		defer rdb.Close()
		cache = redisclient.NewCache(rdb)
	}

	svc := consultation.NewService(
		consultation.NewPgRepository(pgPool),
		doctor.NewService(doctor.NewPgRepository(pgPool), cache, cfg.DoctorCacheTTL, log),
		auth.NewPgRepository(pgPool),
		nil,
		events.NewLogPublisher(log),
		log,
	)

	runOnce(rootCtx, svc, log)

	ticker := time.NewTicker(cfg.ReconcileEvery)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping counter-reconciler")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc counterRepairer, log *slog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.ReconcileCounters(runCtx)
	if err != nil {
		log.Error("reconcile run failed", logger.Err(err))
		return
	}
	log.Info("reconcile run complete",
		slog.Int64("doctors_fixed", n),
		slog.Duration("took", time.Since(start)),
	)
}
