package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/mediconnect/internal/api"
	"github.com/hackgods/mediconnect/internal/auth"
	"github.com/hackgods/mediconnect/internal/config"
	"github.com/hackgods/mediconnect/internal/consultation"
	"github.com/hackgods/mediconnect/internal/db"
	"github.com/hackgods/mediconnect/internal/doctor"
	"github.com/hackgods/mediconnect/internal/events"
	"github.com/hackgods/mediconnect/internal/logger"
	"github.com/hackgods/mediconnect/internal/metrics"
	"github.com/hackgods/mediconnect/internal/migrations"
	redisclient "github.com/hackgods/mediconnect/internal/redis"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("api-server stopped", logger.Err(err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("api-server starting up",
		slog.String("env", cfg.Env),
		slog.String("http_port", cfg.HTTPPort),
		slog.String("user_store", cfg.UserStore),
		slog.String("version", version),
	)
	if cfg.InsecureSecret() && cfg.Env != "dev" {
		log.Warn("JWT_SECRET is the built-in default; set a real secret")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	retry := db.RetryPolicy{Attempts: cfg.DBConnectRetries, Backoff: cfg.DBConnectBackoff, Log: log}

	pgPool, err := db.ConnectPostgresWithRetry(rootCtx, cfg.PostgresDSN, retry)
	if err != nil {
		return err
	}
	defer pgPool.Close()
	log.Info("connected to postgres")

	if err := migrations.Run(cfg.PostgresDSN); err != nil {
		return err
	}
	log.Info("migrations applied")

	checks := []api.Check{{Name: "postgres", Critical: true, Ping: pgPool.Ping}}

	users, mysqlDB, err := openUserStore(rootCtx, cfg, pgPool, retry, log)
	if err != nil {
		return err
	}
	if mysqlDB != nil {
		defer mysqlDB.Close()
		checks = append(checks, api.Check{Name: "mysql", Critical: true, Ping: mysqlDB.PingContext})
	}

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", logger.Err(err))
		}
	}()
	log.Info("connected to redis", slog.String("addr", cfg.RedisAddr))
	checks = append(checks, api.Check{Name: "redis", Ping: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}})

	publisher, closePublisher, err := openPublisher(rootCtx, cfg, retry, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	tokens := auth.NewTokenMaker(cfg.JWTSecret, cfg.TokenTTL)
	authSvc := auth.NewService(users, tokens, cfg.BcryptCost, log)
	doctorSvc := doctor.NewService(
		doctor.NewPgRepository(pgPool),
		redisclient.NewCache(rdb),
		cfg.DoctorCacheTTL,
		log,
	)
	consultationSvc := consultation.NewService(
		consultation.NewPgRepository(pgPool),
		doctorSvc,
		users,
		redisclient.NewIdempotencyGuard(rdb, cfg.IdempotencyTTL),
		publisher,
		log,
	)

	router := api.NewRouter(api.RouterConfig{
		Auth:          authSvc,
		Doctors:       doctorSvc,
		Consultations: consultationSvc,
		Metrics:       metrics.New(),
		Checks:        checks,
		Log:           log,
		Env:           cfg.Env,
		Version:       version,
		CORSOrigins:   cfg.CORSOrigins,
		RequireAuth:   cfg.RequireAuth,
		AuthRateLimit: cfg.AuthRateLimit,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return rootCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-rootCtx.Done():
	}

	log.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("api-server stopped cleanly")
	return nil
}

// openUserStore returns the configured user repository. The *sql.DB is
// non-nil only for the mysql store and must be closed by the caller.
func openUserStore(
	ctx context.Context,
	cfg config.Config,
	pgPool *pgxpool.Pool,
	retry db.RetryPolicy,
	log *slog.Logger,
) (auth.Repository, *sql.DB, error) {
	if cfg.UserStore != config.UserStoreMySQL {
		return auth.NewPgRepository(pgPool), nil, nil
	}

	mysqlDB, err := db.ConnectMySQLWithRetry(ctx, cfg.MySQLDSN, retry)
	if err != nil {
		return nil, nil, err
	}

	repo := auth.NewMySQLRepository(mysqlDB)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = mysqlDB.Close()
		return nil, nil, err
	}

	log.Info("connected to mysql user store")
	return repo, mysqlDB, nil
}

func openPublisher(ctx context.Context, cfg config.Config, retry db.RetryPolicy, log *slog.Logger) (events.Publisher, func(), error) {
	if cfg.AMQPURL == "" {
		log.Info("AMQP_URL not set, consultation events go to the log")
		return events.NewLogPublisher(log), func() {}, nil
	}

	conn, ch, err := events.Dial(ctx, cfg.AMQPURL, retry)
	if err != nil {
		return nil, nil, err
	}
	log.Info("connected to rabbitmq", slog.String("exchange", events.Exchange))

	closeFn := func() {
		if err := ch.Close(); err != nil {
			log.Warn("error closing amqp channel", logger.Err(err))
		}
		if err := conn.Close(); err != nil {
			log.Warn("error closing amqp connection", logger.Err(err))
		}
	}
	return events.NewAMQPPublisher(ch), closeFn, nil
}
