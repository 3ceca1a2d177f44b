package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/hackgods/mediconnect/internal/auth"
	"github.com/hackgods/mediconnect/internal/config"
	"github.com/hackgods/mediconnect/internal/db"
	"github.com/hackgods/mediconnect/internal/doctor"
	"github.com/hackgods/mediconnect/internal/logger"
	"github.com/hackgods/mediconnect/internal/migrations"
	redisclient "github.com/hackgods/mediconnect/internal/redis"
)

type seedConfig struct {
	FakeDoctors  int    `env:"SEED_FAKE_DOCTORS" env-default:"0"`
	FakeUsers    int    `env:"SEED_FAKE_USERS" env-default:"0"`
	UserPassword string `env:"SEED_USER_PASSWORD" env-default:"password123"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load error", logger.Err(err))
		os.Exit(1)
	}
	log := logger.New(cfg.Env, cfg.LogLevel)

	var seed seedConfig
	if err := cleanenv.ReadEnv(&seed); err != nil {
		log.Error("seed config error", logger.Err(err))
		os.Exit(1)
	}

	if err := run(cfg, seed, log); err != nil {
		log.Error("seed failed", logger.Err(err))
		os.Exit(1)
	}
	log.Info("seed complete")
}

func run(cfg config.Config, seed seedConfig, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	retry := db.RetryPolicy{Attempts: cfg.DBConnectRetries, Backoff: cfg.DBConnectBackoff, Log: log}

	pool, err := db.ConnectPostgresWithRetry(ctx, cfg.PostgresDSN, retry)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.Run(cfg.PostgresDSN); err != nil {
		return err
	}

	doctors := doctor.NewPgRepository(pool)

	removed, err := doctors.DeleteUnbooked(ctx)
	if err != nil {
		return err
	}
	log.Info("cleared doctors without consultations", slog.Int64("removed", removed))

	list := append(doctor.SampleDoctors(), fakeDoctors(seed.FakeDoctors)...)
	if err := doctors.InsertDoctors(ctx, list); err != nil {
		return err
	}
	log.Info("doctors seeded", slog.Int("count", len(list)))

	invalidateListings(ctx, cfg, doctors, log)

	if seed.FakeUsers == 0 {
		return nil
	}

	var users auth.Repository = auth.NewPgRepository(pool)
	if cfg.UserStore == config.UserStoreMySQL {
		mysqlDB, err := db.ConnectMySQLWithRetry(ctx, cfg.MySQLDSN, retry)
		if err != nil {
			return err
		}
		defer mysqlDB.Close()

		repo := auth.NewMySQLRepository(mysqlDB)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		users = repo
	}

	return seedUsers(ctx, users, seed, cfg.BcryptCost, log)
}

// invalidateListings drops cached doctor listings so the API serves the new
// rows immediately. A missing redis only delays that until the TTL passes.
func invalidateListings(ctx context.Context, cfg config.Config, repo doctor.Repository, log *slog.Logger) {
	rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Warn("redis unavailable, skipping cache invalidation", logger.Err(err))
		return
	}
	defer rdb.Close()

	svc := doctor.NewService(repo, redisclient.NewCache(rdb), cfg.DoctorCacheTTL, log)
	if err := svc.Invalidate(ctx); err != nil {
		log.Warn("doctor cache invalidation failed", logger.Err(err))
	}
}

func fakeDoctors(count int) []doctor.Doctor {
	languages := []string{"English", "Spanish", "Hindi", "Mandarin", "Arabic", "French"}
	days := []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}
	slots := []string{"09:00 AM", "10:00 AM", "11:00 AM", "02:00 PM", "03:00 PM", "04:00 PM"}

	out := make([]doctor.Doctor, 0, count)
	for i := 0; i < count; i++ {
		availability := make([]doctor.Availability, 0, 2)
		for _, day := range []string{
			days[gofakeit.Number(0, len(days)-1)],
			days[gofakeit.Number(0, len(days)-1)],
		} {
			availability = append(availability, doctor.Availability{
				Day:   day,
				Slots: []string{slots[gofakeit.Number(0, 2)], slots[gofakeit.Number(3, 5)]},
			})
		}

		image := "👨‍⚕️"
		if gofakeit.Bool() {
			image = "👩‍⚕️"
		}

		out = append(out, doctor.Doctor{
			ID:            uuid.New(),
			Name:          "Dr. " + gofakeit.FirstName() + " " + gofakeit.LastName(),
			Specialty:     doctor.Specialties[gofakeit.Number(0, len(doctor.Specialties)-1)],
			Rating:        float64(gofakeit.Number(35, 50)) / 10,
			Experience:    fmt.Sprintf("%d years", gofakeit.Number(2, 30)),
			Consultations: gofakeit.Number(0, 3000),
			Image:         image,
			Fee:           float64(gofakeit.Number(25, 90)),
			Languages:     []string{"English", languages[gofakeit.Number(1, len(languages)-1)]},
			Availability:  availability,
			IsAvailable:   gofakeit.Number(0, 9) > 0,
		})
	}
	return out
}

func seedUsers(ctx context.Context, users auth.Repository, seed seedConfig, cost int, log *slog.Logger) error {
	hash, err := auth.HashPassword(seed.UserPassword, cost)
	if err != nil {
		return err
	}

	created := 0
	for i := 0; i < seed.FakeUsers; i++ {
		_, err := users.CreateUser(ctx, auth.User{
			ID:           uuid.New(),
			FullName:     gofakeit.Name(),
			PhoneNumber:  gofakeit.Phone(),
			Email:        fmt.Sprintf("seed%d.%s", i, gofakeit.Email()),
			PasswordHash: hash,
		})
		if errors.Is(err, auth.ErrEmailTaken) {
			continue
		}
		if err != nil {
			return fmt.Errorf("create user %d: %w", i, err)
		}
		created++
	}

	log.Info("users seeded", slog.Int("count", created), slog.String("password", seed.UserPassword))
	return nil
}
