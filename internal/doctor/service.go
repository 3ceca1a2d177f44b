package doctor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/mediconnect/internal/logger"
)

// Cache is a JSON key/value store; a miss is (false, nil).
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	InvalidatePrefix(ctx context.Context, prefix string) error
}

const listKeyPrefix = "doctors:list:"

type Service struct {
	repo  Repository
	cache Cache
	ttl   time.Duration
	log   *slog.Logger
}

// NewService wires the directory. cache may be nil, which disables caching.
func NewService(repo Repository, cache Cache, ttl time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
		log:   log,
	}
}

// List returns the doctors matching f in insertion order. Listings are cached
// for the configured TTL, so the consultation counters they carry may lag.
func (s *Service) List(ctx context.Context, f Filter) ([]Doctor, error) {
	const op = "doctor.List"

	f = Filter{
		Specialty: strings.TrimSpace(f.Specialty),
		Search:    strings.TrimSpace(f.Search),
	}
	key := cacheKey(f)

	if s.cache != nil && s.ttl > 0 {
		var cached []Doctor
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.Warn("doctor cache read failed", slog.String("op", op), logger.Err(err))
		} else if found {
			return cached, nil
		}
	}

	doctors, err := s.repo.ListDoctors(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}

	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.Set(ctx, key, doctors, s.ttl); err != nil {
			s.log.Warn("doctor cache write failed", slog.String("op", op), logger.Err(err))
		}
	}

	return doctors, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.repo.GetDoctorByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	return d, nil
}

// Invalidate drops every cached listing. Called after consultation counters
// change.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.InvalidatePrefix(ctx, listKeyPrefix); err != nil {
		return fmt.Errorf("invalidate doctor listings: %w", err)
	}
	return nil
}

func cacheKey(f Filter) string {
	return fmt.Sprintf("%s%s:%s", listKeyPrefix, f.Specialty, strings.ToLower(f.Search))
}
