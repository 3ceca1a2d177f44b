package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hackgods/mediconnect/internal/logger"
)

// RetryPolicy bounds the attempts made while acquiring a store connection at
// startup. It is not used per operation.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	Log      *slog.Logger
}

// Do runs fn until it succeeds, the attempts are used up or ctx is done.
func (p RetryPolicy) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	log := p.Log
	if log == nil {
		log = logger.Discard()
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}

		log.Warn("store connection failed",
			slog.String("store", name),
			slog.Int("attempt", i),
			slog.Int("max_attempts", attempts),
			logger.Err(err),
		)

		if i == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("connect %s: %w", name, ctx.Err())
		case <-time.After(p.Backoff):
		}
	}

	return fmt.Errorf("connect %s after %d attempts: %w", name, attempts, err)
}
