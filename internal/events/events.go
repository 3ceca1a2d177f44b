// Package events publishes consultation lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	ConsultationBooked        = "CONSULTATION_BOOKED"
	ConsultationStatusChanged = "CONSULTATION_STATUS_CHANGED"
	ConsultationCancelled     = "CONSULTATION_CANCELLED"
)

type Event struct {
	Type           string         `json:"type"`
	ConsultationID uuid.UUID      `json:"consultation_id"`
	Payload        map[string]any `json:"payload,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// LogPublisher writes events to the logger. It is used when no broker is configured.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	p.log.Info("consultation event",
		slog.String("type", ev.Type),
		slog.String("consultation_id", ev.ConsultationID.String()),
		slog.String("payload", string(data)),
	)
	return nil
}
