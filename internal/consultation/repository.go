package consultation

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrConsultationNotFound = errors.New("consultation not found")

type Repository interface {
	// CreateBooking inserts c and bumps the doctor's counter atomically.
	CreateBooking(ctx context.Context, c Consultation) (*Consultation, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Detail, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Detail, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Detail, error)
	ListAll(ctx context.Context, f ListFilter) ([]Detail, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*Consultation, error)

	// ReconcileDoctorCounters raises every doctor counter that is lower than
	// the number of stored consultations and returns how many were fixed.
	ReconcileDoctorCounters(ctx context.Context) (int64, error)
}
