package consultation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hackgods/mediconnect/internal/auth"
	"github.com/hackgods/mediconnect/internal/doctor"
	"github.com/hackgods/mediconnect/internal/events"
	"github.com/hackgods/mediconnect/internal/logger"
)

var (
	ErrMissingFields     = errors.New("all required fields must be provided")
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidDate       = errors.New("invalid appointment date")
	ErrInvalidType       = errors.New("invalid consultation type")
	ErrSymptomsTooLong   = errors.New("symptoms must be at most 500 characters")
	ErrInvalidStatus     = errors.New("invalid status value")
	ErrBookingInProgress = errors.New("a booking with this idempotency key is in progress")
)

// DoctorDirectory resolves the doctor being booked and drops cached
// listings once a counter moved.
type DoctorDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error)
	Invalidate(ctx context.Context) error
}

// UserLookup resolves users. Users may live in a different store than
// consultations, so summaries are attached here rather than joined in SQL.
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*auth.User, error)
}

// IdempotencyGuard remembers which consultation a booking key produced.
type IdempotencyGuard interface {
	// Reserve claims key. When the key was already completed it returns the
	// stored value and reserved=false. An empty prior with reserved=false
	// means another request holds the key.
	Reserve(ctx context.Context, key string) (prior string, reserved bool, err error)
	Complete(ctx context.Context, key, value string) error
	Release(ctx context.Context, key string) error
}

type Service struct {
	repo      Repository
	doctors   DoctorDirectory
	users     UserLookup
	guard     IdempotencyGuard
	publisher events.Publisher
	validate  *validator.Validate
	log       *slog.Logger
	now       func() time.Time
}

// NewService wires the workflow. guard may be nil, in which case
// idempotency keys are ignored.
func NewService(
	repo Repository,
	doctors DoctorDirectory,
	users UserLookup,
	guard IdempotencyGuard,
	publisher events.Publisher,
	log *slog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		doctors:   doctors,
		users:     users,
		guard:     guard,
		publisher: publisher,
		validate:  validator.New(),
		log:       log,
		now:       time.Now,
	}
}

// Book validates req, resolves the doctor and then the user, and stores a
// pending consultation priced at the doctor's current fee.
func (s *Service) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	const op = "consultation.Book"

	req = trimRequest(req)
	if err := s.validate.Struct(req); err != nil {
		return nil, ErrMissingFields
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, ErrInvalidID
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return nil, ErrInvalidID
	}

	date, err := ParseDate(req.AppointmentDate)
	if err != nil {
		return nil, err
	}

	ctype := TypeVideo
	if req.ConsultationType != "" {
		ctype = Type(req.ConsultationType)
		if !ctype.Valid() {
			return nil, ErrInvalidType
		}
	}

	if utf8.RuneCountInString(req.Symptoms) > MaxSymptomsLength {
		return nil, ErrSymptomsTooLong
	}

	var guardKey string
	if s.guard != nil && req.IdempotencyKey != "" {
		guardKey = fmt.Sprintf("idem:book:%s:%s", userID, req.IdempotencyKey)

		prior, reserved, err := s.guard.Reserve(ctx, guardKey)
		if err != nil {
			return nil, fmt.Errorf("%s: reserve idempotency key: %w", op, err)
		}
		if !reserved {
			return s.replay(ctx, prior)
		}
	}

	created, err := s.create(ctx, userID, doctorID, date, ctype, req)
	if err != nil {
		if guardKey != "" {
			if relErr := s.guard.Release(context.WithoutCancel(ctx), guardKey); relErr != nil {
				s.log.Warn("release idempotency key failed", slog.String("op", op), logger.Err(relErr))
			}
		}
		return nil, err
	}

	if guardKey != "" {
		if err := s.guard.Complete(ctx, guardKey, created.ID.String()); err != nil {
			s.log.Warn("complete idempotency key failed", slog.String("op", op), logger.Err(err))
		}
	}

	s.invalidateDoctors(ctx, op)

	s.log.Info("consultation booked",
		slog.String("op", op),
		slog.String("consultation_id", created.ID.String()),
		slog.String("doctor_id", created.DoctorID.String()),
	)
	s.publish(ctx, events.ConsultationBooked, created, map[string]any{
		"userId":          created.UserID.String(),
		"doctorId":        created.DoctorID.String(),
		"appointmentDate": created.AppointmentDate.Format(DateLayout),
		"appointmentTime": created.AppointmentTime,
		"fee":             created.Fee,
	})

	return &BookResult{Consultation: *created}, nil
}

func (s *Service) create(
	ctx context.Context,
	userID, doctorID uuid.UUID,
	date time.Time,
	ctype Type,
	req BookRequest,
) (*Consultation, error) {
	doc, err := s.doctors.Get(ctx, doctorID)
	if err != nil {
		if errors.Is(err, doctor.ErrDoctorNotFound) {
			return nil, doctor.ErrDoctorNotFound
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	created, err := s.repo.CreateBooking(ctx, Consultation{
		ID:               uuid.New(),
		UserID:           userID,
		DoctorID:         doc.ID,
		PatientName:      req.PatientName,
		PatientEmail:     req.PatientEmail,
		PatientPhone:     req.PatientPhone,
		AppointmentDate:  date,
		AppointmentTime:  req.AppointmentTime,
		ConsultationType: ctype,
		Symptoms:         req.Symptoms,
		Status:           StatusPending,
		Fee:              doc.Fee,
		PaymentStatus:    PaymentPending,
	})
	if err != nil {
		if errors.Is(err, doctor.ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}

	return created, nil
}

func (s *Service) replay(ctx context.Context, prior string) (*BookResult, error) {
	if prior == "" {
		return nil, ErrBookingInProgress
	}

	id, err := uuid.Parse(prior)
	if err != nil {
		return nil, fmt.Errorf("stored idempotency value %q: %w", prior, err)
	}

	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load replayed consultation: %w", err)
	}

	return &BookResult{Consultation: d.Consultation, Replayed: true}, nil
}

// ListForUser returns a user's consultations with doctor summaries, newest
// appointment first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]Detail, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user consultations: %w", err)
	}
	return list, nil
}

// ListForDoctor returns a doctor's consultations with user summaries.
func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID) ([]Detail, error) {
	list, err := s.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list doctor consultations: %w", err)
	}

	if err := s.attachUsers(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Detail, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrConsultationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get consultation: %w", err)
	}

	one := []Detail{*d}
	if err := s.attachUsers(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

// UpdateStatus overwrites the status. Any transition between known values is
// accepted.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*Consultation, error) {
	const op = "consultation.UpdateStatus"

	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	updated, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, ErrConsultationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.log.Info("consultation status changed",
		slog.String("op", op),
		slog.String("consultation_id", id.String()),
		slog.String("status", string(status)),
	)
	s.publish(ctx, events.ConsultationStatusChanged, updated, map[string]any{
		"status": string(status),
	})

	return updated, nil
}

// Cancel marks the consultation cancelled. The record is kept.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	const op = "consultation.Cancel"

	cancelled, err := s.repo.UpdateStatus(ctx, id, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrConsultationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("cancel consultation: %w", err)
	}

	s.log.Info("consultation cancelled", slog.String("op", op), slog.String("consultation_id", id.String()))
	s.publish(ctx, events.ConsultationCancelled, cancelled, nil)

	return cancelled, nil
}

// ListAll is the admin listing. Date bounds are inclusive.
func (s *Service) ListAll(ctx context.Context, f ListFilter) ([]Detail, error) {
	list, err := s.repo.ListAll(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list consultations: %w", err)
	}

	if err := s.attachUsers(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// ReconcileCounters raises doctor counters that fell behind the stored
// consultations.
func (s *Service) ReconcileCounters(ctx context.Context) (int64, error) {
	n, err := s.repo.ReconcileDoctorCounters(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		const op = "consultation.ReconcileCounters"
		s.invalidateDoctors(ctx, op)
		s.log.Info("doctor counters reconciled", slog.String("op", op), slog.Int64("doctors", n))
	}
	return n, nil
}

func (s *Service) invalidateDoctors(ctx context.Context, op string) {
	if err := s.doctors.Invalidate(ctx); err != nil {
		s.log.Warn("doctor cache invalidation failed", slog.String("op", op), logger.Err(err))
	}
}

// attachUsers fills in the user summary of every item, looking each user up
// once. Users that no longer resolve are left without a summary.
func (s *Service) attachUsers(ctx context.Context, list []Detail) error {
	seen := make(map[uuid.UUID]*UserSummary)

	for i := range list {
		uid := list[i].UserID

		summary, ok := seen[uid]
		if !ok {
			u, err := s.users.GetUserByID(ctx, uid)
			switch {
			case err == nil:
				summary = &UserSummary{
					ID:          u.ID,
					FullName:    u.FullName,
					Email:       u.Email,
					PhoneNumber: u.PhoneNumber,
				}
			case errors.Is(err, auth.ErrUserNotFound):
				summary = nil
			default:
				return fmt.Errorf("load user %s: %w", uid, err)
			}
			seen[uid] = summary
		}

		list[i].User = summary
	}

	return nil
}

func (s *Service) publish(ctx context.Context, typ string, c *Consultation, payload map[string]any) {
	if s.publisher == nil {
		return
	}

	err := s.publisher.Publish(ctx, events.Event{
		Type:           typ,
		ConsultationID: c.ID,
		Payload:        payload,
		OccurredAt:     s.now().UTC(),
	})
	if err != nil {
		s.log.Warn("publish event failed",
			slog.String("type", typ),
			slog.String("consultation_id", c.ID.String()),
			logger.Err(err),
		)
	}
}

func trimRequest(req BookRequest) BookRequest {
	req.UserID = strings.TrimSpace(req.UserID)
	req.DoctorID = strings.TrimSpace(req.DoctorID)
	req.PatientName = strings.TrimSpace(req.PatientName)
	req.PatientEmail = strings.TrimSpace(req.PatientEmail)
	req.PatientPhone = strings.TrimSpace(req.PatientPhone)
	req.AppointmentDate = strings.TrimSpace(req.AppointmentDate)
	req.AppointmentTime = strings.TrimSpace(req.AppointmentTime)
	req.ConsultationType = strings.TrimSpace(req.ConsultationType)
	req.Symptoms = strings.TrimSpace(req.Symptoms)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	return req
}
