package consultation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/mediconnect/internal/doctor"
)

const pgForeignKeyViolation = "23503"

const consultationColumns = `c.id, c.user_id, c.doctor_id, c.patient_name, c.patient_email, c.patient_phone,
		       c.appointment_date, c.appointment_time, c.consultation_type, c.symptoms, c.status,
		       c.fee, c.payment_status, c.notes, c.created_at, c.updated_at`

const detailQuery = `
		SELECT ` + consultationColumns + `,
		       d.id, d.name, d.specialty, d.image, d.rating, d.fee
		FROM consultations c
		JOIN doctors d ON d.id = c.doctor_id`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func consultationDest(c *Consultation) []any {
	return []any{
		&c.ID,
		&c.UserID,
		&c.DoctorID,
		&c.PatientName,
		&c.PatientEmail,
		&c.PatientPhone,
		&c.AppointmentDate,
		&c.AppointmentTime,
		&c.ConsultationType,
		&c.Symptoms,
		&c.Status,
		&c.Fee,
		&c.PaymentStatus,
		&c.Notes,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
}

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation

	if err := row.Scan(consultationDest(&c)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, err
	}

	return &c, nil
}

func scanDetail(row pgx.Row) (*Detail, error) {
	var (
		d   Detail
		doc DoctorSummary
	)

	dest := append(consultationDest(&d.Consultation),
		&doc.ID,
		&doc.Name,
		&doc.Specialty,
		&doc.Image,
		&doc.Rating,
		&doc.Fee,
	)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, err
	}

	d.Doctor = &doc
	return &d, nil
}

func collectDetails(rows pgx.Rows) ([]Detail, error) {
	defer rows.Close()

	result := make([]Detail, 0)
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) CreateBooking(ctx context.Context, c Consultation) (*Consultation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO consultations AS c (
			id, user_id, doctor_id, patient_name, patient_email, patient_phone,
			appointment_date, appointment_time, consultation_type, symptoms, status,
			fee, payment_status, notes, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
		RETURNING `+consultationColumns,
		c.ID, c.UserID, c.DoctorID, c.PatientName, c.PatientEmail, c.PatientPhone,
		c.AppointmentDate, c.AppointmentTime, c.ConsultationType, c.Symptoms, c.Status,
		c.Fee, c.PaymentStatus, c.Notes,
	)

	created, err := scanConsultation(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, doctor.ErrDoctorNotFound
		}
		return nil, fmt.Errorf("insert consultation: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE doctors
		SET consultations = consultations + 1,
		    updated_at = now()
		WHERE id = $1
	`, c.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("increment doctor counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, doctor.ErrDoctorNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking tx: %w", err)
	}

	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Detail, error) {
	row := r.pool.QueryRow(ctx, detailQuery+`
		WHERE c.id = $1
	`, id)
	return scanDetail(row)
}

func (r *PgRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Detail, error) {
	rows, err := r.pool.Query(ctx, detailQuery+`
		WHERE c.user_id = $1
		ORDER BY c.appointment_date DESC, c.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query consultations by user: %w", err)
	}
	return collectDetails(rows)
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Detail, error) {
	rows, err := r.pool.Query(ctx, detailQuery+`
		WHERE c.doctor_id = $1
		ORDER BY c.appointment_date DESC, c.created_at DESC
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("query consultations by doctor: %w", err)
	}
	return collectDetails(rows)
}

func (r *PgRepository) ListAll(ctx context.Context, f ListFilter) ([]Detail, error) {
	rows, err := r.pool.Query(ctx, detailQuery+`
		WHERE ($1::text = '' OR c.status = $1::text)
		  AND ($2::date IS NULL OR c.appointment_date >= $2::date)
		  AND ($3::date IS NULL OR c.appointment_date <= $3::date)
		ORDER BY c.appointment_date DESC, c.created_at DESC
	`, string(f.Status), f.From, f.To)
	if err != nil {
		return nil, fmt.Errorf("query consultations: %w", err)
	}
	return collectDetails(rows)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE consultations AS c
		SET status = $2,
		    updated_at = now()
		WHERE c.id = $1
		RETURNING `+consultationColumns,
		id, status,
	)
	return scanConsultation(row)
}

func (r *PgRepository) ReconcileDoctorCounters(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE doctors AS d
		SET consultations = counts.total,
		    updated_at = now()
		FROM (
			SELECT doctor_id, count(*) AS total
			FROM consultations
			GROUP BY doctor_id
		) AS counts
		WHERE d.id = counts.doctor_id
		  AND d.consultations < counts.total
	`)
	if err != nil {
		return 0, fmt.Errorf("reconcile doctor counters: %w", err)
	}
	return tag.RowsAffected(), nil
}
