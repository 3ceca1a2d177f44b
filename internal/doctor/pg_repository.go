package doctor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const doctorColumns = `id, name, specialty, rating, experience, consultations, image, fee,
		       languages, availability, is_available, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&d.Rating,
		&d.Experience,
		&d.Consultations,
		&d.Image,
		&d.Fee,
		&d.Languages,
		&d.Availability,
		&d.IsAvailable,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func (r *PgRepository) ListDoctors(ctx context.Context, f Filter) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE ($1::text = '' OR specialty = $1::text)
		  AND ($2::text = '' OR name ILIKE $2::text OR specialty ILIKE $2::text)
		ORDER BY created_at, id
	`, f.Specialty, likePattern(f.Search))
	if err != nil {
		return nil, fmt.Errorf("query doctors: %w", err)
	}
	defer rows.Close()

	result := make([]Doctor, 0)
	for rows.Next() {
		d, err := scanDoctor(rows)
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

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

// likePattern turns a search term into an ILIKE substring pattern, escaping
// the wildcards the user typed.
func likePattern(search string) string {
	if search == "" {
		return ""
	}
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(search) + "%"
}

// DeleteUnbooked removes doctors no consultation refers to. Used by the seeder.
func (r *PgRepository) DeleteUnbooked(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM doctors d
		WHERE NOT EXISTS (SELECT 1 FROM consultations c WHERE c.doctor_id = d.id)
	`)
	if err != nil {
		return 0, fmt.Errorf("delete unbooked doctors: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InsertDoctors adds ds in one transaction, keeping their order in created_at.
func (r *PgRepository) InsertDoctors(ctx context.Context, ds []Doctor) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert doctors: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, d := range ds {
		if !d.Specialty.Valid() {
			return fmt.Errorf("doctor %q: unknown specialty %q", d.Name, d.Specialty)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (
				id, name, specialty, rating, experience, consultations, image, fee,
				languages, availability, is_available, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			        now() + $12::int * interval '1 millisecond', now())
		`,
			d.ID, d.Name, d.Specialty, d.Rating, d.Experience, d.Consultations, d.Image, d.Fee,
			d.Languages, d.Availability, d.IsAvailable, i,
		)
		if err != nil {
			return fmt.Errorf("insert doctor %q: %w", d.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert doctors: %w", err)
	}
	return nil
}
