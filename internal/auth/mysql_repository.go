package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

const mysqlDuplicateEntry = 1062

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS users (
    id            CHAR(36) NOT NULL PRIMARY KEY,
    full_name     VARCHAR(255) NOT NULL,
    phone_number  VARCHAR(64) NOT NULL,
    email         VARCHAR(255) NOT NULL,
    password_hash VARCHAR(255) NOT NULL,
    created_at    DATETIME(6) NOT NULL,
    updated_at    DATETIME(6) NOT NULL,
    UNIQUE KEY users_email_idx (email)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// MySQLRepository stores users in MySQL. Emails are stored lower-cased and the
// default utf8mb4 collation compares them case-insensitively.
type MySQLRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewMySQLRepository(db *sql.DB) *MySQLRepository {
	return &MySQLRepository{db: db, now: time.Now}
}

// EnsureSchema creates the users table when it is missing.
func (r *MySQLRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, mysqlSchema); err != nil {
		return fmt.Errorf("create mysql users table: %w", err)
	}
	return nil
}

func scanMySQLUser(row *sql.Row) (*User, error) {
	var (
		u  User
		id string
	)

	err := row.Scan(&id, &u.FullName, &u.PhoneNumber, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	u.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse user id %q: %w", id, err)
	}

	return &u, nil
}

func (r *MySQLRepository) CreateUser(ctx context.Context, u User) (*User, error) {
	now := r.now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, full_name, phone_number, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.ID.String(), u.FullName, u.PhoneNumber, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return &u, nil
}

func (r *MySQLRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, full_name, phone_number, email, password_hash, created_at, updated_at
		FROM users
		WHERE email = ?
	`, email)
	return scanMySQLUser(row)
}

func (r *MySQLRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, full_name, phone_number, email, password_hash, created_at, updated_at
		FROM users
		WHERE id = ?
	`, id.String())
	return scanMySQLUser(row)
}
