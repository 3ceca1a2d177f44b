package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hackgods/mediconnect/internal/logger"
)

var (
	ErrMissingSignupFields = errors.New("all fields are required")
	ErrMissingCredentials  = errors.New("email and password are required")
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type Service struct {
	repo       Repository
	tokens     *TokenMaker
	bcryptCost int
	validate   *validator.Validate
	log        *slog.Logger
}

func NewService(repo Repository, tokens *TokenMaker, bcryptCost int, log *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		validate:   validator.New(),
		log:        log,
	}
}

// Signup registers a new user and returns its id. Emails are unique
// regardless of case.
func (s *Service) Signup(ctx context.Context, in SignupInput) (uuid.UUID, error) {
	const op = "auth.Signup"

	in.FullName = strings.TrimSpace(in.FullName)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.Email = normalizeEmail(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return uuid.Nil, ErrMissingSignupFields
	}
	email := in.Email

	existing, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return uuid.Nil, fmt.Errorf("%s: lookup email: %w", op, err)
	}
	if existing != nil {
		return uuid.Nil, ErrEmailTaken
	}

	hash, err := HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	created, err := s.repo.CreateUser(ctx, User{
		ID:           uuid.New(),
		FullName:     in.FullName,
		PhoneNumber:  in.PhoneNumber,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return uuid.Nil, err
		}
		return uuid.Nil, fmt.Errorf("%s: create user: %w", op, err)
	}

	s.log.Info("user signed up", slog.String("op", op), slog.String("user_id", created.ID.String()))
	return created.ID, nil
}

// Login checks the credentials and issues a token carrying the user's id and email.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	const op = "auth.Login"

	in.Email = normalizeEmail(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return nil, ErrMissingCredentials
	}

	user, err := s.repo.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%s: lookup email: %w", op, err)
	}

	if err := ComparePassword(user.PasswordHash, in.Password); err != nil {
		s.log.Debug("password mismatch", slog.String("op", op), logger.Err(err))
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &LoginResult{Token: token, User: user.Public()}, nil
}

func (s *Service) ParseToken(token string) (*Claims, error) {
	return s.tokens.Parse(token)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
