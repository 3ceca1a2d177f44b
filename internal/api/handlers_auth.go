package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/hackgods/mediconnect/internal/auth"
)

type AuthService interface {
	Signup(ctx context.Context, in auth.SignupInput) (uuid.UUID, error)
	Login(ctx context.Context, in auth.LoginInput) (*auth.LoginResult, error)
	ParseToken(token string) (*auth.Claims, error)
}

// decodeJSON treats an empty body as an empty object so that missing fields
// surface as validation errors.
func decodeJSON(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil && !errors.Is(err, io.EOF) {
		return errInvalidBody
	}
	return nil
}

func signupHandler(svc AuthService, log *slog.Logger) http.HandlerFunc {
	const op = "api.signup"

	return func(w http.ResponseWriter, r *http.Request) {
		var req SignupRequest
		if err := decodeJSON(r, &req); err != nil {
			handleError(w, r, log, op, err, "Server error", writeError)
			return
		}

		id, err := svc.Signup(r.Context(), auth.SignupInput{
			FullName:    req.FullName,
			PhoneNumber: req.PhoneNumber,
			Email:       req.Email,
			Password:    req.Password,
		})
		if err != nil {
			handleError(w, r, log, op, err, "Server error", writeError)
			return
		}

		writeJSON(w, r, http.StatusCreated, SignupResponse{
			Message: "User created successfully",
			UserID:  id,
		})
	}
}

func loginHandler(svc AuthService, log *slog.Logger) http.HandlerFunc {
	const op = "api.login"

	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := decodeJSON(r, &req); err != nil {
			handleError(w, r, log, op, err, "Server error", writeError)
			return
		}

		res, err := svc.Login(r.Context(), auth.LoginInput{
			Email:    req.Email,
			Password: req.Password,
		})
		if err != nil {
			handleError(w, r, log, op, err, "Server error", writeError)
			return
		}

		writeJSON(w, r, http.StatusOK, LoginResponse{
			Message: "Login successful",
			Token:   res.Token,
			UserID:  res.User.ID,
			User:    res.User,
		})
	}
}
