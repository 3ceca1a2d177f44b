package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/render"

	"github.com/hackgods/mediconnect/internal/auth"
	"github.com/hackgods/mediconnect/internal/consultation"
	"github.com/hackgods/mediconnect/internal/doctor"
	"github.com/hackgods/mediconnect/internal/logger"
)

var (
	errInvalidBody = errors.New("invalid request body")
	errInvalidID   = errors.New("invalid id")
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// writeError renders the auth-style body {error}.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, ErrorResponse{Error: message})
}

// writeFailure renders the envelope-style body {success:false, error}.
func writeFailure(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, Envelope{Success: false, Error: message})
}

type errorKind struct {
	sentinel error
	status   int
}

var errorKinds = []errorKind{
	{errInvalidBody, http.StatusBadRequest},
	{errInvalidID, http.StatusBadRequest},
	{auth.ErrMissingSignupFields, http.StatusBadRequest},
	{auth.ErrMissingCredentials, http.StatusBadRequest},
	{consultation.ErrMissingFields, http.StatusBadRequest},
	{consultation.ErrInvalidID, http.StatusBadRequest},
	{consultation.ErrInvalidDate, http.StatusBadRequest},
	{consultation.ErrInvalidType, http.StatusBadRequest},
	{consultation.ErrSymptomsTooLong, http.StatusBadRequest},
	{consultation.ErrInvalidStatus, http.StatusBadRequest},

	{auth.ErrEmailTaken, http.StatusConflict},
	{consultation.ErrBookingInProgress, http.StatusConflict},

	{doctor.ErrDoctorNotFound, http.StatusNotFound},
	{auth.ErrUserNotFound, http.StatusNotFound},
	{consultation.ErrConsultationNotFound, http.StatusNotFound},

	{auth.ErrInvalidCredentials, http.StatusUnauthorized},
	{auth.ErrInvalidToken, http.StatusUnauthorized},
}

// classify maps err to a status and client message. Unknown errors become
// 500 with fallback as the message; their details only go to the log.
func classify(err error, fallback string) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.sentinel) {
			return k.status, sentence(k.sentinel.Error())
		}
	}
	return http.StatusInternalServerError, fallback
}

// sentence upper-cases the first letter of a Go error string.
func sentence(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

type failureWriter func(w http.ResponseWriter, r *http.Request, status int, message string)

func handleError(
	w http.ResponseWriter,
	r *http.Request,
	log *slog.Logger,
	op string,
	err error,
	fallback string,
	write failureWriter,
) {
	status, message := classify(err, fallback)
	if status >= http.StatusInternalServerError {
		log.Error(strings.ToLower(fallback),
			slog.String("op", op),
			slog.String("request_id", GetRequestID(r.Context())),
			logger.Err(err),
		)
	}
	write(w, r, status, message)
}
