package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/mediconnect/internal/doctor"
)

type DoctorService interface {
	List(ctx context.Context, f doctor.Filter) ([]doctor.Doctor, error)
	Get(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error)
}

func listDoctorsHandler(svc DoctorService, log *slog.Logger) http.HandlerFunc {
	const op = "api.listDoctors"

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		doctors, err := svc.List(r.Context(), doctor.Filter{
			Specialty: q.Get("specialty"),
			Search:    q.Get("search"),
		})
		if err != nil {
			handleError(w, r, log, op, err, "Failed to fetch doctors", writeFailure)
			return
		}

		data := make([]DoctorResponse, 0, len(doctors))
		for _, d := range doctors {
			data = append(data, toDoctorResponse(d))
		}

		writeJSON(w, r, http.StatusOK, Envelope{Success: true, Data: data})
	}
}

func getDoctorHandler(svc DoctorService, log *slog.Logger) http.HandlerFunc {
	const op = "api.getDoctor"

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, log, op, errInvalidID, "", writeFailure)
			return
		}

		d, err := svc.Get(r.Context(), id)
		if err != nil {
			handleError(w, r, log, op, err, "Failed to fetch doctor", writeFailure)
			return
		}

		writeJSON(w, r, http.StatusOK, Envelope{Success: true, Data: toDoctorResponse(*d)})
	}
}
