package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/mediconnect/internal/consultation"
	"github.com/hackgods/mediconnect/internal/metrics"
)

type ConsultationService interface {
	Book(ctx context.Context, req consultation.BookRequest) (*consultation.BookResult, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]consultation.Detail, error)
	ListForDoctor(ctx context.Context, doctorID uuid.UUID) ([]consultation.Detail, error)
	GetByID(ctx context.Context, id uuid.UUID) (*consultation.Detail, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status consultation.Status) (*consultation.Consultation, error)
	Cancel(ctx context.Context, id uuid.UUID) (*consultation.Consultation, error)
	ListAll(ctx context.Context, f consultation.ListFilter) ([]consultation.Detail, error)
}

type BookingRecorder interface {
	ObserveBooking(outcome string)
}

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"
)

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, errInvalidID
	}
	return id, nil
}

func bookConsultationHandler(svc ConsultationService, rec BookingRecorder, log *slog.Logger) http.HandlerFunc {
	const op = "api.bookConsultation"

	return func(w http.ResponseWriter, r *http.Request) {
		var req BookConsultationRequest
		if err := decodeJSON(r, &req); err != nil {
			rec.ObserveBooking(metrics.BookingRejected)
			handleError(w, r, log, op, err, "", writeFailure)
			return
		}

		// an authenticated caller may leave userId implicit
		if claims, ok := ClaimsFrom(r.Context()); ok && req.UserID == "" {
			req.UserID = claims.UserID
		}

		res, err := svc.Book(r.Context(), consultation.BookRequest{
			UserID:           req.UserID,
			DoctorID:         req.DoctorID,
			PatientName:      req.PatientName,
			PatientEmail:     req.PatientEmail,
			PatientPhone:     req.PatientPhone,
			AppointmentDate:  req.AppointmentDate,
			AppointmentTime:  req.AppointmentTime,
			ConsultationType: req.ConsultationType,
			Symptoms:         req.Symptoms,
			IdempotencyKey:   r.Header.Get(IdempotencyKeyHeader),
		})
		if err != nil {
			status, _ := classify(err, "")
			if status >= http.StatusInternalServerError {
				rec.ObserveBooking(metrics.BookingFailed)
			} else {
				rec.ObserveBooking(metrics.BookingRejected)
			}
			handleError(w, r, log, op, err, "Failed to book consultation", writeFailure)
			return
		}

		status := http.StatusCreated
		if res.Replayed {
			status = http.StatusOK
			w.Header().Set(ReplayedHeader, "true")
			rec.ObserveBooking(metrics.BookingReplayed)
		} else {
			rec.ObserveBooking(metrics.BookingCreated)
		}

		writeJSON(w, r, status, Envelope{
			Success: true,
			Message: "Consultation booked successfully",
			Data:    toConsultationResponse(res.Consultation),
		})
	}
}

func listUserConsultationsHandler(svc ConsultationService, log *slog.Logger) http.HandlerFunc {
	const op = "api.listUserConsultations"

	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := pathID(r, "userId")
		if err != nil {
			handleError(w, r, log, op, err, "", writeFailure)
			return
		}

		list, err := svc.ListForUser(r.Context(), userID)
		if err != nil {
			handleError(w, r, log, op, err, "Failed to fetch consultations", writeFailure)
			return
		}

		writeJSON(w, r, http.StatusOK, listEnvelope(toDetailResponses(list, viewForUser)))
	}
}

func listDoctorConsultationsHandler(svc ConsultationService, log *slog.Logger) http.HandlerFunc {
	const op = "api.listDoctorConsultations"

	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := pathID(r, "doctorId")
		if err != nil {
			handleError(w, r, log, op, err, "", writeFailure)
			return
		}

		list, err := svc.ListForDoctor(r.Context(), doctorID)
		if err != nil {
			handleError(w, r, log, op, err, "Failed to fetch consultations", writeFailure)
			return
		}

		writeJSON(w, r, http.StatusOK, listEnvelope(toDetailResponses(list, viewForDoctor)))
	}
}

func getConsultationHandler(svc ConsultationService, log *slog.Logger) http.HandlerFunc {
	const op = "api.getConsultation"

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			handleError(w, r, log, op, err, "", writeFailure)
			return
		}

		d, err := svc.GetByID(r.Context(), id)
		if err != nil {
			handleError(w, r, log, op, err, "Failed to fetch consultation", writeFailure)
			return
		}

		writeJSON(w, r, http.StatusOK, Envelope{Success: true, Data: toDetailResponse(*d, viewDetail)})
	}
}

func updateConsultationStatusHandler(svc ConsultationService, log *slog.Logger) http.HandlerFunc {
	const op = "api.updateConsultationStatus"

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			handleError(w, r, log, op, err, "", writeFailure)
			return
		}

		var req UpdateStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			handleError(w, r, log, op, err, "", writeFailure)
			return
		}

		updated, err := svc.UpdateStatus(r.Context(), id, consultation.Status(req.Status))
		if err != nil {
			handleError(w, r, log, op, err, "Failed to update consultation", writeFailure)
			return
		}

		writeJSON(w, r, http.StatusOK, Envelope{
			Success: true,
			Message: "Consultation status updated",
			Data:    toConsultationResponse(*updated),
		})
	}
}

func cancelConsultationHandler(svc ConsultationService, log *slog.Logger) http.HandlerFunc {
	const op = "api.cancelConsultation"

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			handleError(w, r, log, op, err, "", writeFailure)
			return
		}

		cancelled, err := svc.Cancel(r.Context(), id)
		if err != nil {
			handleError(w, r, log, op, err, "Failed to cancel consultation", writeFailure)
			return
		}

		writeJSON(w, r, http.StatusOK, Envelope{
			Success: true,
			Message: "Consultation cancelled successfully",
			Data:    toConsultationResponse(*cancelled),
		})
	}
}

func listConsultationsHandler(svc ConsultationService, log *slog.Logger) http.HandlerFunc {
	const op = "api.listConsultations"

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := consultation.ListFilter{Status: consultation.Status(q.Get("status"))}

		if v := q.Get("startDate"); v != "" {
			from, err := consultation.ParseDate(v)
			if err != nil {
				handleError(w, r, log, op, err, "", writeFailure)
				return
			}
			filter.From = &from
		}
		if v := q.Get("endDate"); v != "" {
			to, err := consultation.ParseDate(v)
			if err != nil {
				handleError(w, r, log, op, err, "", writeFailure)
				return
			}
			filter.To = &to
		}

		list, err := svc.ListAll(r.Context(), filter)
		if err != nil {
			handleError(w, r, log, op, err, "Failed to fetch consultations", writeFailure)
			return
		}

		writeJSON(w, r, http.StatusOK, listEnvelope(toDetailResponses(list, viewAdmin)))
	}
}
