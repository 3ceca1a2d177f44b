package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/hackgods/mediconnect/internal/metrics"
)

type RouterConfig struct {
	Auth          AuthService
	Doctors       DoctorService
	Consultations ConsultationService
	Metrics       *metrics.Metrics
	Checks        []Check
	Log           *slog.Logger

	Env           string
	Version       string
	CORSOrigins   []string
	RequireAuth   bool
	AuthRateLimit float64
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(RecoverMiddleware(cfg.Log))
	r.Use(cfg.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", RequestIDHeader, IdempotencyKeyHeader},
		ExposedHeaders: []string{RequestIDHeader, ReplayedHeader},
		MaxAge:         300,
	}))

	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/test", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, r, http.StatusOK, MessageResponse{Message: "Backend is working!"})
		})

		r.Route("/auth", func(r chi.Router) {
			r.Use(RateLimitMiddleware(cfg.AuthRateLimit, cfg.Log))
			r.Post("/signup", signupHandler(cfg.Auth, cfg.Log))
			r.Post("/login", loginHandler(cfg.Auth, cfg.Log))
		})

		r.Get("/doctors", listDoctorsHandler(cfg.Doctors, cfg.Log))
		r.Get("/doctors/{id}", getDoctorHandler(cfg.Doctors, cfg.Log))

		r.Route("/consultations", func(r chi.Router) {
			if cfg.RequireAuth {
				r.Use(BearerAuthMiddleware(cfg.Auth, cfg.Log))
			}
			r.Post("/book", bookConsultationHandler(cfg.Consultations, cfg.Metrics, cfg.Log))
			r.Get("/user/{userId}", listUserConsultationsHandler(cfg.Consultations, cfg.Log))
			r.Get("/doctor/{doctorId}", listDoctorConsultationsHandler(cfg.Consultations, cfg.Log))
			r.Get("/", listConsultationsHandler(cfg.Consultations, cfg.Log))
			r.Get("/{id}", getConsultationHandler(cfg.Consultations, cfg.Log))
			r.Patch("/{id}/status", updateConsultationStatusHandler(cfg.Consultations, cfg.Log))
			r.Delete("/{id}", cancelConsultationHandler(cfg.Consultations, cfg.Log))
		})
	})

	return r
}
