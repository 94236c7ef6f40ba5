package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-appointment-booking/internal/auth"
	"github.com/hackgods/doctor-appointment-booking/internal/booking"
)

type RouterConfig struct {
	Service     *booking.Service
	Tokens      *auth.Manager
	Logger      *zap.Logger
	Health      []Dependency
	CORSOrigins []string
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Timeout(30 * time.Second))

	// Health endpoints
	health := NewHealthHandler(cfg.Health, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	svc := cfg.Service
	authenticated := Authenticate(cfg.Tokens)

	r.Route("/api/v1", func(r chi.Router) {
		// public doctor discovery
		r.Get("/doctors", listDoctorsHandler(svc))
		r.Get("/doctors/{id}", getDoctorHandler(svc))
		r.Get("/doctors/{id}/reviews", listReviewsHandler(svc))

		r.Group(func(r chi.Router) {
			r.Use(authenticated)

			r.Get("/doctors/{id}/available-slots", availableSlotsHandler(svc))
			r.With(RequireRole(booking.RoleDoctor, booking.RoleAdmin)).Put("/doctors/{id}", updateDoctorHandler(svc))
			r.With(RequireRole(booking.RoleDoctor)).Get("/doctors/me/appointments", doctorAppointmentsHandler(svc))
			r.With(RequireRole(booking.RoleDoctor)).Get("/doctors/profile/me", doctorProfileHandler(svc))
			r.With(RequireRole(booking.RolePatient)).Post("/doctors/{id}/reviews", createReviewHandler(svc))
			r.With(RequireRole(booking.RolePatient)).Get("/users/me/appointments", patientAppointmentsHandler(svc))

			r.With(RequireRole(booking.RolePatient)).Post("/bookings", createBookingHandler(svc))
			r.Get("/bookings/{id}", getBookingHandler(svc))
			r.Put("/bookings/{id}/status", updateStatusHandler(svc))
			r.With(RequireRole(booking.RoleDoctor, booking.RoleAdmin)).Put("/bookings/{id}/prescription", updateNotesHandler(svc))
		})
	})

	return r
}
