package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carebook/booking-engine/internal/appointment"
)

type RouterConfig struct {
	Availability AvailabilityService
	Booking      BookingService
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	JWTSecret    []byte
	Logger       zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	doctorOnly := RequireRole(cfg.JWTSecret, appointment.RoleDoctor)
	patientOnly := RequireRole(cfg.JWTSecret, appointment.RolePatient)
	anyActor := RequireRole(cfg.JWTSecret, "")

	// Availability: doctor-owned management surface.
	r.Group(func(r chi.Router) {
		r.Use(doctorOnly)
		r.Post("/availability", publishAvailabilityHandler(cfg.Availability))
		r.Get("/availability", rawAvailabilityHandler(cfg.Availability))
		r.Put("/availability/{date}", replaceAvailabilityDateHandler(cfg.Availability))
		r.Delete("/availability/{date}", removeAvailabilityDateHandler(cfg.Availability))
	})

	// Availability: patient-facing filtered read.
	r.Group(func(r chi.Router) {
		r.Use(patientOnly)
		r.Get("/availability/{doctorID}", visibleAvailabilityHandler(cfg.Availability))
	})

	// Appointments
	r.Group(func(r chi.Router) {
		r.Use(patientOnly)
		r.Post("/appointments", createAppointmentHandler(cfg.Booking))
		r.Put("/appointments/{id}/patient-cancel", transitionHandler(cfg.Booking, appointment.StatusPatientCancelled))
		r.Post("/appointments/{id}/rating", rateAppointmentHandler(cfg.Booking))
	})

	r.Group(func(r chi.Router) {
		r.Use(doctorOnly)
		r.Put("/appointments/{id}/accept", transitionHandler(cfg.Booking, appointment.StatusAccepted))
		r.Put("/appointments/{id}/confirm", transitionHandler(cfg.Booking, appointment.StatusConfirmed))
		r.Put("/appointments/{id}/complete", transitionHandler(cfg.Booking, appointment.StatusCompleted))
		r.Put("/appointments/{id}/cancel", transitionHandler(cfg.Booking, appointment.StatusCancelled))
	})

	r.Group(func(r chi.Router) {
		r.Use(anyActor)
		r.Get("/appointments", listAppointmentsHandler(cfg.Booking))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Booking))
	})

	return r
}
