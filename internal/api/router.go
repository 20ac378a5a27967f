package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/muhzee733/madical-erp-backend/internal/appointment"
)

type RouterConfig struct {
	Service *appointment.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Everything else requires a resolved actor
	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware)

		// Slot management (doctor-facing)
		r.Post("/slots", createSlotHandler(cfg.Service))
		r.Post("/slots/bulk", createSlotsBulkHandler(cfg.Service))
		r.Post("/slots/custom", createCustomSlotsHandler(cfg.Service))
		r.Get("/slots", listSlotsHandler(cfg.Service))
		r.Patch("/slots/{id}", editSlotHandler(cfg.Service))
		r.Delete("/slots/{id}", deleteSlotHandler(cfg.Service))

		// Booking and lifecycle
		r.Post("/appointments", bookHandler(cfg.Service))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Get("/appointments/{id}/audit", getAuditLogHandler(cfg.Service))
		r.Post("/appointments/{id}/confirm", confirmHandler(cfg.Service))
		r.Post("/appointments/{id}/cancel", cancelHandler(cfg.Service))
		r.Post("/appointments/{id}/complete", completeHandler(cfg.Service))
		r.Post("/appointments/{id}/no-show", noShowHandler(cfg.Service))
		r.Post("/appointments/{id}/reschedule", rescheduleHandler(cfg.Service))
		r.Delete("/appointments/{id}", softDeleteAppointmentHandler(cfg.Service))
	})

	return r
}
