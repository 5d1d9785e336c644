package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/careslot/booking/internal/booking"
	"github.com/careslot/booking/internal/schedule"
)

type RouterConfig struct {
	Bookings  *booking.Service
	Schedules *schedule.Service
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Doctor schedule management
	r.Route("/doctors/{doctorID}", func(r chi.Router) {
		r.Get("/slots", doctorSlotsHandler(cfg.Schedules))
		r.Get("/schedule/rules", listRulesHandler(cfg.Schedules))
		r.Put("/schedule/rules", upsertRuleHandler(cfg.Schedules))
		r.Delete("/schedule/rules/{ruleID}", deleteRuleHandler(cfg.Schedules))
		r.Get("/schedule/blocked-dates", listBlockedDatesHandler(cfg.Schedules))
		r.Post("/schedule/blocked-dates", addBlockedDateHandler(cfg.Schedules))
		r.Delete("/schedule/blocked-dates/{blockedDateID}", removeBlockedDateHandler(cfg.Schedules))
		r.Get("/schedule/settings", getSettingsHandler(cfg.Schedules))
		r.Put("/schedule/settings", upsertSettingsHandler(cfg.Schedules))
	})

	// Booking lifecycle
	r.Post("/bookings/checkout", checkoutBookingHandler(cfg.Bookings))
	r.Post("/bookings/finalize", finalizeBookingHandler(cfg.Bookings))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/status", transitionAppointmentHandler(cfg.Bookings))

	return r
}
