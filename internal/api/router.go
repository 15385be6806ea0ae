package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinicdesk/appointment-backend/internal/auth"
	"github.com/clinicdesk/appointment-backend/internal/notification"
	"github.com/clinicdesk/appointment-backend/internal/scheduling"
)

type RouterConfig struct {
	Scheduling    *scheduling.Service
	Notifications *notification.Dispatcher
	Auth          *auth.Service
	Tokens        *auth.TokenManager
	PgPool        *pgxpool.Pool
	Redis         *redis.Client
	Logger        *zap.Logger
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/auth/login", loginHandler(cfg.Auth))

	// Everything below requires a valid token.
	r.Group(func(r chi.Router) {
		r.Use(Authenticator(cfg.Tokens))

		r.Post("/requests", createRequestHandler(cfg.Scheduling))
		r.Get("/requests/mine", listMyRequestsHandler(cfg.Scheduling))

		r.Get("/appointments/history", historyHandler(cfg.Scheduling))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Scheduling))

		r.Get("/slots/available", availableSlotsHandler(cfg.Scheduling))
		r.Get("/slots/check", checkSlotHandler(cfg.Scheduling))

		r.Get("/notifications", listNotificationsHandler(cfg.Notifications))
		r.Get("/notifications/unread-count", unreadCountHandler(cfg.Notifications))
		r.Post("/notifications/read-all", markAllNotificationsReadHandler(cfg.Notifications))
		r.Post("/notifications/{id}/read", markNotificationReadHandler(cfg.Notifications))
		r.Delete("/notifications/{id}", deleteNotificationHandler(cfg.Notifications))

		// Admin review surface.
		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Get("/requests", listRequestsHandler(cfg.Scheduling))
			r.Get("/requests/pending", listPendingRequestsHandler(cfg.Scheduling))
			r.Post("/requests/{id}/approve", approveRequestHandler(cfg.Scheduling))
			r.Post("/requests/{id}/reject", rejectRequestHandler(cfg.Scheduling))
			r.Post("/requests/{id}/reschedule", rescheduleRequestHandler(cfg.Scheduling))

			r.Get("/appointments", listAppointmentsHandler(cfg.Scheduling))
			r.Get("/appointments/{id}", getAppointmentHandler(cfg.Scheduling))
			r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Scheduling))
			r.Patch("/appointments/{id}/notes", updateNotesHandler(cfg.Scheduling))
		})
	})

	return r
}
