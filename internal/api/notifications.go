package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/clinicdesk/appointment-backend/internal/notification"
)

const defaultNotificationLimit = 50

func listNotificationsHandler(d *notification.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := GetPrincipal(r.Context())

		limit := defaultNotificationLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
				return
			}
			limit = n
		}

		ns, err := d.ListForPatient(r.Context(), principal.ID, limit)
		if err != nil {
			handleNotificationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toNotificationResponses(ns))
	}
}

func unreadCountHandler(d *notification.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := GetPrincipal(r.Context())

		count, err := d.UnreadCount(r.Context(), principal.ID)
		if err != nil {
			handleNotificationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, UnreadCountResponse{Unread: count})
	}
}

func markNotificationReadHandler(d *notification.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_notification_id")
		if !ok {
			return
		}

		principal, _ := GetPrincipal(r.Context())
		if err := d.MarkRead(r.Context(), id, principal.ID); err != nil {
			handleNotificationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
	}
}

func markAllNotificationsReadHandler(d *notification.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := GetPrincipal(r.Context())
		if err := d.MarkAllRead(r.Context(), principal.ID); err != nil {
			handleNotificationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
	}
}

func deleteNotificationHandler(d *notification.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_notification_id")
		if !ok {
			return
		}

		principal, _ := GetPrincipal(r.Context())
		if err := d.Delete(r.Context(), id, principal.ID); err != nil {
			handleNotificationError(w, err)
			return
		}
		writeJSON(w, http.StatusNoContent, nil)
	}
}

func handleNotificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, notification.ErrNotificationNotFound):
		writeError(w, http.StatusNotFound, "notification_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
