package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-backend/internal/auth"
	redisclient "github.com/clinicdesk/appointment-backend/internal/redis"
	"github.com/clinicdesk/appointment-backend/internal/scheduling"
)

func actorFrom(p auth.Principal) scheduling.Actor {
	if p.Role == auth.RoleAdmin {
		return scheduling.Actor{Role: scheduling.RoleAdmin}
	}
	return scheduling.Actor{Role: scheduling.RolePatient, PatientID: p.ID}
}

func parseIDParam(w http.ResponseWriter, r *http.Request, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseDateQuery(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required (YYYY-MM-DD)")
		return time.Time{}, false
	}
	date, err := time.Parse(dateLayout, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

func createRequestHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body CreateRequestRequest
		if !decodeBody(w, r, &body) {
			return
		}

		principal, _ := GetPrincipal(r.Context())

		// Patients always file for themselves; admins may file on a
		// patient's behalf by naming them.
		patientID := principal.ID
		if principal.Role == auth.RoleAdmin {
			if body.PatientID == "" {
				writeError(w, http.StatusBadRequest, "missing_patient_id", "patient_id is required when filing as admin")
				return
			}
			var err error
			patientID, err = uuid.Parse(body.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
		}

		date, err := time.Parse(dateLayout, body.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		req, err := svc.CreateRequest(r.Context(), scheduling.CreateRequestParams{
			PatientID: patientID,
			Date:      date,
			Time:      body.Time,
			Notes:     body.Notes,
		})
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toRequestResponse(req))
	}
}

func listRequestsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status *scheduling.RequestStatus
		if raw := r.URL.Query().Get("status"); raw != "" {
			s := scheduling.RequestStatus(raw)
			switch s {
			case scheduling.StatusPending, scheduling.StatusConfirmed,
				scheduling.StatusCancelled, scheduling.StatusRescheduled:
				status = &s
			default:
				writeError(w, http.StatusBadRequest, "invalid_status", "unknown request status")
				return
			}
		}

		reqs, err := svc.ListRequests(r.Context(), status)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRequestResponses(reqs))
	}
}

func listPendingRequestsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqs, err := svc.ListPendingRequests(r.Context())
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRequestResponses(reqs))
	}
}

func listMyRequestsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := GetPrincipal(r.Context())
		reqs, err := svc.ListRequestsForPatient(r.Context(), principal.ID)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRequestResponses(reqs))
	}
}

func approveRequestHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_request_id")
		if !ok {
			return
		}

		appt, err := svc.ApproveRequest(r.Context(), id)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rejectRequestHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_request_id")
		if !ok {
			return
		}

		req, err := svc.RejectRequest(r.Context(), id)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRequestResponse(req))
	}
}

func rescheduleRequestHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_request_id")
		if !ok {
			return
		}

		var body RescheduleRequestRequest
		if !decodeBody(w, r, &body) {
			return
		}

		date, err := time.Parse(dateLayout, body.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		req, err := svc.RescheduleRequest(r.Context(), id, scheduling.RescheduleParams{
			NewDate: date,
			NewTime: body.Time,
			Notes:   body.Notes,
		})
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRequestResponse(req))
	}
}

func listAppointmentsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, ok := parseDateQuery(w, r)
		if !ok {
			return
		}

		appts, err := svc.ListAppointmentsByDate(r.Context(), date)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func getAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		detail, err := svc.GetAppointmentDetail(r.Context(), id)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDetailResponse(detail))
	}
}

func confirmAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.ConfirmBookedAppointment(r.Context(), id)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		var body CancelAppointmentRequest
		if r.ContentLength > 0 && !decodeBody(w, r, &body) {
			return
		}

		principal, _ := GetPrincipal(r.Context())
		if err := svc.CancelAppointment(r.Context(), id, body.Reason, actorFrom(principal)); err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

func updateNotesHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		var body UpdateNotesRequest
		if !decodeBody(w, r, &body) {
			return
		}

		appt, err := svc.UpdateAppointmentNotes(r.Context(), id, body.Notes)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func historyHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := GetPrincipal(r.Context())

		// Patients see their own history; admins name the patient.
		patientID := principal.ID
		if principal.Role == auth.RoleAdmin {
			raw := r.URL.Query().Get("patient_id")
			if raw == "" {
				writeError(w, http.StatusBadRequest, "missing_patient_id", "patient_id query parameter is required")
				return
			}
			var err error
			patientID, err = uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
		}

		appts, err := svc.HistoryForPatient(r.Context(), patientID, actorFrom(principal))
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func availableSlotsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, ok := parseDateQuery(w, r)
		if !ok {
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), date)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, AvailableSlotsResponse{
			Date:  scheduling.NormalizeDate(date).Format(dateLayout),
			Slots: slots,
		})
	}
}

func checkSlotHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, ok := parseDateQuery(w, r)
		if !ok {
			return
		}
		timeOfDay := r.URL.Query().Get("time")
		if !scheduling.ValidSlotTime(timeOfDay) {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM on a 30-minute boundary")
			return
		}

		free, err := svc.IsSlotFree(r.Context(), date, timeOfDay)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, SlotCheckResponse{
			Date:      scheduling.NormalizeDate(date).Format(dateLayout),
			Time:      timeOfDay,
			Available: free,
		})
	}
}

func handleSchedulingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "request_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, scheduling.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, scheduling.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, scheduling.ErrOutsideWorkingHours):
		writeError(w, http.StatusBadRequest, "outside_working_hours", err.Error())
	case errors.Is(err, scheduling.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
