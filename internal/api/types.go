package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-backend/internal/notification"
	"github.com/clinicdesk/appointment-backend/internal/scheduling"
)

var validate = validator.New()

// decodeBody parses and validates a JSON request body. It writes the error
// response itself and reports whether the handler should continue.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	return true
}

const dateLayout = "2006-01-02"

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	UserID    uuid.UUID `json:"user_id"`
	ExpiresIn int64     `json:"expires_in_seconds"`
}

type CreateRequestRequest struct {
	PatientID string  `json:"patient_id,omitempty" validate:"omitempty,uuid"`
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	Time      string  `json:"time" validate:"required"`
	Notes     *string `json:"notes,omitempty"`
}

type RescheduleRequestRequest struct {
	Date  string  `json:"date" validate:"required,datetime=2006-01-02"`
	Time  string  `json:"time" validate:"required"`
	Notes *string `json:"notes,omitempty"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason,omitempty"`
}

type UpdateNotesRequest struct {
	Notes string `json:"notes" validate:"required"`
}

type RequestResponse struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	Date          string     `json:"date"`
	Time          string     `json:"time"`
	Notes         *string    `json:"notes,omitempty"`
	Status        string     `json:"status"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toRequestResponse(req *scheduling.AppointmentRequest) RequestResponse {
	return RequestResponse{
		ID:            req.ID,
		PatientID:     req.PatientID,
		Date:          req.RequestedDate.Format(dateLayout),
		Time:          req.RequestedTime,
		Notes:         req.Notes,
		Status:        string(req.Status),
		AppointmentID: req.AppointmentID,
		CreatedAt:     req.CreatedAt,
		UpdatedAt:     req.UpdatedAt,
	}
}

func toRequestResponses(reqs []scheduling.AppointmentRequest) []RequestResponse {
	out := make([]RequestResponse, 0, len(reqs))
	for i := range reqs {
		out = append(out, toRequestResponse(&reqs[i]))
	}
	return out
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Notes     *string   `json:"notes,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAppointmentResponse(appt *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        appt.ID,
		PatientID: appt.PatientID,
		Date:      appt.Date.Format(dateLayout),
		Time:      appt.Time,
		Notes:     appt.Notes,
		Status:    string(appt.Status),
		CreatedAt: appt.CreatedAt,
		UpdatedAt: appt.UpdatedAt,
	}
}

func toAppointmentResponses(appts []scheduling.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	return out
}

type PatientSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Phone string    `json:"phone,omitempty"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	Patient  *PatientSummary   `json:"patient,omitempty"`
	Requests []RequestResponse `json:"requests"`
}

func toDetailResponse(d *scheduling.AppointmentDetail) AppointmentDetailResponse {
	resp := AppointmentDetailResponse{
		AppointmentResponse: toAppointmentResponse(&d.Appointment),
		Requests:            toRequestResponses(d.Requests),
	}
	if d.Patient != nil {
		resp.Patient = &PatientSummary{
			ID:    d.Patient.ID,
			Name:  d.Patient.Name,
			Email: d.Patient.Email,
			Phone: d.Patient.Phone,
		}
	}
	return resp
}

type AvailableSlotsResponse struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

type SlotCheckResponse struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

type NotificationResponse struct {
	ID           uuid.UUID  `json:"id"`
	Type         string     `json:"type"`
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	IsRead       bool       `json:"is_read"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toNotificationResponses(ns []notification.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(ns))
	for _, n := range ns {
		out = append(out, NotificationResponse{
			ID:           n.ID,
			Type:         string(n.Type),
			Title:        n.Title,
			Message:      n.Message,
			IsRead:       n.IsRead,
			ScheduledFor: n.ScheduledFor,
			SentAt:       n.SentAt,
			CreatedAt:    n.CreatedAt,
		})
	}
	return out
}

type UnreadCountResponse struct {
	Unread int `json:"unread"`
}
