package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrRequestNotFound     = errors.New("appointment request not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrSlotConflict        = errors.New("slot already occupied by a non-cancelled appointment")
	ErrOutsideWorkingHours = errors.New("time is outside clinic working hours")
	ErrValidation          = errors.New("invalid appointment request")
	ErrForbidden           = errors.New("actor does not own this appointment")
	ErrSlotBeingBooked     = errors.New("slot is currently being booked, please retry")
)

// Repository contains all DB interactions needed by the scheduling service.
// Write methods that change more than one row are atomic.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetRequestByID(ctx context.Context, id uuid.UUID) (*AppointmentRequest, error)
	CreateRequest(ctx context.Context, req *AppointmentRequest) (*AppointmentRequest, error)
	// UpdateRequestStatus transitions a request from one status to another,
	// stamping the matching timestamp column. The from-status acts as a
	// compare-and-set guard; a miss reports ErrRequestNotFound.
	UpdateRequestStatus(ctx context.Context, id uuid.UUID, from, to RequestStatus) (*AppointmentRequest, error)
	// RescheduleRequest moves a request to a new slot with status RESCHEDULED.
	// A nil notes pointer keeps the existing notes.
	RescheduleRequest(ctx context.Context, id uuid.UUID, from RequestStatus, date time.Time, timeOfDay string, notes *string) (*AppointmentRequest, error)
	ListRequestsByStatus(ctx context.Context, status *RequestStatus) ([]AppointmentRequest, error)
	ListRequestsByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentRequest, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointmentsByDate(ctx context.Context, date time.Time) ([]Appointment, error)
	ListConfirmedByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
	UpdateAppointmentNotes(ctx context.Context, id uuid.UUID, notes string) (*Appointment, error)

	// Conflict checks. SlotTaken ignores cancelled appointments and is never
	// scoped by patient: two patients contending for one slot is the conflict
	// that matters.
	SlotTaken(ctx context.Context, date time.Time, timeOfDay string) (bool, error)
	OccupiedTimes(ctx context.Context, date time.Time) ([]string, error)

	// ConfirmRequest atomically creates the CONFIRMED appointment for a
	// request and links it, guarded by the request's current status. The slot
	// uniqueness constraint converts a lost check-then-act race into
	// ErrSlotConflict.
	ConfirmRequest(ctx context.Context, req *AppointmentRequest) (*Appointment, error)
	// ReinstateAppointment flips a cancelled appointment back to CONFIRMED,
	// subject to the same slot uniqueness constraint.
	ReinstateAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// CancelAppointmentCascade cancels an appointment and every request
	// linked to it in one transaction, writing the same note to all of them.
	CancelAppointmentCascade(ctx context.Context, id uuid.UUID, note string) error
}
