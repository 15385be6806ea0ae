package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type RequestStatus string

const (
	StatusPending     RequestStatus = "PENDING"
	StatusConfirmed   RequestStatus = "CONFIRMED"
	StatusCancelled   RequestStatus = "CANCELLED"
	StatusRescheduled RequestStatus = "RESCHEDULED"
)

type AppointmentStatus string

const (
	AppointmentConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
)

// Role identifies the kind of principal performing an operation. Tokens are
// parsed upstream; the core only ever sees a resolved actor.
type Role string

const (
	RoleAdmin   Role = "admin"
	RolePatient Role = "patient"
)

type Actor struct {
	Role      Role
	PatientID uuid.UUID
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type Patient struct {
	ID            uuid.UUID
	Name          string
	Email         string
	Phone         string
	NationalID    string
	BirthDate     *time.Time
	Address       *string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AppointmentRequest is a patient's unconfirmed ask for a slot. It is the sole
// owner of the workflow status; an Appointment only exists once an admin
// approves the request.
type AppointmentRequest struct {
	ID            uuid.UUID
	PatientID     uuid.UUID
	RequestedDate time.Time // calendar date, UTC midnight
	RequestedTime string    // "HH:MM", 30-minute aligned
	Notes         *string
	Status        RequestStatus
	AppointmentID *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ConfirmedAt   *time.Time
	CancelledAt   *time.Time
	RescheduledAt *time.Time
	CompletedAt   *time.Time
}

type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	Date      time.Time // calendar date, UTC midnight
	Time      string    // "HH:MM"
	Notes     *string
	Status    AppointmentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppointmentDetail is an Appointment hydrated with its patient and the
// requests that produced or touched it.
type AppointmentDetail struct {
	Appointment
	Patient  *Patient
	Requests []AppointmentRequest
}

// NormalizeDate strips the time-of-day component, pinning the calendar date to
// UTC midnight. All dates are stored and compared this way.
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SlotInstant combines a normalized date and an "HH:MM" time-of-day into a
// single UTC instant. Invalid times map to the date's midnight.
func SlotInstant(date time.Time, timeOfDay string) time.Time {
	mins, err := parseClockTime(timeOfDay)
	if err != nil {
		return NormalizeDate(date)
	}
	return NormalizeDate(date).Add(time.Duration(mins) * time.Minute)
}
