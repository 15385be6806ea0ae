package notification

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeGeneral     Type = "GENERAL"
	TypeConfirmed   Type = "APPOINTMENT_CONFIRMED"
	TypeReminder    Type = "APPOINTMENT_REMINDER"
	TypeCancelled   Type = "APPOINTMENT_CANCELLED"
	TypeRescheduled Type = "APPOINTMENT_RESCHEDULED"
)

// Notification is a message addressed to a patient. A nil ScheduledFor means
// "send now"; SentAt is stamped once delivery has been attempted, regardless
// of the outcome.
type Notification struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	RequestID    *uuid.UUID // originating appointment request, when there is one
	Type         Type
	Title        string
	Message      string
	IsRead       bool
	ScheduledFor *time.Time
	SentAt       *time.Time
	CreatedAt    time.Time
}
