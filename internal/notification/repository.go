package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	// ErrDuplicateNotification is returned by Insert when the row collides
	// with the (patient, type, request) dedupe key.
	ErrDuplicateNotification = errors.New("notification already exists")
)

// Repository contains all DB interactions needed by the dispatcher.
type Repository interface {
	Insert(ctx context.Context, n *Notification) (*Notification, error)
	// FindByRequest looks up an existing notification by its structured
	// dedupe key (patient, type, originating request). Returns nil, nil when
	// none exists.
	FindByRequest(ctx context.Context, patientID uuid.UUID, typ Type, requestID uuid.UUID) (*Notification, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	// ClaimDue atomically stamps sent_at on every due, unsent scheduled
	// notification and returns the claimed rows, so concurrent sweeps never
	// pick up the same row twice.
	ClaimDue(ctx context.Context, now time.Time) ([]Notification, error)

	// PatientEmail resolves the delivery address for a patient.
	PatientEmail(ctx context.Context, patientID uuid.UUID) (string, error)

	// Read-state bookkeeping.
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, id, patientID uuid.UUID) error
	MarkAllRead(ctx context.Context, patientID uuid.UUID) error
	CountUnread(ctx context.Context, patientID uuid.UUID) (int, error)
	Delete(ctx context.Context, id, patientID uuid.UUID) error
}
