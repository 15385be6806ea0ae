package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicdesk/appointment-backend/internal/clock"
	"github.com/clinicdesk/appointment-backend/internal/scheduling"
)

// Sender delivers a rendered notification to an address. Implementations live
// in internal/mailer; errors never propagate past the dispatcher.
type Sender interface {
	Send(ctx context.Context, to, subject, text, html string) (messageID string, err error)
}

const reminderLeadTime = 24 * time.Hour

// Dispatcher persists notifications and attempts best-effort delivery. A
// failed send is logged and swallowed: a state transition must never roll
// back because an email did not go out.
type Dispatcher struct {
	repo   Repository
	sender Sender
	clk    clock.Clock
	log    *zap.Logger
}

func NewDispatcher(repo Repository, sender Sender, clk clock.Clock, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:   repo,
		sender: sender,
		clk:    clk,
		log:    log,
	}
}

type CreateParams struct {
	PatientID    uuid.UUID
	RequestID    *uuid.UUID
	Type         Type
	Title        string
	Message      string
	ScheduledFor *time.Time
	// Dedupe skips creation when a notification with the same
	// (patient, type, request) key already exists.
	Dedupe bool
}

// Create persists a notification and, when it is not scheduled for later,
// immediately attempts delivery. SentAt is stamped whether or not the send
// succeeded.
func (d *Dispatcher) Create(ctx context.Context, p CreateParams) (*Notification, error) {
	if p.Dedupe && p.RequestID != nil {
		existing, err := d.repo.FindByRequest(ctx, p.PatientID, p.Type, *p.RequestID)
		if err != nil {
			return nil, fmt.Errorf("dedupe lookup: %w", err)
		}
		if existing != nil {
			d.log.Debug("notification already exists, skipping",
				zap.String("type", string(p.Type)),
				zap.String("request_id", p.RequestID.String()))
			return existing, nil
		}
	}

	n := &Notification{
		ID:           uuid.New(),
		PatientID:    p.PatientID,
		RequestID:    p.RequestID,
		Type:         p.Type,
		Title:        p.Title,
		Message:      p.Message,
		ScheduledFor: p.ScheduledFor,
	}

	n, err := d.repo.Insert(ctx, n)
	if err != nil {
		// A concurrent Create won the check-then-insert race. Behave like
		// the dedupe hit above and hand back the winner's row.
		if errors.Is(err, ErrDuplicateNotification) && p.RequestID != nil {
			existing, findErr := d.repo.FindByRequest(ctx, p.PatientID, p.Type, *p.RequestID)
			if findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("insert notification: %w", err)
	}

	if n.ScheduledFor == nil {
		d.deliver(ctx, n)
	}

	return n, nil
}

func (d *Dispatcher) deliver(ctx context.Context, n *Notification) {
	email, err := d.repo.PatientEmail(ctx, n.PatientID)
	if err != nil {
		d.log.Warn("could not resolve notification recipient",
			zap.String("notification_id", n.ID.String()), zap.Error(err))
	} else if _, err := d.sender.Send(ctx, email, n.Title, n.Message, renderHTML(n)); err != nil {
		d.log.Warn("notification delivery failed",
			zap.String("notification_id", n.ID.String()),
			zap.String("type", string(n.Type)),
			zap.Error(err))
	}

	now := d.clk.Now()
	if err := d.repo.MarkSent(ctx, n.ID, now); err != nil {
		d.log.Warn("could not mark notification sent",
			zap.String("notification_id", n.ID.String()), zap.Error(err))
		return
	}
	n.SentAt = &now
}

// ProcessDue sends every scheduled notification whose time has come. Rows are
// claimed (sent_at stamped) before sending, so repeated or concurrent sweeps
// never double-send. Delivery stays best-effort.
func (d *Dispatcher) ProcessDue(ctx context.Context) (int, error) {
	due, err := d.repo.ClaimDue(ctx, d.clk.Now())
	if err != nil {
		return 0, fmt.Errorf("claim due notifications: %w", err)
	}

	for i := range due {
		n := &due[i]
		email, err := d.repo.PatientEmail(ctx, n.PatientID)
		if err != nil {
			d.log.Warn("could not resolve scheduled notification recipient",
				zap.String("notification_id", n.ID.String()), zap.Error(err))
			continue
		}
		if _, err := d.sender.Send(ctx, email, n.Title, n.Message, renderHTML(n)); err != nil {
			d.log.Warn("scheduled notification delivery failed",
				zap.String("notification_id", n.ID.String()), zap.Error(err))
		}
	}

	return len(due), nil
}

// Read-state passthroughs used by the patient-facing notification endpoints.

func (d *Dispatcher) ListForPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]Notification, error) {
	return d.repo.ListByPatient(ctx, patientID, limit)
}

func (d *Dispatcher) MarkRead(ctx context.Context, id, patientID uuid.UUID) error {
	return d.repo.MarkRead(ctx, id, patientID)
}

func (d *Dispatcher) MarkAllRead(ctx context.Context, patientID uuid.UUID) error {
	return d.repo.MarkAllRead(ctx, patientID)
}

func (d *Dispatcher) UnreadCount(ctx context.Context, patientID uuid.UUID) (int, error) {
	return d.repo.CountUnread(ctx, patientID)
}

func (d *Dispatcher) Delete(ctx context.Context, id, patientID uuid.UUID) error {
	return d.repo.Delete(ctx, id, patientID)
}

// Builders wired into the scheduling state machine. These satisfy
// scheduling.NotificationSink.

func (d *Dispatcher) RequestReceived(ctx context.Context, req *scheduling.AppointmentRequest) error {
	reqID := req.ID
	_, err := d.Create(ctx, CreateParams{
		PatientID: req.PatientID,
		RequestID: &reqID,
		Type:      TypeGeneral,
		Title:     "Appointment request received",
		Message: fmt.Sprintf(
			"Your appointment request for %s at %s was submitted successfully.%s You will be notified as soon as it is reviewed.",
			formatDate(req.RequestedDate), req.RequestedTime, procedureLine(req.Notes)),
	})
	return err
}

func (d *Dispatcher) AppointmentConfirmed(ctx context.Context, req *scheduling.AppointmentRequest, appt *scheduling.Appointment) error {
	reqID := req.ID
	_, err := d.Create(ctx, CreateParams{
		PatientID: appt.PatientID,
		RequestID: &reqID,
		Type:      TypeConfirmed,
		Title:     "Appointment confirmed",
		Message: fmt.Sprintf(
			"Your appointment was confirmed for %s at %s.%s We look forward to seeing you!",
			formatDate(appt.Date), appt.Time, procedureLine(appt.Notes)),
		Dedupe: true,
	})
	return err
}

func (d *Dispatcher) AppointmentReminder(ctx context.Context, req *scheduling.AppointmentRequest, appt *scheduling.Appointment) error {
	reqID := req.ID
	remindAt := scheduling.SlotInstant(appt.Date, appt.Time).Add(-reminderLeadTime)
	_, err := d.Create(ctx, CreateParams{
		PatientID: appt.PatientID,
		RequestID: &reqID,
		Type:      TypeReminder,
		Title:     "Reminder: your appointment is tomorrow",
		Message: fmt.Sprintf(
			"This is a reminder that you have an appointment tomorrow (%s) at %s.%s Don't forget!",
			formatDate(appt.Date), appt.Time, procedureLine(appt.Notes)),
		ScheduledFor: &remindAt,
		Dedupe:       true,
	})
	return err
}

func (d *Dispatcher) RequestRejected(ctx context.Context, req *scheduling.AppointmentRequest) error {
	reqID := req.ID
	_, err := d.Create(ctx, CreateParams{
		PatientID: req.PatientID,
		RequestID: &reqID,
		Type:      TypeCancelled,
		Title:     "Appointment request update",
		Message: fmt.Sprintf(
			"Unfortunately your appointment request for %s at %s could not be confirmed. Please contact the clinic to arrange another time.",
			formatDate(req.RequestedDate), req.RequestedTime),
	})
	return err
}

func (d *Dispatcher) AppointmentCancelledNotice(ctx context.Context, patientID uuid.UUID, date time.Time, timeOfDay, reason string) error {
	msg := fmt.Sprintf("Your appointment on %s at %s has been cancelled.", formatDate(date), timeOfDay)
	if reason != "" {
		msg += " Reason: " + reason
	}
	_, err := d.Create(ctx, CreateParams{
		PatientID: patientID,
		Type:      TypeCancelled,
		Title:     "Appointment cancelled",
		Message:   msg,
	})
	return err
}

func (d *Dispatcher) AppointmentRescheduled(ctx context.Context, req *scheduling.AppointmentRequest, oldDate time.Time, oldTime string) error {
	reqID := req.ID
	_, err := d.Create(ctx, CreateParams{
		PatientID: req.PatientID,
		RequestID: &reqID,
		Type:      TypeRescheduled,
		Title:     "Appointment rescheduled",
		Message: fmt.Sprintf(
			"Your appointment originally requested for %s at %s was moved to %s at %s.",
			formatDate(oldDate), oldTime, formatDate(req.RequestedDate), req.RequestedTime),
	})
	return err
}

func formatDate(d time.Time) string {
	return d.Format("2006-01-02")
}

func procedureLine(notes *string) string {
	if notes == nil || *notes == "" {
		return ""
	}
	return " Procedure: " + *notes + "."
}

func renderHTML(n *Notification) string {
	return fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #800000;">%s</h2>
  <p>%s</p>
  <hr style="border: 1px solid #eee; margin: 20px 0;">
  <p style="color: #666; font-size: 12px;">Clinic notification service</p>
</div>`, n.Title, n.Message)
}
