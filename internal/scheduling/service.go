package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicdesk/appointment-backend/internal/clock"
	redisclient "github.com/clinicdesk/appointment-backend/internal/redis"
)

// NotificationSink receives workflow events for best-effort delivery. The
// dispatcher in internal/notification implements it; every call here happens
// after the owning transaction has committed, and a returned error is only
// ever logged.
type NotificationSink interface {
	RequestReceived(ctx context.Context, req *AppointmentRequest) error
	AppointmentConfirmed(ctx context.Context, req *AppointmentRequest, appt *Appointment) error
	AppointmentReminder(ctx context.Context, req *AppointmentRequest, appt *Appointment) error
	RequestRejected(ctx context.Context, req *AppointmentRequest) error
	AppointmentCancelledNotice(ctx context.Context, patientID uuid.UUID, date time.Time, timeOfDay, reason string) error
	AppointmentRescheduled(ctx context.Context, req *AppointmentRequest, oldDate time.Time, oldTime string) error
}

// Service owns the appointment request state machine:
//
//	PENDING ─approve──> CONFIRMED (terminal)
//	PENDING ─reject───> CANCELLED (terminal)
//	PENDING ─reschedule──> RESCHEDULED ─approve/reject/reschedule──> (as above)
//
// CONFIRMED and CANCELLED reject any further transition with
// ErrInvalidTransition rather than silently no-opping.
type Service struct {
	repo   Repository
	locker redisclient.Locker
	notify NotificationSink
	clk    clock.Clock
	log    *zap.Logger
}

func NewService(repo Repository, locker redisclient.Locker, notify NotificationSink, clk clock.Clock, log *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		notify: notify,
		clk:    clk,
		log:    log,
	}
}

type CreateRequestParams struct {
	PatientID uuid.UUID
	Date      time.Time
	Time      string
	Notes     *string
}

// CreateRequest registers a patient's ask for a slot. Availability and
// working hours are deliberately not checked here: the admin approval step
// owns those, so a patient may request an already-taken slot and learn about
// the conflict when the request is reviewed.
func (s *Service) CreateRequest(ctx context.Context, p CreateRequestParams) (*AppointmentRequest, error) {
	if p.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient id is required", ErrValidation)
	}
	if p.Date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrValidation)
	}
	if p.Time == "" {
		return nil, fmt.Errorf("%w: time is required", ErrValidation)
	}
	if !ValidSlotTime(p.Time) {
		return nil, fmt.Errorf("%w: time %q is not a valid 30-minute slot", ErrValidation, p.Time)
	}

	if _, err := s.repo.GetPatientByID(ctx, p.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	req := &AppointmentRequest{
		ID:            uuid.New(),
		PatientID:     p.PatientID,
		RequestedDate: NormalizeDate(p.Date),
		RequestedTime: p.Time,
		Notes:         p.Notes,
		Status:        StatusPending,
	}

	created, err := s.repo.CreateRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create appointment request: %w", err)
	}

	if err := s.notify.RequestReceived(ctx, created); err != nil {
		s.log.Warn("request-received notification failed",
			zap.String("request_id", created.ID.String()), zap.Error(err))
	}

	return created, nil
}

// ApproveRequest turns a pending (or rescheduled) request into a confirmed
// appointment. The slot must be globally free and inside working hours. The
// check-then-create sequence runs under a per-slot lock, and the partial
// unique index on (date, time) turns any remaining race into ErrSlotConflict.
func (s *Service) ApproveRequest(ctx context.Context, requestID uuid.UUID) (*Appointment, error) {
	req, err := s.repo.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status == StatusConfirmed || req.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: request is already %s", ErrInvalidTransition, req.Status)
	}

	var appt *Appointment

	err = s.locker.WithSlotLock(ctx, redisclient.SlotKey(req.RequestedDate, req.RequestedTime), func(lockCtx context.Context) error {
		taken, err := s.repo.SlotTaken(lockCtx, req.RequestedDate, req.RequestedTime)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotConflict
		}
		if !WithinWorkingHours(req.RequestedTime) {
			return ErrOutsideWorkingHours
		}

		appt, err = s.repo.ConfirmRequest(lockCtx, req)
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	if err := s.notify.AppointmentConfirmed(ctx, req, appt); err != nil {
		s.log.Warn("confirmation notification failed",
			zap.String("appointment_id", appt.ID.String()), zap.Error(err))
	}
	if err := s.notify.AppointmentReminder(ctx, req, appt); err != nil {
		s.log.Warn("reminder scheduling failed",
			zap.String("appointment_id", appt.ID.String()), zap.Error(err))
	}

	return appt, nil
}

// RejectRequest cancels a request without creating an appointment.
func (s *Service) RejectRequest(ctx context.Context, requestID uuid.UUID) (*AppointmentRequest, error) {
	req, err := s.repo.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status == StatusCancelled || req.Status == StatusConfirmed {
		return nil, fmt.Errorf("%w: request is already %s", ErrInvalidTransition, req.Status)
	}

	updated, err := s.repo.UpdateRequestStatus(ctx, req.ID, req.Status, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			// Read succeeded moments ago, so the status moved underneath us.
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("reject request: %w", err)
	}

	if err := s.notify.RequestRejected(ctx, updated); err != nil {
		s.log.Warn("rejection notification failed",
			zap.String("request_id", updated.ID.String()), zap.Error(err))
	}

	return updated, nil
}

type RescheduleParams struct {
	NewDate time.Time
	NewTime string
	Notes   *string // nil keeps the existing notes
}

// RescheduleRequest moves a request to a new slot. The new slot must be
// strictly in the future, free, and inside working hours. RESCHEDULED is
// re-enterable: the request keeps accepting approve/reject/reschedule.
func (s *Service) RescheduleRequest(ctx context.Context, requestID uuid.UUID, p RescheduleParams) (*AppointmentRequest, error) {
	req, err := s.repo.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status == StatusCancelled || req.Status == StatusConfirmed {
		return nil, fmt.Errorf("%w: request is already %s", ErrInvalidTransition, req.Status)
	}

	if p.NewDate.IsZero() || p.NewTime == "" {
		return nil, fmt.Errorf("%w: new date and time are required", ErrValidation)
	}
	if !ValidSlotTime(p.NewTime) {
		return nil, fmt.Errorf("%w: time %q is not a valid 30-minute slot", ErrValidation, p.NewTime)
	}

	newDate := NormalizeDate(p.NewDate)
	if !SlotInstant(newDate, p.NewTime).After(s.clk.Now()) {
		return nil, fmt.Errorf("%w: new slot must be in the future", ErrValidation)
	}

	var updated *AppointmentRequest

	err = s.locker.WithSlotLock(ctx, redisclient.SlotKey(newDate, p.NewTime), func(lockCtx context.Context) error {
		taken, err := s.repo.SlotTaken(lockCtx, newDate, p.NewTime)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotConflict
		}
		if !WithinWorkingHours(p.NewTime) {
			return ErrOutsideWorkingHours
		}

		updated, err = s.repo.RescheduleRequest(lockCtx, req.ID, req.Status, newDate, p.NewTime, p.Notes)
		if errors.Is(err, ErrRequestNotFound) {
			return ErrInvalidTransition
		}
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	if err := s.notify.AppointmentRescheduled(ctx, updated, req.RequestedDate, req.RequestedTime); err != nil {
		s.log.Warn("reschedule notification failed",
			zap.String("request_id", updated.ID.String()), zap.Error(err))
	}

	return updated, nil
}

// ConfirmBookedAppointment flips an existing appointment back to CONFIRMED.
// Confirming a request goes through ApproveRequest; the router decides which
// of the two entity types it holds instead of the core guessing.
func (s *Service) ConfirmBookedAppointment(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status == AppointmentConfirmed {
		return nil, fmt.Errorf("%w: appointment is already confirmed", ErrInvalidTransition)
	}

	// Reinstating a cancelled appointment re-occupies its slot, so it is
	// subject to the same uniqueness constraint as approval.
	updated, err := s.repo.ReinstateAppointment(ctx, appt.ID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	return updated, nil
}

// CancelAppointment cancels an appointment and cascades the cancellation to
// every request linked to it, atomically. Patients may only cancel their own
// appointments; admins may cancel any.
func (s *Service) CancelAppointment(ctx context.Context, appointmentID uuid.UUID, reason string, actor Actor) error {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return err
	}

	if !actor.IsAdmin() && appt.PatientID != actor.PatientID {
		return ErrForbidden
	}
	if appt.Status == AppointmentCancelled {
		return fmt.Errorf("%w: appointment is already cancelled", ErrInvalidTransition)
	}

	note := cancellationNote(reason, actor)
	if err := s.repo.CancelAppointmentCascade(ctx, appt.ID, note); err != nil {
		return err
	}

	if err := s.notify.AppointmentCancelledNotice(ctx, appt.PatientID, appt.Date, appt.Time, reason); err != nil {
		s.log.Warn("cancellation notification failed",
			zap.String("appointment_id", appt.ID.String()), zap.Error(err))
	}

	return nil
}

func cancellationNote(reason string, actor Actor) string {
	by := "admin"
	if !actor.IsAdmin() {
		by = "patient"
	}
	if reason == "" {
		return fmt.Sprintf("Cancelled by %s", by)
	}
	return fmt.Sprintf("Cancelled by %s: %s", by, reason)
}

// Queries

func (s *Service) ListPendingRequests(ctx context.Context) ([]AppointmentRequest, error) {
	status := StatusPending
	return s.repo.ListRequestsByStatus(ctx, &status)
}

// ListRequests returns requests filtered by status, or all of them when
// status is nil.
func (s *Service) ListRequests(ctx context.Context, status *RequestStatus) ([]AppointmentRequest, error) {
	return s.repo.ListRequestsByStatus(ctx, status)
}

func (s *Service) ListRequestsForPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentRequest, error) {
	return s.repo.ListRequestsByPatient(ctx, patientID)
}

func (s *Service) ListAppointmentsByDate(ctx context.Context, date time.Time) ([]Appointment, error) {
	return s.repo.ListAppointmentsByDate(ctx, date)
}

func (s *Service) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	return s.repo.GetAppointmentDetail(ctx, id)
}

func (s *Service) UpdateAppointmentNotes(ctx context.Context, id uuid.UUID, notes string) (*Appointment, error) {
	return s.repo.UpdateAppointmentNotes(ctx, id, notes)
}

// HistoryForPatient lists a patient's confirmed appointments, newest first.
// Patients may only read their own history.
func (s *Service) HistoryForPatient(ctx context.Context, patientID uuid.UUID, actor Actor) ([]Appointment, error) {
	if !actor.IsAdmin() && actor.PatientID != patientID {
		return nil, ErrForbidden
	}
	return s.repo.ListConfirmedByPatient(ctx, patientID)
}

// IsSlotFree reports global availability for a slot: no non-cancelled
// appointment of any patient may hold it.
func (s *Service) IsSlotFree(ctx context.Context, date time.Time, timeOfDay string) (bool, error) {
	taken, err := s.repo.SlotTaken(ctx, date, timeOfDay)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// AvailableSlots returns the daily grid minus every slot occupied by a
// non-cancelled appointment on that date.
func (s *Service) AvailableSlots(ctx context.Context, date time.Time) ([]string, error) {
	occupied, err := s.repo.OccupiedTimes(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load occupied slots: %w", err)
	}

	taken := make(map[string]struct{}, len(occupied))
	for _, t := range occupied {
		taken[t] = struct{}{}
	}

	grid := SlotGrid()
	free := make([]string, 0, len(grid))
	for _, slot := range grid {
		if _, ok := taken[slot]; !ok {
			free = append(free, slot)
		}
	}
	return free, nil
}
