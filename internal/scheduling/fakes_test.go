package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// In-memory fakes for the service tests. The fake repository mirrors the
// persistence guarantees the real one provides: compare-and-set status
// updates, slot uniqueness on confirm, and an all-or-nothing cancel cascade.

type fakeRepo struct {
	patients map[uuid.UUID]*Patient
	requests map[uuid.UUID]*AppointmentRequest
	appts    map[uuid.UUID]*Appointment

	failCascade error // injected to prove cascade atomicity
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		patients: make(map[uuid.UUID]*Patient),
		requests: make(map[uuid.UUID]*AppointmentRequest),
		appts:    make(map[uuid.UUID]*Appointment),
	}
}

func (f *fakeRepo) addPatient(name, email string) *Patient {
	p := &Patient{ID: uuid.New(), Name: name, Email: email}
	f.patients[p.ID] = p
	return p
}

func copyRequest(r *AppointmentRequest) *AppointmentRequest {
	c := *r
	return &c
}

func copyAppointment(a *Appointment) *Appointment {
	c := *a
	return &c
}

func (f *fakeRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := f.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	c := *p
	return &c, nil
}

func (f *fakeRepo) GetRequestByID(_ context.Context, id uuid.UUID) (*AppointmentRequest, error) {
	r, ok := f.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return copyRequest(r), nil
}

func (f *fakeRepo) CreateRequest(_ context.Context, req *AppointmentRequest) (*AppointmentRequest, error) {
	now := time.Now().UTC()
	stored := copyRequest(req)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	f.requests[stored.ID] = stored
	return copyRequest(stored), nil
}

func (f *fakeRepo) UpdateRequestStatus(_ context.Context, id uuid.UUID, from, to RequestStatus) (*AppointmentRequest, error) {
	r, ok := f.requests[id]
	if !ok || r.Status != from {
		return nil, ErrRequestNotFound
	}
	r.Status = to
	now := time.Now().UTC()
	r.UpdatedAt = now
	switch to {
	case StatusConfirmed:
		r.ConfirmedAt = &now
	case StatusCancelled:
		r.CancelledAt = &now
	}
	return copyRequest(r), nil
}

func (f *fakeRepo) RescheduleRequest(_ context.Context, id uuid.UUID, from RequestStatus, date time.Time, timeOfDay string, notes *string) (*AppointmentRequest, error) {
	r, ok := f.requests[id]
	if !ok || r.Status != from {
		return nil, ErrRequestNotFound
	}
	r.RequestedDate = date
	r.RequestedTime = timeOfDay
	if notes != nil {
		r.Notes = notes
	}
	r.Status = StatusRescheduled
	now := time.Now().UTC()
	r.RescheduledAt = &now
	r.UpdatedAt = now
	return copyRequest(r), nil
}

func (f *fakeRepo) ListRequestsByStatus(_ context.Context, status *RequestStatus) ([]AppointmentRequest, error) {
	var out []AppointmentRequest
	for _, r := range f.requests {
		if status == nil || r.Status == *status {
			out = append(out, *copyRequest(r))
		}
	}
	return out, nil
}

func (f *fakeRepo) ListRequestsByPatient(_ context.Context, patientID uuid.UUID) ([]AppointmentRequest, error) {
	var out []AppointmentRequest
	for _, r := range f.requests {
		if r.PatientID == patientID {
			out = append(out, *copyRequest(r))
		}
	}
	return out, nil
}

func (f *fakeRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := f.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return copyAppointment(a), nil
}

func (f *fakeRepo) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	a, err := f.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &AppointmentDetail{Appointment: *a}
	if p, ok := f.patients[a.PatientID]; ok {
		c := *p
		detail.Patient = &c
	}
	for _, r := range f.requests {
		if r.AppointmentID != nil && *r.AppointmentID == id {
			detail.Requests = append(detail.Requests, *copyRequest(r))
		}
	}
	return detail, nil
}

func (f *fakeRepo) ListAppointmentsByDate(_ context.Context, date time.Time) ([]Appointment, error) {
	var out []Appointment
	for _, a := range f.appts {
		if a.Date.Equal(NormalizeDate(date)) {
			out = append(out, *copyAppointment(a))
		}
	}
	return out, nil
}

func (f *fakeRepo) ListConfirmedByPatient(_ context.Context, patientID uuid.UUID) ([]Appointment, error) {
	var out []Appointment
	for _, a := range f.appts {
		if a.PatientID == patientID && a.Status == AppointmentConfirmed {
			out = append(out, *copyAppointment(a))
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateAppointmentNotes(_ context.Context, id uuid.UUID, notes string) (*Appointment, error) {
	a, ok := f.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Notes = &notes
	return copyAppointment(a), nil
}

func (f *fakeRepo) SlotTaken(_ context.Context, date time.Time, timeOfDay string) (bool, error) {
	return f.slotTaken(date, timeOfDay, uuid.Nil), nil
}

func (f *fakeRepo) slotTaken(date time.Time, timeOfDay string, excluding uuid.UUID) bool {
	for _, a := range f.appts {
		if a.ID != excluding && a.Date.Equal(NormalizeDate(date)) && a.Time == timeOfDay && a.Status != AppointmentCancelled {
			return true
		}
	}
	return false
}

func (f *fakeRepo) OccupiedTimes(_ context.Context, date time.Time) ([]string, error) {
	var out []string
	for _, a := range f.appts {
		if a.Date.Equal(NormalizeDate(date)) && a.Status != AppointmentCancelled {
			out = append(out, a.Time)
		}
	}
	return out, nil
}

func (f *fakeRepo) ConfirmRequest(_ context.Context, req *AppointmentRequest) (*Appointment, error) {
	// Uniqueness constraint stand-in.
	if f.slotTaken(req.RequestedDate, req.RequestedTime, uuid.Nil) {
		return nil, ErrSlotConflict
	}
	stored, ok := f.requests[req.ID]
	if !ok || stored.Status != req.Status {
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC()
	appt := &Appointment{
		ID:        uuid.New(),
		PatientID: req.PatientID,
		Date:      req.RequestedDate,
		Time:      req.RequestedTime,
		Notes:     req.Notes,
		Status:    AppointmentConfirmed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.appts[appt.ID] = appt

	stored.Status = StatusConfirmed
	stored.AppointmentID = &appt.ID
	stored.ConfirmedAt = &now
	stored.UpdatedAt = now

	return copyAppointment(appt), nil
}

func (f *fakeRepo) ReinstateAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := f.appts[id]
	if !ok || a.Status != AppointmentCancelled {
		return nil, ErrAppointmentNotFound
	}
	if f.slotTaken(a.Date, a.Time, a.ID) {
		return nil, ErrSlotConflict
	}
	a.Status = AppointmentConfirmed
	return copyAppointment(a), nil
}

func (f *fakeRepo) CancelAppointmentCascade(_ context.Context, id uuid.UUID, note string) error {
	if f.failCascade != nil {
		return f.failCascade
	}
	a, ok := f.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.Status = AppointmentCancelled
	a.Notes = &note
	now := time.Now().UTC()
	for _, r := range f.requests {
		if r.AppointmentID != nil && *r.AppointmentID == id {
			r.Status = StatusCancelled
			n := note
			r.Notes = &n
			r.CancelledAt = &now
		}
	}
	return nil
}

// fakeSink records which workflow notifications fired, and can fail on demand
// to prove failures never surface to the caller.
type fakeSink struct {
	events []string
	err    error
}

func (s *fakeSink) record(event string) error {
	s.events = append(s.events, event)
	return s.err
}

func (s *fakeSink) RequestReceived(context.Context, *AppointmentRequest) error {
	return s.record("request_received")
}

func (s *fakeSink) AppointmentConfirmed(context.Context, *AppointmentRequest, *Appointment) error {
	return s.record("confirmed")
}

func (s *fakeSink) AppointmentReminder(context.Context, *AppointmentRequest, *Appointment) error {
	return s.record("reminder")
}

func (s *fakeSink) RequestRejected(context.Context, *AppointmentRequest) error {
	return s.record("rejected")
}

func (s *fakeSink) AppointmentCancelledNotice(context.Context, uuid.UUID, time.Time, string, string) error {
	return s.record("cancelled")
}

func (s *fakeSink) AppointmentRescheduled(context.Context, *AppointmentRequest, time.Time, string) error {
	return s.record("rescheduled")
}

// passLocker runs the critical section inline, like an uncontended lock.
type passLocker struct{}

func (passLocker) WithSlotLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var errInjected = errors.New("injected failure")
