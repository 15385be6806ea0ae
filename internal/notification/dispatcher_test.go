package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clinicdesk/appointment-backend/internal/clock"
	"github.com/clinicdesk/appointment-backend/internal/scheduling"
)

var testNow = time.Date(2025, 11, 15, 9, 0, 0, 0, time.UTC)

type fakeNotificationRepo struct {
	byID   map[uuid.UUID]*Notification
	emails map[uuid.UUID]string
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{
		byID:   make(map[uuid.UUID]*Notification),
		emails: make(map[uuid.UUID]string),
	}
}

// Insert mirrors the partial unique index on (patient_id, type, request_id):
// only confirmations and reminders collide, everything else is repeatable.
func (f *fakeNotificationRepo) Insert(_ context.Context, n *Notification) (*Notification, error) {
	if n.RequestID != nil && (n.Type == TypeConfirmed || n.Type == TypeReminder) {
		for _, existing := range f.byID {
			if existing.PatientID == n.PatientID && existing.Type == n.Type &&
				existing.RequestID != nil && *existing.RequestID == *n.RequestID {
				return nil, ErrDuplicateNotification
			}
		}
	}

	stored := *n
	stored.CreatedAt = testNow
	f.byID[stored.ID] = &stored
	c := stored
	return &c, nil
}

func (f *fakeNotificationRepo) FindByRequest(_ context.Context, patientID uuid.UUID, typ Type, requestID uuid.UUID) (*Notification, error) {
	for _, n := range f.byID {
		if n.PatientID == patientID && n.Type == typ && n.RequestID != nil && *n.RequestID == requestID {
			c := *n
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeNotificationRepo) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	n, ok := f.byID[id]
	if !ok {
		return ErrNotificationNotFound
	}
	n.SentAt = &at
	return nil
}

func (f *fakeNotificationRepo) ClaimDue(_ context.Context, now time.Time) ([]Notification, error) {
	var out []Notification
	for _, n := range f.byID {
		if n.SentAt == nil && n.ScheduledFor != nil && !n.ScheduledFor.After(now) {
			at := now
			n.SentAt = &at
			out = append(out, *n)
		}
	}
	return out, nil
}

func (f *fakeNotificationRepo) PatientEmail(_ context.Context, patientID uuid.UUID) (string, error) {
	email, ok := f.emails[patientID]
	if !ok {
		return "", errors.New("no such patient")
	}
	return email, nil
}

func (f *fakeNotificationRepo) ListByPatient(_ context.Context, patientID uuid.UUID, _ int) ([]Notification, error) {
	var out []Notification
	for _, n := range f.byID {
		if n.PatientID == patientID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (f *fakeNotificationRepo) MarkRead(_ context.Context, id, patientID uuid.UUID) error {
	n, ok := f.byID[id]
	if !ok || n.PatientID != patientID {
		return ErrNotificationNotFound
	}
	n.IsRead = true
	return nil
}

func (f *fakeNotificationRepo) MarkAllRead(_ context.Context, patientID uuid.UUID) error {
	for _, n := range f.byID {
		if n.PatientID == patientID {
			n.IsRead = true
		}
	}
	return nil
}

func (f *fakeNotificationRepo) CountUnread(_ context.Context, patientID uuid.UUID) (int, error) {
	count := 0
	for _, n := range f.byID {
		if n.PatientID == patientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (f *fakeNotificationRepo) Delete(_ context.Context, id, patientID uuid.UUID) error {
	n, ok := f.byID[id]
	if !ok || n.PatientID != patientID {
		return ErrNotificationNotFound
	}
	delete(f.byID, id)
	return nil
}

type sentMail struct {
	to      string
	subject string
}

type fakeSender struct {
	sent []sentMail
	err  error
}

func (s *fakeSender) Send(_ context.Context, to, subject, _, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, sentMail{to: to, subject: subject})
	return "msg-" + to, nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeNotificationRepo, *fakeSender) {
	t.Helper()

	repo := newFakeNotificationRepo()
	sender := &fakeSender{}
	d := NewDispatcher(repo, sender, clock.Fixed{T: testNow}, zaptest.NewLogger(t))
	return d, repo, sender
}

func addPatient(repo *fakeNotificationRepo, email string) uuid.UUID {
	id := uuid.New()
	repo.emails[id] = email
	return id
}

func TestCreate_ImmediateDelivery(t *testing.T) {
	d, repo, sender := newTestDispatcher(t)
	patientID := addPatient(repo, "ana@example.com")

	n, err := d.Create(context.Background(), CreateParams{
		PatientID: patientID,
		Type:      TypeGeneral,
		Title:     "Hello",
		Message:   "World",
	})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ana@example.com", sender.sent[0].to)
	assert.Equal(t, "Hello", sender.sent[0].subject)
	require.NotNil(t, n.SentAt)
	assert.Equal(t, testNow, *n.SentAt)
}

func TestCreate_ScheduledIsNotSentImmediately(t *testing.T) {
	d, _, sender := newTestDispatcher(t)
	later := testNow.Add(time.Hour)

	n, err := d.Create(context.Background(), CreateParams{
		PatientID:    uuid.New(),
		Type:         TypeReminder,
		Title:        "Reminder",
		Message:      "Soon",
		ScheduledFor: &later,
	})
	require.NoError(t, err)

	assert.Empty(t, sender.sent)
	assert.Nil(t, n.SentAt)
}

func TestCreate_DeliveryFailureIsSwallowed(t *testing.T) {
	d, repo, sender := newTestDispatcher(t)
	sender.err = errors.New("smtp down")
	patientID := addPatient(repo, "ana@example.com")

	n, err := d.Create(context.Background(), CreateParams{
		PatientID: patientID,
		Type:      TypeGeneral,
		Title:     "Hello",
		Message:   "World",
	})
	require.NoError(t, err)

	// Attempted and stamped even though the send failed.
	assert.NotNil(t, n.SentAt)
}

func TestCreate_Dedupe(t *testing.T) {
	d, repo, sender := newTestDispatcher(t)
	patientID := addPatient(repo, "ana@example.com")
	requestID := uuid.New()

	params := CreateParams{
		PatientID: patientID,
		RequestID: &requestID,
		Type:      TypeConfirmed,
		Title:     "Appointment confirmed",
		Message:   "See you",
		Dedupe:    true,
	}

	first, err := d.Create(context.Background(), params)
	require.NoError(t, err)

	second, err := d.Create(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, sender.sent, 1)
	assert.Len(t, repo.byID, 1)
}

func TestCreate_DedupeIsPerTypeAndRequest(t *testing.T) {
	d, repo, _ := newTestDispatcher(t)
	patientID := addPatient(repo, "ana@example.com")
	requestID := uuid.New()

	_, err := d.Create(context.Background(), CreateParams{
		PatientID: patientID, RequestID: &requestID, Type: TypeConfirmed,
		Title: "a", Message: "b", Dedupe: true,
	})
	require.NoError(t, err)

	// Same request, different type: a new row.
	later := testNow.Add(time.Hour)
	_, err = d.Create(context.Background(), CreateParams{
		PatientID: patientID, RequestID: &requestID, Type: TypeReminder,
		Title: "a", Message: "b", ScheduledFor: &later, Dedupe: true,
	})
	require.NoError(t, err)

	assert.Len(t, repo.byID, 2)
}

func TestAppointmentRescheduled_EveryMoveNotifies(t *testing.T) {
	d, repo, sender := newTestDispatcher(t)
	patientID := addPatient(repo, "ana@example.com")

	req := &scheduling.AppointmentRequest{
		ID:            uuid.New(),
		PatientID:     patientID,
		RequestedDate: time.Date(2025, 12, 2, 0, 0, 0, 0, time.UTC),
		RequestedTime: "11:00",
	}

	firstOldDate := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, d.AppointmentRescheduled(context.Background(), req, firstOldDate, "10:00"))

	// The request is moved a second time; the patient must hear about it too.
	secondOldDate := req.RequestedDate
	req.RequestedDate = time.Date(2025, 12, 3, 0, 0, 0, 0, time.UTC)
	req.RequestedTime = "14:30"
	require.NoError(t, d.AppointmentRescheduled(context.Background(), req, secondOldDate, "11:00"))

	assert.Len(t, sender.sent, 2)
	assert.Len(t, repo.byID, 2)
	for _, n := range repo.byID {
		assert.Equal(t, TypeRescheduled, n.Type)
	}
}

// racingRepo simulates losing the check-then-insert race: the dedupe lookup
// misses once, then the insert collides with the concurrently created row.
type racingRepo struct {
	*fakeNotificationRepo
	missedOnce bool
}

func (r *racingRepo) FindByRequest(ctx context.Context, patientID uuid.UUID, typ Type, requestID uuid.UUID) (*Notification, error) {
	if !r.missedOnce {
		r.missedOnce = true
		return nil, nil
	}
	return r.fakeNotificationRepo.FindByRequest(ctx, patientID, typ, requestID)
}

func TestCreate_InsertRaceReturnsExisting(t *testing.T) {
	inner := newFakeNotificationRepo()
	repo := &racingRepo{fakeNotificationRepo: inner}
	sender := &fakeSender{}
	d := NewDispatcher(repo, sender, clock.Fixed{T: testNow}, zaptest.NewLogger(t))

	patientID := addPatient(inner, "ana@example.com")
	requestID := uuid.New()

	winner, err := inner.Insert(context.Background(), &Notification{
		ID:        uuid.New(),
		PatientID: patientID,
		RequestID: &requestID,
		Type:      TypeConfirmed,
		Title:     "Appointment confirmed",
		Message:   "See you",
	})
	require.NoError(t, err)

	got, err := d.Create(context.Background(), CreateParams{
		PatientID: patientID,
		RequestID: &requestID,
		Type:      TypeConfirmed,
		Title:     "Appointment confirmed",
		Message:   "See you",
		Dedupe:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, winner.ID, got.ID)
	assert.Len(t, inner.byID, 1)
	assert.Empty(t, sender.sent)
}

func TestAppointmentReminder_ScheduledDayBefore(t *testing.T) {
	d, repo, sender := newTestDispatcher(t)
	patientID := addPatient(repo, "ana@example.com")

	date := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	req := &scheduling.AppointmentRequest{ID: uuid.New(), PatientID: patientID}
	appt := &scheduling.Appointment{ID: uuid.New(), PatientID: patientID, Date: date, Time: "10:00"}

	require.NoError(t, d.AppointmentReminder(context.Background(), req, appt))

	require.Len(t, repo.byID, 1)
	for _, n := range repo.byID {
		require.NotNil(t, n.ScheduledFor)
		assert.Equal(t, time.Date(2025, 11, 30, 10, 0, 0, 0, time.UTC), *n.ScheduledFor)
		assert.Equal(t, TypeReminder, n.Type)
	}
	assert.Empty(t, sender.sent)
}

func TestProcessDue(t *testing.T) {
	d, repo, sender := newTestDispatcher(t)
	patientID := addPatient(repo, "ana@example.com")

	due := testNow.Add(-time.Minute)
	notDue := testNow.Add(time.Hour)

	_, err := d.Create(context.Background(), CreateParams{
		PatientID: patientID, Type: TypeReminder, Title: "due", Message: "m", ScheduledFor: &due,
	})
	require.NoError(t, err)
	_, err = d.Create(context.Background(), CreateParams{
		PatientID: patientID, Type: TypeReminder, Title: "later", Message: "m", ScheduledFor: &notDue,
	})
	require.NoError(t, err)

	count, err := d.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "due", sender.sent[0].subject)

	// Second sweep finds nothing: the row was claimed.
	count, err = d.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Len(t, sender.sent, 1)
}

func TestProcessDue_SendFailureStillClaims(t *testing.T) {
	d, repo, sender := newTestDispatcher(t)
	patientID := addPatient(repo, "ana@example.com")
	sender.err = errors.New("ses throttled")

	due := testNow.Add(-time.Minute)
	_, err := d.Create(context.Background(), CreateParams{
		PatientID: patientID, Type: TypeReminder, Title: "due", Message: "m", ScheduledFor: &due,
	})
	require.NoError(t, err)

	count, err := d.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReadState(t *testing.T) {
	d, repo, _ := newTestDispatcher(t)
	patientID := addPatient(repo, "ana@example.com")

	n, err := d.Create(context.Background(), CreateParams{
		PatientID: patientID, Type: TypeGeneral, Title: "t", Message: "m",
	})
	require.NoError(t, err)

	count, err := d.UnreadCount(context.Background(), patientID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, d.MarkRead(context.Background(), n.ID, patientID))

	count, err = d.UnreadCount(context.Background(), patientID)
	require.NoError(t, err)
	assert.Zero(t, count)

	// A patient cannot delete someone else's notification.
	err = d.Delete(context.Background(), n.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotificationNotFound)

	require.NoError(t, d.Delete(context.Background(), n.ID, patientID))
	list, err := d.ListForPatient(context.Background(), patientID, 50)
	require.NoError(t, err)
	assert.Empty(t, list)
}
