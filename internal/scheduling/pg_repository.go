package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const requestColumns = `id, patient_id, requested_date, requested_time, notes, status, appointment_id,
	created_at, updated_at, confirmed_at, cancelled_at, rescheduled_at, completed_at`

const appointmentColumns = `id, patient_id, date, time, notes, status, created_at, updated_at`

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.NationalID,
		&p.BirthDate,
		&p.Address,
		&p.EmailVerified,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanRequest(row pgx.Row) (*AppointmentRequest, error) {
	var r AppointmentRequest

	err := row.Scan(
		&r.ID,
		&r.PatientID,
		&r.RequestedDate,
		&r.RequestedTime,
		&r.Notes,
		&r.Status,
		&r.AppointmentID,
		&r.CreatedAt,
		&r.UpdatedAt,
		&r.ConfirmedAt,
		&r.CancelledAt,
		&r.RescheduledAt,
		&r.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}

	r.RequestedDate = NormalizeDate(r.RequestedDate)
	return &r, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.Date,
		&a.Time,
		&a.Notes,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = NormalizeDate(a.Date)
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, national_id, birth_date, address, email_verified, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetRequestByID(ctx context.Context, id uuid.UUID) (*AppointmentRequest, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM appointment_requests
		WHERE id = $1
	`, id)
	return scanRequest(row)
}

func (r *PgRepository) CreateRequest(ctx context.Context, req *AppointmentRequest) (*AppointmentRequest, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointment_requests (id, patient_id, requested_date, requested_time, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING `+requestColumns+`
	`, req.ID, req.PatientID, req.RequestedDate, req.RequestedTime, req.Notes, req.Status)
	return scanRequest(row)
}

func (r *PgRepository) UpdateRequestStatus(ctx context.Context, id uuid.UUID, from, to RequestStatus) (*AppointmentRequest, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointment_requests
		SET status = $2,
		    updated_at = now(),
		    confirmed_at = CASE WHEN $2 = 'CONFIRMED' THEN now() ELSE confirmed_at END,
		    cancelled_at = CASE WHEN $2 = 'CANCELLED' THEN now() ELSE cancelled_at END
		WHERE id = $1
		  AND status = $3
		RETURNING `+requestColumns+`
	`, id, to, from)
	return scanRequest(row)
}

func (r *PgRepository) RescheduleRequest(ctx context.Context, id uuid.UUID, from RequestStatus, date time.Time, timeOfDay string, notes *string) (*AppointmentRequest, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointment_requests
		SET requested_date = $2,
		    requested_time = $3,
		    notes = COALESCE($4, notes),
		    status = 'RESCHEDULED',
		    rescheduled_at = now(),
		    updated_at = now()
		WHERE id = $1
		  AND status = $5
		RETURNING `+requestColumns+`
	`, id, date, timeOfDay, notes, from)
	return scanRequest(row)
}

func (r *PgRepository) ListRequestsByStatus(ctx context.Context, status *RequestStatus) ([]AppointmentRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+`
		FROM appointment_requests
		WHERE $1::text IS NULL OR status = $1
		ORDER BY requested_date ASC, requested_time ASC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRequests(rows)
}

func (r *PgRepository) ListRequestsByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+`
		FROM appointment_requests
		WHERE patient_id = $1
		ORDER BY requested_date ASC, requested_time ASC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRequests(rows)
}

func collectRequests(rows pgx.Rows) ([]AppointmentRequest, error) {
	var result []AppointmentRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	patient, err := r.GetPatientByID(ctx, appt.PatientID)
	if err != nil && !errors.Is(err, ErrPatientNotFound) {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+`
		FROM appointment_requests
		WHERE appointment_id = $1
		ORDER BY created_at ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests, err := collectRequests(rows)
	if err != nil {
		return nil, err
	}

	return &AppointmentDetail{
		Appointment: *appt,
		Patient:     patient,
		Requests:    requests,
	}, nil
}

func (r *PgRepository) ListAppointmentsByDate(ctx context.Context, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE date = $1
		ORDER BY time ASC
	`, NormalizeDate(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListConfirmedByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND status = 'CONFIRMED'
		ORDER BY date DESC, time DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) UpdateAppointmentNotes(ctx context.Context, id uuid.UUID, notes string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET notes = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, notes)
	return scanAppointment(row)
}

func (r *PgRepository) SlotTaken(ctx context.Context, date time.Time, timeOfDay string) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE date = $1
			  AND time = $2
			  AND status <> 'CANCELLED'
		)
	`, NormalizeDate(date), timeOfDay).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check slot occupancy: %w", err)
	}
	return taken, nil
}

func (r *PgRepository) OccupiedTimes(ctx context.Context, date time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT time
		FROM appointments
		WHERE date = $1
		  AND status <> 'CANCELLED'
		ORDER BY time ASC
	`, NormalizeDate(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return times, nil
}

func (r *PgRepository) ConfirmRequest(ctx context.Context, req *AppointmentRequest) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin confirm tx: %w", err)
	}
	defer tx.Rollback(ctx)

	apptID := uuid.New()

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, date, time, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'CONFIRMED', now(), now())
		RETURNING `+appointmentColumns+`
	`, apptID, req.PatientID, req.RequestedDate, req.RequestedTime, req.Notes)

	appt, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotConflict
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE appointment_requests
		SET status = 'CONFIRMED',
		    appointment_id = $2,
		    confirmed_at = now(),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
	`, req.ID, appt.ID, req.Status)
	if err != nil {
		return nil, fmt.Errorf("link request to appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Someone transitioned the request between read and write.
		return nil, ErrInvalidTransition
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit confirm tx: %w", err)
	}

	return appt, nil
}

func (r *PgRepository) ReinstateAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'CONFIRMED',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'CANCELLED'
		RETURNING `+appointmentColumns+`
	`, id)

	appt, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) CancelAppointmentCascade(ctx context.Context, id uuid.UUID, note string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin cancel tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'CANCELLED',
		    notes = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, note)
	if err != nil {
		return fmt.Errorf("cancel appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}

	_, err = tx.Exec(ctx, `
		UPDATE appointment_requests
		SET status = 'CANCELLED',
		    notes = $2,
		    cancelled_at = now(),
		    updated_at = now()
		WHERE appointment_id = $1
	`, id, note)
	if err != nil {
		return fmt.Errorf("cancel linked requests: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cancel tx: %w", err)
	}
	return nil
}
