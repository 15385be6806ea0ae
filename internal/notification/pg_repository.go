package notification

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

const notificationColumns = `id, patient_id, request_id, type, title, message, is_read, scheduled_for, sent_at, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification

	err := row.Scan(
		&n.ID,
		&n.PatientID,
		&n.RequestID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.IsRead,
		&n.ScheduledFor,
		&n.SentAt,
		&n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}

	return &n, nil
}

func collectNotifications(rows pgx.Rows) ([]Notification, error) {
	var result []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) Insert(ctx context.Context, n *Notification) (*Notification, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, patient_id, request_id, type, title, message, is_read, scheduled_for, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7, now())
		RETURNING `+notificationColumns+`
	`, n.ID, n.PatientID, n.RequestID, n.Type, n.Title, n.Message, n.ScheduledFor)

	inserted, err := scanNotification(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateNotification
		}
		return nil, err
	}
	return inserted, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PgRepository) FindByRequest(ctx context.Context, patientID uuid.UUID, typ Type, requestID uuid.UUID) (*Notification, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE patient_id = $1
		  AND type = $2
		  AND request_id = $3
	`, patientID, typ, requestID)

	n, err := scanNotification(row)
	if errors.Is(err, ErrNotificationNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (r *PgRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET sent_at = $2
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *PgRepository) ClaimDue(ctx context.Context, now time.Time) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE notifications
		SET sent_at = $1
		WHERE scheduled_for <= $1
		  AND sent_at IS NULL
		RETURNING `+notificationColumns+`
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectNotifications(rows)
}

func (r *PgRepository) PatientEmail(ctx context.Context, patientID uuid.UUID) (string, error) {
	var email string
	err := r.pool.QueryRow(ctx, `
		SELECT email
		FROM patients
		WHERE id = $1
	`, patientID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("patient %s has no deliverable address", patientID)
		}
		return "", err
	}
	return email, nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectNotifications(rows)
}

func (r *PgRepository) MarkRead(ctx context.Context, id, patientID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = true
		WHERE id = $1
		  AND patient_id = $2
	`, id, patientID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *PgRepository) MarkAllRead(ctx context.Context, patientID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = true
		WHERE patient_id = $1
		  AND is_read = false
	`, patientID)
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

func (r *PgRepository) CountUnread(ctx context.Context, patientID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM notifications
		WHERE patient_id = $1
		  AND is_read = false
	`, patientID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PgRepository) Delete(ctx context.Context, id, patientID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM notifications
		WHERE id = $1
		  AND patient_id = $2
	`, id, patientID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
