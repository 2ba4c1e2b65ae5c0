package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/db"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/model"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/outbox"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema.sql
var schemaSQL string

const appointmentColumns = `id, name, email, phone, purpose, COALESCE(additional_notes, ''), queue_number, status, created_time, last_updated`

// Postgres is the production Store. Recorded notifications are mirrored into
// the outbox table in the same transaction when an outbox repository is set.
type Postgres struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewPostgres(pool *db.Pool, outboxRepo *outbox.Repository) *Postgres {
	return &Postgres{pool: pool, outbox: outboxRepo}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (model.Appointment, error) {
	var a model.Appointment
	var status int16
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Phone, &a.Purpose, &a.AdditionalNotes, &a.QueueNumber, &status, &a.CreatedTime, &a.LastUpdated)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	return a, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func (p *Postgres) FindByQueueNumber(ctx context.Context, queueNumber string) (model.Appointment, error) {
	a, err := scanAppointment(p.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE queue_number = $1
	`, queueNumber))
	return a, notFound(err)
}

func (p *Postgres) CountWaitingBefore(ctx context.Context, datePrefix, queueNumber string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE status = $1
			AND starts_with(queue_number, $2)
			AND queue_number COLLATE "C" < $3
	`, int16(model.StatusWaiting), datePrefix, queueNumber).Scan(&n)
	return n, err
}

func (p *Postgres) GetSettings(ctx context.Context) (model.QueueSetting, error) {
	var s model.QueueSetting
	err := p.pool.QueryRow(ctx, `
		SELECT average_wait_time, max_daily_bookings, working_hours_start, working_hours_end, is_holiday, last_updated
		FROM queue_settings
		WHERE id = 1
	`).Scan(&s.AverageWaitTime, &s.MaxDailyBookings, &s.WorkingHoursStart, &s.WorkingHoursEnd, &s.IsHoliday, &s.LastUpdated)
	return s, notFound(err)
}

func (p *Postgres) SaveSettings(ctx context.Context, s model.QueueSetting) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO queue_settings (id, average_wait_time, max_daily_bookings, working_hours_start, working_hours_end, is_holiday, last_updated)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET average_wait_time = EXCLUDED.average_wait_time,
			max_daily_bookings = EXCLUDED.max_daily_bookings,
			working_hours_start = EXCLUDED.working_hours_start,
			working_hours_end = EXCLUDED.working_hours_end,
			is_holiday = EXCLUDED.is_holiday,
			last_updated = EXCLUDED.last_updated
	`, s.AverageWaitTime, s.MaxDailyBookings, s.WorkingHoursStart, s.WorkingHoursEnd, s.IsHoliday, s.LastUpdated)
	return err
}

func (p *Postgres) ListWaiting(ctx context.Context) ([]model.Appointment, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1
		ORDER BY queue_number COLLATE "C"
	`, int16(model.StatusWaiting))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (p *Postgres) FindNotification(ctx context.Context, appointmentID int64, notificationType string) (model.Notification, error) {
	var n model.Notification
	err := p.pool.QueryRow(ctx, `
		SELECT id, appointment_id, type, email_content, email_sent, notification_time
		FROM notifications
		WHERE appointment_id = $1 AND type = $2
	`, appointmentID, notificationType).Scan(&n.ID, &n.AppointmentID, &n.Type, &n.EmailContent, &n.EmailSent, &n.NotificationTime)
	return n, notFound(err)
}

func (p *Postgres) InsertNotification(ctx context.Context, n *model.Notification) error {
	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO notifications (appointment_id, type, email_content, email_sent, notification_time)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, n.AppointmentID, n.Type, n.EmailContent, n.EmailSent, n.NotificationTime).Scan(&n.ID)
		if err != nil {
			return err
		}
		if p.outbox == nil {
			return nil
		}
		payload, err := json.Marshal(outbox.NotificationRecorded{
			NotificationID: n.ID,
			AppointmentID:  n.AppointmentID,
			Type:           n.Type,
			EmailSent:      n.EmailSent,
			RecordedAt:     n.NotificationTime.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		return p.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: outbox.AggregateNotification,
			AggregateID:   strconv.FormatInt(n.AppointmentID, 10),
			EventType:     outbox.EventNotificationRecorded,
			Payload:       payload,
		})
	})
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	return err
}

func (p *Postgres) MarkNotificationSent(ctx context.Context, notificationID int64) error {
	tag, err := p.pool.Exec(ctx, `UPDATE notifications SET email_sent = true WHERE id = $1`, notificationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateAppointment(ctx context.Context, a model.NewAppointment, day time.Time, maxDaily int) (model.Appointment, error) {
	prefix := model.DayPrefix(day)
	var created model.Appointment
	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		// Serialises sequence assignment per booking day.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, prefix); err != nil {
			return err
		}
		var existing int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM appointments WHERE starts_with(queue_number, $1)`, prefix).Scan(&existing); err != nil {
			return err
		}
		seq, err := nextSequence(existing, maxDaily)
		if err != nil {
			return err
		}
		created, err = scanAppointment(tx.QueryRow(ctx, `
			INSERT INTO appointments (name, email, phone, purpose, additional_notes, queue_number, status, created_time, last_updated)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $8)
			RETURNING `+appointmentColumns,
			a.Name, a.Email, a.Phone, a.Purpose, a.AdditionalNotes, model.FormatQueueNumber(day, seq), int16(model.StatusWaiting), a.CreatedTime))
		return err
	})
	if isUniqueViolation(err) {
		return model.Appointment{}, fmt.Errorf("queue number collision for %s: %w", prefix, ErrDuplicate)
	}
	return created, err
}

func (p *Postgres) GetAppointment(ctx context.Context, id int64) (model.Appointment, error) {
	a, err := scanAppointment(p.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	return a, notFound(err)
}

func (p *Postgres) ListAppointments(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1 = '' OR starts_with(queue_number, $1))
		ORDER BY created_time DESC, id DESC
		LIMIT $2
	`, f.DayPrefix, f.limit())
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (p *Postgres) UpdateStatus(ctx context.Context, id int64, status model.Status, notes string, now time.Time) (model.Appointment, error) {
	a, err := scanAppointment(p.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			additional_notes = COALESCE(NULLIF($3, ''), additional_notes),
			last_updated = $4
		WHERE id = $1
		RETURNING `+appointmentColumns,
		id, int16(status), notes, now))
	return a, notFound(err)
}

func (p *Postgres) CancelAppointment(ctx context.Context, id int64, now time.Time) (model.Appointment, error) {
	var cancelled model.Appointment
	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		current, err := scanAppointment(tx.QueryRow(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE id = $1
			FOR UPDATE
		`, id))
		if err != nil {
			return notFound(err)
		}
		if !cancellable(current.Status) {
			return ErrInvalidTransition
		}
		cancelled, err = scanAppointment(tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = $2, last_updated = $3
			WHERE id = $1
			RETURNING `+appointmentColumns,
			id, int16(model.StatusCancelled), now))
		return err
	})
	return cancelled, err
}

func (p *Postgres) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM appointments WHERE created_time < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Store = (*Postgres)(nil)
