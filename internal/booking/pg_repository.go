package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careslot/booking/internal/schedule"
)

const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func occupyingStrings() []string {
	out := make([]string, len(OccupyingStatuses))
	for i, s := range OccupyingStatuses {
		out[i] = string(s)
	}
	return out
}

const appointmentColumns = `
	id, patient_id, clinic_id, doctor_id, appointment_date, start_minute,
	duration_minutes, appointment_type, status, payment_status, total_amount,
	payment_reference, patient_name, doctor_name,
	created_at, updated_at, cancelled_at, completed_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var start int

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ClinicID,
		&a.DoctorID,
		&a.Date,
		&start,
		&a.DurationMinutes,
		&a.Type,
		&a.Status,
		&a.PaymentStatus,
		&a.TotalAmount,
		&a.PaymentRef,
		&a.PatientName,
		&a.DoctorName,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.CancelledAt,
		&a.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Start = schedule.TimeOfDay(start)
	return &a, nil
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

func scanPending(row pgx.Row) (*PendingBooking, error) {
	var pb PendingBooking
	var start int

	err := row.Scan(
		&pb.SessionID,
		&pb.PatientID,
		&pb.ClinicID,
		&pb.DoctorID,
		&pb.Date,
		&start,
		&pb.DurationMinutes,
		&pb.Type,
		&pb.TotalAmount,
		&pb.PatientName,
		&pb.DoctorName,
		&pb.CreatedAt,
		&pb.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPendingNotFound
		}
		return nil, err
	}

	pb.Start = schedule.TimeOfDay(start)
	return &pb, nil
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListOccupyingByDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND status = ANY($3)
		ORDER BY start_minute
	`, doctorID, date, occupyingStrings())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListOccupyingByClinic(ctx context.Context, clinicID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1
		  AND appointment_date = $2
		  AND status = ANY($3)
		ORDER BY start_minute
	`, clinicID, date, occupyingStrings())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) FindByPaymentRef(ctx context.Context, paymentRef string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE payment_reference = $1
		LIMIT 1
	`, paymentRef)
	return scanAppointment(row)
}

func (r *PgRepository) FindDuplicate(ctx context.Context, patientID, clinicID uuid.UUID, date time.Time, start schedule.TimeOfDay) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND clinic_id = $2
		  AND appointment_date = $3
		  AND start_minute = $4
		  AND status <> 'cancelled'
		LIMIT 1
	`, patientID, clinicID, date, int(start))
	return scanAppointment(row)
}

// SlotCapacity reads max_concurrent from the schedule rule covering the
// start time on that weekday. Without a covering rule the slot admits one
// appointment.
func (r *PgRepository) SlotCapacity(ctx context.Context, doctorID uuid.UUID, date time.Time, start schedule.TimeOfDay) (int, error) {
	var capacity int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(max(max_concurrent), 1)
		FROM schedule_rules
		WHERE doctor_id = $1
		  AND day_of_week = $2
		  AND is_available = true
		  AND start_minute <= $3
		  AND $3 < end_minute
	`, doctorID, int(date.Weekday()), int(start)).Scan(&capacity)
	if err != nil {
		return 0, fmt.Errorf("resolve slot capacity: %w", err)
	}
	return capacity, nil
}

// InsertConfirmed re-checks capacity and conflicts, then inserts, inside
// one transaction. A pg_advisory_xact_lock on the booking scope (doctor-day,
// or clinic-day when no doctor is assigned) serializes concurrent
// finalizations so two first inserts for an empty day cannot both commit.
func (r *PgRepository) InsertConfirmed(ctx context.Context, appt Appointment, capacity int) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin insert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	scope := "clinic:" + appt.ClinicID.String()
	if appt.DoctorID != nil {
		scope = "doctor:" + appt.DoctorID.String()
	}
	scope += ":" + appt.Date.Format("2006-01-02")
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, scope); err != nil {
		return nil, fmt.Errorf("acquire booking scope lock: %w", err)
	}

	var rows pgx.Rows
	if appt.DoctorID != nil {
		rows, err = tx.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE doctor_id = $1
			  AND appointment_date = $2
			  AND status = ANY($3)
			FOR UPDATE
		`, *appt.DoctorID, appt.Date, occupyingStrings())
	} else {
		rows, err = tx.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE clinic_id = $1
			  AND appointment_date = $2
			  AND doctor_id IS NULL
			  AND status = ANY($3)
			FOR UPDATE
		`, appt.ClinicID, appt.Date, occupyingStrings())
	}
	if err != nil {
		return nil, err
	}

	existing, err := collectAppointments(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if conflict := FindConflict(appt.Start, appt.DurationMinutes, capacity, existing); conflict != nil {
		return nil, ErrSlotTaken
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, clinic_id, doctor_id, appointment_date, start_minute,
			duration_minutes, appointment_type, status, payment_status, total_amount,
			payment_reference, patient_name, doctor_name, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.PatientID, appt.ClinicID, appt.DoctorID, appt.Date, int(appt.Start),
		appt.DurationMinutes, appt.Type, appt.Status, appt.PaymentStatus, appt.TotalAmount,
		appt.PaymentRef, appt.PatientName, appt.DoctorName)

	inserted, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrSlotTaken
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("commit insert tx: %w", err)
	}

	return inserted, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    completed_at = CASE WHEN $2 = 'completed' THEN now() ELSE completed_at END,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) CancelAppointment(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancelled_at = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns+`
	`, id, at, occupyingStrings())

	return scanAppointment(row)
}

func (r *PgRepository) InsertPending(ctx context.Context, pb PendingBooking) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO pending_bookings (
			session_id, patient_id, clinic_id, doctor_id, appointment_date,
			start_minute, duration_minutes, appointment_type, total_amount,
			patient_name, doctor_name, created_at, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), $12)
	`, pb.SessionID, pb.PatientID, pb.ClinicID, pb.DoctorID, pb.Date,
		int(pb.Start), pb.DurationMinutes, pb.Type, pb.TotalAmount,
		pb.PatientName, pb.DoctorName, pb.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert pending booking: %w", err)
	}
	return nil
}

func (r *PgRepository) GetPending(ctx context.Context, sessionID string) (*PendingBooking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT session_id, patient_id, clinic_id, doctor_id, appointment_date,
		       start_minute, duration_minutes, appointment_type, total_amount,
		       patient_name, doctor_name, created_at, expires_at
		FROM pending_bookings
		WHERE session_id = $1
	`, sessionID)
	return scanPending(row)
}

func (r *PgRepository) DeletePending(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM pending_bookings
		WHERE session_id = $1
	`, sessionID)
	return err
}

func (r *PgRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]PendingBooking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT session_id, patient_id, clinic_id, doctor_id, appointment_date,
		       start_minute, duration_minutes, appointment_type, total_amount,
		       patient_name, doctor_name, created_at, expires_at
		FROM pending_bookings
		WHERE expires_at < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []PendingBooking
	for rows.Next() {
		pb, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *pb)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
