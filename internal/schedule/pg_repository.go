package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanRule(row pgx.Row) (*WeeklyRule, error) {
	var r WeeklyRule
	var start, end int

	err := row.Scan(
		&r.ID,
		&r.DoctorID,
		&r.DayOfWeek,
		&start,
		&end,
		&r.IsAvailable,
		&r.MaxConcurrent,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}

	r.Start = TimeOfDay(start)
	r.End = TimeOfDay(end)
	return &r, nil
}

func scanBlockedDate(row pgx.Row) (*BlockedDate, error) {
	var bd BlockedDate
	var reason *string

	err := row.Scan(
		&bd.ID,
		&bd.DoctorID,
		&bd.Date,
		&reason,
		&bd.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlockedDateNotFound
		}
		return nil, err
	}

	bd.Reason = reason
	return &bd, nil
}

func scanSettings(row pgx.Row) (*Settings, error) {
	var s Settings

	err := row.Scan(
		&s.DoctorID,
		&s.ConsultationMinutes,
		&s.BufferMinutes,
		&s.AdvanceBookingDays,
		&s.AutoConfirm,
		&s.WorkingDays,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}

	return &s, nil
}

// Interface methods

func (r *PgRepository) ListRules(ctx context.Context, doctorID uuid.UUID) ([]WeeklyRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, day_of_week, start_minute, end_minute, is_available, max_concurrent, created_at, updated_at
		FROM schedule_rules
		WHERE doctor_id = $1
		ORDER BY day_of_week, start_minute
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRules(rows)
}

func (r *PgRepository) ListRulesForDay(ctx context.Context, doctorID uuid.UUID, dayOfWeek int) ([]WeeklyRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, day_of_week, start_minute, end_minute, is_available, max_concurrent, created_at, updated_at
		FROM schedule_rules
		WHERE doctor_id = $1
		  AND day_of_week = $2
		  AND is_available = true
		ORDER BY start_minute
	`, doctorID, dayOfWeek)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRules(rows)
}

func collectRules(rows pgx.Rows) ([]WeeklyRule, error) {
	var result []WeeklyRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpsertRule(ctx context.Context, rule WeeklyRule) (*WeeklyRule, error) {
	id := rule.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO schedule_rules (id, doctor_id, day_of_week, start_minute, end_minute, is_available, max_concurrent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (id) DO UPDATE
		SET day_of_week = EXCLUDED.day_of_week,
		    start_minute = EXCLUDED.start_minute,
		    end_minute = EXCLUDED.end_minute,
		    is_available = EXCLUDED.is_available,
		    max_concurrent = EXCLUDED.max_concurrent,
		    updated_at = now()
		WHERE schedule_rules.doctor_id = EXCLUDED.doctor_id
		RETURNING id, doctor_id, day_of_week, start_minute, end_minute, is_available, max_concurrent, created_at, updated_at
	`, id, rule.DoctorID, rule.DayOfWeek, int(rule.Start), int(rule.End), rule.IsAvailable, rule.MaxConcurrent)

	return scanRule(row)
}

func (r *PgRepository) DeleteRule(ctx context.Context, id, doctorID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM schedule_rules
		WHERE id = $1 AND doctor_id = $2
	`, id, doctorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *PgRepository) AddBlockedDate(ctx context.Context, bd BlockedDate) (*BlockedDate, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO blocked_dates (id, doctor_id, blocked_on, reason, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (doctor_id, blocked_on) DO UPDATE
		SET reason = EXCLUDED.reason
		RETURNING id, doctor_id, blocked_on, reason, created_at
	`, bd.ID, bd.DoctorID, bd.Date, bd.Reason)

	return scanBlockedDate(row)
}

func (r *PgRepository) RemoveBlockedDate(ctx context.Context, id, doctorID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM blocked_dates
		WHERE id = $1 AND doctor_id = $2
	`, id, doctorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBlockedDateNotFound
	}
	return nil
}

func (r *PgRepository) ListBlockedDates(ctx context.Context, doctorID uuid.UUID) ([]BlockedDate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, blocked_on, reason, created_at
		FROM blocked_dates
		WHERE doctor_id = $1
		ORDER BY blocked_on
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BlockedDate
	for rows.Next() {
		bd, err := scanBlockedDate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *bd)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) IsDateBlocked(ctx context.Context, doctorID uuid.UUID, date time.Time) (bool, error) {
	var blocked bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM blocked_dates
			WHERE doctor_id = $1 AND blocked_on = $2
		)
	`, doctorID, date).Scan(&blocked)
	if err != nil {
		return false, err
	}
	return blocked, nil
}

func (r *PgRepository) GetSettings(ctx context.Context, doctorID uuid.UUID) (*Settings, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT doctor_id, consultation_minutes, buffer_minutes, advance_booking_days, auto_confirm, working_days, updated_at
		FROM schedule_settings
		WHERE doctor_id = $1
	`, doctorID)
	return scanSettings(row)
}

func (r *PgRepository) UpsertSettings(ctx context.Context, s Settings) (*Settings, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO schedule_settings (doctor_id, consultation_minutes, buffer_minutes, advance_booking_days, auto_confirm, working_days, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (doctor_id) DO UPDATE
		SET consultation_minutes = EXCLUDED.consultation_minutes,
		    buffer_minutes = EXCLUDED.buffer_minutes,
		    advance_booking_days = EXCLUDED.advance_booking_days,
		    auto_confirm = EXCLUDED.auto_confirm,
		    working_days = EXCLUDED.working_days,
		    updated_at = now()
		RETURNING doctor_id, consultation_minutes, buffer_minutes, advance_booking_days, auto_confirm, working_days, updated_at
	`, s.DoctorID, s.ConsultationMinutes, s.BufferMinutes, s.AdvanceBookingDays, s.AutoConfirm, s.WorkingDays)

	return scanSettings(row)
}

func (r *PgRepository) BookedStartCounts(ctx context.Context, doctorID uuid.UUID, date time.Time) (map[TimeOfDay]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_minute, count(*)
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND status IN ('scheduled', 'confirmed', 'payment_confirmed', 'in_progress')
		GROUP BY start_minute
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[TimeOfDay]int)
	for rows.Next() {
		var start, n int
		if err := rows.Scan(&start, &n); err != nil {
			return nil, err
		}
		counts[TimeOfDay(start)] = n
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}
