package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidRule = errors.New("rule start time must be before end time")

	// ErrScheduleLookup distinguishes "the query failed" from "no
	// availability"; callers must not show an empty calendar for it.
	ErrScheduleLookup = errors.New("schedule lookup failed")
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetRules(ctx context.Context, doctorID uuid.UUID) ([]WeeklyRule, error) {
	rules, err := s.repo.ListRules(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list schedule rules: %w", err)
	}
	return rules, nil
}

func (s *Service) UpsertRule(ctx context.Context, rule WeeklyRule) (*WeeklyRule, error) {
	if !rule.Start.Valid() || rule.End <= 0 || rule.End > MinutesPerDay {
		return nil, ErrInvalidRule
	}
	if rule.Start >= rule.End {
		return nil, ErrInvalidRule
	}
	if rule.DayOfWeek < 0 || rule.DayOfWeek > 6 {
		return nil, ErrInvalidRule
	}
	if rule.MaxConcurrent < 1 {
		rule.MaxConcurrent = 1
	}

	saved, err := s.repo.UpsertRule(ctx, rule)
	if err != nil {
		return nil, fmt.Errorf("upsert schedule rule: %w", err)
	}
	return saved, nil
}

func (s *Service) DeleteRule(ctx context.Context, id, doctorID uuid.UUID) error {
	if err := s.repo.DeleteRule(ctx, id, doctorID); err != nil {
		return fmt.Errorf("delete schedule rule: %w", err)
	}
	return nil
}

func (s *Service) AddBlockedDate(ctx context.Context, doctorID uuid.UUID, date time.Time, reason *string) (*BlockedDate, error) {
	bd := BlockedDate{
		ID:       uuid.New(),
		DoctorID: doctorID,
		Date:     DateOnly(date),
		Reason:   reason,
	}
	saved, err := s.repo.AddBlockedDate(ctx, bd)
	if err != nil {
		return nil, fmt.Errorf("add blocked date: %w", err)
	}
	return saved, nil
}

func (s *Service) RemoveBlockedDate(ctx context.Context, id, doctorID uuid.UUID) error {
	if err := s.repo.RemoveBlockedDate(ctx, id, doctorID); err != nil {
		return fmt.Errorf("remove blocked date: %w", err)
	}
	return nil
}

func (s *Service) ListBlockedDates(ctx context.Context, doctorID uuid.UUID) ([]BlockedDate, error) {
	dates, err := s.repo.ListBlockedDates(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list blocked dates: %w", err)
	}
	return dates, nil
}

// GetSettings returns stored settings, or the documented defaults when the
// doctor never saved any. Absence is not an error.
func (s *Service) GetSettings(ctx context.Context, doctorID uuid.UUID) (Settings, error) {
	stored, err := s.repo.GetSettings(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrSettingsNotFound) {
			return DefaultSettings(doctorID), nil
		}
		return Settings{}, fmt.Errorf("get schedule settings: %w", err)
	}
	return *stored, nil
}

// UpsertSettings merges a partial update over the stored settings,
// creating the row if absent.
func (s *Service) UpsertSettings(ctx context.Context, doctorID uuid.UUID, patch SettingsPatch) (*Settings, error) {
	current, err := s.GetSettings(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	if patch.ConsultationMinutes != nil {
		if *patch.ConsultationMinutes <= 0 {
			return nil, ErrInvalidRule
		}
		current.ConsultationMinutes = *patch.ConsultationMinutes
	}
	if patch.BufferMinutes != nil {
		if *patch.BufferMinutes < 0 {
			return nil, ErrInvalidRule
		}
		current.BufferMinutes = *patch.BufferMinutes
	}
	if patch.AdvanceBookingDays != nil {
		current.AdvanceBookingDays = *patch.AdvanceBookingDays
	}
	if patch.AutoConfirm != nil {
		current.AutoConfirm = *patch.AutoConfirm
	}
	if patch.WorkingDays != nil {
		current.WorkingDays = patch.WorkingDays
	}

	saved, err := s.repo.UpsertSettings(ctx, current)
	if err != nil {
		return nil, fmt.Errorf("upsert schedule settings: %w", err)
	}
	return saved, nil
}

// SlotsForDate assembles the day context from storage and derives the
// bookable slots. Any storage failure surfaces as ErrScheduleLookup so the
// caller can tell a broken lookup apart from a legitimately empty day.
func (s *Service) SlotsForDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	return s.slotsForDate(ctx, doctorID, date, time.Now())
}

func (s *Service) slotsForDate(ctx context.Context, doctorID uuid.UUID, date time.Time, now time.Time) ([]Slot, error) {
	blocked, err := s.repo.IsDateBlocked(ctx, doctorID, DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("%w: blocked dates for doctor %s: %v", ErrScheduleLookup, doctorID, err)
	}
	if blocked {
		return nil, nil
	}

	rules, err := s.repo.ListRulesForDay(ctx, doctorID, int(date.Weekday()))
	if err != nil {
		return nil, fmt.Errorf("%w: rules for doctor %s: %v", ErrScheduleLookup, doctorID, err)
	}

	booked, err := s.repo.BookedStartCounts(ctx, doctorID, DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("%w: booked slots for doctor %s: %v", ErrScheduleLookup, doctorID, err)
	}

	settings, err := s.GetSettings(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("%w: settings for doctor %s: %v", ErrScheduleLookup, doctorID, err)
	}

	day := DayContext{
		Rules:    rules,
		Blocked:  false,
		Booked:   booked,
		Settings: settings,
	}

	return BuildSlots(date, now, day), nil
}
