package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRuleNotFound        = errors.New("schedule rule not found")
	ErrBlockedDateNotFound = errors.New("blocked date not found")
	ErrSettingsNotFound    = errors.New("schedule settings not found")
)

// Repository contains all DB interactions needed by the schedule service.
type Repository interface {
	ListRules(ctx context.Context, doctorID uuid.UUID) ([]WeeklyRule, error)
	ListRulesForDay(ctx context.Context, doctorID uuid.UUID, dayOfWeek int) ([]WeeklyRule, error)
	UpsertRule(ctx context.Context, rule WeeklyRule) (*WeeklyRule, error)
	DeleteRule(ctx context.Context, id, doctorID uuid.UUID) error

	AddBlockedDate(ctx context.Context, bd BlockedDate) (*BlockedDate, error)
	RemoveBlockedDate(ctx context.Context, id, doctorID uuid.UUID) error
	ListBlockedDates(ctx context.Context, doctorID uuid.UUID) ([]BlockedDate, error)
	IsDateBlocked(ctx context.Context, doctorID uuid.UUID, date time.Time) (bool, error)

	GetSettings(ctx context.Context, doctorID uuid.UUID) (*Settings, error)
	UpsertSettings(ctx context.Context, s Settings) (*Settings, error)

	// Occupying appointment start times for a doctor's day, with how many
	// appointments share each start. Feeds the slot generator.
	BookedStartCounts(ctx context.Context, doctorID uuid.UUID, date time.Time) (map[TimeOfDay]int, error)
}
