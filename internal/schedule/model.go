package schedule

import (
	"time"

	"github.com/google/uuid"
)

// WeeklyRule is one recurring availability window for a doctor.
type WeeklyRule struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	DayOfWeek     int // 0 = Sunday .. 6 = Saturday
	Start         TimeOfDay
	End           TimeOfDay
	IsAvailable   bool
	MaxConcurrent int // appointments allowed per generated slot start
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BlockedDate marks a calendar day on which a doctor takes no appointments.
type BlockedDate struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	Reason    *string
	CreatedAt time.Time
}

// Settings controls slot granularity for one doctor. One row per doctor,
// upsert semantics.
type Settings struct {
	DoctorID            uuid.UUID
	ConsultationMinutes int
	BufferMinutes       int
	AdvanceBookingDays  int
	AutoConfirm         bool
	WorkingDays         []int
	UpdatedAt           time.Time
}

const (
	DefaultConsultationMinutes = 30
	DefaultBufferMinutes       = 0
	DefaultAdvanceBookingDays  = 30
)

// DefaultSettings is what callers see when a doctor never saved settings.
func DefaultSettings(doctorID uuid.UUID) Settings {
	return Settings{
		DoctorID:            doctorID,
		ConsultationMinutes: DefaultConsultationMinutes,
		BufferMinutes:       DefaultBufferMinutes,
		AdvanceBookingDays:  DefaultAdvanceBookingDays,
		AutoConfirm:         false,
		WorkingDays:         []int{1, 2, 3, 4, 5},
	}
}

// SettingsPatch carries a partial settings update; nil fields keep the
// stored (or default) value.
type SettingsPatch struct {
	ConsultationMinutes *int
	BufferMinutes       *int
	AdvanceBookingDays  *int
	AutoConfirm         *bool
	WorkingDays         []int
}

// Slot is a derived bookable unit. Never persisted; recomputed on demand
// and stale as soon as any appointment for the date changes.
type Slot struct {
	Date      time.Time
	Start     TimeOfDay
	Available bool
}
