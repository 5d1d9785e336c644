package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/booking/internal/schedule"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPendingNotFound     = errors.New("pending booking not found")

	// ErrSlotTaken is returned when an insert loses the single-winner race
	// on (doctor, date, start) or a conflict is found at commit time.
	ErrSlotTaken = errors.New("slot already has an occupying appointment")
)

// Repository contains all DB interactions needed by the booking service.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Conflict checking
	ListOccupyingByDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)
	ListOccupyingByClinic(ctx context.Context, clinicID uuid.UUID, date time.Time) ([]Appointment, error)

	// Idempotency lookups
	FindByPaymentRef(ctx context.Context, paymentRef string) (*Appointment, error)
	FindDuplicate(ctx context.Context, patientID, clinicID uuid.UUID, date time.Time, start schedule.TimeOfDay) (*Appointment, error)

	// SlotCapacity resolves how many appointments may share the given start
	// time, from the schedule rule covering it. No covering rule means 1.
	SlotCapacity(ctx context.Context, doctorID uuid.UUID, date time.Time, start schedule.TimeOfDay) (int, error)

	// InsertConfirmed writes a confirmed, paid appointment. The capacity
	// re-check and insert run inside one transaction serialized per
	// doctor-day (or clinic-day); a lost race surfaces as ErrSlotTaken.
	InsertConfirmed(ctx context.Context, appt Appointment, capacity int) (*Appointment, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error)

	// Pending checkout intents
	InsertPending(ctx context.Context, pb PendingBooking) error
	GetPending(ctx context.Context, sessionID string) (*PendingBooking, error)
	DeletePending(ctx context.Context, sessionID string) error
	FindExpiredPending(ctx context.Context, now time.Time) ([]PendingBooking, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
