package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/careslot/booking/internal/schedule"
)

type AppointmentStatus string

const (
	StatusScheduled        AppointmentStatus = "scheduled"
	StatusConfirmed        AppointmentStatus = "confirmed"
	StatusPaymentConfirmed AppointmentStatus = "payment_confirmed"
	StatusInProgress       AppointmentStatus = "in_progress"
	StatusCompleted        AppointmentStatus = "completed"
	StatusCancelled        AppointmentStatus = "cancelled"
	StatusNoShow           AppointmentStatus = "no_show"
)

// OccupyingStatuses are the states in which an appointment blocks its time
// slot. Cancelled, completed and no-show appointments free the slot.
var OccupyingStatuses = []AppointmentStatus{
	StatusScheduled,
	StatusConfirmed,
	StatusPaymentConfirmed,
	StatusInProgress,
}

func (s AppointmentStatus) Occupying() bool {
	for _, o := range OccupyingStatuses {
		if s == o {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// Appointment is the committed reservation.
type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	ClinicID        uuid.UUID
	DoctorID        *uuid.UUID // may be assigned later by the clinic
	Date            time.Time
	Start           schedule.TimeOfDay
	DurationMinutes int
	Type            string
	Status          AppointmentStatus
	PaymentStatus   PaymentStatus
	TotalAmount     float64
	PaymentRef      *string // gateway checkout session id
	PatientName     *string
	DoctorName      *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CancelledAt     *time.Time
	CompletedAt     *time.Time
}

func (a *Appointment) End() schedule.TimeOfDay {
	return a.Start.Add(a.DurationMinutes)
}

// StartAt anchors the appointment's wall-clock start to its date.
func (a *Appointment) StartAt() time.Time {
	return a.Start.On(a.Date)
}

// PendingBooking is the durable checkout intent, keyed by the gateway
// session id. It exists between "patient was sent to the payment page" and
// "payment verified, appointment inserted", and is swept by the expiry
// worker when the patient never comes back.
type PendingBooking struct {
	SessionID       string
	PatientID       uuid.UUID
	ClinicID        uuid.UUID
	DoctorID        *uuid.UUID
	Date            time.Time
	Start           schedule.TimeOfDay
	DurationMinutes int
	Type            string
	TotalAmount     float64
	PatientName     *string
	DoctorName      *string
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
