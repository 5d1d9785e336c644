package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/booking/internal/config"
	redisclient "github.com/careslot/booking/internal/redis"
	"github.com/careslot/booking/internal/schedule"
)

const (
	EventBookingPending    = "BOOKING_PENDING"
	EventBookingConfirmed  = "BOOKING_CONFIRMED"
	EventBookingDuplicate  = "BOOKING_DUPLICATE_SUPPRESSED"
	EventBookingCancelled  = "BOOKING_CANCELLED"
	EventBookingTransition = "BOOKING_STATUS_CHANGED"
	EventPendingExpired    = "PENDING_BOOKING_EXPIRED"
)

var (
	ErrInvalidBooking          = errors.New("booking request is invalid")
	ErrInvalidSession          = errors.New("payment session id is malformed")
	ErrPaymentVerification     = errors.New("payment could not be verified")
	ErrCancellationWindow      = errors.New("cancellation window has expired")
	ErrFinalizeInProgress      = errors.New("booking is currently being finalized, please retry")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// Gateway session ids look like cs_x6Kd... Anything else, including the
// literal placeholders browsers sometimes echo back, is rejected before any
// I/O happens.
var sessionIDPattern = regexp.MustCompile(`^cs_[A-Za-z0-9]{8,}$`)

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	gateway  Gateway
	notifier Notifier
	cfg      config.Config

	now   func() time.Time
	sleep func(time.Duration)
}

func NewService(repo Repository, locker redisclient.Locker, gateway Gateway, notifier Notifier, cfg config.Config) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// CheckoutIntent is what the patient picked before being sent to the
// payment page. Nothing is written to the appointments table yet.
type CheckoutIntent struct {
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
	PatientEmail    string
}

// CheckAvailability is the commit-time conflict decision: the proposed
// interval is tested against every occupying appointment for the doctor
// (or the whole clinic when no doctor is requested), honoring the covering
// rule's slot capacity so the answer matches what the slot generator
// advertises.
func (s *Service) CheckAvailability(ctx context.Context, clinicID uuid.UUID, doctorID *uuid.UUID, date time.Time, start schedule.TimeOfDay, duration int) error {
	var existing []Appointment
	var err error

	capacity := 1
	if doctorID != nil {
		existing, err = s.repo.ListOccupyingByDoctor(ctx, *doctorID, schedule.DateOnly(date))
		if err == nil {
			capacity, err = s.repo.SlotCapacity(ctx, *doctorID, schedule.DateOnly(date), start)
		}
	} else {
		existing, err = s.repo.ListOccupyingByClinic(ctx, clinicID, schedule.DateOnly(date))
	}
	if err != nil {
		return fmt.Errorf("load occupying appointments: %w", err)
	}

	if conflict := FindConflict(start, duration, capacity, existing); conflict != nil {
		return ErrSlotTaken
	}
	return nil
}

// StartCheckout validates the intent, rejects it early on a slot conflict,
// opens a gateway checkout session and persists the intent keyed by that
// session id. No appointment row exists until the payment is verified, so
// abandoned payments never leave ghost appointments behind.
func (s *Service) StartCheckout(ctx context.Context, intent CheckoutIntent) (*CheckoutSession, error) {
	if intent.DurationMinutes <= 0 || !intent.Start.Valid() || intent.Type == "" {
		return nil, ErrInvalidBooking
	}
	if intent.TotalAmount < 0 {
		return nil, ErrInvalidBooking
	}
	if schedule.DateOnly(intent.Date).Before(schedule.DateOnly(s.now())) {
		return nil, ErrInvalidBooking
	}

	if err := s.CheckAvailability(ctx, intent.ClinicID, intent.DoctorID, intent.Date, intent.Start, intent.DurationMinutes); err != nil {
		return nil, err
	}

	name := ""
	if intent.PatientName != nil {
		name = *intent.PatientName
	}
	session, err := s.gateway.CreateCheckoutSession(ctx, CheckoutRequest{
		AmountCents:  int64(intent.TotalAmount * 100),
		Description:  fmt.Sprintf("%s appointment on %s %s", intent.Type, schedule.DateOnly(intent.Date).Format("2006-01-02"), intent.Start),
		CustomerName: name,
		CustomerMail: intent.PatientEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	pb := PendingBooking{
		SessionID:       session.SessionID,
		PatientID:       intent.PatientID,
		ClinicID:        intent.ClinicID,
		DoctorID:        intent.DoctorID,
		Date:            schedule.DateOnly(intent.Date),
		Start:           intent.Start,
		DurationMinutes: intent.DurationMinutes,
		Type:            intent.Type,
		TotalAmount:     intent.TotalAmount,
		PatientName:     intent.PatientName,
		DoctorName:      intent.DoctorName,
		ExpiresAt:       s.now().Add(s.cfg.PendingTTL),
	}
	if err := s.repo.InsertPending(ctx, pb); err != nil {
		return nil, fmt.Errorf("persist pending booking: %w", err)
	}

	s.logEvent(ctx, nil, EventBookingPending, map[string]any{
		"session_id": session.SessionID,
		"patient_id": intent.PatientID.String(),
		"date":       pb.Date.Format("2006-01-02"),
		"start":      pb.Start.String(),
	})

	return session, nil
}

// FinalizeBooking turns a verified payment session into exactly one
// confirmed appointment and exactly one notification, no matter how many
// times the gateway's return navigation replays it.
func (s *Service) FinalizeBooking(ctx context.Context, sessionID string) (*Appointment, error) {
	if !sessionIDPattern.MatchString(sessionID) {
		return nil, ErrInvalidSession
	}

	// First idempotency layer: the session already produced an appointment.
	existing, err := s.repo.FindByPaymentRef(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("payment reference lookup: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	if err := s.verifyPayment(ctx, sessionID); err != nil {
		return nil, err
	}

	pending, err := s.repo.GetPending(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrPendingNotFound) {
			// A concurrent finalization may have just consumed the intent.
			appt, refErr := s.repo.FindByPaymentRef(ctx, sessionID)
			if refErr == nil {
				return appt, nil
			}
			return nil, ErrPendingNotFound
		}
		return nil, fmt.Errorf("load pending booking: %w", err)
	}

	// Second idempotency layer: the same patient/clinic/slot tuple was
	// already booked, possibly before the payment reference hit storage.
	dup, err := s.repo.FindDuplicate(ctx, pending.PatientID, pending.ClinicID, pending.Date, pending.Start)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("duplicate lookup: %w", err)
	}
	if dup != nil {
		s.logEvent(ctx, &dup.ID, EventBookingDuplicate, map[string]any{
			"session_id": sessionID,
		})
		if err := s.repo.DeletePending(ctx, sessionID); err != nil {
			log.Printf("failed to delete pending booking %s after duplicate: %v", sessionID, err)
		}
		return dup, nil
	}

	ref := sessionID
	appt := Appointment{
		ID:              uuid.New(),
		PatientID:       pending.PatientID,
		ClinicID:        pending.ClinicID,
		DoctorID:        pending.DoctorID,
		Date:            pending.Date,
		Start:           pending.Start,
		DurationMinutes: pending.DurationMinutes,
		Type:            pending.Type,
		Status:          StatusConfirmed,
		PaymentStatus:   PaymentPaid,
		TotalAmount:     pending.TotalAmount,
		PaymentRef:      &ref,
		PatientName:     pending.PatientName,
		DoctorName:      pending.DoctorName,
	}

	capacity := 1
	if pending.DoctorID != nil {
		capacity, err = s.repo.SlotCapacity(ctx, *pending.DoctorID, pending.Date, pending.Start)
		if err != nil {
			return nil, fmt.Errorf("resolve slot capacity: %w", err)
		}
	}

	var inserted *Appointment
	insert := func(ctx context.Context) error {
		created, err := s.repo.InsertConfirmed(ctx, appt, capacity)
		if err != nil {
			return err
		}
		inserted = created
		return nil
	}

	if pending.DoctorID != nil {
		err = s.locker.WithBookingLock(ctx, *pending.DoctorID, pending.Date, insert)
	} else {
		err = insert(ctx)
	}
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrFinalizeInProgress
		}
		if errors.Is(err, ErrSlotTaken) {
			// Paid but lost the slot. The pending booking stays for
			// support-driven reconciliation.
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("insert confirmed appointment: %w", err)
	}

	title := "Appointment confirmed"
	message := fmt.Sprintf("Your %s appointment on %s at %s is confirmed.",
		inserted.Type, inserted.Date.Format("January 2, 2006"), inserted.Start)
	if err := s.notifier.Notify(ctx, inserted.PatientID, title, message, inserted.ID); err != nil {
		log.Printf("failed to notify patient %s for appointment %s: %v", inserted.PatientID, inserted.ID, err)
	}

	if err := s.repo.DeletePending(ctx, sessionID); err != nil {
		log.Printf("failed to delete pending booking %s: %v", sessionID, err)
	}

	s.logEvent(ctx, &inserted.ID, EventBookingConfirmed, map[string]any{
		"session_id": sessionID,
	})

	return inserted, nil
}

// verifyPayment polls the gateway up to the configured number of attempts
// with a fixed delay. Pending or transiently failing checks are retried;
// anything short of a definitive success after the last attempt is a
// verification failure. The pending booking is deliberately left in place.
func (s *Service) verifyPayment(ctx context.Context, sessionID string) error {
	attempts := s.cfg.VerifyAttempts
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		if i > 0 {
			s.sleep(s.cfg.VerifyDelay)
		}

		status, err := s.gateway.VerifySession(ctx, sessionID)
		if err != nil {
			log.Printf("verify session %s attempt %d/%d: %v", sessionID, i+1, attempts, err)
			continue
		}

		switch status {
		case SessionSucceeded:
			return nil
		case SessionFailed:
			return fmt.Errorf("%w: gateway reported failure for session %s", ErrPaymentVerification, sessionID)
		case SessionPending:
			// Gateway is eventually consistent, try again.
		}
	}

	return fmt.Errorf("%w: no definitive status for session %s after %d attempts", ErrPaymentVerification, sessionID, attempts)
}

// CancelAppointment applies the late-cancellation business rule and flips
// the appointment to cancelled via compare-and-set.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if !appt.Status.Occupying() {
		return nil, ErrInvalidStatusTransition
	}

	if appt.StartAt().Sub(s.now()) < s.cfg.CancelLeadTime {
		return nil, ErrCancellationWindow
	}

	cancelled, err := s.repo.CancelAppointment(ctx, id, s.now())
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, &cancelled.ID, EventBookingCancelled, map[string]any{})

	return cancelled, nil
}

var allowedTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled:        {StatusConfirmed, StatusNoShow},
	StatusPaymentConfirmed: {StatusConfirmed},
	StatusConfirmed:        {StatusInProgress, StatusNoShow},
	StatusInProgress:       {StatusCompleted},
}

// Transition performs a staff-driven status change (confirm arrival, start
// consultation, complete, mark no-show). Cancellation goes through
// CancelAppointment because of the lead-time rule.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	ok := false
	for _, allowed := range allowedTransitions[appt.Status] {
		if allowed == to {
			ok = true
			break
		}
	}
	if !ok {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.logEvent(ctx, &updated.ID, EventBookingTransition, map[string]any{
		"from": string(appt.Status),
		"to":   string(to),
	})

	return updated, nil
}

// ExpirePendingBookings is called by the worker periodically to discard
// checkout intents whose payment never completed.
func (s *Service) ExpirePendingBookings(ctx context.Context) error {
	expired, err := s.repo.FindExpiredPending(ctx, s.now())
	if err != nil {
		return fmt.Errorf("find expired pending bookings: %w", err)
	}

	for _, pb := range expired {
		if err := s.repo.DeletePending(ctx, pb.SessionID); err != nil {
			log.Printf("failed to expire pending booking %s: %v", pb.SessionID, err)
			continue
		}
		s.logEvent(ctx, nil, EventPendingExpired, map[string]any{
			"session_id": pb.SessionID,
			"patient_id": pb.PatientID.String(),
		})
	}

	return nil
}

// GetAppointment retrieves an appointment by ID
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s: %v", eventType, err)
	}
}
