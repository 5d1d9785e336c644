package api

import (
	"time"

	"github.com/google/uuid"
)

type SlotResponse struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

type RuleRequest struct {
	ID            string `json:"id,omitempty"`
	DayOfWeek     int    `json:"day_of_week"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	IsAvailable   *bool  `json:"is_available,omitempty"`
	MaxConcurrent int    `json:"max_concurrent,omitempty"`
}

type RuleResponse struct {
	ID            uuid.UUID `json:"id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	DayOfWeek     int       `json:"day_of_week"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	IsAvailable   bool      `json:"is_available"`
	MaxConcurrent int       `json:"max_concurrent"`
}

type BlockedDateRequest struct {
	Date   string  `json:"date"`
	Reason *string `json:"reason,omitempty"`
}

type BlockedDateResponse struct {
	ID       uuid.UUID `json:"id"`
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
	Reason   *string   `json:"reason,omitempty"`
}

type SettingsRequest struct {
	ConsultationMinutes *int  `json:"consultation_duration_minutes,omitempty"`
	BufferMinutes       *int  `json:"buffer_time_minutes,omitempty"`
	AdvanceBookingDays  *int  `json:"advance_booking_days,omitempty"`
	AutoConfirm         *bool `json:"auto_confirm,omitempty"`
	WorkingDays         []int `json:"working_days,omitempty"`
}

type SettingsResponse struct {
	DoctorID            uuid.UUID `json:"doctor_id"`
	ConsultationMinutes int       `json:"consultation_duration_minutes"`
	BufferMinutes       int       `json:"buffer_time_minutes"`
	AdvanceBookingDays  int       `json:"advance_booking_days"`
	AutoConfirm         bool      `json:"auto_confirm"`
	WorkingDays         []int     `json:"working_days"`
}

type CheckoutBookingRequest struct {
	PatientID       string  `json:"patient_id"`
	ClinicID        string  `json:"clinic_id"`
	DoctorID        string  `json:"doctor_id,omitempty"`
	Date            string  `json:"date"`
	Time            string  `json:"time"`
	DurationMinutes int     `json:"duration_minutes"`
	Type            string  `json:"appointment_type"`
	TotalAmount     float64 `json:"total_amount"`
	PatientName     *string `json:"patient_name,omitempty"`
	DoctorName      *string `json:"doctor_name,omitempty"`
	PatientEmail    string  `json:"patient_email,omitempty"`
}

type CheckoutBookingResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

type FinalizeBookingRequest struct {
	SessionID string `json:"session_id"`
}

type TransitionRequest struct {
	Status string `json:"status"`
}

type AppointmentResponse struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	ClinicID      uuid.UUID  `json:"clinic_id"`
	DoctorID      *uuid.UUID `json:"doctor_id,omitempty"`
	Date          string     `json:"date"`
	Time          string     `json:"time"`
	Duration      int        `json:"duration_minutes"`
	Type          string     `json:"appointment_type"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status"`
	TotalAmount   float64    `json:"total_amount"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
