package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careslot/booking/internal/booking"
	redisclient "github.com/careslot/booking/internal/redis"
	"github.com/careslot/booking/internal/schedule"
)

func checkoutBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CheckoutBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		clinicID, err := uuid.Parse(req.ClinicID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "clinic_id must be a valid UUID")
			return
		}

		var doctorID *uuid.UUID
		if req.DoctorID != "" {
			id, err := uuid.Parse(req.DoctorID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			doctorID = &id
		}

		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		start, err := schedule.ParseTimeOfDay(req.Time)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
			return
		}

		session, err := svc.StartCheckout(r.Context(), booking.CheckoutIntent{
			PatientID:       patientID,
			ClinicID:        clinicID,
			DoctorID:        doctorID,
			Date:            date,
			Start:           start,
			DurationMinutes: req.DurationMinutes,
			Type:            req.Type,
			TotalAmount:     req.TotalAmount,
			PatientName:     req.PatientName,
			DoctorName:      req.DoctorName,
			PatientEmail:    req.PatientEmail,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, CheckoutBookingResponse{
			SessionID:   session.SessionID,
			CheckoutURL: session.CheckoutURL,
		})
	}
}

func finalizeBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FinalizeBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.FinalizeBooking(r.Context(), req.SessionID)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.CancelAppointment(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func transitionAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req TransitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Transition(r.Context(), id, booking.AppointmentStatus(req.Status))
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		PatientID:     a.PatientID,
		ClinicID:      a.ClinicID,
		DoctorID:      a.DoctorID,
		Date:          a.Date.Format("2006-01-02"),
		Time:          a.Start.String(),
		Duration:      a.DurationMinutes,
		Type:          a.Type,
		Status:        string(a.Status),
		PaymentStatus: string(a.PaymentStatus),
		TotalAmount:   a.TotalAmount,
		CancelledAt:   a.CancelledAt,
		CompletedAt:   a.CompletedAt,
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidBooking):
		writeError(w, http.StatusUnprocessableEntity, "invalid_booking", err.Error())
	case errors.Is(err, booking.ErrInvalidSession):
		writeError(w, http.StatusBadRequest, "invalid_session_id", err.Error())
	case errors.Is(err, booking.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_unavailable", "the selected slot is no longer available, please pick another")
	case errors.Is(err, booking.ErrFinalizeInProgress),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "booking_in_progress", "booking is currently being finalized, please retry shortly")
	case errors.Is(err, booking.ErrPaymentVerification):
		writeError(w, http.StatusBadGateway, "payment_verification_failed", "payment could not be verified; your booking intent is saved, retry or contact support")
	case errors.Is(err, booking.ErrCancellationWindow):
		writeError(w, http.StatusConflict, "cancellation_window_expired", "appointments can only be cancelled more than 24 hours in advance")
	case errors.Is(err, booking.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrPendingNotFound):
		writeError(w, http.StatusNotFound, "pending_booking_not_found", "no pending booking for this session")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
