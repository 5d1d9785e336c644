package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careslot/booking/internal/schedule"
)

func doctorSlotsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date query parameter must be YYYY-MM-DD")
			return
		}

		slots, err := svc.SlotsForDate(r.Context(), doctorID, date)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, SlotResponse{
				Date:      s.Date.Format("2006-01-02"),
				Time:      s.Start.String(),
				Available: s.Available,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func listRulesHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		rules, err := svc.GetRules(r.Context(), doctorID)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		resp := make([]RuleResponse, 0, len(rules))
		for _, rule := range rules {
			resp = append(resp, toRuleResponse(rule))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func upsertRuleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		var req RuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		start, err := schedule.ParseTimeOfDay(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
			return
		}
		end, err := schedule.ParseTimeOfDay(req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be HH:MM")
			return
		}

		rule := schedule.WeeklyRule{
			DoctorID:      doctorID,
			DayOfWeek:     req.DayOfWeek,
			Start:         start,
			End:           end,
			IsAvailable:   true,
			MaxConcurrent: req.MaxConcurrent,
		}
		if req.IsAvailable != nil {
			rule.IsAvailable = *req.IsAvailable
		}
		if req.ID != "" {
			id, err := uuid.Parse(req.ID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_rule_id", "id must be a valid UUID")
				return
			}
			rule.ID = id
		}

		saved, err := svc.UpsertRule(r.Context(), rule)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toRuleResponse(*saved))
	}
}

func deleteRuleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		ruleID, err := uuid.Parse(chi.URLParam(r, "ruleID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_rule_id", "ruleID must be a valid UUID")
			return
		}

		if err := svc.DeleteRule(r.Context(), ruleID, doctorID); err != nil {
			handleScheduleError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func listBlockedDatesHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		dates, err := svc.ListBlockedDates(r.Context(), doctorID)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		resp := make([]BlockedDateResponse, 0, len(dates))
		for _, bd := range dates {
			resp = append(resp, BlockedDateResponse{
				ID:       bd.ID,
				DoctorID: bd.DoctorID,
				Date:     bd.Date.Format("2006-01-02"),
				Reason:   bd.Reason,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func addBlockedDateHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		var req BlockedDateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		bd, err := svc.AddBlockedDate(r.Context(), doctorID, date, req.Reason)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, BlockedDateResponse{
			ID:       bd.ID,
			DoctorID: bd.DoctorID,
			Date:     bd.Date.Format("2006-01-02"),
			Reason:   bd.Reason,
		})
	}
}

func removeBlockedDateHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "blockedDateID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_blocked_date_id", "blockedDateID must be a valid UUID")
			return
		}

		if err := svc.RemoveBlockedDate(r.Context(), id, doctorID); err != nil {
			handleScheduleError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func getSettingsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		settings, err := svc.GetSettings(r.Context(), doctorID)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSettingsResponse(settings))
	}
}

func upsertSettingsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		var req SettingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		saved, err := svc.UpsertSettings(r.Context(), doctorID, schedule.SettingsPatch{
			ConsultationMinutes: req.ConsultationMinutes,
			BufferMinutes:       req.BufferMinutes,
			AdvanceBookingDays:  req.AdvanceBookingDays,
			AutoConfirm:         req.AutoConfirm,
			WorkingDays:         req.WorkingDays,
		})
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSettingsResponse(*saved))
	}
}

func toRuleResponse(rule schedule.WeeklyRule) RuleResponse {
	return RuleResponse{
		ID:            rule.ID,
		DoctorID:      rule.DoctorID,
		DayOfWeek:     rule.DayOfWeek,
		StartTime:     rule.Start.String(),
		EndTime:       rule.End.String(),
		IsAvailable:   rule.IsAvailable,
		MaxConcurrent: rule.MaxConcurrent,
	}
}

func toSettingsResponse(s schedule.Settings) SettingsResponse {
	return SettingsResponse{
		DoctorID:            s.DoctorID,
		ConsultationMinutes: s.ConsultationMinutes,
		BufferMinutes:       s.BufferMinutes,
		AdvanceBookingDays:  s.AdvanceBookingDays,
		AutoConfirm:         s.AutoConfirm,
		WorkingDays:         s.WorkingDays,
	}
}

func handleScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrInvalidRule):
		writeError(w, http.StatusUnprocessableEntity, "invalid_rule", err.Error())
	case errors.Is(err, schedule.ErrRuleNotFound):
		writeError(w, http.StatusNotFound, "rule_not_found", err.Error())
	case errors.Is(err, schedule.ErrBlockedDateNotFound):
		writeError(w, http.StatusNotFound, "blocked_date_not_found", err.Error())
	case errors.Is(err, schedule.ErrScheduleLookup):
		writeError(w, http.StatusServiceUnavailable, "schedule_lookup_failed", "availability could not be determined, try again")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
