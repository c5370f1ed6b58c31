package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tutorhive/scheduling-engine/internal/penalty"
	redisclient "github.com/tutorhive/scheduling-engine/internal/redis"
	"github.com/tutorhive/scheduling-engine/internal/schedule"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleDomainError maps service errors onto the HTTP taxonomy: validation
// 400, not-found 404, retryable conflict 409.
func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrTooSoon):
		writeError(w, http.StatusBadRequest, "slot_too_soon", err.Error())
	case errors.Is(err, schedule.ErrBookingTooSoon):
		writeError(w, http.StatusBadRequest, "booking_too_soon", err.Error())
	case errors.Is(err, schedule.ErrBatchTooLarge):
		writeError(w, http.StatusBadRequest, "batch_too_large", err.Error())
	case errors.Is(err, schedule.ErrInvalidRole),
		errors.Is(err, schedule.ErrInvalidAttendance):
		writeError(w, http.StatusBadRequest, "invalid_attendance", err.Error())

	case errors.Is(err, schedule.ErrTutorNotFound):
		writeError(w, http.StatusNotFound, "tutor_not_found", err.Error())
	case errors.Is(err, schedule.ErrStudentNotFound):
		writeError(w, http.StatusNotFound, "student_not_found", err.Error())
	case errors.Is(err, schedule.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, schedule.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())
	case errors.Is(err, schedule.ErrNoTemplate):
		writeError(w, http.StatusNotFound, "no_active_template", err.Error())
	case errors.Is(err, schedule.ErrNotOwned):
		writeError(w, http.StatusNotFound, "slot_not_owned", err.Error())
	case errors.Is(err, penalty.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "penalty_record_not_found", err.Error())
	case errors.Is(err, penalty.ErrTutorNotFound):
		writeError(w, http.StatusNotFound, "tutor_not_found", err.Error())

	case errors.Is(err, schedule.ErrSlotExists):
		writeError(w, http.StatusConflict, "slot_exists", err.Error())
	case errors.Is(err, schedule.ErrSlotBooked):
		writeError(w, http.StatusConflict, "slot_booked", err.Error())
	case errors.Is(err, schedule.ErrSlotNotOpen):
		writeError(w, http.StatusConflict, "slot_not_open", err.Error())
	case errors.Is(err, schedule.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, schedule.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, schedule.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, schedule.ErrBookingConflict),
		errors.Is(err, schedule.ErrBookingResolved):
		writeError(w, http.StatusConflict, "booking_resolved", err.Error())
	case errors.Is(err, schedule.ErrSlotHasBooking):
		writeError(w, http.StatusConflict, "slot_has_booking", err.Error())
	case errors.Is(err, schedule.ErrSlotNotMarkable):
		writeError(w, http.StatusConflict, "slot_not_markable", err.Error())
	case errors.Is(err, schedule.ErrTutorBlocked):
		writeError(w, http.StatusConflict, "tutor_blocked", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
