package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	redisclient "github.com/tutorhive/scheduling-engine/internal/redis"
	"github.com/tutorhive/scheduling-engine/internal/schedule"
)

func TestHandleDomainError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"too soon to open", schedule.ErrTooSoon, http.StatusBadRequest, "slot_too_soon"},
		{"too soon to book", schedule.ErrBookingTooSoon, http.StatusBadRequest, "booking_too_soon"},
		{"batch too large", schedule.ErrBatchTooLarge, http.StatusBadRequest, "batch_too_large"},
		{"invalid role", schedule.ErrInvalidRole, http.StatusBadRequest, "invalid_attendance"},
		{"tutor not found", schedule.ErrTutorNotFound, http.StatusNotFound, "tutor_not_found"},
		{"slot not found", schedule.ErrSlotNotFound, http.StatusNotFound, "slot_not_found"},
		{"no template", schedule.ErrNoTemplate, http.StatusNotFound, "no_active_template"},
		{"foreign slot", schedule.ErrNotOwned, http.StatusNotFound, "slot_not_owned"},
		{"duplicate slot", schedule.ErrSlotExists, http.StatusConflict, "slot_exists"},
		{"booked slot close", schedule.ErrSlotBooked, http.StatusConflict, "slot_booked"},
		{"lost booking race", schedule.ErrSlotTaken, http.StatusConflict, "slot_taken"},
		{"lock contention", redisclient.ErrLockNotAcquired, http.StatusConflict, "slot_being_booked"},
		{"already resolved", schedule.ErrBookingResolved, http.StatusConflict, "booking_resolved"},
		{"slot with booking marked", schedule.ErrSlotHasBooking, http.StatusConflict, "slot_has_booking"},
		{"resolved slot marked", schedule.ErrSlotNotMarkable, http.StatusConflict, "slot_not_markable"},
		{"blocked tutor", schedule.ErrTutorBlocked, http.StatusConflict, "tutor_blocked"},
		{"anything else", errors.New("pool exhausted"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleDomainError(rec, tc.err)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal body: %v", err)
			}
			if body.Error != tc.wantCode {
				t.Errorf("error code = %q, want %q", body.Error, tc.wantCode)
			}
		})
	}
}

// Wrapped service errors still map through errors.Is.
func TestHandleDomainErrorWrapped(t *testing.T) {
	rec := httptest.NewRecorder()
	handleDomainError(rec, fmt.Errorf("close slot abc: %w", schedule.ErrSlotBooked))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}
