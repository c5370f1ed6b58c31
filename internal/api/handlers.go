package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tutorhive/scheduling-engine/internal/penalty"
	"github.com/tutorhive/scheduling-engine/internal/schedule"
)

func openSlotsHandler(svc *schedule.SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tutorID, ok := pathUUID(w, r, "tutorID")
		if !ok {
			return
		}

		var req OpenSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if len(req.Slots) == 0 {
			writeError(w, http.StatusBadRequest, "empty_request", "slots must not be empty")
			return
		}

		reqs := make([]schedule.SlotRequest, 0, len(req.Slots))
		for _, s := range req.Slots {
			reqs = append(reqs, schedule.SlotRequest{Date: s.Date, Time: s.Time})
		}

		created, err := svc.OpenSlots(r.Context(), tutorID, reqs)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(created))
		for _, s := range created {
			resp = append(resp, toSlotResponse(s))
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func closeSlotsHandler(svc *schedule.SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tutorID, ok := pathUUID(w, r, "tutorID")
		if !ok {
			return
		}

		var req CloseSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slotIDs := make([]uuid.UUID, 0, len(req.SlotIDs))
		for _, raw := range req.SlotIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot ids must be valid UUIDs")
				return
			}
			slotIDs = append(slotIDs, id)
		}

		if err := svc.CloseSlots(r.Context(), tutorID, slotIDs); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func bulkOpenSlotsHandler(svc *schedule.SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tutorID, ok := pathUUID(w, r, "tutorID")
		if !ok {
			return
		}

		var req BulkOpenSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		var days []time.Weekday
		for _, d := range req.DaysOfWeek {
			if d < 0 || d > 6 {
				writeError(w, http.StatusBadRequest, "invalid_day_of_week", "days_of_week values must be 0-6")
				return
			}
			days = append(days, time.Weekday(d))
		}

		if err := svc.BulkOpenSlots(r.Context(), tutorID, req.StartDate, req.EndDate, req.Times, days); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func availableSlotsHandler(svc *schedule.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tutorID, ok := pathUUID(w, r, "tutorID")
		if !ok {
			return
		}

		start := r.URL.Query().Get("start")
		end := r.URL.Query().Get("end")
		if start == "" || end == "" {
			writeError(w, http.StatusBadRequest, "missing_range", "start and end query params are required")
			return
		}

		slots, err := svc.GetAvailableSlots(r.Context(), tutorID, start, end)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, toSlotResponse(s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func saveTemplateHandler(svc *schedule.SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tutorID, ok := pathUUID(w, r, "tutorID")
		if !ok {
			return
		}

		var req SaveTemplateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		entries := make([]schedule.TemplateEntry, 0, len(req.Entries))
		for _, e := range req.Entries {
			entries = append(entries, schedule.TemplateEntry{
				DayOfWeek: time.Weekday(e.DayOfWeek),
				SlotTime:  e.Time,
			})
		}

		if err := svc.SaveWeeklyTemplate(r.Context(), tutorID, entries); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func applyTemplateHandler(svc *schedule.SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tutorID, ok := pathUUID(w, r, "tutorID")
		if !ok {
			return
		}

		var req ApplyTemplateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if err := svc.ApplyTemplate(r.Context(), tutorID, req.StartDate, req.EndDate); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func bookSlotHandler(svc *schedule.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		studentID, err := uuid.Parse(req.StudentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_student_id", "student_id must be a valid UUID")
			return
		}
		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		booking, err := svc.BookSlot(r.Context(), studentID, slotID)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toBookingResponse(booking))
	}
}

func cancelBookingHandler(svc *schedule.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		var req CancelBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.CancelledBy == "" {
			writeError(w, http.StatusBadRequest, "missing_cancelled_by", "cancelled_by is required")
			return
		}

		if err := svc.CancelBooking(r.Context(), bookingID, req.CancelledBy, req.Reason); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func markAttendanceHandler(svc *schedule.AttendanceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AttendanceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		status := schedule.AttendanceStatus(req.Status)

		switch {
		case req.BookingID != "":
			id, err := uuid.Parse(req.BookingID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_booking_id", "booking_id must be a valid UUID")
				return
			}
			if err := svc.MarkBookingAttendance(r.Context(), id, schedule.Role(req.Role), status); err != nil {
				handleDomainError(w, err)
				return
			}
		case req.SlotID != "":
			id, err := uuid.Parse(req.SlotID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
				return
			}
			if err := svc.MarkSlotAttendance(r.Context(), id, status); err != nil {
				handleDomainError(w, err)
				return
			}
		default:
			writeError(w, http.StatusBadRequest, "missing_target", "booking_id or slot_id is required")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteSlotHandler(svc *schedule.SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tutorID, ok := pathUUID(w, r, "tutorID")
		if !ok {
			return
		}
		slotID, ok := pathUUID(w, r, "slotID")
		if !ok {
			return
		}

		if err := svc.DeleteSlot(r.Context(), tutorID, slotID); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func completeBookingHandler(svc *schedule.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		booking, err := svc.CompleteBooking(r.Context(), bookingID)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(booking))
	}
}

func resolveAppealHandler(engine *penalty.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recordID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		var req ResolveAppealRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		status := penalty.AppealStatus(req.Status)
		if status != penalty.AppealUpheld && status != penalty.AppealOverturn {
			writeError(w, http.StatusBadRequest, "invalid_appeal_status", "status must be upheld or overturned")
			return
		}

		if err := engine.ResolveAppeal(r.Context(), recordID, status); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func complianceSummaryHandler(reporter *penalty.Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tutorID, ok := pathUUID(w, r, "tutorID")
		if !ok {
			return
		}

		summary, err := reporter.GetPenaltySummary(r.Context(), tutorID)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toComplianceResponse(summary))
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+param, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
