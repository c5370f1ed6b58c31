package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/tutorhive/scheduling-engine/internal/penalty"
	"github.com/tutorhive/scheduling-engine/internal/schedule"
)

type SlotInput struct {
	Date string `json:"date"` // "2006-01-02"
	Time string `json:"time"` // "15:04"
}

type OpenSlotsRequest struct {
	Slots []SlotInput `json:"slots"`
}

type CloseSlotsRequest struct {
	SlotIDs []string `json:"slot_ids"`
}

type BulkOpenSlotsRequest struct {
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
	Times      []string `json:"times"`
	DaysOfWeek []int    `json:"days_of_week,omitempty"`
}

type TemplateEntryInput struct {
	DayOfWeek int    `json:"day_of_week"` // 0=Sunday .. 6=Saturday
	Time      string `json:"time"`
}

type SaveTemplateRequest struct {
	Entries []TemplateEntryInput `json:"entries"`
}

type ApplyTemplateRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type BookSlotRequest struct {
	StudentID string `json:"student_id"`
	SlotID    string `json:"slot_id"`
}

type CancelBookingRequest struct {
	CancelledBy string `json:"cancelled_by"`
	Reason      string `json:"reason,omitempty"`
}

type AttendanceRequest struct {
	BookingID string `json:"booking_id,omitempty"`
	SlotID    string `json:"slot_id,omitempty"`
	Role      string `json:"role"`
	Status    string `json:"status"`
}

type SlotResponse struct {
	ID          uuid.UUID `json:"id"`
	TutorID     uuid.UUID `json:"tutor_id"`
	StartAt     time.Time `json:"start_at"`
	DurationMin int       `json:"duration_min"`
	Status      string    `json:"status"`
}

func toSlotResponse(s schedule.TimeSlot) SlotResponse {
	return SlotResponse{
		ID:          s.ID,
		TutorID:     s.TutorID,
		StartAt:     s.StartAt,
		DurationMin: s.DurationMin,
		Status:      string(s.Status),
	}
}

type BookingResponse struct {
	ID          uuid.UUID `json:"id"`
	SlotID      uuid.UUID `json:"slot_id"`
	TutorID     uuid.UUID `json:"tutor_id"`
	StudentID   uuid.UUID `json:"student_id"`
	StartAt     time.Time `json:"start_at"`
	DurationMin int       `json:"duration_min"`
	Status      string    `json:"status"`
}

func toBookingResponse(b *schedule.Booking) BookingResponse {
	return BookingResponse{
		ID:          b.ID,
		SlotID:      b.SlotID,
		TutorID:     b.TutorID,
		StudentID:   b.StudentID,
		StartAt:     b.StartAt,
		DurationMin: b.DurationMin,
		Status:      string(b.Status),
	}
}

type WindowCountsResponse struct {
	TutorAbsenceBooked   int `json:"tutor_absence_booked"`
	TutorAbsenceUnbooked int `json:"tutor_absence_unbooked"`
	ShortNoticeClosure   int `json:"short_notice_closure"`
}

type PenaltyRecordResponse struct {
	ID                  uuid.UUID  `json:"id"`
	Code                int        `json:"code"`
	Label               string     `json:"label"`
	Reason              string     `json:"reason"`
	Severity            string     `json:"severity"`
	AffectsCompensation bool       `json:"affects_compensation"`
	BlockUntil          *time.Time `json:"block_until,omitempty"`
	AppealStatus        *string    `json:"appeal_status,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

type ComplianceSummaryResponse struct {
	TutorID        uuid.UUID               `json:"tutor_id"`
	MonthToDate    WindowCountsResponse    `json:"month_to_date"`
	Trailing30Days WindowCountsResponse    `json:"trailing_30_days"`
	IsBlocked      bool                    `json:"is_blocked"`
	BlockExpiresAt *time.Time              `json:"block_expires_at,omitempty"`
	RecentRecords  []PenaltyRecordResponse `json:"recent_records"`
}

func toComplianceResponse(sum *penalty.Summary) ComplianceSummaryResponse {
	resp := ComplianceSummaryResponse{
		TutorID:        sum.TutorID,
		MonthToDate:    toWindowCounts(sum.MonthToDate),
		Trailing30Days: toWindowCounts(sum.Trailing30Days),
		IsBlocked:      sum.IsBlocked,
		BlockExpiresAt: sum.BlockExpiresAt,
		RecentRecords:  make([]PenaltyRecordResponse, 0, len(sum.RecentRecords)),
	}
	for _, rec := range sum.RecentRecords {
		var appeal *string
		if rec.AppealStatus != nil {
			s := string(*rec.AppealStatus)
			appeal = &s
		}
		resp.RecentRecords = append(resp.RecentRecords, PenaltyRecordResponse{
			ID:                  rec.ID,
			Code:                int(rec.Code),
			Label:               rec.Label,
			Reason:              rec.Reason,
			Severity:            string(rec.Severity),
			AffectsCompensation: rec.AffectsCompensation,
			BlockUntil:          rec.BlockUntil,
			AppealStatus:        appeal,
			CreatedAt:           rec.CreatedAt,
		})
	}
	return resp
}

func toWindowCounts(c penalty.WindowCounts) WindowCountsResponse {
	return WindowCountsResponse{
		TutorAbsenceBooked:   c.TutorAbsenceBooked,
		TutorAbsenceUnbooked: c.TutorAbsenceUnbooked,
		ShortNoticeClosure:   c.ShortNoticeClosure,
	}
}

type ResolveAppealRequest struct {
	Status string `json:"status"` // "upheld" or "overturned"
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
