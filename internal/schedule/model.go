package schedule

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available" // held by the tutor, not offered
	SlotOpen      SlotStatus = "open"      // offered for booking
	SlotBooked    SlotStatus = "booked"    // claimed by a student
	SlotCompleted SlotStatus = "completed"
	SlotCancelled SlotStatus = "cancelled"
)

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingNoShow    BookingStatus = "no_show"
)

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
)

type Role string

const (
	RoleTutor   Role = "tutor"
	RoleStudent Role = "student"
)

type Tutor struct {
	ID             uuid.UUID
	Name           string
	Email          *string
	IsBlocked      bool
	BlockExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Student struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TimeSlot is one bookable unit of a tutor's calendar. (TutorID, StartAt) is
// unique. TutorAttended carries the attendance mark for slots that were
// never booked; booked-session attendance lives on the Booking.
type TimeSlot struct {
	ID            uuid.UUID
	TutorID       uuid.UUID
	StartAt       time.Time
	DurationMin   int
	Status        SlotStatus
	Recurring     bool
	TutorAttended *AttendanceStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TemplateEntry is one (day-of-week, time) pair of a tutor's weekly pattern.
type TemplateEntry struct {
	ID        uuid.UUID
	TutorID   uuid.UUID
	DayOfWeek time.Weekday
	SlotTime  string // "15:04"
	CreatedAt time.Time
}

// Booking binds one student to one slot. At most one non-cancelled Booking
// references a slot at any time.
type Booking struct {
	ID                uuid.UUID
	SlotID            uuid.UUID
	TutorID           uuid.UUID
	StudentID         uuid.UUID
	StartAt           time.Time
	DurationMin       int
	Status            BookingStatus
	TutorAttendance   *AttendanceStatus
	StudentAttendance *AttendanceStatus
	PenaltyCode       *int
	PenaltyReason     *string
	PenalizedAt       *time.Time
	ReminderSentAt    *time.Time
	CancelledBy       *string
	CancelledAt       *time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type EventLog struct {
	ID        int64
	EventType string
	TutorID   *uuid.UUID
	BookingID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
