package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTutorNotFound   = errors.New("tutor not found")
	ErrStudentNotFound = errors.New("student not found")
	ErrSlotNotFound    = errors.New("slot not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrNoTemplate      = errors.New("no active weekly template")
	ErrSlotExists      = errors.New("slot already exists at that time")
	ErrSlotConflict    = errors.New("slot status changed concurrently")
	ErrBookingConflict = errors.New("booking status changed concurrently")
)

// Repository contains all DB interactions needed by the services.
type Repository interface {
	GetTutorByID(ctx context.Context, id uuid.UUID) (*Tutor, error)
	GetStudentByID(ctx context.Context, id uuid.UUID) (*Student, error)

	// Slots. Status transitions are conditional updates: the expected current
	// status is part of the WHERE clause, and a miss yields ErrSlotConflict.
	CreateSlot(ctx context.Context, slot *TimeSlot) error
	GetSlotByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	ListOpenSlots(ctx context.Context, tutorID uuid.UUID, from, to, notBefore time.Time) ([]TimeSlot, error)
	UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*TimeSlot, error)
	DeleteOpenSlot(ctx context.Context, tutorID, id uuid.UUID) error
	SetSlotAttendance(ctx context.Context, id uuid.UUID, status AttendanceStatus) (*TimeSlot, error)

	// Weekly template: full replace, no partial versioning.
	ReplaceTemplate(ctx context.Context, tutorID uuid.UUID, entries []TemplateEntry) error
	GetTemplate(ctx context.Context, tutorID uuid.UUID) ([]TemplateEntry, error)

	// BookSlot atomically transitions the slot open->booked (only when the
	// start is at or after notBefore) and inserts the confirmed booking, in
	// one transaction. Losing the race yields ErrSlotConflict.
	BookSlot(ctx context.Context, slotID, studentID uuid.UUID, notBefore time.Time) (*Booking, error)

	// CancelBooking atomically transitions the booking to cancelled and its
	// slot back to open.
	CancelBooking(ctx context.Context, bookingID uuid.UUID, cancelledBy, reason string) (*Booking, error)

	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	SetBookingAttendance(ctx context.Context, id uuid.UUID, role Role, status AttendanceStatus) (*Booking, error)
	CompleteBooking(ctx context.Context, id uuid.UUID, at time.Time) (*Booking, error)

	// Reminder sweep.
	FindDueReminders(ctx context.Context, now time.Time, lead time.Duration) ([]Booking, error)
	MarkReminderSent(ctx context.Context, bookingID uuid.UUID, at time.Time) (bool, error)

	// Domain event logging.
	InsertEvent(ctx context.Context, ev EventLog) error
}
