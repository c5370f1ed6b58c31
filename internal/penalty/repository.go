package penalty

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRecordNotFound  = errors.New("penalty record not found")
	ErrTutorNotFound   = errors.New("tutor not found")
	ErrBookingNotFound = errors.New("booking not found")
)

type AppealStatus string

const (
	AppealOpen     AppealStatus = "open"
	AppealUpheld   AppealStatus = "upheld"
	AppealOverturn AppealStatus = "overturned"
)

// Record is one append-only ledger entry attributing a code to a tutor.
// AppealStatus/ResolvedAt are the only fields ever mutated after creation.
type Record struct {
	ID                  uuid.UUID
	TutorID             uuid.UUID
	BookingID           *uuid.UUID
	SlotID              *uuid.UUID
	Code                Code
	Label               string
	Reason              string
	Severity            Severity
	AffectsCompensation bool
	BlockUntil          *time.Time
	AppealStatus        *AppealStatus
	ResolvedAt          *time.Time
	CreatedAt           time.Time
}

// WindowCounts aggregates the tutor-fault codes over one time window.
type WindowCounts struct {
	TutorAbsenceBooked   int
	TutorAbsenceUnbooked int
	ShortNoticeClosure   int
}

type EventLog struct {
	ID        int64
	EventType string
	TutorID   *uuid.UUID
	BookingID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

// Repository contains the ledger and tutor-flag interactions the engine needs.
type Repository interface {
	InsertRecord(ctx context.Context, rec *Record) error
	CountByCodeSince(ctx context.Context, tutorID uuid.UUID, code Code, since time.Time) (int, error)
	CountsSince(ctx context.Context, tutorID uuid.UUID, since time.Time) (WindowCounts, error)
	RecentRecords(ctx context.Context, tutorID uuid.UUID, limit int) ([]Record, error)
	UpdateAppealStatus(ctx context.Context, recordID uuid.UUID, status AppealStatus, resolvedAt time.Time) error

	// Quick-lookup stamp on the originating booking.
	StampBookingPenalty(ctx context.Context, bookingID uuid.UUID, code Code, reason string, at time.Time) error

	// Block flag on the tutor record; last write wins.
	SetTutorBlocked(ctx context.Context, tutorID uuid.UUID, until time.Time) error
	GetTutorBlock(ctx context.Context, tutorID uuid.UUID) (blocked bool, expiresAt *time.Time, err error)
	ReleaseExpiredBlocks(ctx context.Context, now time.Time) (int64, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
