package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutorhive/scheduling-engine/internal/penalty"
)

var (
	ErrInvalidRole       = errors.New("role must be tutor or student")
	ErrInvalidAttendance = errors.New("attendance must be present or absent")
	ErrSlotHasBooking    = errors.New("slot is booked, mark attendance on the booking")
	ErrSlotNotMarkable   = errors.New("slot is not open, attendance does not apply")
)

// AttendanceService records presence marks and cascades them into penalties.
// The cascade is fire-and-forget: a failed penalty write is logged and the
// attendance mark stands.
type AttendanceService struct {
	repo      Repository
	penalties PenaltyAssigner
	logger    *zap.Logger
}

func NewAttendanceService(repo Repository, penalties PenaltyAssigner, logger *zap.Logger) *AttendanceService {
	return &AttendanceService{
		repo:      repo,
		penalties: penalties,
		logger:    logger,
	}
}

// MarkBookingAttendance sets one party's mark on a booked session. Tutor and
// student marks are independent and order-insensitive. An absent mark for
// the role just recorded raises the matching penalty; marks already present
// for the other role are not re-evaluated, so each absence yields exactly
// one record.
func (s *AttendanceService) MarkBookingAttendance(ctx context.Context, bookingID uuid.UUID, role Role, status AttendanceStatus) error {
	if err := validateMark(role, status); err != nil {
		return err
	}

	booking, err := s.repo.SetBookingAttendance(ctx, bookingID, role, status)
	if err != nil {
		return err
	}

	if status != AttendanceAbsent {
		return nil
	}

	var circ penalty.Circumstances
	switch role {
	case RoleTutor:
		circ = penalty.Circumstances{WasBooked: true, TutorPresent: false}
	case RoleStudent:
		absent := false
		circ = penalty.Circumstances{WasBooked: true, TutorPresent: true, StudentPresent: &absent}
	}

	code, ok := penalty.DeterminePenaltyCode(circ)
	if !ok {
		return nil
	}

	bid := booking.ID
	reason := fmt.Sprintf("%s marked absent for session at %s", role, booking.StartAt.Format("2006-01-02 15:04"))
	if _, perr := s.penalties.AssignPenalty(ctx, booking.TutorID, &bid, nil, code, reason); perr != nil {
		s.logger.Error("attendance penalty assignment failed",
			zap.String("booking_id", bid.String()),
			zap.Int("code", int(code)),
			zap.Error(perr))
	}

	return nil
}

// MarkSlotAttendance stamps the tutor's mark on an unbooked open slot. An
// absent mark raises the unbooked-absence penalty.
func (s *AttendanceService) MarkSlotAttendance(ctx context.Context, slotID uuid.UUID, status AttendanceStatus) error {
	if status != AttendancePresent && status != AttendanceAbsent {
		return ErrInvalidAttendance
	}

	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return err
	}
	switch slot.Status {
	case SlotOpen:
	case SlotBooked:
		return ErrSlotHasBooking
	default:
		// Resolved or withheld slots carry no mark; completed sessions were
		// booked and already marked through the booking.
		return ErrSlotNotMarkable
	}

	updated, err := s.repo.SetSlotAttendance(ctx, slotID, status)
	if err != nil {
		return err
	}

	if status != AttendanceAbsent {
		return nil
	}

	code, ok := penalty.DeterminePenaltyCode(penalty.Circumstances{WasBooked: false, TutorPresent: false})
	if !ok {
		return nil
	}

	sid := updated.ID
	reason := fmt.Sprintf("tutor absent for unbooked slot at %s", updated.StartAt.Format("2006-01-02 15:04"))
	if _, perr := s.penalties.AssignPenalty(ctx, updated.TutorID, nil, &sid, code, reason); perr != nil {
		s.logger.Error("slot attendance penalty assignment failed",
			zap.String("slot_id", sid.String()),
			zap.Int("code", int(code)),
			zap.Error(perr))
	}

	return nil
}

func validateMark(role Role, status AttendanceStatus) error {
	if role != RoleTutor && role != RoleStudent {
		return ErrInvalidRole
	}
	if status != AttendancePresent && status != AttendanceAbsent {
		return ErrInvalidAttendance
	}
	return nil
}
