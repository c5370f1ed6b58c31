package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/tutorhive/scheduling-engine/internal/redis"
)

var (
	ErrSlotNotOpen     = errors.New("slot is not open for booking")
	ErrSlotTaken       = errors.New("slot was booked concurrently")
	ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")
	ErrBookingTooSoon  = errors.New("slot starts too soon to book")
	ErrTutorBlocked    = errors.New("tutor is temporarily blocked from new bookings")
	ErrBookingResolved = errors.New("booking is already resolved")
)

type BookingService struct {
	repo         Repository
	locker       redisclient.Locker
	cache        SlotCache
	logger       *zap.Logger
	reminderLead time.Duration
	now          func() time.Time
}

func NewBookingService(repo Repository, locker redisclient.Locker, cache SlotCache, logger *zap.Logger, reminderLead time.Duration) *BookingService {
	return &BookingService{
		repo:         repo,
		locker:       locker,
		cache:        cache,
		logger:       logger,
		reminderLead: reminderLead,
		now:          time.Now,
	}
}

// WithClock overrides the service clock.
func (s *BookingService) WithClock(now func() time.Time) *BookingService {
	s.now = now
	return s
}

// GetAvailableSlots returns open slots in the range that are still beyond
// the booking lead time. Reads go through the availability cache when one
// is configured; the cache is never consulted on the booking write path.
func (s *BookingService) GetAvailableSlots(ctx context.Context, tutorID uuid.UUID, startDate, endDate string) ([]TimeSlot, error) {
	start, err := ParseDate(startDate)
	if err != nil {
		return nil, err
	}
	end, err := ParseDate(endDate)
	if err != nil {
		return nil, err
	}
	to := end.AddDate(0, 0, 1) // end date inclusive

	rangeKey := startDate + ".." + endDate
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, tutorID, rangeKey); err == nil {
			var cached []TimeSlot
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		} else if !errors.Is(err, redisclient.ErrCacheMiss) {
			s.logger.Warn("availability cache read failed",
				zap.String("tutor_id", tutorID.String()), zap.Error(err))
		}
	}

	slots, err := s.repo.ListOpenSlots(ctx, tutorID, start, to, s.now().Add(BookingLeadTime))
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(slots); err == nil {
			if err := s.cache.Set(ctx, tutorID, rangeKey, data); err != nil {
				s.logger.Warn("availability cache write failed",
					zap.String("tutor_id", tutorID.String()), zap.Error(err))
			}
		}
	}

	return slots, nil
}

// BookSlot claims an open slot for a student. The per-slot lock narrows the
// race window; correctness rests on the conditional transition inside
// Repository.BookSlot, so the loser of a race always gets a conflict.
func (s *BookingService) BookSlot(ctx context.Context, studentID, slotID uuid.UUID) (*Booking, error) {
	if _, err := s.repo.GetStudentByID(ctx, studentID); err != nil {
		return nil, err
	}

	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.Status != SlotOpen {
		return nil, ErrSlotNotOpen
	}

	now := s.now()
	if !CanBookAt(now, slot.StartAt) {
		return nil, ErrBookingTooSoon
	}

	tutor, err := s.repo.GetTutorByID(ctx, slot.TutorID)
	if err != nil {
		return nil, fmt.Errorf("load tutor: %w", err)
	}
	if tutor.IsBlocked {
		return nil, ErrTutorBlocked
	}

	var booking *Booking
	err = s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		b, err := s.repo.BookSlot(lockCtx, slotID, studentID, now.Add(BookingLeadTime))
		if err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		if errors.Is(err, ErrSlotConflict) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}

	s.invalidate(ctx, slot.TutorID)
	bid := booking.ID
	logEvent(ctx, s.repo, s.logger, EventBookingCreated, now, slot.TutorID, &bid, map[string]any{
		"slot_id":    slotID.String(),
		"student_id": studentID.String(),
		"start_at":   slot.StartAt,
	})

	return booking, nil
}

// CancelBooking resolves a confirmed booking and returns its slot to
// bookable state. Cancellation never assigns a penalty; no-show penalties
// come from attendance marking only.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID uuid.UUID, cancelledBy, reason string) error {
	existing, err := s.repo.GetBookingByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if existing.Status != BookingConfirmed {
		return ErrBookingResolved
	}

	booking, err := s.repo.CancelBooking(ctx, bookingID, cancelledBy, reason)
	if err != nil {
		return err
	}

	s.invalidate(ctx, booking.TutorID)
	bid := booking.ID
	logEvent(ctx, s.repo, s.logger, EventBookingCancelled, s.now(), booking.TutorID, &bid, map[string]any{
		"slot_id":      booking.SlotID.String(),
		"cancelled_by": cancelledBy,
		"reason":       reason,
	})
	return nil
}

// CompleteBooking finishes a confirmed session, moving both the booking and
// its slot to completed.
func (s *BookingService) CompleteBooking(ctx context.Context, bookingID uuid.UUID) (*Booking, error) {
	booking, err := s.repo.CompleteBooking(ctx, bookingID, s.now())
	if err != nil {
		return nil, err
	}

	bid := booking.ID
	logEvent(ctx, s.repo, s.logger, EventBookingCompleted, s.now(), booking.TutorID, &bid, map[string]any{
		"slot_id": booking.SlotID.String(),
	})
	return booking, nil
}

// SendDueReminders is the per-minute sweep body: it emits a reminder event
// for each confirmed booking entering the reminder window. The conditional
// mark makes it idempotent per booking, so overlapping runs cannot emit
// duplicates.
func (s *BookingService) SendDueReminders(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.repo.FindDueReminders(ctx, now, s.reminderLead)
	if err != nil {
		return 0, fmt.Errorf("find due reminders: %w", err)
	}

	sent := 0
	for _, b := range due {
		marked, err := s.repo.MarkReminderSent(ctx, b.ID, now)
		if err != nil {
			s.logger.Error("failed to mark reminder sent",
				zap.String("booking_id", b.ID.String()), zap.Error(err))
			continue
		}
		if !marked {
			continue // another sweep got there first
		}

		bid := b.ID
		logEvent(ctx, s.repo, s.logger, EventBookingReminder, now, b.TutorID, &bid, map[string]any{
			"student_id": b.StudentID.String(),
			"start_at":   b.StartAt,
		})
		sent++
	}

	return sent, nil
}

func (s *BookingService) invalidate(ctx context.Context, tutorID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, tutorID); err != nil {
		s.logger.Warn("availability cache invalidation failed",
			zap.String("tutor_id", tutorID.String()), zap.Error(err))
	}
}
