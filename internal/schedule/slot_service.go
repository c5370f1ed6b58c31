package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutorhive/scheduling-engine/internal/penalty"
)

var (
	ErrTooSoon       = errors.New("slot start is too soon to open")
	ErrBatchTooLarge = errors.New("bulk expansion exceeds the slot limit")
	ErrSlotBooked    = errors.New("slot is booked and cannot be closed")
	ErrNotOwned      = errors.New("slot does not belong to this tutor")
)

// PenaltyAssigner is the compliance hook the scheduling services call into.
// Implemented by the penalty engine.
type PenaltyAssigner interface {
	AssignPenalty(ctx context.Context, tutorID uuid.UUID, bookingID, slotID *uuid.UUID, code penalty.Code, reason string) (*penalty.Record, error)
}

// SlotCache is the read-path availability cache. Nil-safe: services check
// for nil before every call so the engine runs without Redis in tests.
type SlotCache interface {
	Get(ctx context.Context, tutorID uuid.UUID, rangeKey string) ([]byte, error)
	Set(ctx context.Context, tutorID uuid.UUID, rangeKey string, payload []byte) error
	Invalidate(ctx context.Context, tutorID uuid.UUID) error
}

// SlotRequest is one (date, time) a tutor wants to offer.
type SlotRequest struct {
	Date string // "2006-01-02"
	Time string // "15:04"
}

type SlotService struct {
	repo      Repository
	penalties PenaltyAssigner
	cache     SlotCache
	logger    *zap.Logger
	now       func() time.Time
}

func NewSlotService(repo Repository, penalties PenaltyAssigner, cache SlotCache, logger *zap.Logger) *SlotService {
	return &SlotService{
		repo:      repo,
		penalties: penalties,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the service clock.
func (s *SlotService) WithClock(now func() time.Time) *SlotService {
	s.now = now
	return s
}

// OpenSlots creates open slots at the requested instants. A duplicate
// (tutor, start) is a hard error here; bulk expansion uses the skipping
// variant instead.
func (s *SlotService) OpenSlots(ctx context.Context, tutorID uuid.UUID, reqs []SlotRequest) ([]TimeSlot, error) {
	if _, err := s.repo.GetTutorByID(ctx, tutorID); err != nil {
		return nil, err
	}

	now := s.now()
	starts := make([]time.Time, 0, len(reqs))
	for _, req := range reqs {
		startAt, err := CombineDateTime(req.Date, req.Time)
		if err != nil {
			return nil, err
		}
		if !CanOpenAt(now, startAt) {
			return nil, fmt.Errorf("%w: %s %s", ErrTooSoon, req.Date, req.Time)
		}
		starts = append(starts, startAt)
	}

	var created []TimeSlot
	for _, startAt := range starts {
		slot := &TimeSlot{
			TutorID:     tutorID,
			StartAt:     startAt,
			DurationMin: SessionMinutes,
			Status:      SlotOpen,
		}
		if err := s.repo.CreateSlot(ctx, slot); err != nil {
			return created, fmt.Errorf("open slot at %s: %w", startAt, err)
		}
		created = append(created, *slot)
	}

	s.invalidate(ctx, tutorID)
	logEvent(ctx, s.repo, s.logger, EventSlotOpened, now, tutorID, nil, map[string]any{
		"count": len(created),
	})
	return created, nil
}

// openExpanded creates slots for pre-validated instants, silently skipping
// instants where a slot already exists.
func (s *SlotService) openExpanded(ctx context.Context, tutorID uuid.UUID, starts []time.Time, recurring bool) (int, error) {
	created := 0
	for _, startAt := range starts {
		slot := &TimeSlot{
			TutorID:     tutorID,
			StartAt:     startAt,
			DurationMin: SessionMinutes,
			Status:      SlotOpen,
			Recurring:   recurring,
		}
		err := s.repo.CreateSlot(ctx, slot)
		if errors.Is(err, ErrSlotExists) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("open slot at %s: %w", startAt, err)
		}
		created++
	}

	if created > 0 {
		s.invalidate(ctx, tutorID)
		logEvent(ctx, s.repo, s.logger, EventSlotOpened, s.now(), tutorID, nil, map[string]any{
			"count":     created,
			"recurring": recurring,
		})
	}
	return created, nil
}

// CloseSlots withdraws open slots. A booked slot is a hard error. Closing an
// open slot inside the 48-hour window first assigns a short-notice penalty;
// the close itself proceeds either way.
func (s *SlotService) CloseSlots(ctx context.Context, tutorID uuid.UUID, slotIDs []uuid.UUID) error {
	now := s.now()

	// Slots closed before a later one fails must still leave the cache.
	defer s.invalidate(ctx, tutorID)

	for _, id := range slotIDs {
		slot, err := s.repo.GetSlotByID(ctx, id)
		if err != nil {
			return err
		}
		if slot.TutorID != tutorID {
			return fmt.Errorf("%w: slot %s", ErrNotOwned, id)
		}

		switch slot.Status {
		case SlotBooked:
			return fmt.Errorf("%w: slot %s", ErrSlotBooked, id)
		case SlotOpen:
			if IsShortNotice(now, slot.StartAt) {
				sid := slot.ID
				reason := fmt.Sprintf("slot at %s closed with %.1fh notice",
					slot.StartAt.Format(time.RFC3339), NoticeHours(now, slot.StartAt))
				if _, perr := s.penalties.AssignPenalty(ctx, tutorID, nil, &sid, penalty.CodeShortNoticeClosure, reason); perr != nil {
					s.logger.Error("short-notice penalty assignment failed",
						zap.String("slot_id", sid.String()), zap.Error(perr))
				}
			}
			if _, err := s.repo.UpdateSlotStatus(ctx, slot.ID, SlotOpen, SlotAvailable); err != nil {
				return fmt.Errorf("close slot %s: %w", id, err)
			}
		default:
			// Not offered and not booked: nothing to withdraw.
			continue
		}

		logEvent(ctx, s.repo, s.logger, EventSlotClosed, now, tutorID, nil, map[string]any{
			"slot_id":  slot.ID.String(),
			"start_at": slot.StartAt,
		})
	}

	return nil
}

// DeleteSlot hard-deletes an unbooked open slot. Slots with booking history
// are never deleted; they stay behind for compliance review.
func (s *SlotService) DeleteSlot(ctx context.Context, tutorID, slotID uuid.UUID) error {
	if err := s.repo.DeleteOpenSlot(ctx, tutorID, slotID); err != nil {
		return err
	}
	s.invalidate(ctx, tutorID)
	return nil
}

// BulkOpenSlots expands eligible days x requested times across the range and
// opens them, skipping duplicates. The whole batch is rejected when the
// expansion exceeds MaxBulkSlots.
func (s *SlotService) BulkOpenSlots(ctx context.Context, tutorID uuid.UUID, startDate, endDate string, times []string, daysOfWeek []time.Weekday) error {
	if _, err := s.repo.GetTutorByID(ctx, tutorID); err != nil {
		return err
	}

	start, err := ParseDate(startDate)
	if err != nil {
		return err
	}
	end, err := ParseDate(endDate)
	if err != nil {
		return err
	}

	starts, err := ExpandRange(s.now(), start, end, times, daysOfWeek)
	if err != nil {
		return err
	}
	if len(starts) > MaxBulkSlots {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(starts), MaxBulkSlots)
	}

	_, err = s.openExpanded(ctx, tutorID, starts, false)
	return err
}

// SaveWeeklyTemplate replaces the tutor's recurring pattern wholesale.
func (s *SlotService) SaveWeeklyTemplate(ctx context.Context, tutorID uuid.UUID, entries []TemplateEntry) error {
	if _, err := s.repo.GetTutorByID(ctx, tutorID); err != nil {
		return err
	}

	for _, e := range entries {
		if e.DayOfWeek < time.Sunday || e.DayOfWeek > time.Saturday {
			return fmt.Errorf("invalid day of week %d", e.DayOfWeek)
		}
		if _, err := time.Parse("15:04", e.SlotTime); err != nil {
			return fmt.Errorf("invalid template time %q: %w", e.SlotTime, err)
		}
	}

	return s.repo.ReplaceTemplate(ctx, tutorID, entries)
}

// ApplyTemplate expands the stored weekly pattern across the date range by
// day-of-week match and opens the resulting slots, skipping duplicates.
func (s *SlotService) ApplyTemplate(ctx context.Context, tutorID uuid.UUID, startDate, endDate string) error {
	entries, err := s.repo.GetTemplate(ctx, tutorID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return ErrNoTemplate
	}

	start, err := ParseDate(startDate)
	if err != nil {
		return err
	}
	end, err := ParseDate(endDate)
	if err != nil {
		return err
	}

	byDay := make(map[time.Weekday][]string)
	for _, e := range entries {
		byDay[e.DayOfWeek] = append(byDay[e.DayOfWeek], e.SlotTime)
	}

	now := s.now()
	var starts []time.Time
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		for _, tod := range byDay[day.Weekday()] {
			t, err := time.Parse("15:04", tod)
			if err != nil {
				return fmt.Errorf("invalid template time %q: %w", tod, err)
			}
			startAt := time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
			if !CanOpenAt(now, startAt) {
				continue
			}
			starts = append(starts, startAt)
		}
	}

	created, err := s.openExpanded(ctx, tutorID, starts, true)
	if err != nil {
		return err
	}

	s.logger.Info("template applied",
		zap.String("tutor_id", tutorID.String()),
		zap.Int("slots_created", created))
	return nil
}

func (s *SlotService) invalidate(ctx context.Context, tutorID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, tutorID); err != nil {
		s.logger.Warn("availability cache invalidation failed",
			zap.String("tutor_id", tutorID.String()), zap.Error(err))
	}
}
