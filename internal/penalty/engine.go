package penalty

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventPenaltyAssigned  = "PENALTY_ASSIGNED"
	EventAutoBlockApplied = "AUTO_BLOCK_APPLIED"
)

const (
	// EscalationWindow is how far back repeated absences are counted.
	EscalationWindow = 30 * 24 * time.Hour
	// EscalationThreshold is the absence count that triggers an auto block.
	EscalationThreshold = 3
	// BlockDuration is how long an auto block lasts.
	BlockDuration = 7 * 24 * time.Hour
)

// Engine appends ledger records and applies the escalation policy.
type Engine struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(repo Repository, logger *zap.Logger) *Engine {
	return &Engine{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the engine clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// AssignPenalty appends a ledger record for the tutor, stamps the originating
// booking when one is attached, and runs escalation for booked-session
// absences. Escalation failure is logged, never returned: the ledger write
// already succeeded and the caller's mutation must stand.
func (e *Engine) AssignPenalty(ctx context.Context, tutorID uuid.UUID, bookingID, slotID *uuid.UUID, code Code, reason string) (*Record, error) {
	meta, ok := MetaFor(code)
	if !ok {
		return nil, fmt.Errorf("unknown penalty code %d", code)
	}

	rec := &Record{
		TutorID:             tutorID,
		BookingID:           bookingID,
		SlotID:              slotID,
		Code:                code,
		Label:               meta.Label,
		Reason:              reason,
		Severity:            meta.Severity,
		AffectsCompensation: meta.AffectsCompensation,
	}

	if err := e.repo.InsertRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("append penalty record: %w", err)
	}

	if bookingID != nil {
		if err := e.repo.StampBookingPenalty(ctx, *bookingID, code, reason, rec.CreatedAt); err != nil {
			e.logger.Error("failed to stamp booking penalty",
				zap.String("booking_id", bookingID.String()),
				zap.Int("code", int(code)),
				zap.Error(err))
		}
	}

	e.logEvent(ctx, EventPenaltyAssigned, tutorID, bookingID, map[string]any{
		"code":     int(code),
		"severity": string(meta.Severity),
		"reason":   reason,
	})

	if code == CodeTutorAbsenceBooked {
		if err := e.CheckAndApplyAutoBlock(ctx, tutorID); err != nil {
			e.logger.Error("escalation check failed",
				zap.String("tutor_id", tutorID.String()),
				zap.Error(err))
		}
	}

	return rec, nil
}

// CheckAndApplyAutoBlock counts booked-session absences inside the rolling
// window and blocks the tutor for seven days once the threshold is reached.
// There is deliberately no suppression while a block is active: every
// threshold crossing appends another block record and extends the expiry.
func (e *Engine) CheckAndApplyAutoBlock(ctx context.Context, tutorID uuid.UUID) error {
	now := e.now()
	since := now.Add(-EscalationWindow)

	count, err := e.repo.CountByCodeSince(ctx, tutorID, CodeTutorAbsenceBooked, since)
	if err != nil {
		return fmt.Errorf("count recent absences: %w", err)
	}
	if count < EscalationThreshold {
		return nil
	}

	blockUntil := now.Add(BlockDuration)
	meta, _ := MetaFor(CodeAutoBlock)

	rec := &Record{
		TutorID:             tutorID,
		Code:                CodeAutoBlock,
		Label:               meta.Label,
		Reason:              fmt.Sprintf("%d booked-session absences in the last 30 days", count),
		Severity:            meta.Severity,
		AffectsCompensation: meta.AffectsCompensation,
		BlockUntil:          &blockUntil,
	}
	if err := e.repo.InsertRecord(ctx, rec); err != nil {
		return fmt.Errorf("append block record: %w", err)
	}

	if err := e.repo.SetTutorBlocked(ctx, tutorID, blockUntil); err != nil {
		return fmt.Errorf("set block flag: %w", err)
	}

	e.logger.Warn("tutor auto-blocked",
		zap.String("tutor_id", tutorID.String()),
		zap.Int("absence_count", count),
		zap.Time("block_until", blockUntil))

	e.logEvent(ctx, EventAutoBlockApplied, tutorID, nil, map[string]any{
		"absence_count": count,
		"block_until":   blockUntil,
	})

	return nil
}

// ReleaseExpiredBlocks is the hourly sweep body. Safe to run concurrently
// and repeatedly; returns the number of tutors unblocked.
func (e *Engine) ReleaseExpiredBlocks(ctx context.Context) (int64, error) {
	released, err := e.repo.ReleaseExpiredBlocks(ctx, e.now())
	if err != nil {
		return 0, err
	}
	if released > 0 {
		e.logger.Info("released expired blocks", zap.Int64("count", released))
	}
	return released, nil
}

// ResolveAppeal records the outcome of an appeal on an existing ledger entry.
// This is the only mutation a record permits after creation.
func (e *Engine) ResolveAppeal(ctx context.Context, recordID uuid.UUID, status AppealStatus) error {
	if err := e.repo.UpdateAppealStatus(ctx, recordID, status, e.now()); err != nil {
		return fmt.Errorf("resolve appeal: %w", err)
	}
	return nil
}

func (e *Engine) logEvent(ctx context.Context, eventType string, tutorID uuid.UUID, bookingID *uuid.UUID, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.Error("failed to marshal event payload",
			zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	tid := tutorID
	ev := EventLog{
		EventType: eventType,
		TutorID:   &tid,
		BookingID: bookingID,
		Payload:   data,
		CreatedAt: e.now(),
	}

	if err := e.repo.InsertEvent(ctx, ev); err != nil {
		e.logger.Error("failed to insert event log",
			zap.String("event_type", eventType),
			zap.String("tutor_id", tutorID.String()),
			zap.Error(err))
	}
}
