package penalty

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const recentRecordLimit = 10

// Summary is the operator-facing compliance view for one tutor.
type Summary struct {
	TutorID        uuid.UUID
	MonthToDate    WindowCounts
	Trailing30Days WindowCounts
	IsBlocked      bool
	BlockExpiresAt *time.Time
	RecentRecords  []Record
}

// Reporter is a read-only aggregation over the ledger and tutor flags.
type Reporter struct {
	repo Repository
	now  func() time.Time
}

func NewReporter(repo Repository) *Reporter {
	return &Reporter{repo: repo, now: time.Now}
}

// WithClock overrides the reporter clock.
func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	r.now = now
	return r
}

// GetPenaltySummary returns absence/closure counts for the calendar month to
// date and the trailing 30 days, the current block status, and the most
// recent ledger entries. It never mutates anything.
func (r *Reporter) GetPenaltySummary(ctx context.Context, tutorID uuid.UUID) (*Summary, error) {
	now := r.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	windowStart := now.Add(-EscalationWindow)

	monthCounts, err := r.repo.CountsSince(ctx, tutorID, monthStart)
	if err != nil {
		return nil, fmt.Errorf("month-to-date counts: %w", err)
	}

	trailingCounts, err := r.repo.CountsSince(ctx, tutorID, windowStart)
	if err != nil {
		return nil, fmt.Errorf("trailing-window counts: %w", err)
	}

	blocked, expiresAt, err := r.repo.GetTutorBlock(ctx, tutorID)
	if err != nil {
		return nil, fmt.Errorf("block status: %w", err)
	}

	recent, err := r.repo.RecentRecords(ctx, tutorID, recentRecordLimit)
	if err != nil {
		return nil, fmt.Errorf("recent records: %w", err)
	}

	return &Summary{
		TutorID:        tutorID,
		MonthToDate:    monthCounts,
		Trailing30Days: trailingCounts,
		IsBlocked:      blocked,
		BlockExpiresAt: expiresAt,
		RecentRecords:  recent,
	}, nil
}
