package penalty

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var bookingID, slotID *uuid.UUID
	var blockUntil, resolvedAt *time.Time
	var appeal *string

	err := row.Scan(
		&rec.ID,
		&rec.TutorID,
		&bookingID,
		&slotID,
		&rec.Code,
		&rec.Label,
		&rec.Reason,
		&rec.Severity,
		&rec.AffectsCompensation,
		&blockUntil,
		&appeal,
		&resolvedAt,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	rec.BookingID = bookingID
	rec.SlotID = slotID
	rec.BlockUntil = blockUntil
	rec.ResolvedAt = resolvedAt
	if appeal != nil {
		s := AppealStatus(*appeal)
		rec.AppealStatus = &s
	}
	return &rec, nil
}

const recordColumns = `id, tutor_id, booking_id, slot_id, code, label, reason, severity,
		affects_compensation, block_until, appeal_status, resolved_at, created_at`

func (r *PgRepository) InsertRecord(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO penalty_records
			(id, tutor_id, booking_id, slot_id, code, label, reason, severity,
			 affects_compensation, block_until, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		RETURNING id, created_at
	`, rec.ID, rec.TutorID, rec.BookingID, rec.SlotID, rec.Code, rec.Label,
		rec.Reason, rec.Severity, rec.AffectsCompensation, rec.BlockUntil)

	if err := row.Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return fmt.Errorf("insert penalty record: %w", err)
	}
	return nil
}

func (r *PgRepository) CountByCodeSince(ctx context.Context, tutorID uuid.UUID, code Code, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM penalty_records
		WHERE tutor_id = $1 AND code = $2 AND created_at >= $3
	`, tutorID, code, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count penalty records: %w", err)
	}
	return count, nil
}

func (r *PgRepository) CountsSince(ctx context.Context, tutorID uuid.UUID, since time.Time) (WindowCounts, error) {
	var counts WindowCounts
	err := r.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE code = 301),
			count(*) FILTER (WHERE code = 302),
			count(*) FILTER (WHERE code = 303)
		FROM penalty_records
		WHERE tutor_id = $1 AND created_at >= $2
	`, tutorID, since).Scan(
		&counts.TutorAbsenceBooked,
		&counts.TutorAbsenceUnbooked,
		&counts.ShortNoticeClosure,
	)
	if err != nil {
		return WindowCounts{}, fmt.Errorf("count penalty window: %w", err)
	}
	return counts, nil
}

func (r *PgRepository) RecentRecords(ctx context.Context, tutorID uuid.UUID, limit int) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM penalty_records
		WHERE tutor_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, tutorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent penalty records: %w", err)
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) UpdateAppealStatus(ctx context.Context, recordID uuid.UUID, status AppealStatus, resolvedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE penalty_records
		SET appeal_status = $2,
		    resolved_at = $3
		WHERE id = $1
	`, recordID, status, resolvedAt)
	if err != nil {
		return fmt.Errorf("update appeal status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *PgRepository) StampBookingPenalty(ctx context.Context, bookingID uuid.UUID, code Code, reason string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bookings
		SET penalty_code = $2,
		    penalty_reason = $3,
		    penalized_at = $4,
		    updated_at = now()
		WHERE id = $1
	`, bookingID, code, reason, at)
	if err != nil {
		return fmt.Errorf("stamp booking penalty: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (r *PgRepository) SetTutorBlocked(ctx context.Context, tutorID uuid.UUID, until time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tutors
		SET is_blocked = true,
		    block_expires_at = $2,
		    updated_at = now()
		WHERE id = $1
	`, tutorID, until)
	if err != nil {
		return fmt.Errorf("set tutor blocked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTutorNotFound
	}
	return nil
}

func (r *PgRepository) GetTutorBlock(ctx context.Context, tutorID uuid.UUID) (bool, *time.Time, error) {
	var blocked bool
	var expiresAt *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT is_blocked, block_expires_at
		FROM tutors
		WHERE id = $1
	`, tutorID).Scan(&blocked, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil, ErrTutorNotFound
		}
		return false, nil, fmt.Errorf("get tutor block: %w", err)
	}
	return blocked, expiresAt, nil
}

// ReleaseExpiredBlocks clears block flags whose expiry has passed. The WHERE
// clause makes the sweep idempotent: a second run touches zero rows.
func (r *PgRepository) ReleaseExpiredBlocks(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tutors
		SET is_blocked = false,
		    block_expires_at = NULL,
		    updated_at = now()
		WHERE is_blocked = true
		  AND block_expires_at IS NOT NULL
		  AND block_expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("release expired blocks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, tutor_id, booking_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.TutorID, ev.BookingID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
