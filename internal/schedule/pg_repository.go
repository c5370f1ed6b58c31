package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation = "23505"
	fkViolation     = "23503"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanTutor(row pgx.Row) (*Tutor, error) {
	var t Tutor
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Email,
		&t.IsBlocked,
		&t.BlockExpiresAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTutorNotFound
		}
		return nil, err
	}
	return &t, nil
}

func scanStudent(row pgx.Row) (*Student, error) {
	var s Student
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Email,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot
	var attended *string

	err := row.Scan(
		&s.ID,
		&s.TutorID,
		&s.StartAt,
		&s.DurationMin,
		&s.Status,
		&s.Recurring,
		&attended,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	if attended != nil {
		a := AttendanceStatus(*attended)
		s.TutorAttended = &a
	}
	return &s, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var tutorAtt, studentAtt *string

	err := row.Scan(
		&b.ID,
		&b.SlotID,
		&b.TutorID,
		&b.StudentID,
		&b.StartAt,
		&b.DurationMin,
		&b.Status,
		&tutorAtt,
		&studentAtt,
		&b.PenaltyCode,
		&b.PenaltyReason,
		&b.PenalizedAt,
		&b.ReminderSentAt,
		&b.CancelledBy,
		&b.CancelledAt,
		&b.CompletedAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	if tutorAtt != nil {
		a := AttendanceStatus(*tutorAtt)
		b.TutorAttendance = &a
	}
	if studentAtt != nil {
		a := AttendanceStatus(*studentAtt)
		b.StudentAttendance = &a
	}
	return &b, nil
}

const slotColumns = `id, tutor_id, start_at, duration_min, status, recurring, tutor_attended, created_at, updated_at`

const bookingColumns = `id, slot_id, tutor_id, student_id, start_at, duration_min, status,
		tutor_attendance, student_attendance, penalty_code, penalty_reason, penalized_at,
		reminder_sent_at, cancelled_by, cancelled_at, completed_at, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetTutorByID(ctx context.Context, id uuid.UUID) (*Tutor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, is_blocked, block_expires_at, created_at, updated_at
		FROM tutors
		WHERE id = $1
	`, id)
	return scanTutor(row)
}

func (r *PgRepository) GetStudentByID(ctx context.Context, id uuid.UUID) (*Student, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM students
		WHERE id = $1
	`, id)
	return scanStudent(row)
}

func (r *PgRepository) CreateSlot(ctx context.Context, slot *TimeSlot) error {
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO time_slots (id, tutor_id, start_at, duration_min, status, recurring, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING created_at, updated_at
	`, slot.ID, slot.TutorID, slot.StartAt, slot.DurationMin, slot.Status, slot.Recurring)

	if err := row.Scan(&slot.CreatedAt, &slot.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrSlotExists
		}
		return fmt.Errorf("create slot: %w", err)
	}
	return nil
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListOpenSlots(ctx context.Context, tutorID uuid.UUID, from, to, notBefore time.Time) ([]TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE tutor_id = $1
		  AND status = 'open'
		  AND start_at >= $2
		  AND start_at < $3
		  AND start_at >= $4
		ORDER BY start_at
	`, tutorID, from, to, notBefore)
	if err != nil {
		return nil, fmt.Errorf("list open slots: %w", err)
	}
	defer rows.Close()

	var result []TimeSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE time_slots
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+slotColumns+`
	`, id, to, from)

	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}
	return slot, nil
}

func (r *PgRepository) DeleteOpenSlot(ctx context.Context, tutorID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM time_slots
		WHERE id = $1
		  AND tutor_id = $2
		  AND status = 'open'
	`, id, tutorID)
	if err != nil {
		// Slots with booking history stay behind for compliance review.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == fkViolation {
			return ErrSlotConflict
		}
		return fmt.Errorf("delete open slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PgRepository) SetSlotAttendance(ctx context.Context, id uuid.UUID, status AttendanceStatus) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE time_slots
		SET tutor_attended = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+slotColumns+`
	`, id, status)
	return scanSlot(row)
}

func (r *PgRepository) ReplaceTemplate(ctx context.Context, tutorID uuid.UUID, entries []TemplateEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin template replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM weekly_templates WHERE tutor_id = $1`, tutorID); err != nil {
		return fmt.Errorf("clear template: %w", err)
	}

	for i := range entries {
		e := &entries[i]
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		e.TutorID = tutorID
		_, err := tx.Exec(ctx, `
			INSERT INTO weekly_templates (id, tutor_id, day_of_week, slot_time, created_at)
			VALUES ($1, $2, $3, $4, now())
		`, e.ID, tutorID, int(e.DayOfWeek), e.SlotTime)
		if err != nil {
			return fmt.Errorf("insert template entry: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) GetTemplate(ctx context.Context, tutorID uuid.UUID) ([]TemplateEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tutor_id, day_of_week, slot_time, created_at
		FROM weekly_templates
		WHERE tutor_id = $1
		ORDER BY day_of_week, slot_time
	`, tutorID)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	defer rows.Close()

	var result []TemplateEntry
	for rows.Next() {
		var e TemplateEntry
		var dow int
		if err := rows.Scan(&e.ID, &e.TutorID, &dow, &e.SlotTime, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan template entry: %w", err)
		}
		e.DayOfWeek = time.Weekday(dow)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// BookSlot is the one atomic conditional mutation the at-most-one-booking
// invariant rests on: the slot transition carries both the expected status
// and the lead-time floor in its WHERE clause, and the booking insert shares
// its transaction.
func (r *PgRepository) BookSlot(ctx context.Context, slotID, studentID uuid.UUID, notBefore time.Time) (*Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE time_slots
		SET status = 'booked',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'open'
		  AND start_at >= $2
		RETURNING `+slotColumns+`
	`, slotID, notBefore)

	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}

	bookingID := uuid.New()
	row = tx.QueryRow(ctx, `
		INSERT INTO bookings (id, slot_id, tutor_id, student_id, start_at, duration_min, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'confirmed', now(), now())
		RETURNING `+bookingColumns+`
	`, bookingID, slot.ID, slot.TutorID, studentID, slot.StartAt, slot.DurationMin)

	booking, err := scanBooking(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrSlotConflict
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking: %w", err)
	}
	return booking, nil
}

func (r *PgRepository) CancelBooking(ctx context.Context, bookingID uuid.UUID, cancelledBy, reason string) (*Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cancel: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled',
		    cancelled_by = $2,
		    cancelled_at = now(),
		    updated_at = now()
		WHERE id = $1
		  AND status = 'confirmed'
		RETURNING `+bookingColumns+`
	`, bookingID, cancelledBy)

	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, ErrBookingConflict
		}
		return nil, err
	}

	// The slot goes back to bookable state.
	_, err = tx.Exec(ctx, `
		UPDATE time_slots
		SET status = 'open',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'booked'
	`, booking.SlotID)
	if err != nil {
		return nil, fmt.Errorf("reopen slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}
	return booking, nil
}

func (r *PgRepository) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (r *PgRepository) SetBookingAttendance(ctx context.Context, id uuid.UUID, role Role, status AttendanceStatus) (*Booking, error) {
	column := "tutor_attendance"
	if role == RoleStudent {
		column = "student_attendance"
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET `+column+` = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+bookingColumns+`
	`, id, status)
	return scanBooking(row)
}

func (r *PgRepository) CompleteBooking(ctx context.Context, id uuid.UUID, at time.Time) (*Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin complete: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'completed',
		    completed_at = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'confirmed'
		RETURNING `+bookingColumns+`
	`, id, at)

	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, ErrBookingConflict
		}
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE time_slots
		SET status = 'completed',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'booked'
	`, booking.SlotID)
	if err != nil {
		return nil, fmt.Errorf("complete slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit complete: %w", err)
	}
	return booking, nil
}

func (r *PgRepository) FindDueReminders(ctx context.Context, now time.Time, lead time.Duration) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'confirmed'
		  AND reminder_sent_at IS NULL
		  AND start_at > $1
		  AND start_at <= $2
	`, now, now.Add(lead))
	if err != nil {
		return nil, fmt.Errorf("find due reminders: %w", err)
	}
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkReminderSent is conditional on the flag still being unset, which makes
// the reminder sweep idempotent per booking.
func (r *PgRepository) MarkReminderSent(ctx context.Context, bookingID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bookings
		SET reminder_sent_at = $2,
		    updated_at = now()
		WHERE id = $1
		  AND reminder_sent_at IS NULL
	`, bookingID, at)
	if err != nil {
		return false, fmt.Errorf("mark reminder sent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
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
