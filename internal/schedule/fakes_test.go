package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tutorhive/scheduling-engine/internal/penalty"
	redisclient "github.com/tutorhive/scheduling-engine/internal/redis"
)

// fakeStore is an in-memory Repository. Conditional status transitions take
// the store mutex, so concurrent BookSlot calls race exactly like the
// row-level CAS does in Postgres.
type fakeStore struct {
	mu        sync.Mutex
	tutors    map[uuid.UUID]*Tutor
	students  map[uuid.UUID]*Student
	slots     map[uuid.UUID]*TimeSlot
	slotKeys  map[string]uuid.UUID
	bookings  map[uuid.UUID]*Booking
	templates map[uuid.UUID][]TemplateEntry
	events    []EventLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tutors:    make(map[uuid.UUID]*Tutor),
		students:  make(map[uuid.UUID]*Student),
		slots:     make(map[uuid.UUID]*TimeSlot),
		slotKeys:  make(map[string]uuid.UUID),
		bookings:  make(map[uuid.UUID]*Booking),
		templates: make(map[uuid.UUID][]TemplateEntry),
	}
}

func slotKey(tutorID uuid.UUID, startAt time.Time) string {
	return tutorID.String() + "|" + startAt.UTC().Format(time.RFC3339)
}

func (f *fakeStore) addTutor(blocked bool) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.tutors[id] = &Tutor{ID: id, Name: "Tutor", IsBlocked: blocked}
	return id
}

func (f *fakeStore) addStudent() uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.students[id] = &Student{ID: id, Name: "Student"}
	return id
}

func (f *fakeStore) addSlot(tutorID uuid.UUID, startAt time.Time, status SlotStatus) *TimeSlot {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot := &TimeSlot{
		ID:          uuid.New(),
		TutorID:     tutorID,
		StartAt:     startAt,
		DurationMin: SessionMinutes,
		Status:      status,
	}
	f.slots[slot.ID] = slot
	f.slotKeys[slotKey(tutorID, startAt)] = slot.ID
	return copySlot(slot)
}

func (f *fakeStore) slotCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.slots)
}

func (f *fakeStore) getSlot(id uuid.UUID) *TimeSlot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copySlot(f.slots[id])
}

func (f *fakeStore) getBooking(id uuid.UUID) *Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyBooking(f.bookings[id])
}

func (f *fakeStore) eventCount(eventType string) int {
	return len(f.eventsOf(eventType))
}

func (f *fakeStore) eventsOf(eventType string) []EventLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []EventLog
	for _, ev := range f.events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func copySlot(s *TimeSlot) *TimeSlot {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func copyBooking(b *Booking) *Booking {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

func (f *fakeStore) GetTutorByID(_ context.Context, id uuid.UUID) (*Tutor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tutors[id]
	if !ok {
		return nil, ErrTutorNotFound
	}
	c := *t
	return &c, nil
}

func (f *fakeStore) GetStudentByID(_ context.Context, id uuid.UUID) (*Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.students[id]
	if !ok {
		return nil, ErrStudentNotFound
	}
	c := *s
	return &c, nil
}

func (f *fakeStore) CreateSlot(_ context.Context, slot *TimeSlot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := slotKey(slot.TutorID, slot.StartAt)
	if _, exists := f.slotKeys[key]; exists {
		return ErrSlotExists
	}
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	stored := *slot
	f.slots[slot.ID] = &stored
	f.slotKeys[key] = slot.ID
	return nil
}

func (f *fakeStore) GetSlotByID(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return copySlot(s), nil
}

func (f *fakeStore) ListOpenSlots(_ context.Context, tutorID uuid.UUID, from, to, notBefore time.Time) ([]TimeSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []TimeSlot
	for _, s := range f.slots {
		if s.TutorID != tutorID || s.Status != SlotOpen {
			continue
		}
		if s.StartAt.Before(from) || !s.StartAt.Before(to) || s.StartAt.Before(notBefore) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (f *fakeStore) UpdateSlotStatus(_ context.Context, id uuid.UUID, from, to SlotStatus) (*TimeSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok || s.Status != from {
		return nil, ErrSlotConflict
	}
	s.Status = to
	return copySlot(s), nil
}

func (f *fakeStore) DeleteOpenSlot(_ context.Context, tutorID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok || s.TutorID != tutorID || s.Status != SlotOpen {
		return ErrSlotNotFound
	}
	delete(f.slotKeys, slotKey(s.TutorID, s.StartAt))
	delete(f.slots, id)
	return nil
}

func (f *fakeStore) SetSlotAttendance(_ context.Context, id uuid.UUID, status AttendanceStatus) (*TimeSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	st := status
	s.TutorAttended = &st
	return copySlot(s), nil
}

func (f *fakeStore) ReplaceTemplate(_ context.Context, tutorID uuid.UUID, entries []TemplateEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := make([]TemplateEntry, len(entries))
	copy(stored, entries)
	f.templates[tutorID] = stored
	return nil
}

func (f *fakeStore) GetTemplate(_ context.Context, tutorID uuid.UUID) ([]TemplateEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.templates[tutorID], nil
}

func (f *fakeStore) BookSlot(_ context.Context, slotID, studentID uuid.UUID, notBefore time.Time) (*Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Status != SlotOpen || s.StartAt.Before(notBefore) {
		return nil, ErrSlotConflict
	}
	s.Status = SlotBooked

	b := &Booking{
		ID:          uuid.New(),
		SlotID:      slotID,
		TutorID:     s.TutorID,
		StudentID:   studentID,
		StartAt:     s.StartAt,
		DurationMin: s.DurationMin,
		Status:      BookingConfirmed,
	}
	f.bookings[b.ID] = b
	return copyBooking(b), nil
}

func (f *fakeStore) CancelBooking(_ context.Context, bookingID uuid.UUID, cancelledBy, _ string) (*Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[bookingID]
	if !ok {
		return nil, ErrBookingNotFound
	}
	if b.Status != BookingConfirmed {
		return nil, ErrBookingConflict
	}
	b.Status = BookingCancelled
	by := cancelledBy
	at := time.Now()
	b.CancelledBy = &by
	b.CancelledAt = &at

	if s, ok := f.slots[b.SlotID]; ok && s.Status == SlotBooked {
		s.Status = SlotOpen
	}
	return copyBooking(b), nil
}

func (f *fakeStore) GetBookingByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return copyBooking(b), nil
}

func (f *fakeStore) SetBookingAttendance(_ context.Context, id uuid.UUID, role Role, status AttendanceStatus) (*Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	st := status
	switch role {
	case RoleTutor:
		b.TutorAttendance = &st
	case RoleStudent:
		b.StudentAttendance = &st
	}
	return copyBooking(b), nil
}

func (f *fakeStore) CompleteBooking(_ context.Context, id uuid.UUID, at time.Time) (*Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	if b.Status != BookingConfirmed {
		return nil, ErrBookingConflict
	}
	b.Status = BookingCompleted
	t := at
	b.CompletedAt = &t
	if s, ok := f.slots[b.SlotID]; ok && s.Status == SlotBooked {
		s.Status = SlotCompleted
	}
	return copyBooking(b), nil
}

func (f *fakeStore) FindDueReminders(_ context.Context, now time.Time, lead time.Duration) ([]Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Booking
	for _, b := range f.bookings {
		if b.Status != BookingConfirmed || b.ReminderSentAt != nil {
			continue
		}
		if b.StartAt.After(now) && !b.StartAt.After(now.Add(lead)) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkReminderSent(_ context.Context, bookingID uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[bookingID]
	if !ok {
		return false, ErrBookingNotFound
	}
	if b.ReminderSentAt != nil {
		return false, nil
	}
	t := at
	b.ReminderSentAt = &t
	return true, nil
}

func (f *fakeStore) InsertEvent(_ context.Context, ev EventLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

var _ Repository = (*fakeStore)(nil)

type assignedCall struct {
	tutorID   uuid.UUID
	bookingID *uuid.UUID
	slotID    *uuid.UUID
	code      penalty.Code
	reason    string
}

// fakeAssigner records every penalty the services raise.
type fakeAssigner struct {
	mu    sync.Mutex
	calls []assignedCall
}

func (f *fakeAssigner) AssignPenalty(_ context.Context, tutorID uuid.UUID, bookingID, slotID *uuid.UUID, code penalty.Code, reason string) (*penalty.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, assignedCall{
		tutorID:   tutorID,
		bookingID: bookingID,
		slotID:    slotID,
		code:      code,
		reason:    reason,
	})
	return &penalty.Record{ID: uuid.New(), TutorID: tutorID, Code: code}, nil
}

func (f *fakeAssigner) callsFor(code penalty.Code) []assignedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []assignedCall
	for _, c := range f.calls {
		if c.code == code {
			out = append(out, c)
		}
	}
	return out
}

var _ PenaltyAssigner = (*fakeAssigner)(nil)

// passLocker runs the critical section directly, leaving the conditional
// transition in the store as the only concurrency control.
type passLocker struct{}

func (passLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeCache always misses and counts invalidations.
type fakeCache struct {
	mu            sync.Mutex
	invalidations int
}

func (f *fakeCache) Get(_ context.Context, _ uuid.UUID, _ string) ([]byte, error) {
	return nil, redisclient.ErrCacheMiss
}

func (f *fakeCache) Set(_ context.Context, _ uuid.UUID, _ string, _ []byte) error {
	return nil
}

func (f *fakeCache) Invalidate(_ context.Context, _ uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations++
	return nil
}

func (f *fakeCache) invalidated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidations
}

var _ SlotCache = (*fakeCache)(nil)
