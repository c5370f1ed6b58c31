package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tutorhive/scheduling-engine/internal/penalty"
)

func newAttendanceUnderTest(t *testing.T) (*AttendanceService, *fakeStore, *fakeAssigner) {
	t.Helper()
	store := newFakeStore()
	assigner := &fakeAssigner{}
	return NewAttendanceService(store, assigner, zap.NewNop()), store, assigner
}

func bookedSession(t *testing.T, store *fakeStore) *Booking {
	t.Helper()
	tutorID := store.addTutor(false)
	studentID := store.addStudent()
	slot := store.addSlot(tutorID, time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC), SlotOpen)
	booking, err := store.BookSlot(context.Background(), slot.ID, studentID, time.Time{})
	if err != nil {
		t.Fatalf("BookSlot: %v", err)
	}
	return booking
}

func TestMarkBookingAttendanceTutorAbsent(t *testing.T) {
	svc, store, assigner := newAttendanceUnderTest(t)
	booking := bookedSession(t, store)

	if err := svc.MarkBookingAttendance(context.Background(), booking.ID, RoleTutor, AttendanceAbsent); err != nil {
		t.Fatalf("MarkBookingAttendance: %v", err)
	}

	got := store.getBooking(booking.ID)
	if got.TutorAttendance == nil || *got.TutorAttendance != AttendanceAbsent {
		t.Error("tutor attendance mark not stored")
	}

	calls := assigner.callsFor(penalty.CodeTutorAbsenceBooked)
	if len(calls) != 1 {
		t.Fatalf("expected exactly one booked-absence penalty, got %d", len(calls))
	}
	if calls[0].bookingID == nil || *calls[0].bookingID != booking.ID {
		t.Error("penalty not attributed to the booking")
	}
	if calls[0].tutorID != booking.TutorID {
		t.Error("penalty not attributed to the tutor")
	}
}

func TestMarkBookingAttendanceStudentAbsent(t *testing.T) {
	svc, store, assigner := newAttendanceUnderTest(t)
	booking := bookedSession(t, store)

	if err := svc.MarkBookingAttendance(context.Background(), booking.ID, RoleStudent, AttendanceAbsent); err != nil {
		t.Fatalf("MarkBookingAttendance: %v", err)
	}

	calls := assigner.callsFor(penalty.CodeStudentNoShow)
	if len(calls) != 1 {
		t.Fatalf("expected exactly one student no-show penalty, got %d", len(calls))
	}
	if n := len(assigner.callsFor(penalty.CodeTutorAbsenceBooked)); n != 0 {
		t.Errorf("student absence must not raise a tutor penalty, got %d", n)
	}
}

// Marks are independent per role: each absence yields exactly one record
// regardless of marking order.
func TestMarkBookingAttendanceBothAbsent(t *testing.T) {
	svc, store, assigner := newAttendanceUnderTest(t)
	booking := bookedSession(t, store)

	if err := svc.MarkBookingAttendance(context.Background(), booking.ID, RoleStudent, AttendanceAbsent); err != nil {
		t.Fatalf("mark student: %v", err)
	}
	if err := svc.MarkBookingAttendance(context.Background(), booking.ID, RoleTutor, AttendanceAbsent); err != nil {
		t.Fatalf("mark tutor: %v", err)
	}

	if n := len(assigner.callsFor(penalty.CodeStudentNoShow)); n != 1 {
		t.Errorf("expected 1 student no-show record, got %d", n)
	}
	if n := len(assigner.callsFor(penalty.CodeTutorAbsenceBooked)); n != 1 {
		t.Errorf("expected 1 tutor absence record, got %d", n)
	}
}

func TestMarkBookingAttendancePresentNoPenalty(t *testing.T) {
	svc, store, assigner := newAttendanceUnderTest(t)
	booking := bookedSession(t, store)

	if err := svc.MarkBookingAttendance(context.Background(), booking.ID, RoleTutor, AttendancePresent); err != nil {
		t.Fatalf("MarkBookingAttendance: %v", err)
	}
	if err := svc.MarkBookingAttendance(context.Background(), booking.ID, RoleStudent, AttendancePresent); err != nil {
		t.Fatalf("MarkBookingAttendance: %v", err)
	}
	if len(assigner.calls) != 0 {
		t.Fatalf("present marks must raise nothing, got %d calls", len(assigner.calls))
	}
}

func TestMarkBookingAttendanceValidation(t *testing.T) {
	svc, store, _ := newAttendanceUnderTest(t)
	booking := bookedSession(t, store)

	if err := svc.MarkBookingAttendance(context.Background(), booking.ID, Role("admin"), AttendancePresent); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
	if err := svc.MarkBookingAttendance(context.Background(), booking.ID, RoleTutor, AttendanceStatus("late")); !errors.Is(err, ErrInvalidAttendance) {
		t.Errorf("expected ErrInvalidAttendance, got %v", err)
	}
}

func TestMarkSlotAttendanceAbsent(t *testing.T) {
	svc, store, assigner := newAttendanceUnderTest(t)
	tutorID := store.addTutor(false)
	slot := store.addSlot(tutorID, time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC), SlotOpen)

	if err := svc.MarkSlotAttendance(context.Background(), slot.ID, AttendanceAbsent); err != nil {
		t.Fatalf("MarkSlotAttendance: %v", err)
	}

	got := store.getSlot(slot.ID)
	if got.TutorAttended == nil || *got.TutorAttended != AttendanceAbsent {
		t.Error("slot attendance mark not stored")
	}

	calls := assigner.callsFor(penalty.CodeTutorAbsenceUnbooked)
	if len(calls) != 1 {
		t.Fatalf("expected exactly one unbooked-absence penalty, got %d", len(calls))
	}
	if calls[0].slotID == nil || *calls[0].slotID != slot.ID {
		t.Error("penalty not attributed to the slot")
	}
	if calls[0].bookingID != nil {
		t.Error("unbooked absence must not reference a booking")
	}
}

func TestMarkSlotAttendancePresentNoPenalty(t *testing.T) {
	svc, store, assigner := newAttendanceUnderTest(t)
	tutorID := store.addTutor(false)
	slot := store.addSlot(tutorID, time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC), SlotOpen)

	if err := svc.MarkSlotAttendance(context.Background(), slot.ID, AttendancePresent); err != nil {
		t.Fatalf("MarkSlotAttendance: %v", err)
	}
	if len(assigner.calls) != 0 {
		t.Fatalf("present mark must raise nothing, got %d calls", len(assigner.calls))
	}
}

// A slot whose session already resolved takes no mark: its attendance, if
// any, went through the booking.
func TestMarkSlotAttendanceResolvedSlotRejected(t *testing.T) {
	svc, store, assigner := newAttendanceUnderTest(t)
	booking := bookedSession(t, store)
	if _, err := store.CompleteBooking(context.Background(), booking.ID, time.Date(2026, 3, 20, 10, 30, 0, 0, time.UTC)); err != nil {
		t.Fatalf("CompleteBooking: %v", err)
	}

	err := svc.MarkSlotAttendance(context.Background(), booking.SlotID, AttendanceAbsent)
	if !errors.Is(err, ErrSlotNotMarkable) {
		t.Fatalf("expected ErrSlotNotMarkable for completed slot, got %v", err)
	}
	if len(assigner.calls) != 0 {
		t.Fatalf("completed slot must not produce a penalty, got %d calls", len(assigner.calls))
	}

	got := store.getSlot(booking.SlotID)
	if got.TutorAttended != nil {
		t.Error("completed slot must not carry an attendance mark")
	}
}

func TestMarkSlotAttendanceHeldSlotRejected(t *testing.T) {
	svc, store, assigner := newAttendanceUnderTest(t)
	tutorID := store.addTutor(false)
	held := store.addSlot(tutorID, time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC), SlotAvailable)

	err := svc.MarkSlotAttendance(context.Background(), held.ID, AttendanceAbsent)
	if !errors.Is(err, ErrSlotNotMarkable) {
		t.Fatalf("expected ErrSlotNotMarkable for held slot, got %v", err)
	}
	if len(assigner.calls) != 0 {
		t.Error("held slot must not produce a penalty")
	}
}

func TestMarkSlotAttendanceBookedSlotRejected(t *testing.T) {
	svc, store, assigner := newAttendanceUnderTest(t)
	booking := bookedSession(t, store)

	err := svc.MarkSlotAttendance(context.Background(), booking.SlotID, AttendanceAbsent)
	if !errors.Is(err, ErrSlotHasBooking) {
		t.Fatalf("expected ErrSlotHasBooking, got %v", err)
	}
	if len(assigner.calls) != 0 {
		t.Error("rejected mark must not raise a penalty")
	}
}
