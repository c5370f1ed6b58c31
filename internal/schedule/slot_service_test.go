package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutorhive/scheduling-engine/internal/penalty"
)

func newSlotServiceUnderTest(now time.Time) (*SlotService, *fakeStore, *fakeAssigner) {
	store := newFakeStore()
	assigner := &fakeAssigner{}
	svc := NewSlotService(store, assigner, nil, zap.NewNop()).
		WithClock(func() time.Time { return now })
	return svc, store, assigner
}

func TestOpenSlots(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newSlotServiceUnderTest(now)
	tutorID := store.addTutor(false)

	created, err := svc.OpenSlots(context.Background(), tutorID, []SlotRequest{
		{Date: "2026-03-17", Time: "10:00"},
		{Date: "2026-03-17", Time: "10:30"},
	})
	if err != nil {
		t.Fatalf("OpenSlots: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(created))
	}
	for _, slot := range created {
		if slot.Status != SlotOpen {
			t.Errorf("slot status = %s, want open", slot.Status)
		}
		if slot.DurationMin != SessionMinutes {
			t.Errorf("slot duration = %d, want %d", slot.DurationMin, SessionMinutes)
		}
	}
	events := store.eventsOf(EventSlotOpened)
	if len(events) != 1 {
		t.Fatalf("expected 1 slot-opened event, got %d", len(events))
	}
	if !events[0].CreatedAt.Equal(now) {
		t.Errorf("event stamped %s, want the service clock %s", events[0].CreatedAt, now)
	}
}

func TestOpenSlotsLeadTimeBoundary(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newSlotServiceUnderTest(now)
	tutorID := store.addTutor(false)

	// 12:04 is inside the 5-minute lead, 12:06 is beyond it.
	_, err := svc.OpenSlots(context.Background(), tutorID, []SlotRequest{{Date: "2026-03-16", Time: "12:04"}})
	if !errors.Is(err, ErrTooSoon) {
		t.Fatalf("expected ErrTooSoon, got %v", err)
	}

	if _, err := svc.OpenSlots(context.Background(), tutorID, []SlotRequest{{Date: "2026-03-16", Time: "12:06"}}); err != nil {
		t.Fatalf("expected success just past the lead, got %v", err)
	}
}

func TestOpenSlotsUnknownTutor(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newSlotServiceUnderTest(now)

	_, err := svc.OpenSlots(context.Background(), uuid.New(), []SlotRequest{{Date: "2026-03-17", Time: "10:00"}})
	if !errors.Is(err, ErrTutorNotFound) {
		t.Fatalf("expected ErrTutorNotFound, got %v", err)
	}
}

func TestOpenSlotsDuplicateIsHardError(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newSlotServiceUnderTest(now)
	tutorID := store.addTutor(false)
	store.addSlot(tutorID, time.Date(2026, 3, 17, 10, 0, 0, 0, time.UTC), SlotOpen)

	_, err := svc.OpenSlots(context.Background(), tutorID, []SlotRequest{{Date: "2026-03-17", Time: "10:00"}})
	if !errors.Is(err, ErrSlotExists) {
		t.Fatalf("expected ErrSlotExists, got %v", err)
	}
}

func TestCloseSlotsShortNoticePenalty(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	svc, store, assigner := newSlotServiceUnderTest(now)
	tutorID := store.addTutor(false)
	slot := store.addSlot(tutorID, now.Add(47*time.Hour), SlotOpen)

	if err := svc.CloseSlots(context.Background(), tutorID, []uuid.UUID{slot.ID}); err != nil {
		t.Fatalf("CloseSlots: %v", err)
	}

	calls := assigner.callsFor(penalty.CodeShortNoticeClosure)
	if len(calls) != 1 {
		t.Fatalf("expected exactly one short-notice penalty, got %d", len(calls))
	}
	if calls[0].slotID == nil || *calls[0].slotID != slot.ID {
		t.Error("penalty not attributed to the closed slot")
	}
	if calls[0].tutorID != tutorID {
		t.Error("penalty not attributed to the owning tutor")
	}

	if got := store.getSlot(slot.ID); got.Status != SlotAvailable {
		t.Errorf("slot status after close = %s, want available", got.Status)
	}
}

func TestCloseSlotsAmpleNoticeNoPenalty(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	svc, store, assigner := newSlotServiceUnderTest(now)
	tutorID := store.addTutor(false)
	slot := store.addSlot(tutorID, now.Add(49*time.Hour), SlotOpen)

	if err := svc.CloseSlots(context.Background(), tutorID, []uuid.UUID{slot.ID}); err != nil {
		t.Fatalf("CloseSlots: %v", err)
	}
	if len(assigner.calls) != 0 {
		t.Fatalf("expected no penalty with 49h notice, got %d", len(assigner.calls))
	}
	if got := store.getSlot(slot.ID); got.Status != SlotAvailable {
		t.Errorf("slot status after close = %s, want available", got.Status)
	}
}

func TestCloseSlotsBookedIsRejected(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	svc, store, assigner := newSlotServiceUnderTest(now)
	tutorID := store.addTutor(false)
	slot := store.addSlot(tutorID, now.Add(72*time.Hour), SlotBooked)

	err := svc.CloseSlots(context.Background(), tutorID, []uuid.UUID{slot.ID})
	if !errors.Is(err, ErrSlotBooked) {
		t.Fatalf("expected ErrSlotBooked, got %v", err)
	}
	if len(assigner.calls) != 0 {
		t.Error("rejected close must not assign a penalty")
	}
	if got := store.getSlot(slot.ID); got.Status != SlotBooked {
		t.Errorf("slot status mutated on rejected close: %s", got.Status)
	}
}

// A booked slot later in the batch aborts the close, but slots already
// withdrawn must still leave the availability cache.
func TestCloseSlotsPartialFailureInvalidatesCache(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	cache := &fakeCache{}
	svc := NewSlotService(store, &fakeAssigner{}, cache, zap.NewNop()).
		WithClock(func() time.Time { return now })
	tutorID := store.addTutor(false)
	open := store.addSlot(tutorID, now.Add(72*time.Hour), SlotOpen)
	booked := store.addSlot(tutorID, now.Add(96*time.Hour), SlotBooked)

	err := svc.CloseSlots(context.Background(), tutorID, []uuid.UUID{open.ID, booked.ID})
	if !errors.Is(err, ErrSlotBooked) {
		t.Fatalf("expected ErrSlotBooked, got %v", err)
	}
	if got := store.getSlot(open.ID); got.Status != SlotAvailable {
		t.Fatalf("first slot status = %s, want available", got.Status)
	}
	if cache.invalidated() == 0 {
		t.Error("cache must be invalidated after a partially applied close")
	}
}

func TestCloseSlotsForeignSlot(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newSlotServiceUnderTest(now)
	owner := store.addTutor(false)
	other := store.addTutor(false)
	slot := store.addSlot(owner, now.Add(72*time.Hour), SlotOpen)

	err := svc.CloseSlots(context.Background(), other, []uuid.UUID{slot.ID})
	if !errors.Is(err, ErrNotOwned) {
		t.Fatalf("expected ErrNotOwned, got %v", err)
	}
}

func TestCloseSlotsHeldSlotIsNoOp(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	svc, store, assigner := newSlotServiceUnderTest(now)
	tutorID := store.addTutor(false)
	slot := store.addSlot(tutorID, now.Add(time.Hour), SlotAvailable)

	if err := svc.CloseSlots(context.Background(), tutorID, []uuid.UUID{slot.ID}); err != nil {
		t.Fatalf("CloseSlots: %v", err)
	}
	if len(assigner.calls) != 0 {
		t.Error("closing a held slot must not assign a penalty")
	}
}

func TestBulkOpenSlots(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newSlotServiceUnderTest(now)
	tutorID := store.addTutor(false)

	// Mon-Fri over one week, two times a day: 10 slots.
	err := svc.BulkOpenSlots(context.Background(), tutorID, "2026-03-23", "2026-03-29",
		[]string{"10:00", "10:30"},
		[]time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday})
	if err != nil {
		t.Fatalf("BulkOpenSlots: %v", err)
	}
	if n := store.slotCount(); n != 10 {
		t.Fatalf("expected 10 slots, got %d", n)
	}
}

func TestBulkOpenSlotsSkipsExisting(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newSlotServiceUnderTest(now)
	tutorID := store.addTutor(false)
	store.addSlot(tutorID, time.Date(2026, 3, 23, 10, 0, 0, 0, time.UTC), SlotOpen)

	err := svc.BulkOpenSlots(context.Background(), tutorID, "2026-03-23", "2026-03-23",
		[]string{"10:00", "10:30"}, nil)
	if err != nil {
		t.Fatalf("BulkOpenSlots: %v", err)
	}
	if n := store.slotCount(); n != 2 {
		t.Fatalf("expected the pre-existing slot to be skipped, total slots %d", n)
	}
}

func TestBulkOpenSlotsOverCap(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newSlotServiceUnderTest(now)
	tutorID := store.addTutor(false)

	// 26 days x 4 times = 104 instants, over the 100 cap.
	err := svc.BulkOpenSlots(context.Background(), tutorID, "2026-04-01", "2026-04-26",
		[]string{"09:00", "10:00", "11:00", "12:00"}, nil)
	if !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
	if n := store.slotCount(); n != 0 {
		t.Fatalf("over-cap batch must create nothing, got %d slots", n)
	}
}

func TestSaveWeeklyTemplateValidation(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newSlotServiceUnderTest(now)
	tutorID := store.addTutor(false)

	err := svc.SaveWeeklyTemplate(context.Background(), tutorID, []TemplateEntry{
		{DayOfWeek: time.Monday, SlotTime: "noonish"},
	})
	if err == nil {
		t.Fatal("expected error for malformed template time")
	}

	err = svc.SaveWeeklyTemplate(context.Background(), tutorID, []TemplateEntry{
		{DayOfWeek: time.Monday, SlotTime: "10:00"},
		{DayOfWeek: time.Wednesday, SlotTime: "15:30"},
	})
	if err != nil {
		t.Fatalf("SaveWeeklyTemplate: %v", err)
	}
}

func TestApplyTemplate(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newSlotServiceUnderTest(now)
	tutorID := store.addTutor(false)

	if err := svc.SaveWeeklyTemplate(context.Background(), tutorID, []TemplateEntry{
		{DayOfWeek: time.Monday, SlotTime: "10:00"},
		{DayOfWeek: time.Wednesday, SlotTime: "15:30"},
	}); err != nil {
		t.Fatalf("SaveWeeklyTemplate: %v", err)
	}

	// Mon 23rd and Wed 25th match inside the range.
	if err := svc.ApplyTemplate(context.Background(), tutorID, "2026-03-23", "2026-03-29"); err != nil {
		t.Fatalf("ApplyTemplate: %v", err)
	}
	if n := store.slotCount(); n != 2 {
		t.Fatalf("expected 2 slots from template, got %d", n)
	}

	// Applying again over the same range is a no-op.
	if err := svc.ApplyTemplate(context.Background(), tutorID, "2026-03-23", "2026-03-29"); err != nil {
		t.Fatalf("ApplyTemplate (repeat): %v", err)
	}
	if n := store.slotCount(); n != 2 {
		t.Fatalf("repeat application must skip existing slots, got %d", n)
	}
}

func TestApplyTemplateWithoutTemplate(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newSlotServiceUnderTest(now)
	tutorID := store.addTutor(false)

	err := svc.ApplyTemplate(context.Background(), tutorID, "2026-03-23", "2026-03-29")
	if !errors.Is(err, ErrNoTemplate) {
		t.Fatalf("expected ErrNoTemplate, got %v", err)
	}
}

func TestDeleteSlot(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newSlotServiceUnderTest(now)
	tutorID := store.addTutor(false)
	slot := store.addSlot(tutorID, now.Add(24*time.Hour), SlotOpen)

	if err := svc.DeleteSlot(context.Background(), tutorID, slot.ID); err != nil {
		t.Fatalf("DeleteSlot: %v", err)
	}
	if store.getSlot(slot.ID) != nil {
		t.Error("slot still present after delete")
	}

	booked := store.addSlot(tutorID, now.Add(48*time.Hour), SlotBooked)
	if err := svc.DeleteSlot(context.Background(), tutorID, booked.ID); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("expected ErrSlotNotFound for booked slot, got %v", err)
	}
}
