package schedule

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventSlotOpened       = "SLOT_OPENED"
	EventSlotClosed       = "SLOT_CLOSED"
	EventBookingCreated   = "BOOKING_CREATED"
	EventBookingCancelled = "BOOKING_CANCELLED"
	EventBookingCompleted = "BOOKING_COMPLETED"
	EventBookingReminder  = "BOOKING_REMINDER"
)

// logEvent appends a domain event stamped with the caller's clock. Delivery
// to email/push/socket consumers is an external collaborator's job; failures
// here are logged, never propagated into the triggering call.
func logEvent(ctx context.Context, repo Repository, logger *zap.Logger, eventType string, at time.Time, tutorID uuid.UUID, bookingID *uuid.UUID, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal event payload",
			zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	tid := tutorID
	ev := EventLog{
		EventType: eventType,
		TutorID:   &tid,
		BookingID: bookingID,
		Payload:   data,
		CreatedAt: at,
	}

	if err := repo.InsertEvent(ctx, ev); err != nil {
		logger.Error("failed to insert event log",
			zap.String("event_type", eventType),
			zap.String("tutor_id", tutorID.String()),
			zap.Error(err))
	}
}
