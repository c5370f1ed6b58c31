package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tutorhive/scheduling-engine/internal/penalty"
	"github.com/tutorhive/scheduling-engine/internal/schedule"
)

type RouterConfig struct {
	Slots      *schedule.SlotService
	Bookings   *schedule.BookingService
	Attendance *schedule.AttendanceService
	Penalties  *penalty.Engine
	Reporter   *penalty.Reporter
	PgPool     *pgxpool.Pool
	Redis      *redis.Client
	Logger     *zap.Logger
	Env        string
	Version    string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/tutors/{tutorID}", func(r chi.Router) {
		r.Post("/slots", openSlotsHandler(cfg.Slots))
		r.Post("/slots/bulk", bulkOpenSlotsHandler(cfg.Slots))
		r.Post("/slots/close", closeSlotsHandler(cfg.Slots))
		r.Delete("/slots/{slotID}", deleteSlotHandler(cfg.Slots))
		r.Get("/slots/available", availableSlotsHandler(cfg.Bookings))
		r.Put("/template", saveTemplateHandler(cfg.Slots))
		r.Post("/template/apply", applyTemplateHandler(cfg.Slots))
		r.Get("/compliance", complianceSummaryHandler(cfg.Reporter))
	})

	r.Post("/bookings", bookSlotHandler(cfg.Bookings))
	r.Post("/bookings/{id}/cancel", cancelBookingHandler(cfg.Bookings))
	r.Post("/bookings/{id}/complete", completeBookingHandler(cfg.Bookings))
	r.Post("/attendance", markAttendanceHandler(cfg.Attendance))
	r.Post("/penalties/{id}/appeal", resolveAppealHandler(cfg.Penalties))

	return r
}
