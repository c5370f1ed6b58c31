package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tutorhive/scheduling-engine/internal/config"
	"github.com/tutorhive/scheduling-engine/internal/db"
	"github.com/tutorhive/scheduling-engine/internal/logging"
	"github.com/tutorhive/scheduling-engine/internal/penalty"
	"github.com/tutorhive/scheduling-engine/internal/schedule"
)

// sweep-worker runs the two periodic, idempotent sweeps: releasing expired
// tutor blocks (hourly) and emitting session reminders (every minute). Both
// are safe to run concurrently with the api-server and with a second worker.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.New(cfg.Env)
	defer func() { _ = logger.Sync() }()

	logger.Info("sweep-worker starting",
		zap.String("env", cfg.Env),
		zap.Duration("unblock_interval", cfg.UnblockInterval),
		zap.Duration("reminder_interval", cfg.ReminderInterval))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	scheduleRepo := schedule.NewPgRepository(pgPool)
	penaltyRepo := penalty.NewPgRepository(pgPool)
	engine := penalty.NewEngine(penaltyRepo, logger)
	bookings := schedule.NewBookingService(scheduleRepo, nil, nil, logger, cfg.ReminderLead)

	// Run both once at startup.
	runUnblock(rootCtx, engine, logger)
	runReminders(rootCtx, bookings, logger)

	unblockTicker := time.NewTicker(cfg.UnblockInterval)
	defer unblockTicker.Stop()
	reminderTicker := time.NewTicker(cfg.ReminderInterval)
	defer reminderTicker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping sweep-worker")
			return
		case <-unblockTicker.C:
			runUnblock(rootCtx, engine, logger)
		case <-reminderTicker.C:
			runReminders(rootCtx, bookings, logger)
		}
	}
}

func runUnblock(ctx context.Context, engine *penalty.Engine, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	released, err := engine.ReleaseExpiredBlocks(runCtx)
	if err != nil {
		logger.Error("auto-unblock sweep error", zap.Error(err))
		return
	}
	logger.Info("auto-unblock sweep complete",
		zap.Int64("released", released),
		zap.Duration("took", time.Since(start)))
}

func runReminders(ctx context.Context, bookings *schedule.BookingService, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	sent, err := bookings.SendDueReminders(runCtx)
	if err != nil {
		logger.Error("reminder sweep error", zap.Error(err))
		return
	}
	if sent > 0 {
		logger.Info("reminders emitted", zap.Int("count", sent))
	}
}
