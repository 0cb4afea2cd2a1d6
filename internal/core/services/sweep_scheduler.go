package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ============================================================
// Reservation expiry: cron-driven SweepExpired
// ============================================================

// SweepScheduler runs the reservation expiry sweep on a cron schedule
type SweepScheduler struct {
	cron         *cron.Cron
	reservations *ReservationService
	clock        Clock
	timeout      time.Duration
	logger       *slog.Logger
}

// NewSweepScheduler registers the sweep under schedule, e.g. "@every 15m"
func NewSweepScheduler(schedule string, reservations *ReservationService, clock Clock, logger *slog.Logger) (*SweepScheduler, error) {
	if clock == nil {
		clock = SystemClock
	}
	s := &SweepScheduler{
		cron:         cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		reservations: reservations,
		clock:        clock,
		timeout:      5 * time.Minute,
		logger:       logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start launches the cron goroutine
func (s *SweepScheduler) Start() {
	s.cron.Start()
	s.logger.Info("reservation sweep scheduler started")
}

// Stop waits for a running sweep to finish
func (s *SweepScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("reservation sweep scheduler stopped")
}

// RunOnce performs one sweep at the current time
func (s *SweepScheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, err := s.reservations.SweepExpired(ctx, s.clock())
	if err != nil {
		s.logger.Error("reservation sweep failed", slog.Any("error", err))
		return
	}
	s.logger.Debug("reservation sweep ran",
		slog.Int("checked", result.Checked),
		slog.Int("expired", result.Expired))
}
