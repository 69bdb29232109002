package updater

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Service runs the updater on a fixed schedule. The cron chain's
// SkipIfStillRunning wrapper enforces that only one update cycle is ever in
// flight; a slow fetch simply causes the next tick to be skipped.
type Service struct {
	updater  *Updater
	interval time.Duration
	log      zerolog.Logger

	cron    *cron.Cron
	started bool
	mu      sync.Mutex
}

// NewService creates the updater service.
func NewService(updater *Updater, interval time.Duration, log zerolog.Logger) *Service {
	if interval <= 0 {
		interval = 120 * time.Second
	}
	return &Service{
		updater:  updater,
		interval: interval,
		log:      log.With().Str("component", "updater_service").Logger(),
	}
}

// Start schedules the periodic check and runs one immediately.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.log.Warn().Msg("Updater service already started, ignoring")
		return nil
	}

	// The immediate check and the scheduled ones share one wrapped job, so
	// SkipIfStillRunning covers both.
	job := cron.NewChain(
		cron.Recover(cron.DiscardLogger),
		cron.SkipIfStillRunning(cron.DiscardLogger),
	).Then(cron.FuncJob(s.runOnce))

	s.cron = cron.New()

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddJob(spec, job); err != nil {
		return fmt.Errorf("failed to schedule update check: %w", err)
	}

	s.cron.Start()
	s.started = true
	s.log.Info().Dur("interval", s.interval).Msg("Updater started")

	// First check right away so a device that booted stale converges
	// without waiting a full interval.
	go job.Run()
	return nil
}

// Stop halts the schedule and waits for a cycle started by the schedule to
// finish. The immediate check launched by Start is not waited for.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.started = false
	s.log.Info().Msg("Updater stopped")
}

func (s *Service) runOnce() {
	if err := s.updater.CheckAndApply(context.Background()); err != nil {
		s.log.Error().Err(err).Msg("Update cycle failed")
	}
}
