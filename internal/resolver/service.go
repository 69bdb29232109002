package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wavealert/wavealert360/internal/alert"
)

// demoSequence is the scripted cycle run while the device is in DEMO mode.
var demoSequence = []alert.Level{alert.Safe, alert.Caution, alert.Danger}

// ServiceConfig holds configuration for the resolver service loop.
type ServiceConfig struct {
	Resolver     *Resolver
	PollInterval time.Duration
	DemoPause    time.Duration
	Log          zerolog.Logger
}

// Service runs the resolver on a fixed poll interval. Polls never overlap: a
// cycle that runs long delays the next one but two cycles never run
// concurrently, because everything happens on one goroutine.
type Service struct {
	resolver     *Resolver
	pollInterval time.Duration
	demoPause    time.Duration
	log          zerolog.Logger

	stop    chan struct{}
	done    chan struct{}
	started bool
	stopped bool
	mu      sync.Mutex
}

// NewService creates the resolver service.
func NewService(cfg ServiceConfig) *Service {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	demoPause := cfg.DemoPause
	if demoPause <= 0 {
		demoPause = 3 * time.Second
	}
	return &Service{
		resolver:     cfg.Resolver,
		pollInterval: pollInterval,
		demoPause:    demoPause,
		log:          cfg.Log.With().Str("component", "resolver_service").Logger(),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start launches the poll loop.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started && !s.stopped {
		s.log.Warn().Msg("Resolver service already started, ignoring")
		return
	}
	if s.stopped {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		s.stopped = false
	}
	s.started = true

	go s.run()
	s.log.Info().Dur("poll_interval", s.pollInterval).Msg("Resolver started")
}

// Stop halts the loop and waits for the in-flight cycle to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.mu.Unlock()
		return
	}
	close(s.stop)
	s.stopped = true
	s.started = false
	s.mu.Unlock()

	<-s.done
	s.log.Info().Msg("Resolver stopped")
}

func (s *Service) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	// First cycle immediately on start so the display converges without
	// waiting a full interval after boot.
	s.cycle()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.cycle()
		}
	}
}

// cycle runs one poll: resolve, then either dispatch directly or run the
// demo sequence when the device mode calls for it.
func (s *Service) cycle() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel the in-flight cycle promptly on shutdown.
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	decision := s.resolver.Resolve(ctx)

	if decision.DeviceMode == alert.ModeDemo || decision.Level == alert.Demo {
		s.runDemoCycle(ctx, decision)
		return
	}

	s.resolver.Dispatch(ctx, decision)
}

// runDemoCycle walks the scripted sequence once, holding each step for the
// configured pause. The cloud's alert level is ignored; the mode flag
// survives in the lkg cache, so the demo keeps running offline. The next
// poll re-resolves, which makes the cycle repeat indefinitely while the
// device stays in DEMO mode.
func (s *Service) runDemoCycle(ctx context.Context, decision alert.Decision) {
	pause := s.demoPause
	if decision.DemoPauseSeconds > 0 {
		pause = time.Duration(decision.DemoPauseSeconds) * time.Second
	}

	for _, level := range demoSequence {
		step := decision
		step.Level = level
		step.Source = alert.SourceDemo
		s.resolver.Dispatch(ctx, step)

		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(pause):
		}
	}
}
