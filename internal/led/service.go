package led

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wavealert/wavealert360/internal/alert"
	"github.com/wavealert/wavealert360/internal/control"
	"github.com/wavealert/wavealert360/internal/status"
)

// Blink animation defaults. A full animation is a bounded number of on/off
// pairs on the strip matching the current token; only one strip is ever lit
// at a time.
const (
	defaultBlinkCycles = 3
	defaultBlinkStep   = 400 * time.Millisecond
)

// ServiceConfig holds configuration for the LED service.
type ServiceConfig struct {
	Channel      *control.Channel
	StatusWriter *status.Writer
	Interval     time.Duration
	Log          zerolog.Logger

	// DevicePaths is not read by NewService; the spidev nodes are passed to
	// InitHardware, which uses DefaultDevicePaths for an empty array.
	DevicePaths [3]string

	// BlinkCycles and BlinkStep shape the blink animation. Zero values take
	// the defaults.
	BlinkCycles int
	BlinkStep   time.Duration
}

// Service reads the control channel and drives the hardware. All hardware
// I/O happens on the monitor goroutine; animations are non-preempting but
// check for a token change between steps, so a new token is observed within
// one monitor tick plus one animation step.
type Service struct {
	channel      *control.Channel
	statusWriter *status.Writer
	interval     time.Duration
	blinkCycles  int
	blinkStep    time.Duration
	log          zerolog.Logger

	driver            Driver
	hardwareAvailable bool
	currentToken      control.Token
	currentLevel      alert.Level

	stop    chan struct{}
	done    chan struct{}
	started bool
	stopped bool
	mu      sync.Mutex
}

// NewService creates the LED service. Hardware is not touched until
// InitHardware.
func NewService(cfg ServiceConfig) *Service {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	blinkCycles := cfg.BlinkCycles
	if blinkCycles <= 0 {
		blinkCycles = defaultBlinkCycles
	}
	blinkStep := cfg.BlinkStep
	if blinkStep <= 0 {
		blinkStep = defaultBlinkStep
	}
	return &Service{
		channel:      cfg.Channel,
		statusWriter: cfg.StatusWriter,
		interval:     interval,
		blinkCycles:  blinkCycles,
		blinkStep:    blinkStep,
		log:          cfg.Log.With().Str("component", "led_service").Logger(),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// InitHardware attempts to open the three strips. On any failure the service
// proceeds in simulation mode: it still reads the token file and publishes
// status with hardware_available=false, which keeps headless test rigs and
// degraded devices observable.
func (s *Service) InitHardware(devicePaths [3]string) {
	if devicePaths == ([3]string{}) {
		devicePaths = DefaultDevicePaths
	}

	driver, err := NewSPIDriver(devicePaths, s.log)
	if err != nil {
		s.log.Warn().Err(err).Msg("Hardware init failed, running in simulation mode")
		s.driver = NewSimDriver(s.log)
		s.hardwareAvailable = false
		return
	}

	s.driver = driver
	s.hardwareAvailable = true
	s.log.Info().Msg("LED hardware initialized")
}

// SetDriver injects a driver directly. Test helper.
func (s *Service) SetDriver(driver Driver, hardwareAvailable bool) {
	s.driver = driver
	s.hardwareAvailable = hardwareAvailable
}

// HardwareAvailable reports whether the real driver is active.
func (s *Service) HardwareAvailable() bool { return s.hardwareAvailable }

// Start launches the monitor loop.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started && !s.stopped {
		s.log.Warn().Msg("LED service already started, ignoring")
		return
	}
	if s.stopped {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		s.stopped = false
	}
	s.started = true

	go s.monitorLoop()
	s.log.Info().Dur("interval", s.interval).Msg("LED monitor started")
}

// Stop halts the monitor loop and waits for it to finish, then turns the
// strips off and releases the hardware.
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

	if s.driver != nil {
		if err := s.driver.Clear(); err != nil {
			s.log.Error().Err(err).Msg("Failed to clear strips on shutdown")
		}
		if err := s.driver.Close(); err != nil {
			s.log.Error().Err(err).Msg("Failed to close driver")
		}
	}
	s.log.Info().Msg("LED service stopped")
}

func (s *Service) monitorLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Apply whatever token is already present before the first tick so a
	// restart resumes the display promptly.
	s.tick()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick reads the token and reacts to changes.
func (s *Service) tick() {
	token, ok := s.channel.Read()
	if !ok {
		s.publishStatus()
		return
	}

	if token == s.currentToken {
		s.publishStatus()
		return
	}

	s.log.Info().
		Str("old", string(s.currentToken)).
		Str("new", string(token)).
		Msg("Control token changed")

	s.currentToken = token
	s.apply(token)
	s.publishStatus()
}

// apply drives the hardware for a token. Hardware write errors degrade the
// service but never crash it.
func (s *Service) apply(token control.Token) {
	if err := s.driver.Clear(); err != nil {
		s.degrade(err)
	}

	switch token {
	case control.TokenOff:
		s.currentLevel = ""
		return
	case control.TokenGreen:
		s.currentLevel = alert.Safe
		s.animate(StripGreen, colorGreen)
	case control.TokenYellow:
		s.currentLevel = alert.Caution
		s.animate(StripYellow, colorYellow)
	case control.TokenRed:
		s.currentLevel = alert.Danger
		s.animate(StripRed, colorRed)
	}
}

// animate blinks one strip for a bounded number of cycles and leaves it lit.
// Between steps the token file is re-read: a new value aborts the animation
// so the next tick picks it up.
func (s *Service) animate(strip int, color Color) {
	for cycle := 0; cycle < s.blinkCycles; cycle++ {
		if err := s.driver.Fill(strip, color); err != nil {
			s.degrade(err)
			return
		}
		if s.interrupted() {
			return
		}
		if err := s.driver.Fill(strip, colorOff); err != nil {
			s.degrade(err)
			return
		}
		if s.interrupted() {
			return
		}
	}

	// Hold the color after the blink cycle.
	if err := s.driver.Fill(strip, color); err != nil {
		s.degrade(err)
	}
}

// interrupted waits one animation step and reports whether the animation
// should abort (service stopping, or a newer token was written).
func (s *Service) interrupted() bool {
	select {
	case <-s.stop:
		return true
	case <-time.After(s.blinkStep):
	}

	if token, ok := s.channel.Read(); ok && token != s.currentToken {
		return true
	}
	return false
}

func (s *Service) degrade(err error) {
	s.log.Error().Err(err).Msg("Hardware write failed, marking degraded")
	s.hardwareAvailable = false
}

func (s *Service) publishStatus() {
	doc := status.Document{
		PID:               os.Getpid(),
		HardwareAvailable: s.hardwareAvailable,
		CurrentLevel:      s.currentLevel,
		LastUpdated:       time.Now(),
	}
	if err := s.statusWriter.Publish(doc); err != nil {
		s.log.Error().Err(err).Msg("Failed to publish status")
	}
}
