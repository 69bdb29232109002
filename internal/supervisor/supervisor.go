// Package supervisor is the process guardian. It spawns the other roles,
// health-checks them every monitor tick, and respawns crashed ones under a
// bounded restart policy so a failing role can never trigger a restart storm
// or starve its peers.
package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/renameio/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/wavealert/wavealert360/internal/events"
	"github.com/wavealert/wavealert360/internal/status"
)

// gracefulStopTimeout is how long a child gets between SIGTERM and SIGKILL.
const gracefulStopTimeout = 5 * time.Second

// Role describes one supervised process.
type Role struct {
	// Name selects the role; it is passed to the child as -role <name>.
	Name string

	// StatusPath, when set, adds a freshness check on the role's status
	// document: a stale document means the process is wedged even if its
	// PID is alive.
	StatusPath string

	// StatusWindow bounds how old the status document may be before the
	// role counts as unhealthy. Only used when StatusPath is set.
	StatusWindow time.Duration
}

// Config holds supervisor construction options.
type Config struct {
	// Binary is the executable spawned for every role, normally the
	// supervisor's own binary (os.Executable()).
	Binary string

	// Roles in spawn order. The hardware owner comes first so downstream
	// control-channel writes are seen quickly.
	Roles []Role

	Policy          Policy
	MonitorInterval time.Duration
	HeartbeatPath   string
	Bus             *events.Bus
	Log             zerolog.Logger
}

// child is one spawned process.
type child struct {
	cmd      *exec.Cmd
	pid      int
	exited   chan struct{}
	exitErr  error
	exitOnce sync.Once
}

// Supervisor starts, monitors, and restarts the supervised roles.
type Supervisor struct {
	binary          string
	roles           []Role
	policy          Policy
	monitorInterval time.Duration
	heartbeatPath   string
	bus             *events.Bus
	log             zerolog.Logger

	children map[string]*child
	records  map[string]*RestartRecord
	mu       sync.Mutex

	stop    chan struct{}
	done    chan struct{}
	started bool
	stopped bool
}

// New creates a supervisor.
func New(cfg Config) *Supervisor {
	policy := cfg.Policy
	if policy.MaxRestarts == 0 {
		policy = DefaultPolicy
	}
	interval := cfg.MonitorInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}

	records := make(map[string]*RestartRecord, len(cfg.Roles))
	for _, role := range cfg.Roles {
		records[role.Name] = &RestartRecord{Name: role.Name}
	}

	return &Supervisor{
		binary:          cfg.Binary,
		roles:           cfg.Roles,
		policy:          policy,
		monitorInterval: interval,
		heartbeatPath:   cfg.HeartbeatPath,
		bus:             cfg.Bus,
		log:             cfg.Log.With().Str("component", "supervisor").Logger(),
		children:        make(map[string]*child),
		records:         records,
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// StartAll spawns every role in order. Spawn failures (missing executable,
// permission denied) are logged and counted but do not abort the remaining
// roles; the monitor loop keeps retrying under the policy. The aggregated
// error reports what failed.
func (s *Supervisor) StartAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs *multierror.Error
	now := time.Now()
	for _, role := range s.roles {
		if err := s.spawnLocked(role, now); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("role %s: %w", role.Name, err))
			continue
		}
		if s.bus != nil {
			s.bus.Emit(events.ProcessStarted, "supervisor", map[string]interface{}{"role": role.Name})
		}
	}
	return errs.ErrorOrNil()
}

// Run blocks in the monitor loop until Stop is called. Call StartAll first.
func (s *Supervisor) Run() {
	defer close(s.done)

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	ticker := time.NewTicker(s.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.MonitorTick(now)
		}
	}
}

// Stop ends the monitor loop, then stops every child with a graceful
// stop-then-kill sequence in reverse spawn order.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stop)
	started := s.started
	s.mu.Unlock()

	if started {
		<-s.done
	}

	for i := len(s.roles) - 1; i >= 0; i-- {
		s.stopChild(s.roles[i].Name)
	}
	s.log.Info().Msg("Supervisor stopped")
}

// MonitorTick checks every role once: PID liveness plus, where configured,
// status-file freshness. Absent or wedged roles are restarted subject to the
// policy. A heartbeat document is written at the end of the tick.
func (s *Supervisor) MonitorTick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, role := range s.roles {
		healthy, reason := s.checkLocked(role, now)
		if healthy {
			continue
		}

		record := s.records[role.Name]
		record.LastFailure = reason

		if !record.Allow(now, s.policy) {
			s.log.Warn().
				Str("role", role.Name).
				Int("restarts_in_window", record.InWindow(now, s.policy)).
				Str("reason", reason).
				Msg("Restart cap reached, role in cool-down")
			if s.bus != nil {
				s.bus.Emit(events.ProcessCooldown, "supervisor", map[string]interface{}{"role": role.Name})
			}
			continue
		}

		s.log.Warn().Str("role", role.Name).Str("reason", reason).Msg("Restarting role")
		if err := s.spawnLocked(role, now); err != nil {
			s.log.Error().Err(err).Str("role", role.Name).Msg("Respawn failed")
			continue
		}
		if s.bus != nil {
			s.bus.Emit(events.ProcessRestarted, "supervisor", map[string]interface{}{
				"role":   role.Name,
				"reason": reason,
			})
		}
	}

	s.writeHeartbeatLocked(now)
}

// checkLocked reports whether a role is healthy and, when it is not, why.
func (s *Supervisor) checkLocked(role Role, now time.Time) (bool, string) {
	c, ok := s.children[role.Name]
	if !ok || c.pid == 0 {
		return false, "never started"
	}

	select {
	case <-c.exited:
		if c.exitErr != nil {
			return false, fmt.Sprintf("exited: %v", c.exitErr)
		}
		return false, "exited"
	default:
	}

	alive, err := process.PidExists(int32(c.pid))
	if err == nil && !alive {
		return false, "process gone"
	}

	if role.StatusPath != "" && role.StatusWindow > 0 {
		if !status.FreshWithin(role.StatusPath, role.StatusWindow, now) {
			return false, "status document stale"
		}
	}

	return true, ""
}

// spawnLocked starts one role and records the attempt against its window.
func (s *Supervisor) spawnLocked(role Role, now time.Time) error {
	cmd := exec.Command(s.binary, "-role", role.Name)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		s.records[role.Name].Record(now)
		s.records[role.Name].LastFailure = err.Error()
		return fmt.Errorf("failed to spawn: %w", err)
	}

	c := &child{
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		exited: make(chan struct{}),
	}
	s.children[role.Name] = c
	s.records[role.Name].Record(now)

	// Reap the child so it never lingers as a zombie; the exit reason is
	// kept for the next monitor tick.
	go func() {
		err := cmd.Wait()
		c.exitOnce.Do(func() {
			c.exitErr = err
			close(c.exited)
		})
	}()

	s.log.Info().Str("role", role.Name).Int("pid", c.pid).Msg("Role spawned")
	return nil
}

// stopChild performs the graceful stop-then-kill sequence for one role.
func (s *Supervisor) stopChild(name string) {
	s.mu.Lock()
	c, ok := s.children[name]
	s.mu.Unlock()
	if !ok || c.pid == 0 {
		return
	}

	select {
	case <-c.exited:
		return
	default:
	}

	s.log.Info().Str("role", name).Int("pid", c.pid).Msg("Stopping role")
	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.log.Debug().Err(err).Str("role", name).Msg("SIGTERM failed")
	}

	select {
	case <-c.exited:
	case <-time.After(gracefulStopTimeout):
		s.log.Warn().Str("role", name).Msg("Graceful stop timed out, killing")
		_ = c.cmd.Process.Kill()
		<-c.exited
	}
}

// heartbeat is the document written each monitor tick for the dashboard and
// operators tailing the data directory.
type heartbeat struct {
	PID       int                      `json:"pid"`
	Timestamp time.Time                `json:"timestamp"`
	Roles     map[string]heartbeatRole `json:"roles"`
}

type heartbeatRole struct {
	PID              int       `json:"pid"`
	Alive            bool      `json:"alive"`
	LastStart        time.Time `json:"last_start"`
	RestartsInWindow int       `json:"restarts_in_window"`
	LastFailure      string    `json:"last_failure,omitempty"`
}

func (s *Supervisor) writeHeartbeatLocked(now time.Time) {
	if s.heartbeatPath == "" {
		return
	}

	hb := heartbeat{
		PID:       os.Getpid(),
		Timestamp: now,
		Roles:     make(map[string]heartbeatRole, len(s.roles)),
	}
	for _, role := range s.roles {
		record := s.records[role.Name]
		entry := heartbeatRole{
			LastStart:        record.LastStart,
			RestartsInWindow: record.InWindow(now, s.policy),
			LastFailure:      record.LastFailure,
		}
		if c, ok := s.children[role.Name]; ok {
			entry.PID = c.pid
			select {
			case <-c.exited:
			default:
				entry.Alive = true
			}
		}
		hb.Roles[role.Name] = entry
	}

	data, err := json.MarshalIndent(hb, "", "  ")
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode heartbeat")
		return
	}
	if err := renameio.WriteFile(s.heartbeatPath, data, 0o644); err != nil {
		s.log.Error().Err(err).Msg("Failed to write heartbeat")
	}
}
