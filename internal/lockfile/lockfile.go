// Package lockfile implements advisory PID-bearing role locks.
//
// Each long-running role (supervisor, resolver, led, updater, dashboard) holds a lock
// file for its lifetime so that at most one instance of the role runs at any
// time. Locks are advisory: a starting process checks whether the recorded
// PID is still alive and reclaims the lock when it is not, so a crashed
// owner never wedges its role.
package lockfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// ErrHeld is returned by Acquire when a live process owns the lock.
var ErrHeld = fmt.Errorf("lock held by live process")

// Lock is an acquired role lock. Release it on graceful exit.
type Lock struct {
	path string
	pid  int
	log  zerolog.Logger
}

// Acquire takes the role lock at path for the current process. If the lock
// file exists and its recorded PID is alive, ErrHeld is returned and the
// caller must exit. A stale lock (dead PID, or garbage contents) is
// reclaimed.
func Acquire(path, role string, log zerolog.Logger) (*Lock, error) {
	log = log.With().Str("component", "lockfile").Str("role", role).Logger()

	if ownerPID, ok := readPID(path); ok {
		alive, err := process.PidExists(int32(ownerPID))
		if err == nil && alive && ownerPID != os.Getpid() {
			log.Error().Int("owner_pid", ownerPID).Msg("Role lock held by live process, refusing to start")
			return nil, fmt.Errorf("%w: role %s owned by pid %d", ErrHeld, role, ownerPID)
		}
		if !alive {
			log.Warn().Int("stale_pid", ownerPID).Msg("Reclaiming stale role lock")
		}
	}

	pid := os.Getpid()
	if err := renameio.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	log.Debug().Int("pid", pid).Msg("Role lock acquired")
	return &Lock{path: path, pid: pid, log: log}, nil
}

// Release unlinks the lock file. Safe to call on a lock another process has
// since reclaimed: the file is only removed when it still records our PID.
func (l *Lock) Release() {
	if ownerPID, ok := readPID(l.path); ok && ownerPID != l.pid {
		l.log.Warn().Int("owner_pid", ownerPID).Msg("Lock no longer ours, leaving in place")
		return
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		l.log.Error().Err(err).Msg("Failed to remove lock file")
		return
	}
	l.log.Debug().Msg("Role lock released")
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// OwnerPID returns the PID recorded in the lock file at path, when the file
// exists and parses.
func OwnerPID(path string) (int, bool) {
	return readPID(path)
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
