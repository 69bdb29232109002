// Package updater reconciles the local working tree with the remote branch.
//
// On a new remote commit it snapshots the tree, fast-forwards, persists the
// deployed hash, and signals dependents by terminating them. The updater
// never spawns anything: respawn is always the supervisor's job, so every
// role has exactly one spawner.
package updater

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/wavealert/wavealert360/internal/events"
	"github.com/wavealert/wavealert360/internal/lockfile"
)

// Config holds the updater's collaborators.
type Config struct {
	Remote RemoteInterface
	Git    GitInterface
	State  *StateFile
	Backup *Backupper
	Bus    *events.Bus

	// EmergencyStopPath disables the updater entirely while the file exists.
	EmergencyStopPath string

	// ManualModePath disables automatic application: new commits are
	// detected and logged but not applied while the file exists.
	ManualModePath string

	// InstallCommand, when set, runs in RepoDir after a successful
	// fast-forward (dependency install). Failures are logged and do not
	// block the update: stale packages beat stale code that may carry
	// fixes.
	InstallCommand string
	RepoDir        string

	// PeerLockPaths are the role locks of the processes terminated after a
	// successful update, in termination order (dashboard first). The
	// supervisor respawns them with the new code.
	PeerLockPaths []string

	Log zerolog.Logger
}

// Updater checks the remote and applies updates.
type Updater struct {
	remote            RemoteInterface
	git               GitInterface
	state             *StateFile
	backup            *Backupper
	bus               *events.Bus
	emergencyStopPath string
	manualModePath    string
	installCommand    string
	repoDir           string
	peerLockPaths     []string
	log               zerolog.Logger
}

// New creates an updater.
func New(cfg Config) *Updater {
	return &Updater{
		remote:            cfg.Remote,
		git:               cfg.Git,
		state:             cfg.State,
		backup:            cfg.Backup,
		bus:               cfg.Bus,
		emergencyStopPath: cfg.EmergencyStopPath,
		manualModePath:    cfg.ManualModePath,
		installCommand:    cfg.InstallCommand,
		repoDir:           cfg.RepoDir,
		peerLockPaths:     cfg.PeerLockPaths,
		log:               cfg.Log.With().Str("component", "updater").Logger(),
	}
}

// CheckAndApply performs one update cycle. Network failures are a no-op (the
// next cycle retries); a cycle that detects no change writes nothing.
func (u *Updater) CheckAndApply(ctx context.Context) error {
	if u.markerPresent(u.emergencyStopPath) {
		u.log.Warn().Msg("Emergency stop marker present, updater disabled")
		return nil
	}

	latest, err := u.remote.LatestCommit(ctx)
	if err != nil {
		u.log.Warn().Err(err).Msg("Remote commit lookup failed, will retry next cycle")
		return nil
	}

	deployed, err := u.state.Deployed()
	if err != nil {
		return fmt.Errorf("failed to read update state: %w", err)
	}

	if latest == deployed {
		u.log.Debug().Str("commit", shortSHA(latest)).Msg("Tree up to date")
		return nil
	}

	if u.markerPresent(u.manualModePath) {
		u.log.Info().
			Str("deployed", shortSHA(deployed)).
			Str("available", shortSHA(latest)).
			Msg("Update available but manual mode is on, not applying")
		return nil
	}

	return u.apply(ctx, deployed, latest)
}

// apply runs the update sequence: backup, fast-forward, persist, signal.
func (u *Updater) apply(ctx context.Context, deployed, latest string) error {
	u.log.Info().
		Str("deployed", shortSHA(deployed)).
		Str("target", shortSHA(latest)).
		Msg("Applying update")

	archive, err := u.backup.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("backup failed, update aborted: %w", err)
	}

	if err := u.git.FastForward(ctx); err != nil {
		// The old update state is retained so the next cycle retries. The
		// backup stays for operator use; no automatic rollback.
		u.log.Error().Err(err).Str("backup", archive).Msg("Fast-forward failed, keeping old state")
		return fmt.Errorf("fast-forward failed: %w", err)
	}

	// Record what the tree actually holds now rather than trusting the
	// remote lookup, in case the branch advanced between the two calls.
	head, err := u.git.Head(ctx)
	if err != nil {
		u.log.Warn().Err(err).Msg("Head lookup failed after update, recording remote sha")
		head = latest
	}
	if err := u.state.MarkDeployed(head); err != nil {
		return fmt.Errorf("tree updated but state write failed: %w", err)
	}

	u.installDependencies(ctx)

	u.log.Info().Str("commit", shortSHA(head)).Msg("Update applied")
	if u.bus != nil {
		u.bus.Emit(events.UpdateApplied, "updater", map[string]interface{}{"commit": head})
	}

	u.signalPeers()
	return nil
}

// installDependencies runs the configured install command. Failures never
// block the update.
func (u *Updater) installDependencies(ctx context.Context) {
	if u.installCommand == "" {
		return
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", u.installCommand)
	cmd.Dir = u.repoDir
	if out, err := cmd.CombinedOutput(); err != nil {
		u.log.Error().
			Err(err).
			Str("output", strings.TrimSpace(string(out))).
			Msg("Dependency install failed, continuing with updated code")
	}
}

// signalPeers terminates the dependent processes via their recorded lock
// PIDs. The supervisor detects the exits on its next tick and respawns them
// with the new code.
func (u *Updater) signalPeers() {
	for _, lockPath := range u.peerLockPaths {
		pid, ok := lockfile.OwnerPID(lockPath)
		if !ok {
			continue
		}
		alive, err := process.PidExists(int32(pid))
		if err != nil || !alive {
			continue
		}
		u.log.Info().Int("pid", pid).Str("lock", lockPath).Msg("Terminating peer for restart")
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
			u.log.Error().Err(err).Int("pid", pid).Msg("Failed to signal peer")
		}
	}
}

func (u *Updater) markerPresent(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	if sha == "" {
		return "(none)"
	}
	return sha
}
