package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote returns a fixed commit or error and counts lookups.
type fakeRemote struct {
	sha   string
	err   error
	calls int
}

func (f *fakeRemote) LatestCommit(context.Context) (string, error) {
	f.calls++
	return f.sha, f.err
}

// fakeGit records operations.
type fakeGit struct {
	head   string
	ffErr  error
	ffRuns int
}

func (f *fakeGit) FastForward(context.Context) error {
	f.ffRuns++
	if f.ffErr != nil {
		return f.ffErr
	}
	return nil
}

func (f *fakeGit) Head(context.Context) (string, error) { return f.head, nil }

type updaterFixture struct {
	updater   *Updater
	remote    *fakeRemote
	git       *fakeGit
	state     *StateFile
	backupDir string
	dataDir   string
}

func newUpdaterFixture(t *testing.T) *updaterFixture {
	t.Helper()
	dataDir := t.TempDir()
	repoDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "main.py"), []byte("print('hi')\n"), 0o644))

	f := &updaterFixture{
		remote:    &fakeRemote{},
		git:       &fakeGit{},
		state:     NewStateFile(filepath.Join(dataDir, "update_state")),
		backupDir: filepath.Join(dataDir, "backups"),
		dataDir:   dataDir,
	}

	f.updater = New(Config{
		Remote:            f.remote,
		Git:               f.git,
		State:             f.state,
		Backup:            NewBackupper(repoDir, f.backupDir, nil, zerolog.Nop()),
		EmergencyStopPath: filepath.Join(dataDir, "emergency_stop"),
		ManualModePath:    filepath.Join(dataDir, "manual_mode"),
		RepoDir:           repoDir,
		Log:               zerolog.Nop(),
	})
	return f
}

func (f *updaterFixture) backupCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(f.backupDir)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return len(entries)
}

func TestCheckAndApply_NoChangeWritesNothing(t *testing.T) {
	f := newUpdaterFixture(t)
	require.NoError(t, f.state.MarkDeployed("abc123"))
	f.remote.sha = "abc123"

	require.NoError(t, f.updater.CheckAndApply(context.Background()))

	assert.Equal(t, 0, f.git.ffRuns)
	assert.Equal(t, 0, f.backupCount(t))

	deployed, err := f.state.Deployed()
	require.NoError(t, err)
	assert.Equal(t, "abc123", deployed)
}

func TestCheckAndApply_AppliesNewCommit(t *testing.T) {
	f := newUpdaterFixture(t)
	require.NoError(t, f.state.MarkDeployed("abc123"))
	f.remote.sha = "def456"
	f.git.head = "def456"

	require.NoError(t, f.updater.CheckAndApply(context.Background()))

	assert.Equal(t, 1, f.git.ffRuns)
	assert.Equal(t, 1, f.backupCount(t), "backup archive expected before the pull")

	deployed, err := f.state.Deployed()
	require.NoError(t, err)
	assert.Equal(t, "def456", deployed)
}

func TestCheckAndApply_FirstDeployment(t *testing.T) {
	f := newUpdaterFixture(t)
	f.remote.sha = "def456"
	f.git.head = "def456"

	require.NoError(t, f.updater.CheckAndApply(context.Background()))

	deployed, err := f.state.Deployed()
	require.NoError(t, err)
	assert.Equal(t, "def456", deployed)
}

func TestCheckAndApply_NetworkFailureIsNoOp(t *testing.T) {
	f := newUpdaterFixture(t)
	require.NoError(t, f.state.MarkDeployed("abc123"))
	f.remote.err = fmt.Errorf("dns failure")

	require.NoError(t, f.updater.CheckAndApply(context.Background()))

	assert.Equal(t, 0, f.git.ffRuns)
	deployed, err := f.state.Deployed()
	require.NoError(t, err)
	assert.Equal(t, "abc123", deployed)
}

func TestCheckAndApply_FastForwardFailureKeepsOldState(t *testing.T) {
	f := newUpdaterFixture(t)
	require.NoError(t, f.state.MarkDeployed("abc123"))
	f.remote.sha = "def456"
	f.git.ffErr = fmt.Errorf("merge conflict")

	err := f.updater.CheckAndApply(context.Background())
	require.Error(t, err)

	// Old state retained so the next cycle retries; the backup stays for
	// operator use.
	deployed, stateErr := f.state.Deployed()
	require.NoError(t, stateErr)
	assert.Equal(t, "abc123", deployed)
	assert.Equal(t, 1, f.backupCount(t))
}

func TestCheckAndApply_EmergencyStopDisablesUpdater(t *testing.T) {
	f := newUpdaterFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.dataDir, "emergency_stop"), nil, 0o644))
	f.remote.sha = "def456"

	require.NoError(t, f.updater.CheckAndApply(context.Background()))

	assert.Equal(t, 0, f.remote.calls, "remote must not be contacted under emergency stop")
	assert.Equal(t, 0, f.git.ffRuns)
}

func TestCheckAndApply_ManualModeDetectsButDoesNotApply(t *testing.T) {
	f := newUpdaterFixture(t)
	require.NoError(t, f.state.MarkDeployed("abc123"))
	require.NoError(t, os.WriteFile(filepath.Join(f.dataDir, "manual_mode"), nil, 0o644))
	f.remote.sha = "def456"

	require.NoError(t, f.updater.CheckAndApply(context.Background()))

	assert.Equal(t, 1, f.remote.calls)
	assert.Equal(t, 0, f.git.ffRuns)

	deployed, err := f.state.Deployed()
	require.NoError(t, err)
	assert.Equal(t, "abc123", deployed)
}

func TestStateFile_RoundTrip(t *testing.T) {
	state := NewStateFile(filepath.Join(t.TempDir(), "update_state"))

	deployed, err := state.Deployed()
	require.NoError(t, err)
	assert.Empty(t, deployed)

	require.NoError(t, state.MarkDeployed("cafe0123"))
	deployed, err = state.Deployed()
	require.NoError(t, err)
	assert.Equal(t, "cafe0123", deployed)
}

func TestBackupper_SnapshotArchivesTree(t *testing.T) {
	repoDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repoDir, ".git", "objects"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, ".git", "objects", "blob"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "app.py"), []byte("code"), 0o644))

	backupDir := t.TempDir()
	b := NewBackupper(repoDir, backupDir, nil, zerolog.Nop())

	archive, err := b.Snapshot(context.Background())
	require.NoError(t, err)

	info, err := os.Stat(archive)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
	assert.Contains(t, filepath.Base(archive), "backup-")
}
