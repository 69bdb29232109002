package updater

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/renameio/v2"
)

// StateFile persists the commit hash of the currently deployed tree. The
// hash is written only after a successful tree mutation, so at any moment
// the file names exactly one deployed commit.
type StateFile struct {
	path string
}

// NewStateFile creates a state file accessor.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Deployed returns the recorded commit hash, or empty when no update has
// ever been applied.
func (s *StateFile) Deployed() (string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read update state: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// MarkDeployed records the commit hash atomically.
func (s *StateFile) MarkDeployed(commit string) error {
	if err := renameio.WriteFile(s.path, []byte(commit+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write update state: %w", err)
	}
	return nil
}
