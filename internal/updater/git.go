package updater

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// GitInterface mutates and inspects the local working tree. Implemented over
// the platform git tool.
type GitInterface interface {
	// FastForward fetches the branch and fast-forwards the tree to it. The
	// merge is a single tool invocation, so consumers observe either the
	// old tree or the new one.
	FastForward(ctx context.Context) error

	// Head returns the current HEAD commit SHA.
	Head(ctx context.Context) (string, error)
}

// GitRunner shells out to git against a fixed working tree.
type GitRunner struct {
	repoDir string
	branch  string
	log     zerolog.Logger
}

var _ GitInterface = (*GitRunner)(nil)

// NewGitRunner creates a runner for the tree at repoDir tracking branch.
func NewGitRunner(repoDir, branch string, log zerolog.Logger) *GitRunner {
	return &GitRunner{
		repoDir: repoDir,
		branch:  branch,
		log:     log.With().Str("component", "git").Logger(),
	}
}

// FastForward runs fetch then a ff-only merge. A merge that cannot fast
// forward fails without touching the tree.
func (g *GitRunner) FastForward(ctx context.Context) error {
	if err := g.run(ctx, "fetch", "origin", g.branch); err != nil {
		return fmt.Errorf("git fetch failed: %w", err)
	}
	if err := g.run(ctx, "merge", "--ff-only", "FETCH_HEAD"); err != nil {
		return fmt.Errorf("git fast-forward failed: %w", err)
	}
	return nil
}

// Head returns the current HEAD commit SHA.
func (g *GitRunner) Head(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "git", "-C", g.repoDir, "rev-parse", "HEAD").Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (g *GitRunner) run(ctx context.Context, args ...string) error {
	fullArgs := append([]string{"-C", g.repoDir}, args...)
	cmd := exec.CommandContext(ctx, "git", fullArgs...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w (output: %s)", err, strings.TrimSpace(string(out)))
	}

	g.log.Debug().Strs("args", args).Msg("Git command finished")
	return nil
}
