// Package gitrev resolves the source revision identity for a release.
//
// It wraps the git CLI via os/exec rather than a Go Git library for the
// same reason the rest of this repo shells out to external tools: the
// repository on a CI runner may use any clone shape (shallow, worktree,
// partial), and the git CLI handles them all.
package gitrev

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/shinji-kodama/binforge/internal/model"
)

// Revision identifies the source state a release was built from.
type Revision struct {
	// Commit is the full HEAD commit SHA.
	Commit string

	// Branch is the current branch name, or "" for a detached HEAD
	// (CI runners frequently check out a detached commit; the branch
	// then comes from the CI trigger ref instead).
	Branch string
}

// Short returns the abbreviated commit SHA for display.
func (r Revision) Short() string {
	if len(r.Commit) > 12 {
		return r.Commit[:12]
	}
	return r.Commit
}

// Resolve determines the revision of the repository containing dir.
// Returns a CLIError with ExitGitError if dir is not inside a Git
// repository or git is unavailable.
func Resolve(dir string) (Revision, error) {
	commit, err := runGit(dir, "rev-parse", "HEAD")
	if err != nil {
		return Revision{}, model.WrapCLIError(model.ExitGitError,
			fmt.Sprintf("cannot resolve HEAD commit in %q", dir), err)
	}

	branch, err := runGit(dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return Revision{}, model.WrapCLIError(model.ExitGitError,
			fmt.Sprintf("cannot resolve current branch in %q", dir), err)
	}

	return Revision{
		Commit: commit,
		Branch: normalizeBranch(branch),
	}, nil
}

// normalizeBranch maps git's detached-HEAD marker to an empty branch.
func normalizeBranch(branch string) string {
	if branch == "HEAD" {
		return ""
	}
	return branch
}

// runGit executes a git command in dir and returns its trimmed stdout.
// stderr is folded into the error on failure so the diagnostic reaches
// the operator.
func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, detail)
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
