package gitrev

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/binforge/internal/model"
)

// initRepo creates a git repository with one commit and returns its path.
// Skips the test if git is not installed on the host.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init", "--initial-branch=main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte("content"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

// TestResolve verifies commit and branch resolution in a real repository.
func TestResolve(t *testing.T) {
	dir := initRepo(t)

	rev, err := Resolve(dir)
	require.NoError(t, err)

	assert.Len(t, rev.Commit, 40)
	assert.Equal(t, "main", rev.Branch)
	assert.Equal(t, rev.Commit[:12], rev.Short())
}

// TestResolve_DetachedHead verifies that a detached HEAD yields an empty
// branch rather than the literal "HEAD" marker.
func TestResolve_DetachedHead(t *testing.T) {
	dir := initRepo(t)

	rev, err := Resolve(dir)
	require.NoError(t, err)

	cmd := exec.Command("git", "checkout", "--detach", rev.Commit)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "%s", out)

	detached, err := Resolve(dir)
	require.NoError(t, err)
	assert.Equal(t, rev.Commit, detached.Commit)
	assert.Empty(t, detached.Branch)
}

// TestResolve_NotARepo verifies the ExitGitError contract outside a
// repository.
func TestResolve_NotARepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	_, err := Resolve(t.TempDir())
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitGitError, cliErr.Code)
}

// TestNormalizeBranch verifies the detached-HEAD marker mapping.
func TestNormalizeBranch(t *testing.T) {
	assert.Equal(t, "", normalizeBranch("HEAD"))
	assert.Equal(t, "main", normalizeBranch("main"))
	assert.Equal(t, "feature/x", normalizeBranch("feature/x"))
}
