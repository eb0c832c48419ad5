package completion

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/binforge/internal/model"
)

// writeFile creates a file (and parent directories) under root.
func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// buildOutputTree creates an output tree with all three completion files
// at their conventional names, as the build side effect would leave them.
func buildOutputTree(t *testing.T) string {
	t.Helper()
	out := t.TempDir()
	writeFile(t, out, "static/completions/clockin.bash", "# bash completions")
	writeFile(t, out, "static/completions/clockin.fish", "# fish completions")
	writeFile(t, out, "static/completions/_clockin", "#compdef clockin")
	return out
}

// TestLocate_AllDialects verifies that a complete output tree yields one
// path per dialect at the conventional names.
func TestLocate_AllDialects(t *testing.T) {
	out := buildOutputTree(t)

	found, err := Locate(out, "clockin")
	require.NoError(t, err)

	require.Len(t, found, 3)
	assert.Equal(t, filepath.Join(out, "static/completions/clockin.bash"), found[model.DialectBash])
	assert.Equal(t, filepath.Join(out, "static/completions/clockin.fish"), found[model.DialectFish])
	assert.Equal(t, filepath.Join(out, "static/completions/_clockin"), found[model.DialectZsh])
}

// TestLocate_FirstMatchWins verifies deterministic selection when the same
// conventional name appears in multiple generated directories: the
// lexically first path is chosen.
func TestLocate_FirstMatchWins(t *testing.T) {
	out := t.TempDir()
	writeFile(t, out, "a/clockin.bash", "first")
	writeFile(t, out, "b/clockin.bash", "second")
	writeFile(t, out, "a/clockin.fish", "fish")
	writeFile(t, out, "a/_clockin", "zsh")

	found, err := Locate(out, "clockin")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "a/clockin.bash"), found[model.DialectBash])
}

// TestLocate_MissingDialect verifies the fatal packaging error: an output
// tree missing any one dialect fails with ExitCompletionNotFound.
func TestLocate_MissingDialect(t *testing.T) {
	out := t.TempDir()
	writeFile(t, out, "completions/clockin.bash", "# bash")
	writeFile(t, out, "completions/_clockin", "# zsh")
	// fish deliberately absent

	_, err := Locate(out, "clockin")
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitCompletionNotFound, cliErr.Code)
	assert.Contains(t, cliErr.Message, "fish")
}

// TestInstall_AllDialects verifies the full install: each script lands in
// its dialect's target directory under the conventional name.
func TestInstall_AllDialects(t *testing.T) {
	out := buildOutputTree(t)
	targets := t.TempDir()
	targetDir := func(d model.Dialect) string {
		return filepath.Join(targets, d.String())
	}

	installed, err := Install(out, "clockin", targetDir)
	require.NoError(t, err)
	require.Len(t, installed, 3)

	assert.FileExists(t, filepath.Join(targets, "bash", "clockin.bash"))
	assert.FileExists(t, filepath.Join(targets, "fish", "clockin.fish"))
	assert.FileExists(t, filepath.Join(targets, "zsh", "_clockin"))

	data, err := os.ReadFile(filepath.Join(targets, "zsh", "_clockin"))
	require.NoError(t, err)
	assert.Equal(t, "#compdef clockin", string(data))
}

// TestInstall_MissingDialectInstallsNothing verifies the no-partial-install
// contract: a tree missing the fish completion fails the whole install and
// writes zero files.
func TestInstall_MissingDialectInstallsNothing(t *testing.T) {
	out := t.TempDir()
	writeFile(t, out, "completions/clockin.bash", "# bash")
	writeFile(t, out, "completions/_clockin", "# zsh")
	// fish deliberately absent

	targets := t.TempDir()
	targetDir := func(d model.Dialect) string {
		return filepath.Join(targets, d.String())
	}

	installed, err := Install(out, "clockin", targetDir)
	require.Error(t, err)
	assert.Nil(t, installed)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitCompletionNotFound, cliErr.Code)

	// No target directory may have been created or written.
	entries, err := os.ReadDir(targets)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestInstall_UnconfiguredTarget verifies that a dialect with no install
// directory configured fails before any write.
func TestInstall_UnconfiguredTarget(t *testing.T) {
	out := buildOutputTree(t)
	targetDir := func(d model.Dialect) string {
		if d == model.DialectZsh {
			return ""
		}
		return filepath.Join(t.TempDir(), d.String())
	}

	_, err := Install(out, "clockin", targetDir)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitCompletionNotFound, cliErr.Code)
}
