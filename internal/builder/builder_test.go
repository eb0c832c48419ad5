package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/binforge/internal/config"
	"github.com/shinji-kodama/binforge/internal/manifest"
	"github.com/shinji-kodama/binforge/internal/model"
	"github.com/shinji-kodama/binforge/internal/snapshot"
)

// fakeToolchain records invocations and writes a synthetic binary plus
// completion sources into the output directory, imitating the build's
// side-effect contract without a real compiler.
type fakeToolchain struct {
	mu    sync.Mutex
	calls []BuildSpec

	// failModes lists modes whose builds should fail with failErr.
	failModes map[model.LinkMode]bool
	failErr   error

	// skipBinary suppresses writing the binary, simulating a toolchain
	// that exits zero without producing output.
	skipBinary bool
}

func (f *fakeToolchain) Build(_ context.Context, spec BuildSpec) error {
	f.mu.Lock()
	f.calls = append(f.calls, spec)
	f.mu.Unlock()

	if f.failModes[spec.Mode] {
		return f.failErr
	}
	if f.skipBinary {
		return nil
	}

	if err := os.MkdirAll(filepath.Join(spec.OutputDir, "completions"), 0o755); err != nil {
		return err
	}
	// The binary name must match the configured tool name ("clockin").
	if err := os.WriteFile(filepath.Join(spec.OutputDir, "clockin"), []byte("ELF "+spec.Mode.String()), 0o755); err != nil {
		return err
	}
	for _, d := range model.AllDialects() {
		name := d.FileName("clockin")
		if err := os.WriteFile(filepath.Join(spec.OutputDir, "completions", name), []byte("# "+name), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeToolchain) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// testFixture builds a config, snapshot, and lockfile rooted in temp dirs.
func testFixture(t *testing.T) (*config.Config, *snapshot.Snapshot, *manifest.Lockfile) {
	t.Helper()
	dir := t.TempDir()

	cfgJSON := `{
	  "tool": "clockin",
	  "build": {"commands": {"native": ["make", "build"], "static": ["make", "build-static"]}},
	  "image": {"baseDir": "base"}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.DefaultFileName), []byte(cfgJSON), 0o644))

	lockYAML := "version: 1\npackages:\n  libfoo:\n    version: 1.0.0\n    checksum: sha256-aaaa\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deps.lock"), []byte(lockYAML), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.c"), []byte("int main() {}\n"), 0o644))

	cfg, err := config.Load(filepath.Join(dir, config.DefaultFileName))
	require.NoError(t, err)

	snap, err := snapshot.Capture(cfg.SnapshotRoot(), snapshot.ExcludeBaseNames(cfg.Snapshot.Exclude))
	require.NoError(t, err)

	lock, err := manifest.Load(cfg.LockfilePath())
	require.NoError(t, err)

	return cfg, snap, lock
}

// TestBuild_ProducesArtifact verifies the happy path: the toolchain runs
// once with the right spec and the artifact describes the built binary.
func TestBuild_ProducesArtifact(t *testing.T) {
	cfg, snap, lock := testFixture(t)
	tc := &fakeToolchain{}
	b := New(tc, cfg)

	artifact, err := b.Build(context.Background(), snap, lock, model.ModeStatic)
	require.NoError(t, err)

	assert.Equal(t, "clockin", artifact.Tool)
	assert.Equal(t, model.ModeStatic, artifact.Mode)
	assert.Equal(t, filepath.Join(cfg.OutputDir(), "static", "clockin"), artifact.Path)
	assert.NotEmpty(t, artifact.Address)
	assert.FileExists(t, artifact.Path)

	require.Equal(t, 1, tc.callCount())
	spec := tc.calls[0]
	assert.Equal(t, snap.Root, spec.RootDir)
	assert.Equal(t, []string{"make", "build-static"}, spec.Argv)
	assert.Equal(t, model.ModeStatic, spec.Mode)
}

// TestBuild_CacheHit verifies determinism-based reuse: a second build of
// the identical triple returns the same artifact without invoking the
// toolchain again.
func TestBuild_CacheHit(t *testing.T) {
	cfg, snap, lock := testFixture(t)
	tc := &fakeToolchain{}
	b := New(tc, cfg)

	first, err := b.Build(context.Background(), snap, lock, model.ModeStatic)
	require.NoError(t, err)
	second, err := b.Build(context.Background(), snap, lock, model.ModeStatic)
	require.NoError(t, err)

	assert.Equal(t, 1, tc.callCount())
	assert.Same(t, first, second)
	assert.Equal(t, first.Address, second.Address)
}

// TestBuild_CacheInvalidatedByDeletedOutput verifies that a cache entry
// whose binary was removed from disk triggers a rebuild instead of
// returning a dangling path.
func TestBuild_CacheInvalidatedByDeletedOutput(t *testing.T) {
	cfg, snap, lock := testFixture(t)
	tc := &fakeToolchain{}
	b := New(tc, cfg)

	first, err := b.Build(context.Background(), snap, lock, model.ModeNative)
	require.NoError(t, err)
	require.NoError(t, os.Remove(first.Path))

	second, err := b.Build(context.Background(), snap, lock, model.ModeNative)
	require.NoError(t, err)
	assert.Equal(t, 2, tc.callCount())
	assert.FileExists(t, second.Path)
}

// TestBuild_ModesHaveDistinctAddresses verifies that the two link modes of
// the same snapshot+lockfile get different build keys and output trees.
func TestBuild_ModesHaveDistinctAddresses(t *testing.T) {
	cfg, snap, lock := testFixture(t)
	b := New(&fakeToolchain{}, cfg)

	native, err := b.Build(context.Background(), snap, lock, model.ModeNative)
	require.NoError(t, err)
	static, err := b.Build(context.Background(), snap, lock, model.ModeStatic)
	require.NoError(t, err)

	assert.NotEqual(t, native.Address, static.Address)
	assert.NotEqual(t, native.OutputDir, static.OutputDir)
}

// TestBuild_ToolchainFailure verifies that a compile error surfaces as a
// CLIError with ExitBuildFailure wrapping the toolchain diagnostic.
func TestBuild_ToolchainFailure(t *testing.T) {
	cfg, snap, lock := testFixture(t)
	diag := errors.New("exit status 1: undefined reference to `clock_in'")
	tc := &fakeToolchain{failModes: map[model.LinkMode]bool{model.ModeStatic: true}, failErr: diag}
	b := New(tc, cfg)

	_, err := b.Build(context.Background(), snap, lock, model.ModeStatic)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitBuildFailure, cliErr.Code)
	assert.True(t, errors.Is(err, diag))
}

// TestBuild_FailureDoesNotEvictCache verifies that a failed build leaves a
// previously cached artifact for a different mode intact.
func TestBuild_FailureDoesNotEvictCache(t *testing.T) {
	cfg, snap, lock := testFixture(t)
	tc := &fakeToolchain{failModes: map[model.LinkMode]bool{model.ModeStatic: true}, failErr: errors.New("boom")}
	b := New(tc, cfg)

	native, err := b.Build(context.Background(), snap, lock, model.ModeNative)
	require.NoError(t, err)

	_, err = b.Build(context.Background(), snap, lock, model.ModeStatic)
	require.Error(t, err)

	again, err := b.Build(context.Background(), snap, lock, model.ModeNative)
	require.NoError(t, err)
	assert.Same(t, native, again)
}

// TestBuild_MissingBinaryAfterSuccess verifies the side-effect check: a
// toolchain that exits zero without producing the binary is still a
// build failure.
func TestBuild_MissingBinaryAfterSuccess(t *testing.T) {
	cfg, snap, lock := testFixture(t)
	b := New(&fakeToolchain{skipBinary: true}, cfg)

	_, err := b.Build(context.Background(), snap, lock, model.ModeNative)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitBuildFailure, cliErr.Code)
}

// TestBuildAll_Concurrent verifies that both variants build and are
// returned keyed by mode.
func TestBuildAll_Concurrent(t *testing.T) {
	cfg, snap, lock := testFixture(t)
	tc := &fakeToolchain{}
	b := New(tc, cfg)

	artifacts, err := b.BuildAll(context.Background(), snap, lock)
	require.NoError(t, err)

	require.Len(t, artifacts, 2)
	assert.Equal(t, model.ModeNative, artifacts[model.ModeNative].Mode)
	assert.Equal(t, model.ModeStatic, artifacts[model.ModeStatic].Mode)
	assert.Equal(t, 2, tc.callCount())
}

// TestBuildAll_PropagatesFailure verifies that one failing variant fails
// the whole BuildAll call.
func TestBuildAll_PropagatesFailure(t *testing.T) {
	cfg, snap, lock := testFixture(t)
	tc := &fakeToolchain{failModes: map[model.LinkMode]bool{model.ModeNative: true}, failErr: errors.New("boom")}
	b := New(tc, cfg)

	_, err := b.BuildAll(context.Background(), snap, lock)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitBuildFailure, cliErr.Code)
}

// TestExecToolchain_RunsCommand exercises the real toolchain runner with a
// shell one-liner that writes the expected binary.
func TestExecToolchain_RunsCommand(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(out, 0o755))

	tc := NewExecToolchain()
	spec := BuildSpec{
		RootDir:   dir,
		OutputDir: out,
		Mode:      model.ModeNative,
		Argv:      []string{"sh", "-c", `printf binary > "$BINFORGE_OUT/clockin"`},
	}
	require.NoError(t, tc.Build(context.Background(), spec))
	assert.FileExists(t, filepath.Join(out, "clockin"))
}

// TestExecToolchain_FailureCarriesDiagnostic verifies that stderr output
// from a failing command ends up in the returned error.
func TestExecToolchain_FailureCarriesDiagnostic(t *testing.T) {
	dir := t.TempDir()
	tc := NewExecToolchain()
	spec := BuildSpec{
		RootDir:   dir,
		OutputDir: dir,
		Mode:      model.ModeStatic,
		Argv:      []string{"sh", "-c", `echo "linker error: missing libc" >&2; exit 1`},
	}
	err := tc.Build(context.Background(), spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "linker error: missing libc")
}
