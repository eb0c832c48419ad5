package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shinji-kodama/binforge/internal/config"
	"github.com/shinji-kodama/binforge/internal/manifest"
	"github.com/shinji-kodama/binforge/internal/model"
	"github.com/shinji-kodama/binforge/internal/snapshot"
)

// Builder produces build artifacts from (snapshot, lockfile, mode) triples.
//
// Each build is a pure function of that triple, so results are cached
// keyed by its content address: invoking Build twice with identical inputs
// returns the same artifact without re-running the toolchain. A failed
// build never evicts a previously cached artifact.
type Builder struct {
	// toolchain performs the actual compilation. Injected so tests can
	// substitute a fake that writes synthetic outputs.
	toolchain Toolchain

	// cfg supplies the tool name, output tree, and per-mode commands.
	cfg *config.Config

	// mu guards cache. Both link modes may build concurrently.
	mu sync.Mutex

	// cache maps build keys to completed artifacts for this process.
	// The key covers every build input, so a hit is always safe to reuse.
	cache map[snapshot.Address]*model.BuildArtifact
}

// New creates a Builder using the given toolchain and pipeline config.
func New(toolchain Toolchain, cfg *config.Config) *Builder {
	return &Builder{
		toolchain: toolchain,
		cfg:       cfg,
		cache:     make(map[snapshot.Address]*model.BuildArtifact),
	}
}

// Build produces the artifact for one link mode, or returns the cached
// artifact if the same (snapshot, lockfile, mode) triple was already
// built and its output still exists on disk.
//
// A toolchain failure returns a CLIError with ExitBuildFailure carrying
// the underlying diagnostic. The build also verifies its own side-effect
// contract: the executable must exist at the conventional path after the
// toolchain reports success.
func (b *Builder) Build(ctx context.Context, snap *snapshot.Snapshot, lock *manifest.Lockfile, mode model.LinkMode) (*model.BuildArtifact, error) {
	if !mode.IsValid() {
		return nil, model.NewCLIError(model.ExitBuildFailure,
			fmt.Sprintf("unknown link mode %q", mode))
	}

	key := snapshot.BuildKey(snap.Address, lock.Address, mode.String())

	if artifact := b.cachedArtifact(key); artifact != nil {
		return artifact, nil
	}

	outputDir := b.ModeOutputDir(mode)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, model.WrapCLIError(model.ExitBuildFailure,
			fmt.Sprintf("cannot create output directory %q", outputDir), err)
	}

	spec := BuildSpec{
		RootDir:   snap.Root,
		OutputDir: outputDir,
		Mode:      mode,
		Argv:      b.cfg.Build.Commands[mode.String()],
	}
	if err := b.toolchain.Build(ctx, spec); err != nil {
		return nil, model.WrapCLIError(model.ExitBuildFailure,
			fmt.Sprintf("%s build failed", mode), err)
	}

	binPath := filepath.Join(outputDir, b.cfg.Tool)
	if _, err := os.Stat(binPath); err != nil {
		return nil, model.WrapCLIError(model.ExitBuildFailure,
			fmt.Sprintf("%s build succeeded but produced no binary at %q", mode, binPath), err)
	}

	artifact := &model.BuildArtifact{
		Tool:      b.cfg.Tool,
		Mode:      mode,
		Path:      binPath,
		OutputDir: outputDir,
		Address:   key.String(),
		BuiltAt:   time.Now().UTC(),
	}

	b.mu.Lock()
	b.cache[key] = artifact
	b.mu.Unlock()

	return artifact, nil
}

// cachedArtifact returns the cached artifact for key if present and its
// binary still exists on disk. A deleted output tree invalidates the
// entry rather than handing out a dangling path.
func (b *Builder) cachedArtifact(key snapshot.Address) *model.BuildArtifact {
	b.mu.Lock()
	artifact := b.cache[key]
	b.mu.Unlock()

	if artifact == nil {
		return nil
	}
	if _, err := os.Stat(artifact.Path); err != nil {
		b.mu.Lock()
		delete(b.cache, key)
		b.mu.Unlock()
		return nil
	}
	return artifact
}

// BuildAll builds every link mode concurrently and returns the artifacts
// keyed by mode. The variants are independent pure functions of the same
// inputs, so there is no ordering constraint between them. The first
// error aborts the result; artifacts from modes that succeeded stay
// cached for later reuse.
func (b *Builder) BuildAll(ctx context.Context, snap *snapshot.Snapshot, lock *manifest.Lockfile) (map[model.LinkMode]*model.BuildArtifact, error) {
	modes := model.AllLinkModes()

	type result struct {
		mode     model.LinkMode
		artifact *model.BuildArtifact
		err      error
	}
	results := make(chan result, len(modes))

	for _, mode := range modes {
		go func(mode model.LinkMode) {
			artifact, err := b.Build(ctx, snap, lock, mode)
			results <- result{mode: mode, artifact: artifact, err: err}
		}(mode)
	}

	artifacts := make(map[model.LinkMode]*model.BuildArtifact, len(modes))
	var firstErr error
	for range modes {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		artifacts[r.mode] = r.artifact
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return artifacts, nil
}

// ModeOutputDir returns the output directory for one link mode:
// <outputDir>/<mode>. The binary lands at <outputDir>/<mode>/<tool> and
// generated completion sources beneath <outputDir>/<mode>/completions/.
func (b *Builder) ModeOutputDir(mode model.LinkMode) string {
	return filepath.Join(b.cfg.OutputDir(), mode.String())
}
