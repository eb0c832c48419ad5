// Package config loads and validates the binforge pipeline configuration.
//
// The config file uses JSONC (JSON with Comments), so this package uses
// github.com/tidwall/jsonc to strip comments before parsing with the
// standard encoding/json library. A commented config format matters here
// because the file documents build commands and exclusion rules that
// maintainers revisit rarely and forget quickly.
//
// Credentials are deliberately absent from this file: the registry
// principal and token are supplied by the invoking environment at publish
// time and passed through explicit parameters, never persisted.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/shinji-kodama/binforge/internal/model"
)

// DefaultFileName is the conventional config file name at the repo root.
const DefaultFileName = "binforge.jsonc"

// Config is the root pipeline configuration.
type Config struct {
	// Tool is the name of the binary the pipeline builds and releases.
	Tool string `json:"tool"`

	// Snapshot configures the source snapshot filter.
	Snapshot SnapshotConfig `json:"snapshot"`

	// Build configures the artifact builder.
	Build BuildConfig `json:"build"`

	// Completions configures the per-dialect install targets.
	Completions CompletionsConfig `json:"completions"`

	// Image configures the container image assembler.
	Image ImageConfig `json:"image"`

	// Publish configures the release publisher.
	Publish PublishConfig `json:"publish"`

	// Dir is the directory containing the config file. All relative paths
	// in the config resolve against it. Not serialized.
	Dir string `json:"-"`
}

// SnapshotConfig configures which files belong to the buildable source set.
type SnapshotConfig struct {
	// Root is the source tree root, relative to the config directory.
	// Defaults to ".".
	Root string `json:"root,omitempty"`

	// Exclude lists base names excluded from the snapshot. The exclusion
	// set is configurable because it is part of the content-address
	// contract: anything listed here can change without invalidating
	// builds. Defaults to the config file itself, the lockfile, the
	// output directory, and .git.
	Exclude []string `json:"exclude,omitempty"`
}

// BuildConfig configures the artifact builder.
type BuildConfig struct {
	// Lockfile is the locked dependency manifest path, relative to the
	// config directory. Defaults to "deps.lock".
	Lockfile string `json:"lockfile,omitempty"`

	// OutputDir is the build output tree root, relative to the config
	// directory. Each link mode builds into its own subdirectory.
	// Defaults to "out".
	OutputDir string `json:"outputDir,omitempty"`

	// Commands maps a link mode name ("native", "static") to the argv of
	// the toolchain command that produces that variant. The command runs
	// with the source root as working directory and receives the mode's
	// output directory via the BINFORGE_OUT environment variable.
	Commands map[string][]string `json:"commands"`
}

// CompletionsConfig maps each shell dialect to its install directory.
type CompletionsConfig struct {
	// Bash is the install directory for the bash completion script.
	Bash string `json:"bash,omitempty"`

	// Fish is the install directory for the fish completion script.
	Fish string `json:"fish,omitempty"`

	// Zsh is the install directory for the zsh completion function.
	Zsh string `json:"zsh,omitempty"`
}

// TargetDir returns the configured install directory for a dialect.
func (c CompletionsConfig) TargetDir(d model.Dialect) string {
	switch d {
	case model.DialectBash:
		return c.Bash
	case model.DialectFish:
		return c.Fish
	case model.DialectZsh:
		return c.Zsh
	default:
		return ""
	}
}

// ImageConfig configures the container image assembler.
type ImageConfig struct {
	// BaseDir is the directory holding the minimal base file set (a shell
	// and core utilities), relative to the config directory. Its contents
	// become the image's first layer.
	BaseDir string `json:"baseDir"`

	// Archive is the output path for the assembled image archive,
	// relative to the config directory. Defaults to "out/image.tar".
	Archive string `json:"archive,omitempty"`
}

// PublishConfig configures the release publisher.
type PublishConfig struct {
	// Registry is the destination registry host. Defaults to "ghcr.io".
	Registry string `json:"registry,omitempty"`

	// ImageName is the fixed image name. Defaults to the tool name.
	ImageName string `json:"imageName,omitempty"`

	// Tag is the release tag. Mainline releases use "latest" (default);
	// each push supersedes the previous content under the same tag.
	Tag string `json:"tag,omitempty"`

	// MainlineBranch is the only branch whose push events trigger a
	// release. Defaults to "main".
	MainlineBranch string `json:"mainlineBranch,omitempty"`
}

// Load reads, parses, defaults, and validates a pipeline config file.
// Returns a CLIError with ExitConfigInvalid on any failure.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("cannot read config %q", path), err)
	}

	// Strip JSONC comments (// and /* */) and trailing commas before
	// parsing with encoding/json.
	clean := jsonc.ToJSON(data)

	var cfg Config
	if err := json.Unmarshal(clean, &cfg); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("config %q is not valid JSONC", path), err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("cannot resolve config path %q", path), err)
	}
	cfg.Dir = filepath.Dir(absPath)
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("config %q failed validation", path), err)
	}
	return &cfg, nil
}

// applyDefaults fills in every optional field. Defaults are applied before
// validation so validation only has to check required fields and
// consistency.
func (c *Config) applyDefaults() {
	if c.Snapshot.Root == "" {
		c.Snapshot.Root = "."
	}
	if c.Snapshot.Exclude == nil {
		c.Snapshot.Exclude = []string{DefaultFileName, "deps.lock", "out", ".git"}
	}
	if c.Build.Lockfile == "" {
		c.Build.Lockfile = "deps.lock"
	}
	if c.Build.OutputDir == "" {
		c.Build.OutputDir = "out"
	}
	if c.Image.Archive == "" {
		c.Image.Archive = filepath.Join(c.Build.OutputDir, "image.tar")
	}
	if c.Publish.Registry == "" {
		c.Publish.Registry = "ghcr.io"
	}
	if c.Publish.ImageName == "" {
		c.Publish.ImageName = c.Tool
	}
	if c.Publish.Tag == "" {
		c.Publish.Tag = "latest"
	}
	if c.Publish.MainlineBranch == "" {
		c.Publish.MainlineBranch = "main"
	}
}

// validate checks required fields and the per-mode build commands.
func (c *Config) validate() error {
	if c.Tool == "" {
		return fmt.Errorf("\"tool\" is required")
	}
	if len(c.Build.Commands) == 0 {
		return fmt.Errorf("\"build.commands\" is required")
	}
	for _, mode := range model.AllLinkModes() {
		argv, ok := c.Build.Commands[mode.String()]
		if !ok {
			return fmt.Errorf("\"build.commands\" is missing an entry for mode %q", mode)
		}
		if len(argv) == 0 {
			return fmt.Errorf("\"build.commands.%s\" must not be empty", mode)
		}
	}
	for name := range c.Build.Commands {
		if _, err := model.ParseLinkMode(name); err != nil {
			return fmt.Errorf("\"build.commands\" has unknown mode %q", name)
		}
	}
	if c.Image.BaseDir == "" {
		return fmt.Errorf("\"image.baseDir\" is required")
	}
	return nil
}

// Resolve turns a config-relative path into an absolute one. Absolute
// paths pass through unchanged.
func (c *Config) Resolve(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.Dir, rel)
}

// SnapshotRoot returns the absolute source tree root.
func (c *Config) SnapshotRoot() string {
	return c.Resolve(c.Snapshot.Root)
}

// LockfilePath returns the absolute lockfile path.
func (c *Config) LockfilePath() string {
	return c.Resolve(c.Build.Lockfile)
}

// OutputDir returns the absolute build output tree root.
func (c *Config) OutputDir() string {
	return c.Resolve(c.Build.OutputDir)
}

// ImageArchive returns the absolute path of the assembled image archive.
func (c *Config) ImageArchive() string {
	return c.Resolve(c.Image.Archive)
}

// ImageBaseDir returns the absolute path of the minimal base file set.
func (c *Config) ImageBaseDir() string {
	return c.Resolve(c.Image.BaseDir)
}
