// Package model defines the domain types for the binforge pipeline.
//
// All entities in this package represent the core data structures passed
// between pipeline stages: the snapshot → build → {completions, image} →
// publish chain. Each stage consumes the previous stage's output type and
// never mutates it, which is what makes individual stages cacheable and
// testable in isolation.
package model

import (
	"fmt"
	"strings"
	"time"
)

// LinkMode selects how a build artifact is linked.
type LinkMode string

const (
	// ModeNative links against the host's dynamic runtime libraries.
	// Native artifacts are for local installation on a full system.
	ModeNative LinkMode = "native"

	// ModeStatic links a fully self-contained binary with no dynamic
	// library dependencies. Only static artifacts may be placed into the
	// minimal container image, which ships no system libraries.
	ModeStatic LinkMode = "static"
)

// String returns the string representation of LinkMode.
func (m LinkMode) String() string {
	return string(m)
}

// IsValid checks whether the LinkMode value is one of the defined modes.
func (m LinkMode) IsValid() bool {
	switch m {
	case ModeNative, ModeStatic:
		return true
	default:
		return false
	}
}

// ParseLinkMode converts a string to a LinkMode.
// Returns an error if the string does not match any valid mode.
func ParseLinkMode(s string) (LinkMode, error) {
	mode := LinkMode(strings.ToLower(s))
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid link mode: %q (valid: native, static)", s)
	}
	return mode, nil
}

// AllLinkModes returns both link modes in build order.
// Used by the "build --mode all" path, which builds every variant.
func AllLinkModes() []LinkMode {
	return []LinkMode{ModeNative, ModeStatic}
}

// Dialect identifies a supported shell-completion dialect.
type Dialect string

const (
	// DialectBash targets GNU bash's programmable completion.
	DialectBash Dialect = "bash"

	// DialectFish targets the fish shell's completion system.
	DialectFish Dialect = "fish"

	// DialectZsh targets zsh's compsys completion framework.
	DialectZsh Dialect = "zsh"
)

// String returns the string representation of Dialect.
func (d Dialect) String() string {
	return string(d)
}

// IsValid checks whether the Dialect value is one of the supported dialects.
func (d Dialect) IsValid() bool {
	switch d {
	case DialectBash, DialectFish, DialectZsh:
		return true
	default:
		return false
	}
}

// FileName returns the conventional completion file name for this dialect
// and the given tool name. These names follow the conventions of the
// upstream completion generators, which is what makes the files locatable
// by a deterministic search under the build output tree:
//
//	bash → <tool>.bash
//	fish → <tool>.fish
//	zsh  → _<tool>
func (d Dialect) FileName(tool string) string {
	switch d {
	case DialectBash:
		return tool + ".bash"
	case DialectFish:
		return tool + ".fish"
	case DialectZsh:
		return "_" + tool
	default:
		return ""
	}
}

// AllDialects returns every supported dialect in stable order.
// A release must ship a completion script for each of these — a missing
// dialect is a fatal packaging error, not a soft warning.
func AllDialects() []Dialect {
	return []Dialect{DialectBash, DialectFish, DialectZsh}
}

// BuildArtifact is the output of one Artifact Builder invocation: a single
// binary executable tagged with the link mode that produced it.
//
// The Address ties the artifact back to the exact (snapshot, manifest, mode)
// triple that produced it, which is the cache key for artifact reuse.
type BuildArtifact struct {
	// Tool is the name of the built binary (e.g., "clockin").
	Tool string `json:"tool"`

	// Mode is the link mode that produced this artifact.
	Mode LinkMode `json:"mode"`

	// Path is the absolute path to the built executable.
	Path string `json:"path"`

	// OutputDir is the root of the build output tree for this mode.
	// Auxiliary build outputs (completion sources) live beneath it.
	OutputDir string `json:"outputDir"`

	// Address is the hex-encoded content address of the build inputs
	// (snapshot address, manifest address, mode). Two artifacts with the
	// same Address were built from identical inputs.
	Address string `json:"address"`

	// BuiltAt is the timestamp when the artifact was produced.
	// Zero for cache hits that reused a previously built artifact.
	BuiltAt time.Time `json:"builtAt"`
}

// Credentials holds the registry principal and secret token used for a
// push. They are supplied by the invoking environment (CI secrets) and
// passed explicitly through the pipeline — never read ambiently by
// library code and never embedded in source.
type Credentials struct {
	// Username is the registry principal. It also determines the
	// destination namespace for the push.
	Username string `json:"username"`

	// Token is the secret used to authenticate the principal.
	// Excluded from JSON output so it cannot leak into logs.
	Token string `json:"-"`
}

// Release describes one publish operation: the destination coordinates for
// a container image plus the source revision it was built from. A Release
// is ephemeral — it exists only for the duration of a publish; the registry
// is the durable store afterward.
type Release struct {
	// Registry is the destination registry host (e.g., "ghcr.io").
	Registry string `json:"registry"`

	// Namespace is the destination namespace, derived from the invoking
	// identity (the credential principal).
	Namespace string `json:"namespace"`

	// ImageName is the fixed image name for this pipeline.
	ImageName string `json:"imageName"`

	// Tag is the tag to push under. Mainline releases always use "latest";
	// each release supersedes the previous content under the same tag.
	Tag string `json:"tag"`

	// Revision is the source commit the image was built from.
	Revision string `json:"revision"`

	// Branch is the branch whose update triggered the release.
	Branch string `json:"branch"`
}

// Reference returns the full image reference for this release, in the
// form "<registry>/<namespace>/<name>:<tag>".
func (r Release) Reference() string {
	return fmt.Sprintf("%s/%s/%s:%s", r.Registry, r.Namespace, r.ImageName, r.Tag)
}

// Validate checks that every coordinate needed to address the push
// destination is present.
func (r Release) Validate() error {
	switch {
	case r.Registry == "":
		return fmt.Errorf("release is missing a registry host")
	case r.Namespace == "":
		return fmt.Errorf("release is missing a destination namespace")
	case r.ImageName == "":
		return fmt.Errorf("release is missing an image name")
	case r.Tag == "":
		return fmt.Errorf("release is missing a tag")
	default:
		return nil
	}
}

// ExitCode defines the stable CLI exit code contract. Each pipeline error
// kind maps to its own code so CI systems can programmatically distinguish
// failure stages from the process status alone.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigInvalid indicates the pipeline config file is missing
	// or failed validation.
	ExitConfigInvalid ExitCode = 2

	// ExitSnapshotError indicates the snapshot root directory is missing
	// or unreadable. No partial snapshot is ever used.
	ExitSnapshotError ExitCode = 3

	// ExitBuildFailure indicates the toolchain failed for a link mode.
	// The error carries the underlying toolchain diagnostic.
	ExitBuildFailure ExitCode = 4

	// ExitCompletionNotFound indicates an expected completion file was
	// absent from the build output tree. This is a fatal packaging error:
	// a release must never ship without all three dialects.
	ExitCompletionNotFound ExitCode = 5

	// ExitImageAssembly indicates the base file set or build artifact was
	// missing (or of the wrong link mode) at image assembly time.
	ExitImageAssembly ExitCode = 6

	// ExitPublishAuth indicates the registry rejected the supplied
	// credentials. Surfaced to the CI operator; never retried here.
	ExitPublishAuth ExitCode = 7

	// ExitPublishPush indicates a network or registry-side failure during
	// the push. The previously published tag remains untouched.
	ExitPublishPush ExitCode = 8

	// ExitDockerUnavailable indicates the Docker daemon is not accessible.
	ExitDockerUnavailable ExitCode = 9

	// ExitGitError indicates resolving the source revision failed.
	ExitGitError ExitCode = 10
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate pipeline errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
