// Package builder implements the artifact builder: it turns a (snapshot,
// lockfile, link mode) triple into exactly one binary executable, plus the
// auxiliary completion sources the build emits alongside it.
//
// The actual compilation is delegated to a Toolchain, which in production
// shells out to the configured build command and in tests is replaced by a
// fake. Shelling out mirrors how this repo drives git: the toolchain is an
// external program with its own CLI contract, and wrapping os/exec keeps
// the builder itself a pure function of its inputs.
package builder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/shinji-kodama/binforge/internal/model"
)

// BuildSpec describes one toolchain invocation.
type BuildSpec struct {
	// RootDir is the source tree root; the toolchain runs with this as
	// its working directory.
	RootDir string

	// OutputDir is the mode-specific output directory. The toolchain
	// receives it as BINFORGE_OUT and must place the binary and its
	// generated completion sources beneath it.
	OutputDir string

	// Mode is the link mode being built, passed as BINFORGE_MODE so a
	// single build script can branch on it.
	Mode model.LinkMode

	// Argv is the toolchain command line for this mode.
	Argv []string
}

// Toolchain compiles one artifact per invocation. Implementations must be
// safe for concurrent use: the native and static variants may build at the
// same time.
type Toolchain interface {
	// Build runs the toolchain for the given spec. A non-nil error means
	// the compile failed; the error carries the toolchain diagnostic.
	Build(ctx context.Context, spec BuildSpec) error
}

// ExecToolchain runs build commands via os/exec.
type ExecToolchain struct{}

// NewExecToolchain creates the production toolchain runner.
func NewExecToolchain() *ExecToolchain {
	return &ExecToolchain{}
}

// maxDiagnosticBytes bounds how much toolchain output is carried in a
// BuildFailure. Compiler output can run to megabytes; the tail is where
// the actual error lives.
const maxDiagnosticBytes = 8 * 1024

// Build executes the spec's argv in the source root with BINFORGE_OUT and
// BINFORGE_MODE set. On failure it returns the tail of the combined
// stdout/stderr output as the diagnostic.
func (tc *ExecToolchain) Build(ctx context.Context, spec BuildSpec) error {
	if len(spec.Argv) == 0 {
		return fmt.Errorf("toolchain command for mode %q is empty", spec.Mode)
	}

	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.RootDir
	cmd.Env = append(os.Environ(),
		"BINFORGE_OUT="+spec.OutputDir,
		"BINFORGE_MODE="+spec.Mode.String(),
	)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %s", err, diagnosticTail(output.Bytes()))
	}
	return nil
}

// diagnosticTail returns the last maxDiagnosticBytes of toolchain output,
// trimmed of trailing whitespace.
func diagnosticTail(output []byte) string {
	if len(output) > maxDiagnosticBytes {
		output = output[len(output)-maxDiagnosticBytes:]
	}
	return strings.TrimSpace(string(output))
}
