// Package completion locates and installs the shell-completion scripts
// that the build emits alongside the binary.
//
// Completions are generated by the build itself — from the same compiled
// definition of commands and flags as the binary — so they can never drift
// out of sync with the tool's actual command surface. This package only
// finds and ships them; it never generates content.
package completion

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shinji-kodama/binforge/internal/model"
)

// Locate searches beneath outputDir for each dialect's conventional file
// name and returns the first match found per dialect. The walk visits
// entries in lexical order, so "first match" is deterministic for a given
// output tree.
//
// A dialect with no match is a fatal packaging error: Locate returns a
// CLIError with ExitCompletionNotFound naming the missing dialect.
func Locate(outputDir, tool string) (map[model.Dialect]string, error) {
	wanted := make(map[string]model.Dialect, len(model.AllDialects()))
	for _, d := range model.AllDialects() {
		wanted[d.FileName(tool)] = d
	}

	found := make(map[model.Dialect]string, len(wanted))
	err := filepath.WalkDir(outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if dialect, ok := wanted[d.Name()]; ok {
			if _, seen := found[dialect]; !seen {
				found[dialect] = path
			}
		}
		return nil
	})
	if err != nil {
		return nil, model.WrapCLIError(model.ExitCompletionNotFound,
			fmt.Sprintf("cannot search build output %q for completion scripts", outputDir), err)
	}

	for _, d := range model.AllDialects() {
		if _, ok := found[d]; !ok {
			return nil, model.NewCLIError(model.ExitCompletionNotFound,
				fmt.Sprintf("no %s completion (%s) found under %q — the build did not emit it",
					d, d.FileName(tool), outputDir))
		}
	}
	return found, nil
}

// Installed describes one installed completion script.
type Installed struct {
	// Dialect is the shell dialect the script targets.
	Dialect model.Dialect `json:"dialect"`

	// Source is the path the script was located at in the output tree.
	Source string `json:"source"`

	// Target is the path the script was installed to.
	Target string `json:"target"`
}

// Install locates all three completion scripts under outputDir and copies
// each into its dialect's target directory under the conventional file
// name. targetDir maps a dialect to its install directory.
//
// The install is all-or-nothing: every script is located before the first
// byte is written, so a build output tree missing any dialect installs
// zero files.
func Install(outputDir, tool string, targetDir func(model.Dialect) string) ([]Installed, error) {
	located, err := Locate(outputDir, tool)
	if err != nil {
		return nil, err
	}

	// Every target directory must be configured before the first write,
	// otherwise a half-configured setup would install a partial dialect set.
	for _, d := range model.AllDialects() {
		if targetDir(d) == "" {
			return nil, model.NewCLIError(model.ExitCompletionNotFound,
				fmt.Sprintf("no install directory configured for %s completions", d))
		}
	}

	var installed []Installed
	for _, d := range model.AllDialects() {
		dir := targetDir(d)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, model.WrapCLIError(model.ExitCompletionNotFound,
				fmt.Sprintf("cannot create %s completion directory %q", d, dir), err)
		}

		target := filepath.Join(dir, d.FileName(tool))
		if err := copyFile(located[d], target); err != nil {
			return nil, model.WrapCLIError(model.ExitCompletionNotFound,
				fmt.Sprintf("cannot install %s completion to %q", d, target), err)
		}
		installed = append(installed, Installed{Dialect: d, Source: located[d], Target: target})
	}
	return installed, nil
}

// copyFile copies src to dst with read permissions for everyone.
// Completion scripts are sourced, not executed, so 0644 is sufficient.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
