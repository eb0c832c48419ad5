// Package cli — completions.go implements the "binforge completions" command.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/binforge/internal/builder"
	"github.com/shinji-kodama/binforge/internal/completion"
	"github.com/shinji-kodama/binforge/internal/model"
)

// completionsFlags holds the flag values for the completions command.
type completionsFlags struct {
	install bool // --install: copy scripts into the configured directories
}

// NewCompletionsCommand creates the "completions" cobra command.
func NewCompletionsCommand() *cobra.Command {
	flags := &completionsFlags{}

	cmd := &cobra.Command{
		Use:   "completions",
		Short: "Locate or install the shell completion scripts",
		Long: `Locate the bash, fish, and zsh completion scripts emitted by the build.

The static build must have produced one script per dialect under its
output tree. With --install, each script is copied into the directory
configured for its dialect; the install is all-or-nothing, so a build
missing any dialect installs zero files.

Examples:
  binforge completions
  binforge completions --install`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompletions(cmd.Context(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.install, "install", false, "Copy scripts into the configured install directories")

	return cmd
}

// runCompletions builds the static variant, then locates (and with
// --install, installs) the completion scripts from its output tree.
func runCompletions(ctx context.Context, flags *completionsFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	snap, lock, err := captureInputs(cfg.SnapshotRoot(), cfg.LockfilePath(), cfg.Snapshot.Exclude)
	if err != nil {
		return err
	}

	b := builder.New(builder.NewExecToolchain(), cfg)
	artifact, err := b.Build(ctx, snap, lock, model.ModeStatic)
	if err != nil {
		return err
	}

	if flags.install {
		installed, err := completion.Install(artifact.OutputDir, cfg.Tool, cfg.Completions.TargetDir)
		if err != nil {
			return err
		}
		printInstalled(installed)
		return nil
	}

	located, err := completion.Locate(artifact.OutputDir, cfg.Tool)
	if err != nil {
		return err
	}
	printLocated(located)
	return nil
}

// printLocated outputs located completion scripts in text or JSON format.
func printLocated(located map[model.Dialect]string) {
	if IsJSONOutput() {
		byName := make(map[string]string, len(located))
		for d, path := range located {
			byName[string(d)] = path
		}
		data, _ := json.MarshalIndent(byName, "", "  ")
		fmt.Println(string(data))
		return
	}

	for _, d := range model.AllDialects() {
		fmt.Printf("%-5s %s\n", d, located[d])
	}
}

// printInstalled outputs install results in text or JSON format.
func printInstalled(installed []completion.Installed) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(installed, "", "  ")
		fmt.Println(string(data))
		return
	}

	for _, ins := range installed {
		fmt.Printf("Installed %s completion: %s\n", ins.Dialect, ins.Target)
	}
}
