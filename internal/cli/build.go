// Package cli — build.go implements the "binforge build" command.
//
// Orchestration steps:
//  1. Load the pipeline config and lockfile
//  2. Capture the source snapshot
//  3. Run the toolchain for the selected link mode(s)
//  4. Output artifact paths and addresses (text or JSON)
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/binforge/internal/builder"
	"github.com/shinji-kodama/binforge/internal/manifest"
	"github.com/shinji-kodama/binforge/internal/model"
	"github.com/shinji-kodama/binforge/internal/snapshot"
)

// buildFlags holds the flag values for the build command.
type buildFlags struct {
	mode string // --mode: native, static, or all
}

// NewBuildCommand creates the "build" cobra command.
func NewBuildCommand() *cobra.Command {
	flags := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the binary for one or both link modes",
		Long: `Build the tool from the current source snapshot and locked manifest.

Two link modes are supported:
  native  links against the host's dynamic runtime libraries
  static  produces a fully self-contained binary for the container image

Identical (snapshot, lockfile, mode) inputs produce identical artifacts;
already-built artifacts are reused without re-running the toolchain.

Examples:
  binforge build
  binforge build --mode static
  binforge build --mode all`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.mode, "mode", "all", "Link mode to build: native, static, or all")

	return cmd
}

// runBuild is the main orchestration function for the build command.
func runBuild(ctx context.Context, flags *buildFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	snap, lock, err := captureInputs(cfg.SnapshotRoot(), cfg.LockfilePath(), cfg.Snapshot.Exclude)
	if err != nil {
		return err
	}

	b := builder.New(builder.NewExecToolchain(), cfg)

	var artifacts []*model.BuildArtifact
	if flags.mode == "all" {
		VerboseLog("Building native and static variants concurrently...")
		built, err := b.BuildAll(ctx, snap, lock)
		if err != nil {
			return err
		}
		for _, mode := range model.AllLinkModes() {
			artifacts = append(artifacts, built[mode])
		}
	} else {
		mode, err := model.ParseLinkMode(flags.mode)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "invalid --mode", err)
		}
		VerboseLog("Building %s variant...", mode)
		artifact, err := b.Build(ctx, snap, lock, mode)
		if err != nil {
			return err
		}
		artifacts = append(artifacts, artifact)
	}

	printArtifacts(artifacts)
	return nil
}

// captureInputs loads the two typed build inputs: the filtered source
// snapshot and the locked manifest. Shared by build, image, and publish.
func captureInputs(root, lockfilePath string, exclude []string) (*snapshot.Snapshot, *manifest.Lockfile, error) {
	snap, err := snapshot.Capture(root, snapshot.ExcludeBaseNames(exclude))
	if err != nil {
		return nil, nil, err
	}
	VerboseLog("Snapshot: %d files, address %s", snap.Len(), snap.Address)

	lock, err := manifest.Load(lockfilePath)
	if err != nil {
		return nil, nil, err
	}
	VerboseLog("Lockfile: %d packages, address %s", len(lock.Packages), lock.Address)

	return snap, lock, nil
}

// printArtifacts outputs build results in text or JSON format.
func printArtifacts(artifacts []*model.BuildArtifact) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(artifacts, "", "  ")
		fmt.Println(string(data))
		return
	}

	for _, a := range artifacts {
		fmt.Printf("Built %s (%s)\n", a.Tool, a.Mode)
		fmt.Printf("  Path:    %s\n", a.Path)
		fmt.Printf("  Address: %s\n", a.Address)
	}
}
