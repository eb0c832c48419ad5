// Package cli — snapshot.go implements the "binforge snapshot" command.
//
// The snapshot command captures the filtered source set and prints its
// content address. It exists for two audiences: developers checking what
// the build will actually see (and why an edit did or didn't change the
// address), and scripts that use the address as a cache key.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/binforge/internal/snapshot"
)

// snapshotFlags holds the flag values for the snapshot command.
type snapshotFlags struct {
	listFiles bool // --files: list every included file
}

// NewSnapshotCommand creates the "snapshot" cobra command.
func NewSnapshotCommand() *cobra.Command {
	flags := &snapshotFlags{}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture the source snapshot and print its content address",
		Long: `Capture the buildable source set beneath the configured root, applying
the configured exclusion set, and print the snapshot's content address.

Two trees with the same address will build identically; the address is
the first component of the build cache key.`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(flags)
		},
	}

	cmd.Flags().BoolVar(&flags.listFiles, "files", false, "List every file included in the snapshot")

	return cmd
}

// runSnapshot captures the snapshot per the pipeline config and prints it.
func runSnapshot(flags *snapshotFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	VerboseLog("Snapshot root: %s", cfg.SnapshotRoot())
	VerboseLog("Exclusion set: %v", cfg.Snapshot.Exclude)

	snap, err := snapshot.Capture(cfg.SnapshotRoot(), snapshot.ExcludeBaseNames(cfg.Snapshot.Exclude))
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		return printSnapshotJSON(snap, flags.listFiles)
	}
	printSnapshotText(snap, flags.listFiles)
	return nil
}

// printSnapshotJSON outputs the snapshot as structured JSON.
func printSnapshotJSON(snap *snapshot.Snapshot, listFiles bool) error {
	type fileJSON struct {
		Path    string `json:"path"`
		Address string `json:"address"`
	}
	type resultJSON struct {
		Root    string     `json:"root"`
		Address string     `json:"address"`
		Files   int        `json:"files"`
		Entries []fileJSON `json:"entries,omitempty"`
	}

	result := resultJSON{
		Root:    snap.Root,
		Address: snap.Address.String(),
		Files:   snap.Len(),
	}
	if listFiles {
		for _, e := range snap.Entries {
			result.Entries = append(result.Entries, fileJSON{Path: e.Path, Address: e.Address.String()})
		}
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// printSnapshotText outputs the snapshot as human-readable text.
func printSnapshotText(snap *snapshot.Snapshot, listFiles bool) {
	fmt.Printf("Snapshot of %s\n", snap.Root)
	fmt.Printf("  Address: %s\n", snap.Address)
	fmt.Printf("  Files:   %d\n", snap.Len())

	if listFiles {
		fmt.Println()
		for _, e := range snap.Entries {
			fmt.Printf("  %s  %s\n", e.Address.String()[:12], e.Path)
		}
	}
}
