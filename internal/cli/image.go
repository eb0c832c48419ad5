// Package cli — image.go implements the "binforge image" command.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/binforge/internal/builder"
	"github.com/shinji-kodama/binforge/internal/gitrev"
	"github.com/shinji-kodama/binforge/internal/image"
	"github.com/shinji-kodama/binforge/internal/model"
)

// imageFlags holds the flag values for the image command.
type imageFlags struct {
	output  string // --output: override the configured archive path
	inspect string // --inspect: print the config of an existing archive
}

// NewImageCommand creates the "image" cobra command.
func NewImageCommand() *cobra.Command {
	flags := &imageFlags{}

	cmd := &cobra.Command{
		Use:   "image",
		Short: "Assemble the container image archive",
		Long: `Assemble a minimal container image from the static binary.

The image holds exactly two layers: the configured base file set (a
busybox-style shell environment) and the static binary installed at
/usr/local/bin. The binary is the image entrypoint. The archive is
written in the OCI image layout format and is byte-identical for
identical inputs.

Examples:
  binforge image
  binforge image --output /tmp/clockin.tar
  binforge image --inspect out/image.tar`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runImage(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Archive output path (overrides the config)")
	cmd.Flags().StringVar(&flags.inspect, "inspect", "", "Print the image config of an existing archive and exit")

	return cmd
}

// runImage builds the static variant and assembles it into an image
// archive, or with --inspect prints an existing archive's config.
func runImage(ctx context.Context, flags *imageFlags) error {
	if flags.inspect != "" {
		return inspectImage(flags.inspect)
	}

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

	// Revision labels are best-effort here: a source tree without git
	// history still assembles a valid image. The publish command is
	// stricter because it stamps the pushed image with its provenance.
	rel := model.Release{ImageName: cfg.Publish.ImageName, Tag: cfg.Publish.Tag}
	if rev, err := gitrev.Resolve(cfg.Dir); err == nil {
		rel.Revision = rev.Commit
		rel.Branch = rev.Branch
	} else {
		VerboseLog("No git revision available: %v", err)
	}

	destPath := cfg.ImageArchive()
	if flags.output != "" {
		destPath = flags.output
	}

	ref := fmt.Sprintf("%s:%s", cfg.Publish.ImageName, cfg.Publish.Tag)
	labels := image.BuildLabels(artifact, rel, time.Now().UTC())

	if err := image.NewAssembler().Assemble(artifact, cfg.ImageBaseDir(), destPath, ref, labels); err != nil {
		return err
	}

	printImageResult(destPath, ref)
	return nil
}

// inspectImage prints the runtime config of an already-assembled archive.
func inspectImage(archivePath string) error {
	imgCfg, ref, err := image.Inspect(archivePath)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		out := struct {
			Ref    string             `json:"ref"`
			Config *image.ImageConfig `json:"config"`
		}{Ref: ref, Config: imgCfg}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Ref:        %s\n", ref)
	fmt.Printf("Entrypoint: %v\n", imgCfg.Config.Entrypoint)
	fmt.Printf("Env:        %v\n", imgCfg.Config.Env)
	fmt.Printf("Layers:     %d\n", len(imgCfg.RootFS.DiffIDs))
	for k, v := range imgCfg.Config.Labels {
		fmt.Printf("Label:      %s=%s\n", k, v)
	}
	return nil
}

// printImageResult outputs assembly results in text or JSON format.
func printImageResult(destPath, ref string) {
	if IsJSONOutput() {
		out := struct {
			Archive string `json:"archive"`
			Ref     string `json:"ref"`
		}{Archive: destPath, Ref: ref}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Assembled %s\n", ref)
	fmt.Printf("  Archive: %s\n", destPath)
}
