// Package cli — publish.go implements the "binforge publish" command.
//
// Publish runs the full release pipeline end to end:
//  1. Verify the triggering ref is the mainline branch
//  2. Resolve the source revision
//  3. Build the static binary and assemble the image archive
//  4. Load the archive into the Docker daemon and push it
//
// Registry credentials come from --registry-user/--registry-token or, when
// the flags are absent, from the BINFORGE_REGISTRY_USER and
// BINFORGE_REGISTRY_TOKEN environment variables. The environment lookup
// happens here at the command layer only; everything below receives the
// credentials as explicit values.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/binforge/internal/builder"
	"github.com/shinji-kodama/binforge/internal/config"
	"github.com/shinji-kodama/binforge/internal/docker"
	"github.com/shinji-kodama/binforge/internal/gitrev"
	"github.com/shinji-kodama/binforge/internal/image"
	"github.com/shinji-kodama/binforge/internal/model"
	"github.com/shinji-kodama/binforge/internal/publish"
)

const (
	// envTriggerRef is the CI-provided ref name for the triggering event.
	envTriggerRef = "GITHUB_REF_NAME"

	// envRegistryUser and envRegistryToken supply credentials when the
	// corresponding flags are not set.
	envRegistryUser  = "BINFORGE_REGISTRY_USER"
	envRegistryToken = "BINFORGE_REGISTRY_TOKEN"
)

// publishFlags holds the flag values for the publish command.
type publishFlags struct {
	ref           string // --ref: triggering ref name
	registryUser  string // --registry-user: registry principal
	registryToken string // --registry-token: registry secret
}

// NewPublishCommand creates the "publish" cobra command.
func NewPublishCommand() *cobra.Command {
	flags := &publishFlags{}

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Build, assemble, and push the release image",
		Long: `Run the release pipeline and push the image to the registry.

Publishing is gated on the triggering ref: only a push to the configured
mainline branch releases. The image is pushed under the configured tag
(normally "latest"), superseding the previous content under that tag.

The destination namespace is derived from the registry user, so the
pushed reference is <registry>/<user>/<image>:<tag>.

Examples:
  binforge publish --ref main --registry-user octocat --registry-token "$TOKEN"
  GITHUB_REF_NAME=main binforge publish`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.ref, "ref", "", "Triggering ref name (defaults to $GITHUB_REF_NAME)")
	cmd.Flags().StringVar(&flags.registryUser, "registry-user", "", "Registry user (defaults to $BINFORGE_REGISTRY_USER)")
	cmd.Flags().StringVar(&flags.registryToken, "registry-token", "", "Registry token (defaults to $BINFORGE_REGISTRY_TOKEN)")

	return cmd
}

// runPublish is the main orchestration function for the publish command.
func runPublish(ctx context.Context, flags *publishFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	triggerRef := flags.ref
	if triggerRef == "" {
		triggerRef = os.Getenv(envTriggerRef)
	}
	if err := publish.CheckTrigger(triggerRef, cfg.Publish.MainlineBranch); err != nil {
		return err
	}

	creds := resolveCredentials(flags)
	namespace, err := publish.DeriveNamespace(creds)
	if err != nil {
		return err
	}

	rev, err := gitrev.Resolve(cfg.Dir)
	if err != nil {
		return err
	}
	VerboseLog("Releasing revision %s (branch %s)", rev.Short(), rev.Branch)

	rel := model.Release{
		Registry:  cfg.Publish.Registry,
		Namespace: namespace,
		ImageName: cfg.Publish.ImageName,
		Tag:       cfg.Publish.Tag,
		Revision:  rev.Commit,
		Branch:    rev.Branch,
	}

	archivePath, err := assembleRelease(ctx, cfg, rel)
	if err != nil {
		return err
	}

	client, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		return err
	}

	// The archive carries the release reference as its ref annotation, so
	// the loaded image is already named for the push and no retag is needed.
	if err := publish.New(client).Publish(ctx, rel, rel.Reference(), archivePath, creds); err != nil {
		return err
	}

	printPublished(rel)
	return nil
}

// resolveCredentials merges the credential flags with their environment
// fallbacks.
func resolveCredentials(flags *publishFlags) model.Credentials {
	creds := model.Credentials{
		Username: flags.registryUser,
		Token:    flags.registryToken,
	}
	if creds.Username == "" {
		creds.Username = os.Getenv(envRegistryUser)
	}
	if creds.Token == "" {
		creds.Token = os.Getenv(envRegistryToken)
	}
	return creds
}

// assembleRelease builds the static artifact and assembles the image
// archive for the given release, returning the archive path.
func assembleRelease(ctx context.Context, cfg *config.Config, rel model.Release) (string, error) {
	snap, lock, err := captureInputs(cfg.SnapshotRoot(), cfg.LockfilePath(), cfg.Snapshot.Exclude)
	if err != nil {
		return "", err
	}

	b := builder.New(builder.NewExecToolchain(), cfg)
	artifact, err := b.Build(ctx, snap, lock, model.ModeStatic)
	if err != nil {
		return "", err
	}

	destPath := cfg.ImageArchive()
	labels := image.BuildLabels(artifact, rel, time.Now().UTC())
	if err := image.NewAssembler().Assemble(artifact, cfg.ImageBaseDir(), destPath, rel.Reference(), labels); err != nil {
		return "", err
	}
	VerboseLog("Assembled %s at %s", rel.Reference(), destPath)

	return destPath, nil
}

// printPublished outputs the publish result in text or JSON format.
func printPublished(rel model.Release) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(rel, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Published %s\n", rel.Reference())
	fmt.Printf("  Revision: %s\n", rel.Revision)
}
