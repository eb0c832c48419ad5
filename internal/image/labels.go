package image

import (
	"time"

	"github.com/shinji-kodama/binforge/internal/model"
)

// Label key constants define the image labels stamped on every published
// release. The labels are what make a `latest` tag traceable: inspecting
// the image recovers the exact source revision, branch, and build time
// without any external release database.
//
// All keys share the "binforge." prefix to namespace them away from
// labels set by other tooling.
const (
	// LabelPrefix is the common prefix for all binforge labels.
	LabelPrefix = "binforge."

	// LabelBuiltBy identifies images produced by this pipeline.
	// Key: "binforge.built-by", Value: always "binforge".
	LabelBuiltBy = LabelPrefix + "built-by"

	// LabelTool stores the name of the wrapped binary.
	LabelTool = LabelPrefix + "tool"

	// LabelMode stores the link mode of the embedded artifact.
	// Always "static" for published images.
	LabelMode = LabelPrefix + "mode"

	// LabelRevision stores the source commit the image was built from.
	LabelRevision = LabelPrefix + "revision"

	// LabelBranch stores the branch whose update triggered the release.
	LabelBranch = LabelPrefix + "branch"

	// LabelCreatedAt stores the RFC3339 build timestamp in UTC.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// BuiltByValue is the constant value for the LabelBuiltBy label.
const BuiltByValue = "binforge"

// BuildLabels constructs the label map for a release image from the
// embedded artifact and the release's revision identity. Empty revision
// fields are omitted rather than stamped as empty strings, which keeps
// local (non-CI) image builds inspectable without fake metadata.
func BuildLabels(artifact *model.BuildArtifact, rel model.Release, now time.Time) map[string]string {
	labels := map[string]string{
		LabelBuiltBy:   BuiltByValue,
		LabelTool:      artifact.Tool,
		LabelMode:      artifact.Mode.String(),
		LabelCreatedAt: now.UTC().Format(time.RFC3339),
	}
	if rel.Revision != "" {
		labels[LabelRevision] = rel.Revision
	}
	if rel.Branch != "" {
		labels[LabelBranch] = rel.Branch
	}
	return labels
}
