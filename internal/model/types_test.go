package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLinkMode_String verifies that LinkMode values produce the expected
// string representations for CLI output and artifact tagging.
func TestLinkMode_String(t *testing.T) {
	assert.Equal(t, "native", ModeNative.String())
	assert.Equal(t, "static", ModeStatic.String())
}

// TestLinkMode_IsValid checks that only defined modes pass validation.
func TestLinkMode_IsValid(t *testing.T) {
	assert.True(t, ModeNative.IsValid())
	assert.True(t, ModeStatic.IsValid())
	assert.False(t, LinkMode("musl").IsValid())
	assert.False(t, LinkMode("").IsValid())
}

// TestParseLinkMode verifies string-to-mode conversion,
// including case normalization and error cases.
func TestParseLinkMode(t *testing.T) {
	tests := []struct {
		input    string
		expected LinkMode
		hasError bool
	}{
		{"native", ModeNative, false},
		{"static", ModeStatic, false},
		{"Native", ModeNative, false}, // case insensitive
		{"STATIC", ModeStatic, false}, // case insensitive
		{"dynamic", "", true},         // unknown value
		{"", "", true},                // empty string
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseLinkMode(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

// TestDialect_FileName verifies the conventional completion file names
// that the build emits and the generator searches for. The zsh name uses
// the compsys underscore prefix rather than an extension.
func TestDialect_FileName(t *testing.T) {
	tests := []struct {
		dialect  Dialect
		expected string
	}{
		{DialectBash, "clockin.bash"},
		{DialectFish, "clockin.fish"},
		{DialectZsh, "_clockin"},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.dialect.FileName("clockin"))
		})
	}
}

// TestAllDialects verifies the supported dialect set is exactly the three
// shells a release must ship completions for.
func TestAllDialects(t *testing.T) {
	dialects := AllDialects()
	require.Len(t, dialects, 3)
	assert.Equal(t, []Dialect{DialectBash, DialectFish, DialectZsh}, dialects)
	for _, d := range dialects {
		assert.True(t, d.IsValid())
	}
}

// TestRelease_Reference verifies the image reference format used for
// tagging and pushing.
func TestRelease_Reference(t *testing.T) {
	rel := Release{
		Registry:  "ghcr.io",
		Namespace: "octocat",
		ImageName: "clockin",
		Tag:       "latest",
	}
	assert.Equal(t, "ghcr.io/octocat/clockin:latest", rel.Reference())
}

// TestRelease_Validate checks that every destination coordinate is required.
func TestRelease_Validate(t *testing.T) {
	valid := Release{Registry: "ghcr.io", Namespace: "octocat", ImageName: "clockin", Tag: "latest"}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Release)
	}{
		{"missing registry", func(r *Release) { r.Registry = "" }},
		{"missing namespace", func(r *Release) { r.Namespace = "" }},
		{"missing image name", func(r *Release) { r.ImageName = "" }},
		{"missing tag", func(r *Release) { r.Tag = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel := valid
			tt.mutate(&rel)
			assert.Error(t, rel.Validate())
		})
	}
}

// TestCredentials_TokenNotSerialized ensures the secret token can never
// leak through JSON output paths (e.g., --json CLI output or logs).
func TestCredentials_TokenNotSerialized(t *testing.T) {
	creds := Credentials{Username: "octocat", Token: "super-secret"}
	data, err := json.Marshal(creds)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret")
	assert.Contains(t, string(data), "octocat")
}

// TestCLIError_ErrorAndUnwrap verifies message formatting and that the
// wrapped error is reachable via errors.Is.
func TestCLIError_ErrorAndUnwrap(t *testing.T) {
	underlying := errors.New("connection refused")
	err := WrapCLIError(ExitPublishPush, "push failed", underlying)

	assert.Equal(t, "push failed: connection refused", err.Error())
	assert.True(t, errors.Is(err, underlying))
	assert.Equal(t, ExitPublishPush, err.Code)

	bare := NewCLIError(ExitSnapshotError, "source root unreadable")
	assert.Equal(t, "source root unreadable", bare.Error())
	assert.Nil(t, bare.Unwrap())
}

// TestExitCodes_AreDistinct guards the exit code contract: CI distinguishes
// failure stages by process status, so two kinds must never share a code.
func TestExitCodes_AreDistinct(t *testing.T) {
	codes := []ExitCode{
		ExitSuccess, ExitGeneralError, ExitConfigInvalid, ExitSnapshotError,
		ExitBuildFailure, ExitCompletionNotFound, ExitImageAssembly,
		ExitPublishAuth, ExitPublishPush, ExitDockerUnavailable, ExitGitError,
	}
	seen := make(map[ExitCode]bool)
	for _, c := range codes {
		assert.False(t, seen[c], "duplicate exit code %d", c)
		seen[c] = true
	}
}
