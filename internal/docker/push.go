// push.go implements the registry-facing half of the Client: loading the
// assembled OCI layout archive into the daemon, tagging it with the
// release reference, and pushing it under authenticated credentials.
//
// Auth and push failures are deliberately distinct error kinds — a
// rejected credential is an operator problem (rotate the token), while a
// failed push is an infrastructure problem (registry or network). CI
// operators triage them differently, so the exit codes keep them apart.
package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"

	"github.com/shinji-kodama/binforge/internal/model"
)

// Load streams an OCI layout archive into the Docker daemon. The archive
// carries its reference in the layout index annotation, so the loaded
// image is already named.
func (c *Client) Load(ctx context.Context, archivePath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return model.WrapCLIError(model.ExitPublishPush,
			fmt.Sprintf("cannot open image archive %q", archivePath), err)
	}
	defer f.Close()

	resp, err := c.inner.ImageLoad(ctx, f, client.ImageLoadWithQuiet(true))
	if err != nil {
		return model.WrapCLIError(model.ExitPublishPush,
			fmt.Sprintf("failed to load image archive %q into the daemon", archivePath), err)
	}
	defer resp.Body.Close()

	// The load response is a JSON message stream; drain it and surface
	// any embedded error message.
	if err := checkMessageStream(resp.Body); err != nil {
		return model.WrapCLIError(model.ExitPublishPush,
			fmt.Sprintf("daemon rejected image archive %q", archivePath), err)
	}
	return nil
}

// Tag applies the target reference to an already-loaded image.
func (c *Client) Tag(ctx context.Context, source, target string) error {
	if err := c.inner.ImageTag(ctx, source, target); err != nil {
		return model.WrapCLIError(model.ExitPublishPush,
			fmt.Sprintf("failed to tag %q as %q", source, target), err)
	}
	return nil
}

// Push pushes ref to its registry under the given credentials.
//
// Registries update tags atomically: a push either completes and moves
// the tag, or fails and leaves the previous content untouched. This
// method therefore reports failure without any cleanup obligation.
//
// Credential rejection returns ExitPublishAuth; any other failure
// returns ExitPublishPush.
func (c *Client) Push(ctx context.Context, ref string, creds model.Credentials) error {
	authConfig := registry.AuthConfig{
		Username: creds.Username,
		Password: creds.Token,
	}
	encodedAuth, err := registry.EncodeAuthConfig(authConfig)
	if err != nil {
		return model.WrapCLIError(model.ExitPublishAuth,
			"cannot encode registry credentials", err)
	}

	body, err := c.inner.ImagePush(ctx, ref, image.PushOptions{
		RegistryAuth: encodedAuth,
	})
	if err != nil {
		return classifyPushError(ref, err)
	}
	defer body.Close()

	// Push progress arrives as a JSON message stream; an error during
	// the push is embedded in the stream rather than returned from the
	// call itself.
	if err := checkMessageStream(body); err != nil {
		return classifyPushError(ref, err)
	}
	return nil
}

// streamMessage is the subset of the daemon's JSON progress message the
// error check needs.
type streamMessage struct {
	ErrorDetail *struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
	Error string `json:"error"`
}

// checkMessageStream drains a daemon JSON message stream and returns the
// first embedded error, if any.
func checkMessageStream(r io.Reader) error {
	dec := json.NewDecoder(r)
	for {
		var msg streamMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("malformed daemon response: %w", err)
		}
		if msg.ErrorDetail != nil && msg.ErrorDetail.Message != "" {
			return errors.New(msg.ErrorDetail.Message)
		}
		if msg.Error != "" {
			return errors.New(msg.Error)
		}
	}
}

// classifyPushError maps a push failure onto the auth/push error split
// based on the registry's response wording. Registries phrase credential
// rejection as 401/403-style messages.
func classifyPushError(ref string, err error) error {
	if isAuthError(err) {
		return model.WrapCLIError(model.ExitPublishAuth,
			fmt.Sprintf("registry rejected credentials for %q", ref), err)
	}
	return model.WrapCLIError(model.ExitPublishPush,
		fmt.Sprintf("failed to push %q", ref), err)
}

// isAuthError reports whether an error message indicates a credential
// rejection rather than a transport or registry-side failure.
func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"unauthorized",
		"authentication required",
		"access denied",
		"denied: ",
		"invalid username/password",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
